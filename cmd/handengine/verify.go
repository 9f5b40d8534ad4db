package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/lox/handengine/internal/engine"
	"github.com/lox/handengine/internal/handlog"
	"github.com/lox/handengine/internal/rng"
)

// VerifyCmd checks a revealed proof and, given a log, the deal recorded in it.
type VerifyCmd struct {
	Log        string `help:"Hand log in JSON Lines form" type:"existingfile"`
	Proof      string `help:"Proof JSON file; defaults to the proof sealed in the log" type:"existingfile"`
	Seed       string `help:"Revealed seed (hex)"`
	Nonce      string `help:"Revealed nonce (hex)"`
	Commitment string `help:"Published commitment (hex)"`
}

func (c *VerifyCmd) Run() error {
	return c.verify(os.Stdout)
}

func (c *VerifyCmd) verify(w io.Writer) error {
	proof, haveProof, err := c.proof()
	if err != nil {
		return err
	}

	if c.Log == "" {
		if !haveProof {
			return errors.New("verify needs --log, --proof or --seed/--nonce/--commitment")
		}
		if err := rng.VerifyProof(proof); err != nil {
			return fmt.Errorf("proof does not verify: %w", err)
		}
		fmt.Fprintf(w, "proof OK: %s\n", proof.Commitment)
		return nil
	}

	l, skipped, err := loadLog(c.Log)
	if err != nil {
		return err
	}
	var report engine.Report
	if haveProof {
		report, err = engine.AuditProof(l, proof)
	} else {
		report, err = engine.Audit(l)
	}
	if err != nil {
		return err
	}

	writeReport(w, report, skipped)
	if !report.OK() {
		return fmt.Errorf("hand %s failed verification", report.HandID)
	}
	return nil
}

// proof assembles a proof from the flags. It reports false when none was
// given so the log's own proof is used.
func (c *VerifyCmd) proof() (rng.Proof, bool, error) {
	if c.Proof != "" {
		data, err := os.ReadFile(c.Proof)
		if err != nil {
			return rng.Proof{}, false, err
		}
		var p rng.Proof
		if err := json.Unmarshal(data, &p); err != nil {
			return rng.Proof{}, false, fmt.Errorf("decode proof %s: %w", c.Proof, err)
		}
		return p, true, nil
	}

	if c.Seed == "" && c.Nonce == "" && c.Commitment == "" {
		return rng.Proof{}, false, nil
	}
	if c.Seed == "" || c.Nonce == "" || c.Commitment == "" {
		return rng.Proof{}, false, errors.New("--seed, --nonce and --commitment must be given together")
	}
	return rng.Proof{Commitment: c.Commitment, Seed: c.Seed, Nonce: c.Nonce}, true, nil
}

func writeReport(w io.Writer, r engine.Report, skipped int) {
	fmt.Fprintf(w, "hand:       %s\n", r.HandID)
	fmt.Fprintf(w, "commitment: %s\n", r.Commitment)
	fmt.Fprintf(w, "entries:    %d (settled: %t)\n", r.Entries, r.Settled)
	if skipped > 0 {
		fmt.Fprintf(w, "skipped:    %d malformed lines\n", skipped)
	}
	if r.DealIndex >= 0 {
		fmt.Fprintf(w, "deal:       entry %d\n", r.DealIndex)
	}
	for _, m := range r.Mismatches {
		fmt.Fprintf(w, "MISMATCH %s\n", m)
	}
	for _, p := range r.Problems {
		fmt.Fprintf(w, "PROBLEM  %s\n", p)
	}
	if r.OK() {
		fmt.Fprintln(w, "OK")
	}
}

// loadLog reads a log file, naming the hand after the file.
func loadLog(path string) (*handlog.Log, int, error) {
	handID := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return handlog.Load(filepath.Clean(path), handID)
}
