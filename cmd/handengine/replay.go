package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/lox/handengine/cmd/handengine/shared"
	"github.com/lox/handengine/internal/engine"
	"github.com/lox/handengine/internal/hand"
	"github.com/lox/handengine/internal/handlog"
	"github.com/lox/handengine/internal/rng"
)

// ReplayCmd re-drives the logged actions and checks every state against the
// log. Unsealed logs need the secret from the vault.
type ReplayCmd struct {
	File     string `arg:"" name:"file" help:"Hand log in JSON Lines form" type:"existingfile"`
	Seed     string `help:"Seed (hex) for a log without a proof"`
	Nonce    string `help:"Nonce (hex) for a log without a proof"`
	BigBlind int64  `help:"Big blind cap for logs that do not record one (0 = none)"`
	MaxBet   int64  `help:"Bet cap for logs that do not record one (0 = none)"`
	Debug    bool   `help:"Enable debug logging"`
}

func (c *ReplayCmd) Run() error {
	logger := zerolog.Nop()
	if c.Debug {
		logger = shared.DebugLogger()
	}
	return c.replay(os.Stdout, logger)
}

func (c *ReplayCmd) replay(w io.Writer, logger zerolog.Logger) error {
	l, skipped, err := loadLog(c.File)
	if err != nil {
		return err
	}
	r, err := c.handRNG(l)
	if err != nil {
		return err
	}
	cfg, err := engine.ConfigFromLog(l, hand.Config{BigBlind: c.BigBlind, MaxBet: c.MaxBet})
	if err != nil {
		return err
	}
	e, err := engine.Resume(cfg, l, engine.Options{RNG: r, Logger: logger})
	if err != nil {
		return fmt.Errorf("replay %s: %w", l.HandID(), err)
	}

	final := e.State()
	fmt.Fprintf(w, "replayed %d actions of %s", l.Len(), l.HandID())
	if skipped > 0 {
		fmt.Fprintf(w, " (%d malformed lines skipped)", skipped)
	}
	fmt.Fprintf(w, "\nphase %s, street %s, pot %d\n", final.Phase, final.Street, final.Pot)
	for _, p := range final.Players {
		fmt.Fprintf(w, "  %-12s stack %d\n", p.ID, p.Stack)
	}
	for _, s := range final.Settlements {
		fmt.Fprintf(w, "  settle %-5s %+d\n", s.PlayerID, s.Delta)
	}
	return nil
}

func (c *ReplayCmd) handRNG(l *handlog.Log) (*rng.HandRNG, error) {
	if c.Seed != "" || c.Nonce != "" {
		seed, err := hex.DecodeString(c.Seed)
		if err != nil {
			return nil, fmt.Errorf("invalid --seed: %w", err)
		}
		nonce, err := hex.DecodeString(c.Nonce)
		if err != nil {
			return nil, fmt.Errorf("invalid --nonce: %w", err)
		}
		return rng.FromSeed(seed, nonce)
	}

	proof, ok := l.Proof()
	if !ok {
		return nil, errors.New("log has no proof; pass --seed and --nonce from the hand's secret")
	}
	seed, nonce, err := proof.Decode()
	if err != nil {
		return nil, err
	}
	return rng.FromSeed(seed, nonce)
}
