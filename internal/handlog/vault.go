package handlog

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// secret is the sidecar that lets a crashed hand be dealt again. It is
// written before the commitment is logged and removed once the proof is.
type secret struct {
	Seed  string `json:"seed"`
	Nonce string `json:"nonce"`
}

// WriteSecret stores seed and nonce at path, readable by the owner only.
func WriteSecret(path string, seed, nonce []byte) error {
	data, err := json.Marshal(secret{Seed: hex.EncodeToString(seed), Nonce: hex.EncodeToString(nonce)})
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data, 0o600)
}

// ReadSecret loads a secret written by WriteSecret.
func ReadSecret(path string) (seed, nonce []byte, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, nil, fmt.Errorf("handlog: read secret: %w", err)
	}
	var s secret
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, nil, fmt.Errorf("handlog: decode secret: %w", err)
	}
	if seed, err = hex.DecodeString(s.Seed); err != nil {
		return nil, nil, fmt.Errorf("handlog: decode seed: %w", err)
	}
	if nonce, err = hex.DecodeString(s.Nonce); err != nil {
		return nil, nil, fmt.Errorf("handlog: decode nonce: %w", err)
	}
	return seed, nonce, nil
}

// RemoveSecret deletes the sidecar. A missing file is not an error.
func RemoveSecret(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("handlog: remove secret: %w", err)
	}
	return nil
}

// writeFileAtomic writes to a temporary file in the same directory and
// renames it over filename, so readers see either the old file or the whole
// new one.
func writeFileAtomic(filename string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("handlog: create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(filename)+".tmp.*")
	if err != nil {
		return fmt.Errorf("handlog: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmp != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if err := tmp.Chmod(perm); err != nil {
		return fmt.Errorf("handlog: chmod temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("handlog: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("handlog: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("handlog: close temp file: %w", err)
	}
	tmp = nil

	if err := os.Rename(tmpPath, filename); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("handlog: rename temp file: %w", err)
	}
	return nil
}
