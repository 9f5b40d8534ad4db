package handlog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/lox/handengine/internal/hand"
)

const maxLineSize = 4 << 20

// Read parses a JSON Lines log. Lines that do not decode are skipped and
// counted; a torn final line after a crash is the common case.
func Read(r io.Reader, handID string) (*Log, int, error) {
	l := New(handID, nil)
	skipped := 0

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		ln, err := decodeLine(scanner.Bytes())
		if err != nil {
			skipped++
			continue
		}
		switch {
		case ln.entry != nil:
			if l.proof != nil || ln.entry.Index != len(l.entries) {
				skipped++
				continue
			}
			l.entries = append(l.entries, *ln.entry)
		case ln.proof != nil:
			if l.proof != nil {
				skipped++
				continue
			}
			l.proof = ln.proof
		default:
			if l.commitment != "" || len(l.entries) > 0 {
				skipped++
				continue
			}
			l.commitment = ln.commitment
			l.config = ln.config
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, skipped, fmt.Errorf("handlog: read %s: %w", handID, err)
	}
	l.durable = l.current()
	return l, skipped, nil
}

// Load reads the log file at path into memory. A missing file is ErrNotFound.
func Load(path, handID string) (*Log, int, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, 0, fmt.Errorf("handlog: open %s: %w", path, err)
	}
	defer f.Close()
	return Read(f, handID)
}

// Open loads the log at path, if any, and keeps appending to it. Only
// newline-terminated lines are loaded; a torn tail counts as skipped and is
// cut off by the next flush.
func Open(path, handID string) (*Log, int, error) {
	sink, err := OpenFileSink(path)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(path)
	if err != nil {
		sink.Close()
		return nil, 0, fmt.Errorf("handlog: open %s: %w", path, err)
	}
	l, skipped, err := Read(io.NewSectionReader(f, 0, sink.written), handID)
	f.Close()
	if err != nil {
		sink.Close()
		return nil, 0, err
	}
	if sink.size > sink.written {
		skipped++
	}
	l.sink = sink
	return l, skipped, nil
}

// Applier applies one action to a hand. *hand.Machine satisfies it.
type Applier interface {
	Apply(a hand.Action) (hand.State, error)
}

// Replay drives m through actions in order and returns the final state.
// Stored states are never consulted.
func Replay(m Applier, actions []hand.Action) (hand.State, error) {
	var s hand.State
	for i, a := range actions {
		var err error
		s, err = m.Apply(a)
		if err != nil {
			return s, fmt.Errorf("handlog: replay action %d (%s): %w", i, a, err)
		}
	}
	return s, nil
}
