package handlog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lox/handengine/internal/hand"
	"github.com/lox/handengine/internal/rng"
)

// Entry is one applied action with the states on either side of it.
type Entry struct {
	Index  int
	Action hand.Action
	Pre    hand.State
	Post   hand.State
}

func (e Entry) clone() Entry {
	e.Pre = e.Pre.Clone()
	e.Post = e.Post.Clone()
	return e
}

// MarshalJSON encodes the entry as [index, action, pre, post].
func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]any{e.Index, e.Action, e.Pre, e.Post})
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 4 {
		return fmt.Errorf("handlog: entry has %d fields, want 4", len(raw))
	}
	var out Entry
	for i, dst := range []any{&out.Index, &out.Action, &out.Pre, &out.Post} {
		if err := json.Unmarshal(raw[i], dst); err != nil {
			return fmt.Errorf("handlog: entry field %d: %w", i, err)
		}
	}
	if !out.Action.Kind.Valid() {
		return fmt.Errorf("handlog: entry %d has unknown action %q", out.Index, out.Action.Kind)
	}
	*e = out
	return nil
}

// commitmentMarker opens a log. Config holds the limits the hand is
// validated under so a recovered hand is replayed under the same rules.
type commitmentMarker struct {
	Commitment string       `json:"commitment"`
	Config     *hand.Config `json:"config,omitempty"`
}

type proofMarker struct {
	Proof rng.Proof `json:"proof"`
}

// line is one decoded line of a log file; exactly one field is set.
type line struct {
	entry      *Entry
	commitment string
	config     *hand.Config
	proof      *rng.Proof
}

var errMalformed = errors.New("handlog: malformed line")

func decodeLine(data []byte) (line, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return line{}, errMalformed
	}

	switch data[0] {
	case '[':
		var e Entry
		if err := json.Unmarshal(data, &e); err != nil {
			return line{}, fmt.Errorf("%w: %v", errMalformed, err)
		}
		return line{entry: &e}, nil
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(data, &obj); err != nil {
			return line{}, fmt.Errorf("%w: %v", errMalformed, err)
		}
		if raw, ok := obj["proof"]; ok {
			var p rng.Proof
			if err := json.Unmarshal(raw, &p); err != nil || p.Commitment == "" {
				return line{}, fmt.Errorf("%w: bad proof", errMalformed)
			}
			return line{proof: &p}, nil
		}
		if raw, ok := obj["commitment"]; ok {
			var c string
			if err := json.Unmarshal(raw, &c); err != nil || c == "" {
				return line{}, fmt.Errorf("%w: bad commitment", errMalformed)
			}
			ln := line{commitment: c}
			if raw, ok := obj["config"]; ok {
				var cfg hand.Config
				if err := json.Unmarshal(raw, &cfg); err != nil {
					return line{}, fmt.Errorf("%w: bad config: %v", errMalformed, err)
				}
				ln.config = &cfg
			}
			return ln, nil
		}
	}
	return line{}, errMalformed
}

func encodeLine(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
