package visitlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// encodingVersion is written into every encoded log. Increment it when the
// record layout changes and teach Decode the previous shape.
const encodingVersion = 1

// ErrMalformed is returned by Decode when a stored value is not a visit log.
var ErrMalformed = errors.New("visitlog: malformed visit log")

type envelope struct {
	Version int      `json:"version"`
	Visits  []Record `json:"visits"`
}

// Encode serializes visits, oldest first, in the current versioned format.
func Encode(visits []Record) (string, error) {
	if visits == nil {
		visits = []Record{}
	}
	b, err := json.Marshal(envelope{Version: encodingVersion, Visits: visits})
	if err != nil {
		return "", fmt.Errorf("encode visit log: %w", err)
	}
	return string(b), nil
}

// Decode parses a stored visit log. Besides the versioned envelope it accepts
// the bare JSON array written by the browser tracker. Any other input yields
// an error wrapping ErrMalformed.
func Decode(raw string) ([]Record, error) {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "[") {
		var visits []Record
		if err := json.Unmarshal([]byte(trimmed), &visits); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return visits, nil
	}

	var env envelope
	if err := json.Unmarshal([]byte(trimmed), &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Version != encodingVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformed, env.Version)
	}
	return env.Visits, nil
}
