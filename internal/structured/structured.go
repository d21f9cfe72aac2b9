package structured

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when the text has no JSON array or object.
var ErrNotFound = errors.New("structured: no json found")

// Extract tries to decode the first JSON array or object found in text into v.
// Model output often wraps JSON in prose or markdown fences, so the text is
// scanned from the first delimiter. Callers should fall back to the raw text
// on error.
func Extract(text string, v any) error {
	start := strings.IndexAny(text, "[{")
	if start == -1 {
		return ErrNotFound
	}

	// Decode the first value and ignore whatever follows it
	dec := json.NewDecoder(strings.NewReader(text[start:]))
	err := dec.Decode(v)
	if err == nil {
		return nil
	}

	// Try the widest span between the opening and the last closing delimiter
	closer := "]"
	if text[start] == '{' {
		closer = "}"
	}
	end := strings.LastIndex(text, closer)
	if end <= start {
		return fmt.Errorf("structured: couldn't decode json: %w", err)
	}
	match := text[start : end+1]
	if err := json.Unmarshal([]byte(match), v); err != nil {
		return fmt.Errorf("structured: couldn't decode json (%s): %w", match, err)
	}
	return nil
}
