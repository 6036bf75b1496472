package agenda

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrMalformed is returned when an agenda block is not a comma-separated
// list of JSON strings.
var ErrMalformed = errors.New("malformed agenda block")

// ParseItems parses the content of an agenda block, e.g.
//
//	"Login bug status", "Release date for 2.3"
//
// by decoding it as the JSON array [<block>]. Every element must be a
// string; null, numbers, objects and bare words are rejected, as are
// trailing commas and anything after the closing bracket. Order and
// duplicates are preserved. An empty block yields an empty, non-nil list.
func ParseItems(block string) ([]string, error) {
	dec := json.NewDecoder(strings.NewReader("[" + block + "]"))

	var raw []json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after list", ErrMalformed)
	}

	items := make([]string, 0, len(raw))
	for i, elem := range raw {
		elem = bytes.TrimSpace(elem)
		if len(elem) == 0 || elem[0] != '"' {
			return nil, fmt.Errorf("%w: item %d is not a string: %s", ErrMalformed, i, elem)
		}
		var s string
		if err := json.Unmarshal(elem, &s); err != nil {
			return nil, fmt.Errorf("%w: item %d: %v", ErrMalformed, i, err)
		}
		items = append(items, s)
	}
	return items, nil
}
