// Package utils holds small helpers shared by the engine and the CLI.
package utils

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}

// Int64Ptr returns a pointer to i.
func Int64Ptr(i int64) *int64 {
	return &i
}

// PrettyJSON encodes v with two space indentation and a trailing newline.
// HTML characters are left unescaped so stored documents read the way they
// were written.
//
// Example:
//
//	data, _ := PrettyJSON(map[string]any{"type": "object"})
//	// {
//	//   "type": "object"
//	// }
func PrettyJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("PrettyJSON: failed to encode value: %w", err)
	}
	return buf.Bytes(), nil
}

// CompactJSON removes insignificant whitespace from a JSON document.
func CompactJSON(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return nil, fmt.Errorf("CompactJSON: %w", err)
	}
	return buf.Bytes(), nil
}
