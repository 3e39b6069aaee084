package utils

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrettyJSON(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"object", map[string]any{"b": 1, "a": "<x>"}, "{\n  \"a\": \"<x>\",\n  \"b\": 1\n}\n"},
		{"number kept verbatim", map[string]any{"n": json.Number("1.50")}, "{\n  \"n\": 1.50\n}\n"},
		{"scalar", true, "true\n"},
		{"empty array", []any{}, "[]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PrettyJSON(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}

	_, err := PrettyJSON(func() {})
	assert.Error(t, err)
}

func TestCompactJSON(t *testing.T) {
	got, err := CompactJSON([]byte("{\n  \"a\": [1, 2]\n}"))
	require.NoError(t, err)
	assert.Equal(t, `{"a":[1,2]}`, string(got))

	_, err = CompactJSON([]byte(`{`))
	assert.Error(t, err)
}

func TestPointers(t *testing.T) {
	assert.Equal(t, "x", *StringPtr("x"))
	assert.Equal(t, int64(7), *Int64Ptr(7))
}
