package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckKeywords(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{"known keywords", `{"type":"object","title":"x","properties":{"a":{"type":"string"}}}`, ""},
		{"property names are not keywords", `{"properties":{"colour":{"type":"string"}}}`, ""},
		{"enum values are not walked", `{"enum":[{"colour":"red"}]}`, ""},
		{"dependency lists", `{"dependencies":{"a":["b"]}}`, ""},
		{"schema dependencies are walked", `{"dependencies":{"a":{"typo":1}}}`, `"typo" at #/dependencies/a`},
		{"root", `{"colour":"red"}`, `"colour" at #`},
		{"under items", `{"items":{"typ":"string"}}`, `"typ" at #/items`},
		{"under tuple items", `{"items":[{"type":"string"},{"req":true}]}`, `"req" at #/items/1`},
		{"under anyOf", `{"anyOf":[{"type":"string"},{"maxlength":3}]}`, `"maxlength" at #/anyOf/1`},
		{"under definitions", `{"definitions":{"id":{"kind":"int"}}}`, `"kind" at #/definitions/id`},
		{"under not", `{"not":{"nope":1}}`, `"nope" at #/not`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Decode([]byte(tt.doc))
			require.NoError(t, err)

			err = checkKeywords(doc)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidSchema)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCheckKeywords_ReportsFirstInSortedOrder(t *testing.T) {
	doc, err := Decode([]byte(`{"zeta":1,"alpha":2}`))
	require.NoError(t, err)

	err = checkKeywords(doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"alpha"`)
}
