package persistence

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/asaidimu/manyjson/core/association"
	"github.com/asaidimu/manyjson/core/validation"
	"github.com/asaidimu/manyjson/filestore"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func instance(t *testing.T, raw string) validation.Instance {
	t.Helper()
	inst, err := validation.ParseInstance([]byte(raw))
	require.NoError(t, err)
	return inst
}

func document(t *testing.T, raw string) validation.SchemaDocument {
	t.Helper()
	doc, err := validation.ParseSchemaDocument([]byte(raw))
	require.NoError(t, err)
	return doc
}

func sampleSchemas(t *testing.T) []association.Schema {
	return []association.Schema{
		{
			Name:    "user.json",
			Path:    "schemas/user.json",
			Content: document(t, `{"type":"object","required":["id"]}`),
			AssociatedFiles: []association.JsonFile{
				{Name: "a.json", Path: "data/user/a.json", Content: instance(t, `{"id":1,"tags":["x"],"score":1.50}`), IsValid: true},
				{Name: "b.json", Path: "data/user/b.json", Content: instance(t, `{}`), Errors: []validation.ErrorRecord{{Keyword: "required", Message: "missing property 'id'"}}},
			},
		},
		{Name: "empty.json", Path: "schemas/empty.json", Content: document(t, `true`)},
	}
}

func TestRecordsRoundTrip(t *testing.T) {
	schemas := sampleSchemas(t)

	data, err := MarshalRecords(schemas)
	require.NoError(t, err)

	records, err := UnmarshalRecords(data)
	require.NoError(t, err)
	require.Len(t, records, len(schemas))

	for i, s := range schemas {
		rec := records[i]
		assert.Equal(t, s.Name, rec.SchemaName)
		assert.Equal(t, s.Path, rec.SchemaPath)
		require.Len(t, rec.AssociatedFiles, len(s.AssociatedFiles))
		for j, f := range s.AssociatedFiles {
			fr := rec.AssociatedFiles[j]
			assert.Equal(t, f.Name, fr.Name)
			assert.Equal(t, f.IsValid, fr.IsValid)

			cached, ok := fr.CachedContent()
			require.True(t, ok)
			assert.Equal(t, f.Content.Value(), cached.Value())
		}
	}
}

func TestRecordsFormat(t *testing.T) {
	data, err := MarshalRecords(sampleSchemas(t)[:1])
	require.NoError(t, err)

	var raw []map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Len(t, raw, 1)
	assert.Equal(t, "schemas/user.json", raw[0]["schemaPath"])
	assert.Equal(t, "user.json", raw[0]["schemaName"])

	files := raw[0]["associatedFiles"].([]any)
	first := files[0].(map[string]any)
	for _, key := range []string{"name", "path", "content", "isValid", "errors"} {
		assert.Contains(t, first, key)
	}
}

func TestMarshalRecords_Empty(t *testing.T) {
	data, err := MarshalRecords(nil)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))
}

func TestUnmarshalRecords_Corrupt(t *testing.T) {
	for _, raw := range []string{``, `{`, `{"schemaName":"x"}`, `[] []`} {
		_, err := UnmarshalRecords([]byte(raw))
		assert.Error(t, err, raw)
	}
}

func TestCachedContent(t *testing.T) {
	_, ok := FileRecord{}.CachedContent()
	assert.False(t, ok)

	_, ok = FileRecord{Content: json.RawMessage(`{oops`)}.CachedContent()
	assert.False(t, ok)

	inst, ok := FileRecord{Content: json.RawMessage(`null`)}.CachedContent()
	assert.True(t, ok)
	assert.Nil(t, inst.Value())
}

func TestBlobRecordStore(t *testing.T) {
	ctx := context.Background()
	fs := filestore.NewWithFs(afero.NewMemMapFs(), nil)
	rs := NewBlobRecordStore(fs, "schemas/"+RecordName, nil)

	_, err := rs.Load(ctx)
	assert.ErrorIs(t, err, ErrNoRecord)

	records, err := RecordsFromSchemas(sampleSchemas(t))
	require.NoError(t, err)
	require.NoError(t, rs.Save(ctx, records))

	loaded, err := rs.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "user.json", loaded[0].SchemaName)
	require.Len(t, loaded[0].AssociatedFiles, 2)
	cached, ok := loaded[0].AssociatedFiles[1].CachedContent()
	require.True(t, ok)
	assert.Equal(t, map[string]any{}, cached.Value())
	assert.Equal(t, "required", loaded[0].AssociatedFiles[1].Errors[0].Keyword)

	require.NoError(t, fs.Write(ctx, rs.Locator(), []byte(`not json`)))
	_, err = rs.Load(ctx)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoRecord)
}
