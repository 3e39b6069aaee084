package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/asaidimu/manyjson/core/association"
	"github.com/asaidimu/manyjson/core/storage"
	"github.com/asaidimu/manyjson/core/validation"
	"github.com/asaidimu/manyjson/filestore"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reconcilerFixture struct {
	store      *filestore.Store
	records    *BlobRecordStore
	validator  *validation.Validator
	reconciler *Reconciler
}

func newReconcilerFixture(t *testing.T) *reconcilerFixture {
	t.Helper()
	v, err := validation.New(validation.DefaultOptions(), nil)
	require.NoError(t, err)

	fs := filestore.NewWithFs(afero.NewMemMapFs(), nil)
	rs := NewBlobRecordStore(fs, "schemas/"+RecordName, nil)
	ns := func(schemaName string) string { return "data/" + schemaName[:len(schemaName)-len(".json")] }
	return &reconcilerFixture{
		store:      fs,
		records:    rs,
		validator:  v,
		reconciler: NewReconciler(fs, rs, v, ns, nil),
	}
}

func (f *reconcilerFixture) write(t *testing.T, loc, content string) {
	t.Helper()
	require.NoError(t, f.store.Write(context.Background(), loc, []byte(content)))
}

func TestReconcilerLoad_NoRecord(t *testing.T) {
	f := newReconcilerFixture(t)
	schemas := sampleSchemas(t)

	res := f.reconciler.Load(context.Background(), schemas)

	require.Len(t, res.Reports, 2)
	for _, rep := range res.Reports {
		assert.Equal(t, StateFailed, rep.State)
	}
	assert.Empty(t, res.Files["user.json"])
}

func TestReconcilerLoad_CorruptRecord(t *testing.T) {
	f := newReconcilerFixture(t)
	f.write(t, f.records.Locator(), `[{"schemaName": `)

	res := f.reconciler.Load(context.Background(), sampleSchemas(t))
	assert.Equal(t, StateFailed, res.Reports[0].State)
	assert.Empty(t, res.Files["user.json"])
}

func TestReconcilerLoad_FailedStateListsNamespace(t *testing.T) {
	tests := []struct {
		name   string
		record string
	}{
		{name: "no record"},
		{name: "corrupt record", record: `[{"schemaName": `},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newReconcilerFixture(t)
			if tt.record != "" {
				f.write(t, f.records.Locator(), tt.record)
			}
			f.write(t, "data/user/a.json", `{"id":1}`)

			res := f.reconciler.Load(context.Background(), sampleSchemas(t))
			rep := res.Reports[0]
			assert.Equal(t, StateFailed, rep.State)
			assert.Equal(t, []string{"data/user/a.json"}, rep.Unrecorded)
			assert.Empty(t, res.Files["user.json"])
		})
	}
}

func TestReconcilerLoad_FallsBackToCachedContent(t *testing.T) {
	ctx := context.Background()
	f := newReconcilerFixture(t)
	schemas := sampleSchemas(t)
	require.NoError(t, f.reconciler.Save(ctx, schemas))

	// a.json was deleted out of band; b.json still exists.
	f.write(t, "data/user/b.json", `{"id":2}`)

	res := f.reconciler.Load(ctx, schemas)
	files := res.Files["user.json"]
	require.Len(t, files, 2)

	a := files[0]
	assert.Equal(t, "data/user/a.json", a.Path)
	assert.True(t, a.Stale)
	assert.True(t, a.IsValid)
	assert.Equal(t, schemas[0].AssociatedFiles[0].Content.Value(), a.Content.Value())

	b := files[1]
	assert.False(t, b.Stale)
	assert.True(t, b.IsValid, "live content is preferred over the cached invalid copy")

	rep := res.Reports[0]
	assert.Equal(t, StateReconciled, rep.State)
	assert.Equal(t, []string{"data/user/a.json", "data/user/b.json"}, rep.Restored)
	assert.Equal(t, []string{"data/user/a.json"}, rep.Stale)
	assert.Empty(t, rep.Dropped)
}

func TestReconcilerLoad_RevalidatesAgainstCurrentSchema(t *testing.T) {
	ctx := context.Background()
	f := newReconcilerFixture(t)
	schemas := sampleSchemas(t)
	require.NoError(t, f.reconciler.Save(ctx, schemas))

	// The schema changed after the record was written.
	schemas[0].Content = document(t, `{"type":"object","required":["name"]}`)
	f.write(t, "data/user/a.json", `{"id":1}`)

	res := f.reconciler.Load(ctx, schemas)
	a := res.Files["user.json"][0]
	assert.False(t, a.IsValid, "recorded isValid is not trusted")
	require.Len(t, a.Errors, 1)
	assert.Equal(t, "required", a.Errors[0].Keyword)
}

func TestReconcilerLoad_UnparseableLiveContentUsesCache(t *testing.T) {
	ctx := context.Background()
	f := newReconcilerFixture(t)
	schemas := sampleSchemas(t)
	require.NoError(t, f.reconciler.Save(ctx, schemas))

	f.write(t, "data/user/a.json", `{"id": `)
	f.write(t, "data/user/b.json", `{}`)

	res := f.reconciler.Load(ctx, schemas)
	a := res.Files["user.json"][0]
	assert.True(t, a.Stale)
	assert.Equal(t, schemas[0].AssociatedFiles[0].Content.Value(), a.Content.Value())
}

func TestReconcilerLoad_DropsFilesWithoutContent(t *testing.T) {
	ctx := context.Background()
	f := newReconcilerFixture(t)

	require.NoError(t, f.records.Save(ctx, []AssociationRecord{{
		SchemaPath: "schemas/user.json",
		SchemaName: "user.json",
		AssociatedFiles: []FileRecord{
			{Name: "gone.json", Path: "data/user/gone.json"},
			{Name: "b.json", Path: "data/user/b.json"},
		},
	}}))
	f.write(t, "data/user/b.json", `{"id":1}`)
	f.write(t, "data/user/extra.json", `{"id":9}`)

	res := f.reconciler.Load(ctx, sampleSchemas(t))
	files := res.Files["user.json"]
	require.Len(t, files, 1)
	assert.Equal(t, "data/user/b.json", files[0].Path)

	rep := res.Reports[0]
	assert.Equal(t, []string{"data/user/gone.json"}, rep.Dropped)
	assert.Equal(t, []string{"data/user/extra.json"}, rep.Unrecorded)
}

func TestReconcilerLoad_MatchesRecordByName(t *testing.T) {
	ctx := context.Background()
	f := newReconcilerFixture(t)
	schemas := sampleSchemas(t)
	require.NoError(t, f.reconciler.Save(ctx, schemas))

	schemas[0].Path = "elsewhere/user.json"
	res := f.reconciler.Load(ctx, schemas)
	assert.Len(t, res.Files["user.json"], 2)
	assert.Equal(t, StateReconciled, res.Reports[1].State)
	assert.Empty(t, res.Files["empty.json"])
}

// failingRecords always fails to save.
type failingRecords struct{ RecordStore }

func (failingRecords) Save(context.Context, []AssociationRecord) error {
	return errors.New("disk full")
}

func TestReconcilerSave_ReturnsError(t *testing.T) {
	f := newReconcilerFixture(t)
	r := NewReconciler(f.store, failingRecords{f.records}, f.validator, func(string) string { return "data" }, nil)

	err := r.Save(context.Background(), sampleSchemas(t))
	assert.EqualError(t, err, "disk full")
}

func TestReconcilerSave_ThenLoadRestoresGraph(t *testing.T) {
	ctx := context.Background()
	f := newReconcilerFixture(t)
	schemas := sampleSchemas(t)
	for _, file := range schemas[0].AssociatedFiles {
		data, err := file.Content.MarshalJSON()
		require.NoError(t, err)
		f.write(t, file.Path, string(data))
	}
	require.NoError(t, f.reconciler.Save(ctx, schemas))

	res := f.reconciler.Load(ctx, schemas)
	repo := association.NewRepository(f.validator, nil)
	for _, s := range schemas {
		s.AssociatedFiles = res.Files[s.Name]
		require.NoError(t, repo.AddSchema(s))
	}

	user, ok := repo.Schema("user.json")
	require.True(t, ok)
	require.Len(t, user.AssociatedFiles, 2)
	assert.True(t, user.AssociatedFiles[0].IsValid)
	assert.False(t, user.AssociatedFiles[1].IsValid)
	for _, file := range user.AssociatedFiles {
		assert.False(t, file.Stale)
	}

	_, err := f.store.Read(ctx, "data/user/missing.json")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
