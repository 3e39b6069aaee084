package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, dataDir string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--data-dir", dataDir, "--log-level", "error"}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestCLI_SchemaAndFileLifecycle(t *testing.T) {
	dataDir := t.TempDir()
	schema := writeTemp(t, "user.json", `{"type":"object","required":["id"]}`)
	good := writeTemp(t, "good.json", `{"id":1}`)
	bad := writeTemp(t, "bad.json", `{}`)

	out, err := run(t, dataDir, "schema", "create", "user", schema)
	require.NoError(t, err)
	assert.Contains(t, out, "Created user.json at schemas/user.json")

	_, err = run(t, dataDir, "schema", "create", "user.json", schema)
	assert.Error(t, err)

	out, err = run(t, dataDir, "file", "create", "user", "alice", good)
	require.NoError(t, err)
	assert.Contains(t, out, "Created data/user/alice.json")

	out, err = run(t, dataDir, "file", "save", "data/user/alice.json", bad)
	require.NoError(t, err)
	assert.Contains(t, out, "1 error")

	out, err = run(t, dataDir, "schema", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "user.json (1 file)")
	assert.Contains(t, out, "data/user/alice.json")

	out, err = run(t, dataDir, "file", "rename", "data/user/alice.json", "bob")
	require.NoError(t, err)
	assert.Contains(t, out, "data/user/bob.json")

	_, err = run(t, dataDir, "schema", "delete", "user")
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dataDir, "data", "user", "bob.json"))
	assert.NoError(t, err)
}

func TestCLI_Validate(t *testing.T) {
	dataDir := t.TempDir()
	schema := writeTemp(t, "s.json", `{"type":"object","required":["id"]}`)

	out, err := run(t, dataDir, "validate", schema, writeTemp(t, "ok.json", `{"id":1}`))
	require.NoError(t, err)
	assert.Contains(t, out, `"valid": true`)

	out, err = run(t, dataDir, "validate", schema, writeTemp(t, "ko.json", `{}`))
	assert.Error(t, err)
	assert.Contains(t, out, `"keyword": "required"`)
}
