package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(viper.New())
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := filepath.Join(t.TempDir(), "tropa.db")

	out, err := run(t, "migrate", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "schema at version 3")

	out, err = run(t, "migrate", "--db", db, "--json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"version": 3}`, out)
}

func TestPlacesImportAndScoutsList(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "tropa.db")
	seed := filepath.Join(dir, "places.yaml")
	require.NoError(t, os.WriteFile(seed, []byte(`
regions:
  - id: norte
    name: Norte
    subregions:
      - id: costa
        name: Costa
        localities:
          - id: puerto
            name: Puerto
`), 0o644))

	out, err := run(t, "places", "import", "--file", seed, "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 1 region(s), 1 sub-region(s), 1 locality(ies)")

	out, err = run(t, "scouts", "list", "--db", db, "--json")
	require.NoError(t, err)
	var scouts []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &scouts))
	assert.Empty(t, scouts)

	out, err = run(t, "scouts", "list", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "DOCUMENTO")
}

func TestPlacesImportRequiresFile(t *testing.T) {
	db := filepath.Join(t.TempDir(), "tropa.db")
	_, err := run(t, "places", "import", "--db", db)
	assert.ErrorContains(t, err, "--file required")
}

func TestDraftsPurge(t *testing.T) {
	db := filepath.Join(t.TempDir(), "tropa.db")
	out, err := run(t, "drafts", "purge", "--older-than", "1h", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "purged 0 draft(s)")
}
