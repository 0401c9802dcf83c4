package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/scheduling-engine/generic"
	"github.com/warp/scheduling-engine/generic/store"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "missing.env")))
	err := cmd.Execute()
	return out.String(), err
}

func TestMigrateAndReconcile(t *testing.T) {
	db := filepath.Join(t.TempDir(), "school.db")

	out, err := execute(t, "migrate", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "migrated "+db)
	_, err = os.Stat(db)
	require.NoError(t, err)

	out, err = execute(t, "reconcile", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "evicted 0 commitments")
}

func TestScenariosCommand(t *testing.T) {
	out, err := execute(t, "scenarios")

	require.NoError(t, err)
	assert.Contains(t, out, "school-week")
	assert.Contains(t, out, "sports-day")
}

func TestInvalidConfigStopsEveryCommand(t *testing.T) {
	_, err := execute(t, "scenarios", "--port", "0")

	assert.ErrorContains(t, err, "port 0 out of range")
}

func TestSeedIfEmpty(t *testing.T) {
	ctx := context.Background()
	s := store.NewTxMemory()
	engine := generic.NewEngine(s, nil, generic.DefaultSettings())

	require.NoError(t, seedIfEmpty(ctx, engine, "school-week"))
	events, err := s.ListEvents(ctx)
	require.NoError(t, err)
	assert.Len(t, events, 2)

	// a second run leaves the data alone
	require.NoError(t, seedIfEmpty(ctx, engine, "sports-day"))
	events, err = s.ListEvents(ctx)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestLoadFixture_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiny.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: Tiny\nusers:\n  - {key: olive, name: Olive}\n"), 0o600))

	fx, err := loadFixture(path)
	require.NoError(t, err)
	assert.Equal(t, "Tiny", fx.Name)

	_, err = loadFixture("no-such-scenario")
	assert.Error(t, err)
}
