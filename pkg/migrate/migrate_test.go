package migrate

import (
	"bytes"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceDefaultsToEmbeddedCopy(t *testing.T) {
	for _, dir := range []string{"", DefaultDir} {
		fsys, err := source(dir)
		require.NoError(t, err)
		entries, err := fs.ReadDir(fsys, ".")
		require.NoError(t, err)
		assert.NotEmpty(t, entries, "dir %q", dir)
	}
}

func TestSourceReadsDiskDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20260101000000_x.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))

	fsys, err := source(dir)
	require.NoError(t, err)
	entries, err := fs.ReadDir(fsys, ".")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "20260101000000_x.sql", entries[0].Name())
}

func TestRunRequiresDB(t *testing.T) {
	assert.ErrorIs(t, Run(context.Background(), nil, "", "up", nil), errDBRequired)
	_, err := Version(context.Background(), nil)
	assert.ErrorIs(t, err, errDBRequired)
}

func TestMigrateToVersionRejectsBadTarget(t *testing.T) {
	assert.Error(t, MigrateToVersion(context.Background(), nil, "", "", nil))
	assert.ErrorContains(t, MigrateToVersion(context.Background(), nil, "", "yesterday", nil), "expected YYYYMMDDHHMMSS")
}

func TestReportFormatsResults(t *testing.T) {
	var out bytes.Buffer
	report(&out,
		&goose.MigrationResult{Source: &goose.Source{Path: "migrations/20260101000000_init.sql"}, Direction: "up", Duration: 12 * time.Millisecond},
		nil,
		&goose.MigrationResult{Source: &goose.Source{Path: "migrations/20260102000000_orders.sql"}, Direction: "up", Error: assert.AnError},
	)
	assert.Equal(t,
		"up   OK     20260101000000_init.sql (12ms)\nup   FAILED 20260102000000_orders.sql (0s)\n",
		out.String())

	report(nil, &goose.MigrationResult{})
}

func TestWrapGooseIgnoresNothingToDo(t *testing.T) {
	assert.NoError(t, wrapGoose("redo", nil))
	assert.NoError(t, wrapGoose("redo", goose.ErrNoNextVersion))
	assert.ErrorContains(t, wrapGoose("down", assert.AnError), "goose down:")
}
