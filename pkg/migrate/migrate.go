package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pressly/goose/v3"
)

// DefaultDir is the repository path of the SQL files. Passing it (or an
// empty dir) reads the embedded copy instead of the filesystem.
const DefaultDir = "pkg/migrate/migrations"

var errDBRequired = errors.New("db is required")

func source(dir string) (fs.FS, error) {
	if dir == "" || dir == DefaultDir {
		return fs.Sub(Migrations, embeddedDir)
	}
	return os.DirFS(dir), nil
}

// newProvider builds a postgres goose provider over dir. The provider does
// not own db; callers close it.
func newProvider(db *sql.DB, dir string) (*goose.Provider, error) {
	if db == nil {
		return nil, errDBRequired
	}
	fsys, err := source(dir)
	if err != nil {
		return nil, fmt.Errorf("migrations source: %w", err)
	}
	p, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return p, nil
}

// Run executes up, down, redo or status against db and reports each step to out.
func Run(ctx context.Context, db *sql.DB, dir, command string, out io.Writer) error {
	p, err := newProvider(db, dir)
	if err != nil {
		return err
	}
	switch command {
	case "up":
		results, err := p.Up(ctx)
		report(out, results...)
		return wrapGoose(command, err)
	case "down":
		result, err := p.Down(ctx)
		report(out, result)
		return wrapGoose(command, err)
	case "redo":
		down, err := p.Down(ctx)
		report(out, down)
		if err != nil {
			return wrapGoose(command, err)
		}
		up, err := p.UpByOne(ctx)
		report(out, up)
		return wrapGoose(command, err)
	case "status":
		statuses, err := p.Status(ctx)
		if err != nil {
			return wrapGoose(command, err)
		}
		for _, st := range statuses {
			applied := "-"
			if st.State == goose.StateApplied {
				applied = st.AppliedAt.UTC().Format(time.RFC3339)
			}
			fmt.Fprintf(out, "%-8s %-20s %s\n", st.State, applied, filepath.Base(st.Source.Path))
		}
		return nil
	default:
		return fmt.Errorf("unsupported goose command %q", command)
	}
}

// Version returns the latest applied version, creating the version table if needed.
func Version(ctx context.Context, db *sql.DB) (int64, error) {
	p, err := newProvider(db, "")
	if err != nil {
		return 0, err
	}
	v, err := p.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("get db version: %w", err)
	}
	return v, nil
}

// MigrateToVersion moves the schema up or down until targetVersion is the
// latest applied migration.
func MigrateToVersion(ctx context.Context, db *sql.DB, dir, targetVersion string, out io.Writer) error {
	if targetVersion == "" {
		return errors.New("targetVersion is required")
	}
	target, err := strconv.ParseInt(targetVersion, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", targetVersion, err)
	}
	p, err := newProvider(db, dir)
	if err != nil {
		return err
	}
	current, err := p.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}

	var results []*goose.MigrationResult
	switch {
	case current == target:
		return nil
	case current < target:
		results, err = p.UpTo(ctx, target)
	default:
		results, err = p.DownTo(ctx, target)
	}
	report(out, results...)
	if err != nil {
		return fmt.Errorf("migrate %d -> %d: %w", current, target, err)
	}
	return nil
}

func report(out io.Writer, results ...*goose.MigrationResult) {
	if out == nil {
		return
	}
	for _, r := range results {
		if r == nil || r.Source == nil {
			continue
		}
		state := "OK"
		if r.Error != nil {
			state = "FAILED"
		}
		fmt.Fprintf(out, "%-4s %-6s %s (%s)\n", r.Direction, state, filepath.Base(r.Source.Path), r.Duration.Round(time.Millisecond))
	}
}

func wrapGoose(command string, err error) error {
	if err == nil || errors.Is(err, goose.ErrNoNextVersion) {
		return nil
	}
	return fmt.Errorf("goose %s: %w", command, err)
}
