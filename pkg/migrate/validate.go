package migrate

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"regexp"
	"strings"
)

var sqlFileRe = regexp.MustCompile(`^(\d{14})_([a-z0-9_]+)\.sql$`)

// migrationFile is a goose file name split into version and migration name.
type migrationFile struct {
	file    string
	version string
	name    string
}

func parseFilename(file string) (migrationFile, bool) {
	m := sqlFileRe.FindStringSubmatch(file)
	if m == nil {
		return migrationFile{}, false
	}
	return migrationFile{file: file, version: m[1], name: m[2]}, true
}

// ValidateDir validates migration files on disk. An empty dir or DefaultDir
// validates the embedded copy.
func ValidateDir(dir string) error {
	fsys, err := source(dir)
	if err != nil {
		return err
	}
	return ValidateFS(fsys, ".")
}

// ValidateFS checks the .sql files directly under dir: names follow
// YYYYMMDDHHMMSS_name.sql, versions are unique and goose annotations pair up.
func ValidateFS(fsys fs.FS, dir string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}
	byVersion := make(map[string]string, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".sql" {
			continue
		}
		mf, ok := parseFilename(entry.Name())
		if !ok {
			return fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", entry.Name())
		}
		if prev, dup := byVersion[mf.version]; dup {
			return fmt.Errorf("duplicate migration version %s in %q and %q", mf.version, prev, mf.file)
		}
		byVersion[mf.version] = mf.file

		body, err := fs.ReadFile(fsys, path.Join(dir, mf.file))
		if err != nil {
			return fmt.Errorf("read file %q: %w", mf.file, err)
		}
		if err := checkAnnotations(mf.file, string(body)); err != nil {
			return err
		}
	}
	return nil
}

func checkAnnotations(file, body string) error {
	up := strings.Index(body, "-- +goose Up")
	down := strings.Index(body, "-- +goose Down")
	switch {
	case up < 0:
		return fmt.Errorf("migration %q missing \"-- +goose Up\"", file)
	case down < 0:
		return fmt.Errorf("migration %q missing \"-- +goose Down\"", file)
	case down < up:
		return fmt.Errorf("migration %q has Down before Up", file)
	}
	if begins, ends := strings.Count(body, "-- +goose StatementBegin"), strings.Count(body, "-- +goose StatementEnd"); begins != ends {
		return fmt.Errorf("migration %q has %d StatementBegin but %d StatementEnd", file, begins, ends)
	}
	return nil
}

// existingNames lists the migration files in dir keyed by migration name.
func existingNames(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", dir, err)
	}
	names := make(map[string]string, len(entries))
	for _, entry := range entries {
		if mf, ok := parseFilename(entry.Name()); ok {
			names[mf.name] = mf.file
		}
	}
	return names, nil
}
