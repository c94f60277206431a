package migrate

import (
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"time"
)

const versionLayout = "20060102150405"

var sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

var requiredMarkers = []string{"-- +goose Up", "-- +goose Down"}

// ValidateDir runs Validate against a directory on disk.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}
	return Validate(os.DirFS(dir))
}

// Validate checks every .sql file at the root of fsys: the name must carry a
// real UTC timestamp version, versions must be unique and both goose markers
// must be present. An empty tree is valid.
func Validate(fsys fs.FS) error {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}

	versions := make(map[string]string, len(names))
	for _, name := range names {
		version, err := fileVersion(name)
		if err != nil {
			return err
		}
		if prev, dup := versions[version]; dup {
			return fmt.Errorf("duplicate migration version %s in %q and %q", version, prev, name)
		}
		versions[version] = name

		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("read file %q: %w", name, err)
		}
		for _, marker := range requiredMarkers {
			if !strings.Contains(string(body), marker) {
				return fmt.Errorf("migration %q missing %q", name, marker)
			}
		}
	}
	return nil
}

func fileVersion(name string) (string, error) {
	m := sqlFileRe.FindStringSubmatch(name)
	if m == nil {
		return "", fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
	}
	if _, err := time.Parse(versionLayout, m[1]); err != nil {
		return "", fmt.Errorf("migration %q: version is not a timestamp", name)
	}
	return m[1], nil
}
