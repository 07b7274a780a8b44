package database

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Migration is one versioned up/down SQL pair from the migrations directory.
type Migration struct {
	Version  int
	Name     string
	Up       string
	Down     string
	Checksum string
}

func (m Migration) String() string {
	return fmt.Sprintf("%06d_%s", m.Version, m.Name)
}

//go:embed migrations/*.sql
var migrationFS embed.FS

var embeddedMigrations = sync.OnceValues(func() ([]Migration, error) {
	return loadMigrations(migrationFS, "migrations")
})

// Migrations returns the embedded migrations in version order.
func Migrations() ([]Migration, error) {
	return embeddedMigrations()
}

// FindMigration looks up an embedded migration by version.
func FindMigration(version int) (Migration, bool) {
	ms, err := Migrations()
	if err != nil {
		return Migration{}, false
	}
	for _, m := range ms {
		if m.Version == version {
			return m, true
		}
	}
	return Migration{}, false
}

// loadMigrations reads <version>_<name>.up.sql files and their .down.sql pair from dir.
// A badly named file, a missing down script or a reused version is an error.
func loadMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	var (
		out  []Migration
		errs []error
		seen = map[int]string{}
	)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}

		base := strings.TrimSuffix(name, ".up.sql")
		prefix, label, ok := strings.Cut(base, "_")
		version, convErr := strconv.Atoi(prefix)
		if !ok || label == "" || convErr != nil || version <= 0 {
			errs = append(errs, fmt.Errorf("%s: want <version>_<name>.up.sql", name))
			continue
		}
		if prev, dup := seen[version]; dup {
			errs = append(errs, fmt.Errorf("%s: version %d already used by %s", name, version, prev))
			continue
		}
		seen[version] = name

		up, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		down, err := fs.ReadFile(fsys, path.Join(dir, base+".down.sql"))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: missing down script: %w", name, err))
			continue
		}

		sum := sha256.Sum256(up)
		out = append(out, Migration{
			Version:  version,
			Name:     label,
			Up:       string(up),
			Down:     string(down),
			Checksum: hex.EncodeToString(sum[:]),
		})
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}
