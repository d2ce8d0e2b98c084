package migrate

import (
	"database/sql"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Format: 001_migration_name.up.sql / 001_migration_name.down.sql
var (
	upRegex   = regexp.MustCompile(`^(\d+)_(.+)\.up\.sql$`)
	downRegex = regexp.MustCompile(`^(\d+)_(.+)\.down\.sql$`)
)

// FSProvider loads migrations from an fs.FS, typically an embedded
// directory. The version table is Postgres.
type FSProvider struct {
	fsys           fs.FS
	migrationTable string
}

// NewFSProvider creates a migration provider over the given filesystem
func NewFSProvider(fsys fs.FS, migrationTable string) *FSProvider {
	if migrationTable == "" {
		migrationTable = "schema_migrations"
	}
	return &FSProvider{
		fsys:           fsys,
		migrationTable: migrationTable,
	}
}

// GetMigrations loads all migrations from the filesystem
func (fp *FSProvider) GetMigrations() ([]Migration, error) {
	migrationFiles := make(map[int]*Migration)

	err := fs.WalkDir(fp.fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		filename := d.Name()
		up := true
		matches := upRegex.FindStringSubmatch(filename)
		if matches == nil {
			up = false
			matches = downRegex.FindStringSubmatch(filename)
		}
		if matches == nil {
			return nil
		}

		version, err := strconv.Atoi(matches[1])
		if err != nil {
			return fmt.Errorf("invalid version number in file %s: %w", filename, err)
		}

		content, err := fs.ReadFile(fp.fsys, path)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", path, err)
		}

		if migrationFiles[version] == nil {
			migrationFiles[version] = &Migration{
				Version: version,
				Name:    strings.ReplaceAll(matches[2], "_", " "),
			}
		}
		if up {
			migrationFiles[version].Up = string(content)
		} else {
			migrationFiles[version].Down = string(content)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}

	migrations := make([]Migration, 0, len(migrationFiles))
	for _, migration := range migrationFiles {
		migrations = append(migrations, *migration)
	}
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

// CreateMigrationTable creates the migration tracking table
func (fp *FSProvider) CreateMigrationTable(db *sql.DB) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)
	`, fp.migrationTable)

	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}
	return nil
}

// GetCurrentVersion returns the highest applied migration version
func (fp *FSProvider) GetCurrentVersion(db *sql.DB) (int, error) {
	query := fmt.Sprintf("SELECT COALESCE(MAX(version), 0) FROM %s", fp.migrationTable)

	var version int
	if err := db.QueryRow(query).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}
	return version, nil
}

// SetVersion sets the migration version
func (fp *FSProvider) SetVersion(db DB, version int) error {
	if version == 0 {
		// Rolling back to 0 clears the version history
		query := fmt.Sprintf("DELETE FROM %s", fp.migrationTable)
		_, err := db.Exec(query)
		if err != nil {
			return fmt.Errorf("failed to set version: %w", err)
		}
		return nil
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (version, applied_at)
		VALUES ($1, CURRENT_TIMESTAMP)
		ON CONFLICT (version) DO UPDATE SET applied_at = CURRENT_TIMESTAMP
	`, fp.migrationTable)
	if _, err := db.Exec(query, version); err != nil {
		return fmt.Errorf("failed to set version: %w", err)
	}
	return nil
}
