package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// ProjectDir holds the project's RCA database and lock files.
	ProjectDir = ".rca"

	// DBPathEnv names an explicit database path and skips discovery.
	DBPathEnv = "RCA_DB_PATH"

	defaultDBName = "rca.db"
)

// DiscoverDatabase looks for .rca/*.db in the current directory only.
// Returns the absolute path to the database file, or an error if not found.
//
// Parent directories are not searched, so a project nested inside another
// never records its failures in the outer project's database.
//
// RCA_DB_PATH, when set, is returned as is.
func DiscoverDatabase() (string, error) {
	if dbPath := os.Getenv(DBPathEnv); dbPath != "" {
		return dbPath, nil
	}

	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}
	return discoverDatabaseInDir(dir)
}

// discoverDatabaseInDir checks for .rca/*.db in dir without walking up the tree.
// rca.db wins when several databases are present.
func discoverDatabaseInDir(dir string) (string, error) {
	rcaDir := filepath.Join(dir, ProjectDir)

	if info, err := os.Stat(rcaDir); err == nil && info.IsDir() {
		entries, err := os.ReadDir(rcaDir)
		if err == nil {
			var found string
			for _, entry := range entries {
				if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".db") {
					continue
				}
				if found == "" || entry.Name() == defaultDBName {
					found = entry.Name()
				}
			}
			if found != "" {
				absPath, err := filepath.Abs(filepath.Join(rcaDir, found))
				if err != nil {
					return "", fmt.Errorf("failed to get absolute path: %w", err)
				}
				return absPath, nil
			}
		}
	}

	return "", fmt.Errorf(
		"no %s/*.db found in %s\n"+
			"  Run 'rca init' to create one in this directory\n"+
			"  Or use --db flag to specify database path explicitly",
		ProjectDir, dir)
}

// InitProject creates the .rca directory under projectDir.
// Returns the path the database should be opened at; the backend creates the
// file itself on first open.
func InitProject(projectDir string) (string, error) {
	if info, err := os.Stat(projectDir); err != nil || !info.IsDir() {
		return "", fmt.Errorf("project directory does not exist: %s", projectDir)
	}

	rcaDir := filepath.Join(projectDir, ProjectDir)
	if err := os.MkdirAll(rcaDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s directory: %w", ProjectDir, err)
	}

	dbPath := filepath.Join(rcaDir, defaultDBName)
	if _, err := os.Stat(dbPath); err == nil {
		return "", fmt.Errorf("database already exists: %s", dbPath)
	}

	// Lock files are per machine.
	ignore := filepath.Join(rcaDir, ".gitignore")
	if _, err := os.Stat(ignore); os.IsNotExist(err) {
		if err := os.WriteFile(ignore, []byte("*.lock\n*.db-wal\n*.db-shm\n"), 0644); err != nil {
			return "", fmt.Errorf("failed to create .gitignore: %w", err)
		}
	}

	return dbPath, nil
}
