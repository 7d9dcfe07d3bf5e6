// Package sqlitepath resolves the SQLite database file the CLI commands
// open when the sqlite storage driver is selected without an explicit path.
package sqlitepath

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lodestarhq/aide/pkg/dotdir"
)

// DBFile is the database filename inside an .aide/ directory.
const DBFile = "aide.db"

// Resolve returns the SQLite database path. Precedence: the configured
// path, the AIDE_SQLITE environment variable, then DBFile inside the
// resolved .aide/ directory (created when missing).
func Resolve(configured, configDir string) (string, error) {
	if configured != "" {
		return configured, nil
	}

	if envPath := strings.TrimSpace(os.Getenv("AIDE_SQLITE")); envPath != "" {
		return envPath, nil
	}

	dir, err := dotdir.NewManager().Target(configDir)
	if err != nil {
		return "", fmt.Errorf("resolving .aide/ directory: %w", err)
	}

	return filepath.Join(dir, DBFile), nil
}
