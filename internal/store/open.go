package store

import (
	"fmt"
	"strings"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// NormalizeDriver maps accepted driver aliases onto the canonical names.
func NormalizeDriver(driver string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite", "sqlite3":
		return DriverSQLite, nil
	case "postgres", "postgresql", "pgx":
		return DriverPostgres, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q, must be one of: sqlite, postgres", driver)
	}
}

// ClampLimit applies DefaultMessageLimit to non-positive limits.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultMessageLimit
	}
	return limit
}
