package storetest

import (
	"context"
	"testing"

	"github.com/teemow/inboxpanel/internal/store/sqlite"
)

// NewSQLite returns a migrated in-memory SQLite store closed on test cleanup.
func NewSQLite(t *testing.T) *sqlite.Store {
	t.Helper()

	s, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating test store: %v", err)
	}
	return s
}
