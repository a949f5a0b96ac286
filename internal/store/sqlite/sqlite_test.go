package sqlite_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxpanel/internal/store"
	"github.com/teemow/inboxpanel/internal/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return storetest.NewSQLite(t)
	})
}

func TestMigrate_Idempotent(t *testing.T) {
	s := storetest.NewSQLite(t)
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Migrate(context.Background()))
}
