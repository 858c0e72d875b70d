package profilex

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newGORMStore(tb testing.TB, tableName string) *GORMStore {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(tb, err)
	store := NewGORMStore(&GORMStoreConfig{
		DB:        db,
		TableName: tableName,
	})
	require.NoError(tb, store.Migrate(context.Background()))
	return store
}

func TestGORMStoreInvariants(t *testing.T) {
	runStoreInvariants(t, newGORMStore(t, "profile_records"))
}

func TestGORMStoreSingleStatementIncrement(t *testing.T) {
	// The failure path must not read before writing: repeated upserts on
	// the same row count every error because the increment happens in SQL.
	ctx := context.Background()
	store := newGORMStore(t, "increment_records")
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	patch := FailurePatch(json.RawMessage(`{}`), "provider returned status 502: bad gateway", now, time.Minute)
	require.NoError(t, store.Upsert(ctx, "alice.eth", "ens", patch))
	require.NoError(t, store.Upsert(ctx, "alice.eth", "ens", patch))
	require.NoError(t, store.Upsert(ctx, "alice.eth", "ens", patch))

	rec, err := store.Find(ctx, "alice.eth", "ens")
	require.NoError(t, err)
	assert.Equal(t, 3, rec.ConsecutiveErrors)
}

func TestGORMStoreTableIsolation(t *testing.T) {
	ctx := context.Background()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	a := NewGORMStore(&GORMStoreConfig{DB: db, TableName: "records_a"})
	require.NoError(t, a.Migrate(ctx))
	b := NewGORMStore(&GORMStoreConfig{DB: db, TableName: "records_b"})
	require.NoError(t, b.Migrate(ctx))

	now := time.Now().UTC()
	require.NoError(t, a.Upsert(ctx, "alice.eth", "ens", SuccessPatch(json.RawMessage(`{"name":"a"}`), now, time.Hour)))

	_, err = b.Find(ctx, "alice.eth", "ens")
	assert.True(t, IsErrRecordNotFound(err))
}
