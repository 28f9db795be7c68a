package sqliteutil

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

const testSchema = `CREATE TABLE entries (id INTEGER PRIMARY KEY, label TEXT NOT NULL);`

func TestOpenDBAppliesSchema(t *testing.T) {
	db, err := OpenDB(testSchema, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`INSERT INTO entries (label) VALUES ('a')`)
	require.NoError(t, err)
}

// in-memory databases must share a single connection, otherwise every
// pooled connection sees its own empty database
func TestOpenDBInMemorySharedAcrossConnections(t *testing.T) {
	db, err := OpenDB(testSchema, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := db.ExecContext(ctx, `INSERT INTO entries (label) VALUES ('x')`)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&count))
	require.Equal(t, 8, count)
}
