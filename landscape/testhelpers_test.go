package landscape

import (
	"context"
	"database/sql"
	"os"
	"testing"
)

func newTestRecorder(t *testing.T) (*Recorder, context.Context) {
	t.Helper()
	dsn := os.Getenv("ELSPETH_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("ELSPETH_TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	ctx := context.Background()
	db, err := Open(ctx, dsn, DefaultPoolConfig())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := Migrate(ctx, db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	if err := resetTables(db); err != nil {
		t.Fatalf("reset tables: %v", err)
	}

	t.Cleanup(func() {
		_ = resetTables(db)
		_ = db.Close()
	})

	return NewRecorder(db, NewMemoryPayloadStore()), ctx
}

func resetTables(db *sql.DB) error {
	_, err := db.Exec(`
		TRUNCATE
			payload_store_refs,
			secret_resolutions,
			transform_errors,
			validation_errors,
			batches,
			token_outcomes,
			calls,
			node_states,
			tokens,
			rows,
			nodes,
			runs
		RESTART IDENTITY CASCADE
	`)
	return err
}
