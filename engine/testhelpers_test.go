package engine

import (
	"context"
	"os"
	"testing"

	"github.com/tachyon-beep/elspeth-sub008/landscape"
)

func newTestRecorder(t *testing.T) (*landscape.Recorder, context.Context) {
	t.Helper()
	dsn := os.Getenv("ELSPETH_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("ELSPETH_TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	ctx := context.Background()
	db, err := landscape.Open(ctx, dsn, landscape.DefaultPoolConfig())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := landscape.Migrate(ctx, db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })

	return landscape.NewRecorder(db, landscape.NewMemoryPayloadStore()), ctx
}
