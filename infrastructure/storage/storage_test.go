package storage

import (
	"chat-relay/runtime"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

// SetupTestStore initializes an in-memory Badger instance for testing
func SetupTestStore(t *testing.T) (*DocumentStore, func()) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	require.NoError(t, err)

	store := NewDocumentStore(db, logs.GetLoggerFromLevel(slog.LevelDebug))
	return store, func() {
		_ = db.Close()
	}
}

func testClock() *runtime.ManualClock {
	return runtime.NewManualClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
}
