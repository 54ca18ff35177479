package runtime

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id   string
	open bool
}

func newFakeConn() *fakeConn { return &fakeConn{id: uuid.NewString(), open: true} }

func (f *fakeConn) ID() string                { return f.id }
func (f *fakeConn) IsOpen() bool              { return f.open }
func (f *fakeConn) Send(payload []byte) error { return nil }

func TestRegistry_Register_And_Lookup(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	conn := newFakeConn()

	// Given no user is connected
	_, ok := registry.Lookup("alice")
	req.False(ok)

	// When alice registers
	registry.Register("alice", conn)

	// Then alice is reachable through that connection
	got, ok := registry.Lookup("alice")
	req.True(ok)
	req.Equal(conn, got)
	req.Equal(1, registry.Count())
}

func TestRegistry_Last_Registration_Wins(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	first := newFakeConn()
	second := newFakeConn()

	// When alice registers twice
	registry.Register("alice", first)
	registry.Register("alice", second)

	// Then only the second connection is known
	got, ok := registry.Lookup("alice")
	req.True(ok)
	req.Equal(second, got)
	req.NotEqual(first, got)
	req.Equal(1, registry.Count())
	// And the first one was not closed by the registry
	req.True(first.IsOpen())
}

func TestRegistry_Remove_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	registry.Register("alice", newFakeConn())

	registry.Remove("alice")
	registry.Remove("alice")
	registry.Remove("nobody")

	_, ok := registry.Lookup("alice")
	req.False(ok)
	req.Zero(registry.Count())
}

func TestRegistry_Release_Only_Current_Connection(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	stale := newFakeConn()
	current := newFakeConn()

	// Given alice re-registered from a new socket
	registry.Register("alice", stale)
	registry.Register("alice", current)

	// When the stale socket closes
	req.False(registry.Release("alice", stale))

	// Then the current connection is still registered
	got, ok := registry.Lookup("alice")
	req.True(ok)
	req.Equal(current, got)

	// When the current socket closes
	req.True(registry.Release("alice", current))
	_, ok = registry.Lookup("alice")
	req.False(ok)
}

func TestRegistry_Concurrent_Access(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn := newFakeConn()
			registry.Register("alice", conn)
			registry.Lookup("alice")
			registry.Release("alice", conn)
		}()
	}
	wg.Wait()
	req.LessOrEqual(registry.Count(), 1)
}
