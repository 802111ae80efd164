package unit

import (
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/opsline/ticketbroker/internal/store"
)

// newTestStore spins up an in-memory miniredis instance and returns a
// Store wired to it, closed automatically on test cleanup.
func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	mr := miniredis.RunT(t)
	s, err := store.New("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("connect to miniredis: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}
