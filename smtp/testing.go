package smtp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// NewTestServer starts a server that is closed when the test finishes.
func NewTestServer(tb testing.TB, config Configuration) *Server {
	tb.Helper()

	srv, err := NewServer(config)
	require.NoError(tb, err)

	tb.Cleanup(func() {
		_ = srv.Close()
	})
	return srv
}
