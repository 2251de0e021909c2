package smtp

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testTimeout = 5 * time.Second

// testClient speaks just enough SMTP to script an exchange line by line.
type testClient struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
	w    *bufio.Writer
}

func dial(t *testing.T, srv *Server) *testClient {
	t.Helper()

	conn, err := net.DialTimeout("tcp", srv.Addr(), testTimeout)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.SetDeadline(time.Now().Add(testTimeout)))

	c := &testClient{
		t:    t,
		conn: conn,
		r:    bufio.NewReader(conn),
		w:    bufio.NewWriter(conn),
	}
	c.expect(StatusServiceReady)
	return c
}

func (c *testClient) writeLine(line string) {
	c.t.Helper()
	c.writeRaw(line + "\r\n")
}

func (c *testClient) writeRaw(data string) {
	c.t.Helper()

	_, err := c.w.WriteString(data)
	require.NoError(c.t, err)
	require.NoError(c.t, c.w.Flush())
}

func (c *testClient) readLine() (string, error) {
	line, err := c.r.ReadString('\n')
	return strings.TrimRight(line, "\r\n"), err
}

func (c *testClient) expect(expected string) {
	c.t.Helper()

	line, err := c.readLine()
	require.NoError(c.t, err)
	require.Equal(c.t, expected, line)
}

// cmd sends a line and expects exactly one reply line.
func (c *testClient) cmd(line, expected string) {
	c.t.Helper()

	c.writeLine(line)
	c.expect(expected)
}

// ehlo returns the capability lines up to and including the one without a dash.
func (c *testClient) ehlo(hello string) []string {
	c.t.Helper()

	c.writeLine("EHLO " + hello)

	var lines []string
	for {
		line, err := c.readLine()
		require.NoError(c.t, err)
		lines = append(lines, line)

		require.True(c.t, strings.HasPrefix(line, "250"), "unexpected EHLO reply %q", line)
		if strings.HasPrefix(line, "250 ") {
			return lines
		}
	}
}

// data sends DATA, the payload and the terminator, and returns the queue id.
func (c *testClient) data(payload string) int64 {
	c.t.Helper()

	c.cmd("DATA", StatusStartMailInput)
	c.writeRaw(payload + "\r\n.\r\n")

	line, err := c.readLine()
	require.NoError(c.t, err)

	var id int64
	_, err = fmt.Sscanf(line, StatusQueued, &id)
	require.NoError(c.t, err, "unexpected DATA reply %q", line)
	require.Equal(c.t, fmt.Sprintf(StatusQueued, id), line)
	return id
}

// expectClosed waits for the server to drop the connection.
func (c *testClient) expectClosed() {
	c.t.Helper()

	_, err := c.readLine()
	require.Error(c.t, err)
}

func waitResult(t *testing.T, srv *Server) SessionResult {
	t.Helper()

	select {
	case result := <-srv.Results():
		return result
	case <-time.After(testTimeout):
		t.Fatal("Timed out waiting for the session to end")
		return SessionResult{}
	}
}

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}
