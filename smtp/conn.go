package smtp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"unicode/utf8"

	"github.com/OliverSchlueter/goutils/sloki"
)

// BufferSize is the fixed capacity of a connection's read buffer. A frame and its
// terminator must fit into it.
const BufferSize = 1024

var (
	lineTerminator = []byte("\r\n")
	bodyTerminator = []byte("\r\n.\r\n")
)

// conn frames a raw byte stream. Reads are terminator based: everything up to the
// terminator is one frame. It does not buffer across frames, the protocol is strictly
// request/response.
type conn struct {
	nc  net.Conn
	buf [BufferSize]byte
	log *slog.Logger
}

func newConn(nc net.Conn, log *slog.Logger) *conn {
	return &conn{nc: nc, log: log}
}

// receive reads until the filled part of the buffer ends with terminator and returns
// what precedes it.
func (c *conn) receive(terminator []byte) (string, error) {
	received := 0
	for !bytes.HasSuffix(c.buf[:received], terminator) {
		if received == len(c.buf) {
			return "", fmt.Errorf("%w: no terminator in %d bytes", ErrBufferOverflow, received)
		}

		n, err := c.nc.Read(c.buf[received:])
		received += n
		if err != nil {
			if bytes.HasSuffix(c.buf[:received], terminator) {
				break
			}
			if errors.Is(err, io.EOF) {
				return "", ErrEndOfStream
			}
			return "", fmt.Errorf("%w: %w", ErrTransport, err)
		}
	}

	payload := c.buf[:received-len(terminator)]
	if !utf8.Valid(payload) {
		return "", fmt.Errorf("%w: frame is not valid UTF-8", ErrMalformedInput)
	}

	return string(payload), nil
}

func (c *conn) receiveLine() (string, error) {
	line, err := c.receive(lineTerminator)
	if err == nil {
		c.log.Debug("C: " + line)
	}
	return line, err
}

func (c *conn) receiveBody() (string, error) {
	body, err := c.receive(bodyTerminator)
	if err == nil {
		c.log.Debug("C: <message body>", "size", len(body))
	}
	return body, err
}

// send writes text plus CRLF as one frame, retrying short writes.
func (c *conn) send(text string) error {
	frame := make([]byte, 0, len(text)+len(lineTerminator))
	frame = append(frame, text...)
	frame = append(frame, lineTerminator...)

	for len(frame) > 0 {
		n, err := c.nc.Write(frame)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrTransport, err)
		}
		frame = frame[n:]
	}

	c.log.Debug("S: " + text)
	return nil
}

type halfCloser interface {
	CloseRead() error
	CloseWrite() error
}

// close shuts down both directions and always closes the handle afterwards.
func (c *conn) close() {
	if hc, ok := c.nc.(halfCloser); ok {
		if err := hc.CloseRead(); err != nil {
			c.log.Debug("Failed to shut down read side", sloki.WrapError(err))
		}
		if err := hc.CloseWrite(); err != nil {
			c.log.Debug("Failed to shut down write side", sloki.WrapError(err))
		}
	}

	if err := c.nc.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		c.log.Debug("Failed to close connection", sloki.WrapError(err))
	}
}
