package smtp

import "errors"

// A session ends with a nil error after QUIT, or with an error wrapping one of these.
var (
	ErrEndOfStream    = errors.New("peer closed the connection")
	ErrBufferOverflow = errors.New("frame exceeds read buffer")
	ErrTransport      = errors.New("transport failure")
	ErrMalformedInput = errors.New("malformed protocol input")
)
