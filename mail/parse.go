package mail

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMalformedHeader  = errors.New("malformed header line")
	ErrMissingSeparator = errors.New("missing blank line between headers and body")
)

// Parse splits a DATA payload into headers and body.
//
// Lines are separated by "\n" with any trailing "\r" removed. Every line up to the first
// empty one must be a "name: value" header or a folded continuation of the previous one.
// Everything after the empty line is the body, kept verbatim except for trailing line
// terminators.
func Parse(raw string) (*Message, error) {
	m := newMessage(raw)

	last := ""
	rest := raw
	for {
		end := strings.IndexByte(rest, '\n')
		if end == -1 {
			return nil, fmt.Errorf("%w: %q", ErrMissingSeparator, rest)
		}

		line := strings.TrimRight(rest[:end], "\r")
		rest = rest[end+1:]

		if line == "" {
			m.Body = strings.TrimRight(rest, "\r\n")
			return m, nil
		}

		if last != "" && (line[0] == ' ' || line[0] == '\t') {
			m.unfold(last, strings.TrimSpace(line))
			continue
		}

		colon := strings.IndexByte(line, ':')
		if colon == -1 {
			return nil, fmt.Errorf("%w: %q", ErrMalformedHeader, line)
		}

		last = strings.TrimSpace(line[:colon])
		m.set(last, strings.TrimSpace(line[colon+1:]))
	}
}

// MustParse is like Parse but panics on malformed input.
func MustParse(raw string) *Message {
	m, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return m
}

// Build serializes headers and body into a CRLF message that Parse reads back unchanged.
func Build(headers []Header, body string) string {
	if len(headers) == 0 {
		return "\r\n" + body
	}

	lines := make([]string, 0, len(headers))
	for _, h := range headers {
		lines = append(lines, h.Name+": "+h.Value)
	}

	return strings.Join(lines, "\r\n") + "\r\n\r\n" + body
}
