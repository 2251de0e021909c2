package mail

import "strings"

// NotPresent is returned by the header accessors when a header is missing.
const NotPresent = "NOT-PRESENT"

type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Message is a DATA payload split into headers and body. It is not modified after Parse returns.
type Message struct {
	headers []Header
	index   map[string]int

	Body string
	Raw  string
}

func newMessage(raw string) *Message {
	return &Message{
		headers: []Header{},
		index:   map[string]int{},
		Raw:     raw,
	}
}

// set keeps the position of the first occurrence, the last value wins.
func (m *Message) set(name, value string) {
	key := strings.ToLower(name)
	if i, ok := m.index[key]; ok {
		m.headers[i] = Header{Name: name, Value: value}
		return
	}

	m.index[key] = len(m.headers)
	m.headers = append(m.headers, Header{Name: name, Value: value})
}

func (m *Message) unfold(name, continuation string) {
	i := m.index[strings.ToLower(name)]
	if m.headers[i].Value == "" {
		m.headers[i].Value = continuation
		return
	}
	m.headers[i].Value += " " + continuation
}

// Header looks up a header by name, ignoring case.
func (m *Message) Header(name string) (string, bool) {
	i, ok := m.index[strings.ToLower(name)]
	if !ok {
		return "", false
	}
	return m.headers[i].Value, true
}

// Get returns the header value or NotPresent.
func (m *Message) Get(name string) string {
	if v, ok := m.Header(name); ok {
		return v
	}
	return NotPresent
}

// Headers returns the headers in the order they were first seen.
func (m *Message) Headers() []Header {
	out := make([]Header, len(m.headers))
	copy(out, m.headers)
	return out
}

func (m *Message) From() string {
	return m.Get("From")
}

func (m *Message) To() string {
	return m.Get("To")
}

func (m *Message) Subject() string {
	return m.Get("Subject")
}
