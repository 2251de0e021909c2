package smtp

import (
	"net"

	"github.com/OliverSchlueter/mock-smtp-server/mail"
)

// Session is everything observed on one connection. Unset fields stay empty.
type Session struct {
	ID         string
	RemoteAddr string

	ClientHello string

	AuthMethodUsed   string
	Username         string
	Password         string
	UsernamePassword string
	Authenticated    bool

	From    string
	To      string
	Message *mail.Message

	// QueueIDs holds the id of every DATA block accepted on the connection, in order.
	QueueIDs []int64
}

func (s Session) clone() Session {
	s.QueueIDs = append([]int64(nil), s.QueueIDs...)
	return s
}

// SessionResult is published once per connection when its session ends. Err is nil
// after QUIT and otherwise wraps ErrEndOfStream, ErrBufferOverflow, ErrTransport or
// ErrMalformedInput.
type SessionResult struct {
	Session Session
	Err     error
}

// Hooks are called synchronously on the session goroutine. Any of them may be nil.
type Hooks struct {
	OnConnected       func(conn net.Conn)
	OnHelloReceived   func(hello string)
	OnCommandReceived func(command, argument string)
	OnUnknownCommand  func(line string)
	OnQuitReceived    func(conn net.Conn)
	OnMessageReceived func(msg *mail.Message)
}

// CredentialStore verifies AUTH LOGIN credentials. Without one every login succeeds.
type CredentialStore interface {
	Authenticate(username, password string) error
}
