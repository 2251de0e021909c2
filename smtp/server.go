package smtp

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/OliverSchlueter/goutils/sloki"
	"github.com/OliverSchlueter/mock-smtp-server/internal/mails"
	"github.com/OliverSchlueter/mock-smtp-server/internal/mails/database/fake"
)

// Host is the loopback address the server binds to.
const Host = "127.0.0.1"

const defaultResultBuffer = 16

type Server struct {
	// Port is assigned by the OS when the server is created.
	Port int

	config   Configuration
	listener net.Listener
	mails    *mails.Store
	results  chan SessionResult

	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool

	lastMu sync.RWMutex
	last   Session

	connectionCount  atomic.Int64
	messagesReceived atomic.Int64
	messageCounter   atomic.Int64

	closeOnce sync.Once
}

type Configuration struct {
	// ReceiveMultipleConnections keeps accepting after the first connection.
	ReceiveMultipleConnections bool
	// SupportSMTPUTF8 adds SMTPUTF8 to the EHLO reply.
	SupportSMTPUTF8 bool
	// Strict panics on input that breaks the harness contract (missing HELO/EHLO, AUTH
	// without a mechanism, bad base64, unparsable DATA) instead of ending the session
	// with ErrMalformedInput.
	Strict bool

	Hooks       Hooks
	Credentials CredentialStore
	Mails       *mails.Store

	// ResultBuffer is the capacity of the Results channel.
	ResultBuffer int
}

// NewServer binds to an ephemeral loopback port and starts accepting connections.
func NewServer(config Configuration) (*Server, error) {
	if config.ResultBuffer <= 0 {
		config.ResultBuffer = defaultResultBuffer
	}
	if config.Mails == nil {
		config.Mails = mails.NewStore(mails.Configuration{
			DB: fake.NewDB(),
		})
	}

	listener, err := net.Listen("tcp", net.JoinHostPort(Host, "0"))
	if err != nil {
		return nil, fmt.Errorf("failed to bind loopback listener: %w", err)
	}

	s := &Server{
		Port:     listener.Addr().(*net.TCPAddr).Port,
		config:   config,
		listener: listener,
		mails:    config.Mails,
		results:  make(chan SessionResult, config.ResultBuffer),
		conns:    make(map[net.Conn]struct{}),
	}
	s.messageCounter.Store(1000 + rand.Int64N(1000))

	go s.serve()

	slog.Debug("Mock SMTP server listening", "addr", s.Addr())
	return s, nil
}

func (s *Server) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			slog.Warn("Failed to accept connection", sloki.WrapError(err))
			continue
		}

		if !s.track(conn) {
			_ = conn.Close()
			return
		}
		s.connectionCount.Add(1)

		go s.handle(conn)

		if !s.config.ReceiveMultipleConnections {
			return
		}
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.conns, conn)
}

// Close stops the listener and closes every accepted connection, finished or not.
// Sessions blocked on a read end with ErrTransport. Calling Close again does nothing.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		conns := s.conns
		s.conns = nil
		s.mu.Unlock()

		err = s.listener.Close()
		for conn := range conns {
			_ = conn.Close()
		}

		slog.Debug("Mock SMTP server closed", "addr", s.Addr(), "open_connections", len(conns))
	})
	return err
}

func (s *Server) Addr() string {
	return net.JoinHostPort(Host, strconv.Itoa(s.Port))
}

// Results delivers one SessionResult per finished connection. When nobody drains it
// and the buffer is full, further results are dropped.
func (s *Server) Results() <-chan SessionResult {
	return s.results
}

func (s *Server) publish(result SessionResult) {
	select {
	case s.results <- result:
	default:
		slog.Warn("Result buffer full, dropping session result", "session_id", result.Session.ID)
	}
}

// Last returns what the most recent sessions observed. Concurrent sessions overwrite
// each other field by field, the last writer wins.
func (s *Server) Last() Session {
	s.lastMu.RLock()
	defer s.lastMu.RUnlock()

	return s.last.clone()
}

func (s *Server) observe(update func(last *Session)) {
	s.lastMu.Lock()
	defer s.lastMu.Unlock()

	update(&s.last)
}

// ConnectionCount is the number of accepted connections.
func (s *Server) ConnectionCount() int64 {
	return s.connectionCount.Load()
}

// MessagesReceived is the number of frames (command lines, AUTH responses and DATA
// blocks) read from clients.
func (s *Server) MessagesReceived() int64 {
	return s.messagesReceived.Load()
}

func (s *Server) nextQueueID() int64 {
	return s.messageCounter.Add(1)
}

// Mails is the store of every DATA block accepted so far.
func (s *Server) Mails() *mails.Store {
	return s.mails
}
