package smtp

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"strings"

	"github.com/OliverSchlueter/goutils/idgen"
	"github.com/OliverSchlueter/goutils/sloki"
	"github.com/OliverSchlueter/mock-smtp-server/mail"
)

type session struct {
	server *Server
	conn   *conn
	log    *slog.Logger
	state  Session
}

func (s *Server) handle(nc net.Conn) {
	id := idgen.GenerateID(12)
	log := slog.With("session_id", id)

	sess := &session{
		server: s,
		conn:   newConn(nc, log),
		log:    log,
	}

	sess.record(func(st *Session) {
		st.ID = id
		st.RemoteAddr = nc.RemoteAddr().String()
	})

	log.Debug("New connection established", "remote_addr", sess.state.RemoteAddr)

	var err error
	defer func() {
		sess.conn.close()
		s.untrack(nc)
		s.publish(SessionResult{Session: sess.state.clone(), Err: err})
	}()

	err = sess.run()

	switch {
	case err == nil:
		log.Debug("Connection closed", "remote_addr", sess.state.RemoteAddr)
	case errors.Is(err, ErrEndOfStream):
		log.Debug("Client closed the connection", "remote_addr", sess.state.RemoteAddr)
	case errors.Is(err, ErrMalformedInput):
		log.Error("Session aborted on malformed input", sloki.WrapError(err))
	default:
		log.Warn("Session aborted", sloki.WrapError(err))
	}
}

func (s *session) run() error {
	hooks := s.server.config.Hooks

	if hooks.OnConnected != nil {
		hooks.OnConnected(s.conn.nc)
	}

	if err := s.conn.send(StatusServiceReady); err != nil {
		return err
	}

	line, err := s.receiveLine()
	if err != nil {
		return err
	}
	if err := s.handleHello(line); err != nil {
		return err
	}

	for _, reply := range capabilities(s.server.config.SupportSMTPUTF8) {
		if err := s.conn.send(reply); err != nil {
			return err
		}
	}

	for {
		line, err := s.receiveLine()
		if err != nil {
			return err
		}

		command, argument := splitCommand(line)
		if hooks.OnCommandReceived != nil {
			hooks.OnCommandReceived(command, argument)
		}

		if CmdAuth.Matches(command) {
			if err := s.handleAuth(command); err != nil {
				return err
			}
			continue
		}

		switch strings.ToUpper(command) {
		case CmdMailFrom.Name:
			s.record(func(st *Session) { st.From = argument })
			err = s.conn.send(StatusOK)

		case CmdRcptTo.Name:
			s.record(func(st *Session) { st.To = argument })
			err = s.conn.send(StatusOK)

		case CmdData.Name:
			err = s.handleData()

		case CmdRset.Name, CmdNoop.Name:
			err = s.conn.send(StatusOK)

		case CmdQuit.Name:
			if hooks.OnQuitReceived != nil {
				hooks.OnQuitReceived(s.conn.nc)
			}
			return s.conn.send(StatusConnClosed)

		default:
			if hooks.OnUnknownCommand != nil {
				hooks.OnUnknownCommand(line)
			}
			err = s.conn.send(StatusBadCommand)
		}

		if err != nil {
			return err
		}
	}
}

func (s *session) handleHello(line string) error {
	if !CmdHelo.Matches(line) && !CmdEhlo.Matches(line) {
		return s.violation(fmt.Errorf("%w: expected HELO or EHLO, got %q", ErrMalformedInput, line))
	}

	verb := line[:len(CmdEhlo.Name)]
	hello := line[len(CmdEhlo.Prefix):]
	s.record(func(st *Session) { st.ClientHello = hello })

	hooks := s.server.config.Hooks
	if hooks.OnCommandReceived != nil {
		hooks.OnCommandReceived(verb, hello)
	}
	if hooks.OnHelloReceived != nil {
		hooks.OnHelloReceived(hello)
	}
	return nil
}

func (s *session) handleAuth(command string) error {
	parts := strings.Split(command, " ")
	if len(parts) < 2 {
		return s.violation(fmt.Errorf("%w: %s without a mechanism", ErrMalformedInput, CmdAuth.Name))
	}

	mechanism := parts[1]
	s.record(func(st *Session) { st.AuthMethodUsed = mechanism })

	switch {
	case strings.EqualFold(mechanism, AuthLogin):
		return s.handleAuthLogin(parts)
	case strings.EqualFold(mechanism, AuthNTLM):
		return s.conn.send(StatusNTLMRefused)
	default:
		return s.conn.send(StatusSchemeNotSupported)
	}
}

func (s *session) handleAuthLogin(parts []string) error {
	var encodedUsername string
	if len(parts) == 2 {
		if err := s.conn.send(StatusAuthUsername); err != nil {
			return err
		}

		line, err := s.receiveLine()
		if err != nil {
			return err
		}
		encodedUsername = line
	} else {
		encodedUsername = parts[2]
	}

	username, err := s.decodeBase64(encodedUsername, "username")
	if err != nil {
		return err
	}

	if err := s.conn.send(StatusAuthPassword); err != nil {
		return err
	}

	line, err := s.receiveLine()
	if err != nil {
		return err
	}
	password, err := s.decodeBase64(line, "password")
	if err != nil {
		return err
	}

	s.record(func(st *Session) {
		st.Username = username
		st.Password = password
		st.UsernamePassword = username + password
	})

	if store := s.server.config.Credentials; store != nil {
		if err := store.Authenticate(username, password); err != nil {
			s.log.Info("Rejected AUTH LOGIN credentials", "username", username, sloki.WrapError(err))
			return s.conn.send(StatusAuthenticationFailed)
		}
	}

	s.record(func(st *Session) { st.Authenticated = true })
	return s.conn.send(StatusAuthSuccess)
}

func (s *session) handleData() error {
	if err := s.conn.send(StatusStartMailInput); err != nil {
		return err
	}

	data, err := s.receiveBody()
	if err != nil {
		return err
	}

	msg, err := mail.Parse(data)
	if err != nil {
		return s.violation(fmt.Errorf("%w: %w", ErrMalformedInput, err))
	}

	id := s.server.nextQueueID()
	s.state.Message = msg
	s.state.QueueIDs = append(s.state.QueueIDs, id)

	queueIDs := slices.Clone(s.state.QueueIDs)
	s.server.observe(func(last *Session) {
		last.Message = msg
		last.QueueIDs = queueIDs
	})

	if err := s.server.mails.Capture(id, s.state.ID, s.state.From, s.state.To, msg); err != nil {
		s.log.Error("Failed to store incoming mail", sloki.WrapError(err))
		return s.conn.send(StatusLocalError)
	}
	s.log.Info("Incoming mail queued", "queue_id", id, "from", s.state.From, "to", s.state.To, "subject", msg.Subject())

	if hooks := s.server.config.Hooks; hooks.OnMessageReceived != nil {
		hooks.OnMessageReceived(msg)
	}

	return s.conn.send(fmt.Sprintf(StatusQueued, id))
}

func (s *session) receiveLine() (string, error) {
	line, err := s.conn.receiveLine()
	if err == nil {
		s.server.messagesReceived.Add(1)
	}
	return line, err
}

func (s *session) receiveBody() (string, error) {
	body, err := s.conn.receiveBody()
	if err == nil {
		s.server.messagesReceived.Add(1)
	}
	return body, err
}

func (s *session) decodeBase64(encoded, what string) (string, error) {
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", s.violation(fmt.Errorf("%w: invalid base64 %s: %w", ErrMalformedInput, what, err))
	}
	return string(decoded), nil
}

// record updates the session and the server's last-observed state together.
func (s *session) record(update func(st *Session)) {
	update(&s.state)
	s.server.observe(update)
}

// violation reports input that breaks the harness contract. In strict mode that is a bug
// in the calling test and panics.
func (s *session) violation(err error) error {
	if s.server.config.Strict {
		panic(err)
	}
	return err
}
