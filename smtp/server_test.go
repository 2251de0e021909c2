package smtp

import (
	"encoding/base64"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/OliverSchlueter/mock-smtp-server/internal/users"
	"github.com/OliverSchlueter/mock-smtp-server/internal/users/database/fake"
	"github.com/OliverSchlueter/mock-smtp-server/mail"
	"github.com/emersion/go-sasl"
	"github.com/stretchr/testify/require"
)

const testPayload = "From: a@b\r\nTo: c@d\r\nSubject: s\r\n\r\nbody"

func TestNewServer(t *testing.T) {
	srv := NewTestServer(t, Configuration{})

	require.NotZero(t, srv.Port)
	require.Equal(t, fmt.Sprintf("127.0.0.1:%d", srv.Port), srv.Addr())
	require.Zero(t, srv.ConnectionCount())
	require.Zero(t, srv.MessagesReceived())
	require.NotNil(t, srv.Mails())
}

func TestFullExchange(t *testing.T) {
	srv := NewTestServer(t, Configuration{})
	c := dial(t, srv)

	require.Equal(t, []string{StatusGreeting, StatusAuthMechanisms}, c.ehlo("x"))
	c.cmd("MAIL FROM:<a@b>", StatusOK)
	c.cmd("RCPT TO:<c@d>", StatusOK)
	first := c.data(testPayload)
	second := c.data("Subject: again\r\n\r\nsecond body\r\n\r\nwith a blank line")
	c.cmd("QUIT", StatusConnClosed)
	c.expectClosed()

	result := waitResult(t, srv)
	require.NoError(t, result.Err)

	require.GreaterOrEqual(t, first, int64(1001))
	require.LessOrEqual(t, first, int64(2000))
	require.Greater(t, second, first)

	s := result.Session
	require.NotEmpty(t, s.ID)
	require.Equal(t, "x", s.ClientHello)
	require.Equal(t, "<a@b>", s.From)
	require.Equal(t, "<c@d>", s.To)
	require.Equal(t, []int64{first, second}, s.QueueIDs)
	require.Equal(t, "second body\r\n\r\nwith a blank line", s.Message.Body)
	require.Equal(t, "again", s.Message.Subject())
	require.Equal(t, mail.NotPresent, s.Message.From())

	last := srv.Last()
	require.Equal(t, s.ID, last.ID)
	require.Equal(t, "x", last.ClientHello)
	require.Equal(t, "<a@b>", last.From)
	require.Equal(t, "<c@d>", last.To)
	require.Same(t, s.Message, last.Message)

	// EHLO, MAIL, RCPT, 2x (DATA + body), QUIT
	require.Equal(t, int64(8), srv.MessagesReceived())
	require.Equal(t, int64(1), srv.ConnectionCount())

	stored, err := srv.Mails().GetMailByID(first)
	require.NoError(t, err)
	require.Equal(t, "<a@b>", stored.From)
	require.Equal(t, "<c@d>", stored.To)
	require.Equal(t, s.ID, stored.SessionID)
	require.Equal(t, "body", stored.Body)
}

func TestSMTPUTF8Capability(t *testing.T) {
	srv := NewTestServer(t, Configuration{SupportSMTPUTF8: true})
	c := dial(t, srv)

	require.Equal(t, []string{StatusGreeting, StatusSMTPUTF8, StatusAuthMechanisms}, c.ehlo("x"))
}

func TestHeloIsCaseInsensitive(t *testing.T) {
	srv := NewTestServer(t, Configuration{})
	c := dial(t, srv)

	c.writeLine("helo client.example.com")
	c.expect(StatusGreeting)
	c.expect(StatusAuthMechanisms)
	c.cmd("QUIT", StatusConnClosed)

	result := waitResult(t, srv)
	require.NoError(t, result.Err)
	require.Equal(t, "client.example.com", result.Session.ClientHello)
}

func TestHooks(t *testing.T) {
	var (
		events    []string
		connected net.Conn
		quitConn  net.Conn
		received  *mail.Message
	)

	srv := NewTestServer(t, Configuration{
		Hooks: Hooks{
			OnConnected: func(conn net.Conn) {
				connected = conn
				events = append(events, "connected")
			},
			OnHelloReceived: func(hello string) {
				events = append(events, "hello "+hello)
			},
			OnCommandReceived: func(command, argument string) {
				events = append(events, fmt.Sprintf("command %q %q", command, argument))
			},
			OnUnknownCommand: func(line string) {
				events = append(events, "unknown "+line)
			},
			OnMessageReceived: func(msg *mail.Message) {
				received = msg
				events = append(events, "message "+msg.Subject())
			},
			OnQuitReceived: func(conn net.Conn) {
				quitConn = conn
				events = append(events, "quit")
			},
		},
	})
	c := dial(t, srv)

	c.ehlo("x")
	c.cmd("MAIL FROM: <a@b>", StatusOK)
	c.cmd("VRFY someone", StatusBadCommand)
	c.data(testPayload)
	c.cmd("QUIT", StatusConnClosed)

	// hooks run on the session goroutine, the result hands their writes over
	result := waitResult(t, srv)
	require.NoError(t, result.Err)

	require.Equal(t, []string{
		"connected",
		`command "EHLO" "x"`,
		"hello x",
		`command "MAIL FROM" "<a@b>"`,
		`command "VRFY someone" ""`,
		"unknown VRFY someone",
		`command "DATA" ""`,
		"message s",
		`command "QUIT" ""`,
		"quit",
	}, events)
	require.NotNil(t, connected)
	require.Same(t, connected, quitConn)
	require.Same(t, result.Session.Message, received)
}

func TestCommandParsing(t *testing.T) {
	srv := NewTestServer(t, Configuration{})
	c := dial(t, srv)

	c.ehlo("x")
	c.cmd("mail from:<x@y>", StatusOK)
	c.cmd("RCPT TO: <c@d> NOTIFY=NEVER", StatusOK)
	c.cmd("RSET", StatusOK)
	c.cmd("NOOP", StatusOK)
	c.cmd("HELP", StatusBadCommand)
	c.cmd("QUIT", StatusConnClosed)

	result := waitResult(t, srv)
	require.NoError(t, result.Err)
	require.Equal(t, "<x@y>", result.Session.From)
	require.Equal(t, "<c@d> NOTIFY=NEVER", result.Session.To)
}

func TestAuthLogin(t *testing.T) {
	srv := NewTestServer(t, Configuration{})
	c := dial(t, srv)

	c.ehlo("x")
	c.cmd("AUTH LOGIN", StatusAuthUsername)
	c.cmd(b64("Foo"), StatusAuthPassword)
	c.cmd(b64("Bar"), StatusAuthSuccess)
	c.cmd("QUIT", StatusConnClosed)

	result := waitResult(t, srv)
	require.NoError(t, result.Err)

	s := result.Session
	require.Equal(t, "LOGIN", s.AuthMethodUsed)
	require.Equal(t, "Foo", s.Username)
	require.Equal(t, "Bar", s.Password)
	require.Equal(t, "FooBar", s.UsernamePassword)
	require.True(t, s.Authenticated)

	last := srv.Last()
	require.Equal(t, "FooBar", last.UsernamePassword)
	require.Equal(t, "LOGIN", last.AuthMethodUsed)
}

func TestAuthLoginInlinedUsername(t *testing.T) {
	srv := NewTestServer(t, Configuration{})
	c := dial(t, srv)
	c.ehlo("x")

	client := sasl.NewLoginClient("Foo", "Bar")
	mech, ir, err := client.Start()
	require.NoError(t, err)

	// no username prompt, straight to the password
	c.cmd("AUTH "+mech+" "+base64.StdEncoding.EncodeToString(ir), StatusAuthPassword)

	challenge, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(StatusAuthPassword, "334 "))
	require.NoError(t, err)
	resp, err := client.Next(challenge)
	require.NoError(t, err)

	c.cmd(base64.StdEncoding.EncodeToString(resp), StatusAuthSuccess)
	c.cmd("QUIT", StatusConnClosed)

	result := waitResult(t, srv)
	require.NoError(t, result.Err)
	require.Equal(t, "Foo", result.Session.Username)
	require.Equal(t, "Bar", result.Session.Password)
}

func TestAuthUnsupportedMechanisms(t *testing.T) {
	tests := []struct {
		command string
		reply   string
		method  string
	}{
		{"AUTH PLAIN", StatusSchemeNotSupported, "PLAIN"},
		{"AUTH PLAIN " + b64("\x00Foo\x00Bar"), StatusSchemeNotSupported, "PLAIN"},
		{"AUTH CRAM-MD5", StatusSchemeNotSupported, "CRAM-MD5"},
		{"AUTH NTLM", StatusNTLMRefused, "NTLM"},
		{"auth ntlm", StatusNTLMRefused, "ntlm"},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			srv := NewTestServer(t, Configuration{})
			c := dial(t, srv)

			c.ehlo("x")
			c.cmd(tt.command, tt.reply)
			c.cmd("QUIT", StatusConnClosed)

			result := waitResult(t, srv)
			require.NoError(t, result.Err)
			require.Equal(t, tt.method, result.Session.AuthMethodUsed)
			require.Empty(t, result.Session.Username)
			require.Empty(t, result.Session.Password)
			require.False(t, result.Session.Authenticated)
		})
	}
}

func TestAuthLoginWithCredentialStore(t *testing.T) {
	us := users.NewStore(users.Configuration{
		DB: fake.NewDB(),
	})
	require.NoError(t, us.Create(users.User{Name: "Foo", Password: "Bar"}))

	srv := NewTestServer(t, Configuration{Credentials: us})
	c := dial(t, srv)
	c.ehlo("x")

	c.cmd("AUTH LOGIN "+b64("Foo"), StatusAuthPassword)
	c.cmd(b64("wrong"), StatusAuthenticationFailed)
	require.False(t, srv.Last().Authenticated)
	require.Equal(t, "wrong", srv.Last().Password)

	c.cmd("AUTH LOGIN "+b64("Foo"), StatusAuthPassword)
	c.cmd(b64("Bar"), StatusAuthSuccess)
	c.cmd("QUIT", StatusConnClosed)

	result := waitResult(t, srv)
	require.NoError(t, result.Err)
	require.True(t, result.Session.Authenticated)
}

func TestMalformedInputAbortsSession(t *testing.T) {
	tests := []struct {
		name   string
		script func(c *testClient)
	}{
		{"missing hello", func(c *testClient) {
			c.writeLine("MAIL FROM:<a@b>")
		}},
		{"auth without mechanism", func(c *testClient) {
			c.ehlo("x")
			c.writeLine("AUTH")
		}},
		{"invalid base64 username", func(c *testClient) {
			c.ehlo("x")
			c.writeLine("AUTH LOGIN not*base64")
		}},
		{"invalid base64 password", func(c *testClient) {
			c.ehlo("x")
			c.cmd("AUTH LOGIN", StatusAuthUsername)
			c.cmd(b64("Foo"), StatusAuthPassword)
			c.writeLine("%%%")
		}},
		{"data without separator", func(c *testClient) {
			c.ehlo("x")
			c.cmd("DATA", StatusStartMailInput)
			c.writeRaw("Subject: s\r\n.\r\n")
		}},
		{"data header without colon", func(c *testClient) {
			c.ehlo("x")
			c.cmd("DATA", StatusStartMailInput)
			c.writeRaw("not a header\r\n\r\nbody\r\n.\r\n")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewTestServer(t, Configuration{})
			c := dial(t, srv)

			tt.script(c)
			c.expectClosed()

			result := waitResult(t, srv)
			require.ErrorIs(t, result.Err, ErrMalformedInput)
		})
	}
}

func TestStrictModePanics(t *testing.T) {
	s := &session{server: &Server{config: Configuration{Strict: true}}}

	require.PanicsWithError(t, ErrMalformedInput.Error(), func() {
		_ = s.violation(ErrMalformedInput)
	})

	s.server.config.Strict = false
	require.ErrorIs(t, s.violation(ErrMalformedInput), ErrMalformedInput)
}

func TestEndOfStream(t *testing.T) {
	srv := NewTestServer(t, Configuration{})
	c := dial(t, srv)

	c.ehlo("x")
	c.cmd("MAIL FROM:<a@b>", StatusOK)
	require.NoError(t, c.conn.Close())

	result := waitResult(t, srv)
	require.ErrorIs(t, result.Err, ErrEndOfStream)
	require.Equal(t, "<a@b>", result.Session.From)
}

func TestBufferOverflowAbortsConnection(t *testing.T) {
	srv := NewTestServer(t, Configuration{})
	c := dial(t, srv)

	c.ehlo("x")
	c.writeRaw(strings.Repeat("x", 2*BufferSize))
	c.expectClosed()

	result := waitResult(t, srv)
	require.ErrorIs(t, result.Err, ErrBufferOverflow)
}

func TestCloseUnblocksSession(t *testing.T) {
	srv, err := NewServer(Configuration{})
	require.NoError(t, err)

	c := dial(t, srv)
	c.ehlo("x")

	require.NoError(t, srv.Close())

	result := waitResult(t, srv)
	require.ErrorIs(t, result.Err, ErrTransport)
	c.expectClosed()

	require.NoError(t, srv.Close())

	_, err = net.DialTimeout("tcp", srv.Addr(), time.Second)
	require.Error(t, err)
}

func TestSingleConnectionMode(t *testing.T) {
	srv := NewTestServer(t, Configuration{})

	c := dial(t, srv)
	c.ehlo("x")
	c.cmd("QUIT", StatusConnClosed)
	waitResult(t, srv)

	// the listener is still bound but nobody accepts anymore
	conn, err := net.DialTimeout("tcp", srv.Addr(), testTimeout)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	_, err = conn.Read(make([]byte, 64))
	var netErr net.Error
	require.ErrorAs(t, err, &netErr)
	require.True(t, netErr.Timeout())

	require.Equal(t, int64(1), srv.ConnectionCount())
}

func TestMultipleConnections(t *testing.T) {
	srv := NewTestServer(t, Configuration{ReceiveMultipleConnections: true})

	const clients = 3

	var wg sync.WaitGroup
	ids := make([]int64, clients)
	for i := 0; i < clients; i++ {
		c := dial(t, srv)
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.ehlo(fmt.Sprintf("client-%d", i))
			c.cmd(fmt.Sprintf("MAIL FROM:<%d@b>", i), StatusOK)
			ids[i] = c.data(testPayload)
			c.cmd("QUIT", StatusConnClosed)
		}()
	}
	wg.Wait()

	hellos := map[string]bool{}
	for i := 0; i < clients; i++ {
		result := waitResult(t, srv)
		require.NoError(t, result.Err)
		hellos[result.Session.ClientHello] = true
	}
	require.Len(t, hellos, clients)

	seen := map[int64]bool{}
	for _, id := range ids {
		require.False(t, seen[id], "queue id %d assigned twice", id)
		seen[id] = true
	}

	require.Equal(t, int64(clients), srv.ConnectionCount())

	stored, err := srv.Mails().GetMails()
	require.NoError(t, err)
	require.Len(t, stored, clients)
}
