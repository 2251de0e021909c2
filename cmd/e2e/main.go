package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/OliverSchlueter/goutils/sloki"
	"github.com/OliverSchlueter/mock-smtp-server/internal/mailhandler"
	"github.com/OliverSchlueter/mock-smtp-server/internal/mails"
	"github.com/OliverSchlueter/mock-smtp-server/internal/mails/database/fake"
	"github.com/OliverSchlueter/mock-smtp-server/mail"
	"github.com/OliverSchlueter/mock-smtp-server/smtp"
	gomail "github.com/wneessen/go-mail"
	gosmtp "github.com/wneessen/go-mail/smtp"
)

const (
	apiAddr      = "127.0.0.1:8025"
	dkimDomain   = "example.com"
	dkimSelector = "mail"
)

func main() {
	lokiService := sloki.NewService(sloki.Configuration{
		URL:          "http://localhost:3100/loki/api/v1/push",
		Service:      "mock-smtp-server-e2e",
		ConsoleLevel: slog.LevelDebug,
		LokiLevel:    slog.LevelInfo,
		EnableLoki:   false,
	})
	slog.SetDefault(slog.New(lokiService))

	ms := mails.NewStore(mails.Configuration{
		DB: fake.NewDB(),
	})

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		fail("Could not generate DKIM key", err)
	}
	dkimRecord := "v=DKIM1; k=ed25519; p=" + base64.StdEncoding.EncodeToString(pub)

	srv, err := smtp.NewServer(smtp.Configuration{
		ReceiveMultipleConnections: true,
		SupportSMTPUTF8:            true,
		Mails:                      ms,
		Hooks: smtp.Hooks{
			OnConnected: func(conn net.Conn) {
				fmt.Printf("connected: %s\n", conn.RemoteAddr())
			},
			OnHelloReceived: func(hello string) {
				fmt.Printf("hello: %s\n", hello)
			},
			OnCommandReceived: func(command, argument string) {
				fmt.Printf("command: %s %s\n", command, argument)
			},
			OnUnknownCommand: func(line string) {
				fmt.Printf("unknown command: %s\n", line)
			},
			OnMessageReceived: func(msg *mail.Message) {
				fmt.Printf("message: %s\n", msg.Subject())
				if _, ok := msg.Header("DKIM-Signature"); !ok {
					return
				}

				verifications, err := msg.VerifyDKIM(func(domain string) ([]string, error) {
					if domain != dkimSelector+"._domainkey."+dkimDomain {
						return nil, fmt.Errorf("no TXT record for %s", domain)
					}
					return []string{dkimRecord}, nil
				})
				if err != nil {
					slog.Error("Could not verify DKIM signature", sloki.WrapError(err))
					return
				}
				for _, v := range verifications {
					if v.Err != nil {
						fmt.Printf("dkim: %s failed: %v\n", v.Domain, v.Err)
						continue
					}
					fmt.Printf("dkim: %s ok\n", v.Domain)
				}
			},
			OnQuitReceived: func(conn net.Conn) {
				fmt.Printf("quit: %s\n", conn.RemoteAddr())
			},
		},
	})
	if err != nil {
		fail("Could not start mock SMTP server", err)
	}
	defer srv.Close()
	slog.Info("Started mock SMTP server", "addr", srv.Addr())

	sent := 0
	for _, subject := range []string{"first", "second"} {
		if err := sendWithGoMail(srv, subject); err != nil {
			fail("Could not send mail", err)
		}
		sent++
	}

	if err := sendSigned(srv, priv); err != nil {
		fail("Could not send signed mail", err)
	}
	sent++

	for i := 0; i < sent; i++ {
		select {
		case result := <-srv.Results():
			slog.Info("Session finished",
				"session_id", result.Session.ID,
				"hello", result.Session.ClientHello,
				"auth", result.Session.AuthMethodUsed,
				"queue_ids", result.Session.QueueIDs,
				"error", result.Err,
			)
		case <-time.After(5 * time.Second):
			fail("Timed out waiting for sessions", nil)
		}
	}

	slog.Info("Exchange complete",
		"connections", srv.ConnectionCount(),
		"messages_received", srv.MessagesReceived(),
	)

	mux := http.NewServeMux()
	mailhandler.New(ms).Register("/api", mux)

	slog.Info("Serving captured mails", "addr", "http://"+apiAddr+"/api/mails")
	if err := http.ListenAndServe(apiAddr, mux); err != nil {
		fail("Could not serve HTTP API", err)
	}
}

func sendWithGoMail(srv *smtp.Server, subject string) error {
	m := gomail.NewMsg()
	if err := m.From("foo@" + dkimDomain); err != nil {
		return err
	}
	if err := m.To("bar@" + dkimDomain); err != nil {
		return err
	}
	m.Subject(subject)
	m.SetBodyString(gomail.TypeTextPlain, "howdydoo")

	client, err := srv.NewClient(
		gomail.WithHELO("e2e.local"),
		gomail.WithSMTPAuth(gomail.SMTPAuthLogin),
		gomail.WithUsername("Foo"),
		gomail.WithPassword("Bar"),
	)
	if err != nil {
		return err
	}

	return client.DialAndSend(m)
}

// sendSigned builds a message by hand, DKIM signs it and sends it over a plain SMTP client.
func sendSigned(srv *smtp.Server, key ed25519.PrivateKey) error {
	raw := mail.Build([]mail.Header{
		{Name: "From", Value: "foo@" + dkimDomain},
		{Name: "To", Value: "bar@" + dkimDomain},
		{Name: "Subject", Value: "signed"},
		{Name: "Date", Value: time.Now().Format(time.RFC1123Z)},
		{Name: "Message-ID", Value: fmt.Sprintf("<%d@%s>", time.Now().UnixNano(), dkimDomain)},
	}, "this one is signed\r\n")

	signed, err := mail.Sign(raw, mail.SignOptions{
		Domain:   dkimDomain,
		Selector: dkimSelector,
		Signer:   key,
	})
	if err != nil {
		return err
	}

	c, err := gosmtp.Dial(srv.Addr())
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Hello("e2e.local"); err != nil {
		return err
	}
	if err := c.Mail("foo@" + dkimDomain); err != nil {
		return err
	}
	if err := c.Rcpt("bar@" + dkimDomain); err != nil {
		return err
	}

	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte(signed)); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	return c.Quit()
}

func fail(msg string, err error) {
	if err != nil {
		slog.Error(msg, sloki.WrapError(err))
	} else {
		slog.Error(msg)
	}
	os.Exit(1)
}
