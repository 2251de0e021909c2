package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/OliverSchlueter/goutils/sloki"
	"github.com/OliverSchlueter/mock-smtp-server/smtp"
	gomail "github.com/wneessen/go-mail"
)

func main() {
	lokiService := sloki.NewService(sloki.Configuration{
		URL:          "http://localhost:3100/loki/api/v1/push",
		Service:      "mock-smtp-server",
		ConsoleLevel: slog.LevelDebug,
		LokiLevel:    slog.LevelInfo,
		EnableLoki:   false,
	})
	slog.SetDefault(slog.New(lokiService))

	srv, err := smtp.NewServer(smtp.Configuration{})
	if err != nil {
		slog.Error("Could not start mock SMTP server", sloki.WrapError(err))
		os.Exit(1)
	}
	defer srv.Close()
	slog.Info("Started mock SMTP server", "addr", srv.Addr())

	m := gomail.NewMsg()
	if err := m.From("foo@example.com"); err != nil {
		slog.Error("Could not set From address", sloki.WrapError(err))
		os.Exit(1)
	}
	if err := m.To("bar@example.com"); err != nil {
		slog.Error("Could not set To address", sloki.WrapError(err))
		os.Exit(1)
	}
	m.Subject("hello")
	m.SetBodyString(gomail.TypeTextPlain, "howdydoo")

	client, err := srv.NewClient(
		gomail.WithSMTPAuth(gomail.SMTPAuthLogin),
		gomail.WithUsername("Foo"),
		gomail.WithPassword("Bar"),
	)
	if err != nil {
		slog.Error("Could not create mail client", sloki.WrapError(err))
		os.Exit(1)
	}

	if err := client.DialAndSend(m); err != nil {
		slog.Error("Could not send mail", sloki.WrapError(err))
		os.Exit(1)
	}

	select {
	case result := <-srv.Results():
		if result.Err != nil {
			slog.Warn("Session ended with an error", sloki.WrapError(result.Err))
		}
	case <-time.After(5 * time.Second):
		slog.Error("Timed out waiting for the session to end")
		os.Exit(1)
	}

	last := srv.Last()
	fmt.Printf("Hello:       %s\n", last.ClientHello)
	fmt.Printf("Auth method: %s\n", last.AuthMethodUsed)
	fmt.Printf("Credentials: %s / %s\n", last.Username, last.Password)
	fmt.Printf("From:        %s\n", last.From)
	fmt.Printf("To:          %s\n", last.To)
	if last.Message != nil {
		fmt.Printf("Subject:     %s\n", last.Message.Subject())
		fmt.Printf("Body:\n%s\n", last.Message.Body)
	}
}
