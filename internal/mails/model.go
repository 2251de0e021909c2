package mails

import (
	"time"

	"github.com/OliverSchlueter/mock-smtp-server/mail"
)

// Mail is a DATA block accepted by the mock server, keyed by the id from its "queued as" reply.
type Mail struct {
	ID        int64         `json:"id"`
	SessionID string        `json:"session_id"`
	From      string        `json:"from"`
	To        string        `json:"to"`
	Date      time.Time     `json:"date"`
	Size      int           `json:"size"`
	Headers   []mail.Header `json:"headers"`
	Body      string        `json:"body"`
}
