package mails

import (
	"time"

	"github.com/OliverSchlueter/mock-smtp-server/mail"
)

type DB interface {
	GetMails() ([]Mail, error)
	GetMailByID(id int64) (*Mail, error)
	InsertMail(mail Mail) error
	DeleteMail(id int64) error
}

type Store struct {
	db DB
}

type Configuration struct {
	DB DB
}

func NewStore(cfg Configuration) *Store {
	return &Store{
		db: cfg.DB,
	}
}

func (s *Store) GetMails() ([]Mail, error) {
	return s.db.GetMails()
}

func (s *Store) GetMailByID(id int64) (*Mail, error) {
	return s.db.GetMailByID(id)
}

func (s *Store) CreateMail(mail Mail) error {
	if mail.Date.IsZero() {
		mail.Date = time.Now()
	}

	return s.db.InsertMail(mail)
}

// Capture stores a parsed DATA block under its queue id.
func (s *Store) Capture(id int64, sessionID, from, to string, msg *mail.Message) error {
	return s.CreateMail(Mail{
		ID:        id,
		SessionID: sessionID,
		From:      from,
		To:        to,
		Size:      len(msg.Raw),
		Headers:   msg.Headers(),
		Body:      msg.Body,
	})
}

func (s *Store) DeleteMail(id int64) error {
	return s.db.DeleteMail(id)
}
