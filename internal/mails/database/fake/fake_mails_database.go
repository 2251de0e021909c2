package fake

import (
	"sort"
	"sync"

	"github.com/OliverSchlueter/mock-smtp-server/internal/mails"
)

type DB struct {
	Mails map[int64]mails.Mail
	mu    sync.Mutex
}

func NewDB() *DB {
	return &DB{
		Mails: make(map[int64]mails.Mail),
		mu:    sync.Mutex{},
	}
}

func (db *DB) GetMails() ([]mails.Mail, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	all := make([]mails.Mail, 0, len(db.Mails))
	for _, m := range db.Mails {
		all = append(all, m)
	}

	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all, nil
}

func (db *DB) GetMailByID(id int64) (*mails.Mail, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	m, exists := db.Mails[id]
	if !exists {
		return nil, mails.ErrMailNotFound
	}
	return &m, nil
}

func (db *DB) InsertMail(mail mails.Mail) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.Mails[mail.ID]; exists {
		return mails.ErrMailAlreadyExists
	}

	db.Mails[mail.ID] = mail
	return nil
}

func (db *DB) DeleteMail(id int64) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.Mails[id]; !exists {
		return mails.ErrMailNotFound
	}

	delete(db.Mails, id)
	return nil
}
