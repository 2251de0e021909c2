package fake

import (
	"sync"

	"github.com/OliverSchlueter/mock-smtp-server/internal/users"
)

type DB struct {
	Items map[string]users.User
	mu    sync.Mutex
}

func NewDB() *DB {
	return &DB{
		Items: make(map[string]users.User),
		mu:    sync.Mutex{},
	}
}

func (db *DB) GetByName(name string) (*users.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	user, exists := db.Items[name]
	if !exists {
		return nil, users.ErrUserNotFound
	}
	return &user, nil
}

func (db *DB) Insert(user users.User) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.Items[user.Name]; exists {
		return users.ErrUserAlreadyExists
	}

	db.Items[user.Name] = user
	return nil
}
