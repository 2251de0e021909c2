package users

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

type DB interface {
	GetByName(name string) (*User, error)
	Insert(user User) error
}

type Store struct {
	db DB
}

type Configuration struct {
	DB DB
}

func NewStore(config Configuration) *Store {
	return &Store{
		db: config.DB,
	}
}

func (s *Store) GetByName(name string) (*User, error) {
	return s.db.GetByName(name)
}

func (s *Store) Create(u User) error {
	u.ID = GenerateID()
	u.Password = Hash(u.Password)

	return s.db.Insert(u)
}

// Authenticate checks a username/password pair as received through AUTH LOGIN.
func (s *Store) Authenticate(name, password string) error {
	u, err := s.db.GetByName(name)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return fmt.Errorf("%w: unknown user %q", ErrInvalidCredentials, name)
		}
		return err
	}

	if u.Password != Hash(password) {
		return fmt.Errorf("%w: wrong password for %q", ErrInvalidCredentials, name)
	}

	return nil
}

func GenerateID() string {
	return uuid.New().String()
}

func Hash(password string) string {
	h := sha256.New()
	h.Write([]byte(password))
	bs := h.Sum(nil)
	return fmt.Sprintf("%x", bs)
}
