package store

import (
	"errors"

	"wildwatch/pkg/domain"
)

// ErrDuplicateEmail is returned when a user save would violate email uniqueness.
var ErrDuplicateEmail = errors.New("email already exists")

// Store defines persistence operations for identities and published records.
// Every method is a single-row operation; no multi-row transactions are used.
type Store interface {
	// users
	SaveUser(domain.User) error
	HasUserEmail(email string) (bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)
	ListUsers() ([]domain.User, error)
	DeleteUser(id string) (bool, error)

	// records
	CreateRecord(domain.Record) error
	ListRecords() ([]domain.Record, error)
	DeleteRecord(id string) (bool, error)

	Close() error
}
