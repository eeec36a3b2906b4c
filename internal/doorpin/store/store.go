// Package store declares the persistence surface doorpin reads from. The
// only writes are to the access-event audit log.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/doorpin/server/internal/doorpin/credential"
	"github.com/doorpin/server/internal/doorpin/permission"
	"github.com/doorpin/server/internal/doorpin/schedule"
)

var ErrNotFound = errors.New("not found")

type User struct {
	ID          int64
	Name        string
	Role        permission.Role
	ApartmentID int64 // 0 when the user belongs to no apartment
	Active      bool
}

func (u User) Subject() permission.Subject {
	return permission.Subject{ID: u.ID, Role: u.Role, ApartmentID: u.ApartmentID}
}

// APIKey is a stored API key. The last four characters of the plaintext
// key identify the record; Hash is a bcrypt hash of the whole key.
type APIKey struct {
	Suffix      string
	Hash        string
	Description string
	UserID      int64
	Active      bool
	CreatedAt   time.Time
}

type UserStore interface {
	GetUser(ctx context.Context, id int64) (User, error)
}

type APIKeyStore interface {
	GetAPIKey(ctx context.Context, suffix string) (APIKey, error)
}

// Store is everything the server reads. Implementations only list
// credentials and schedules of active users.
type Store interface {
	credential.Source
	schedule.Source
	UserStore
	APIKeyStore
	AccessEventStore
}
