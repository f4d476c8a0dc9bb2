package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidPath      = errors.New("invalid document path")
	ErrEmailExists      = errors.New("email already registered")
	ErrIdentityNotFound = errors.New("identity not found")
	ErrInvalidToken     = errors.New("invalid token")
)

// DocumentStore is a hierarchical JSON document store addressed by
// slash-separated paths. Values are JSON-shaped; setting nil deletes and
// empty objects are pruned. Each call is atomic for its path only.
type DocumentStore interface {
	Get(ctx context.Context, path string) (any, bool, error)
	Set(ctx context.Context, path string, value any) error
	// Update merges fields into the object at path. A field key may itself be
	// a relative path; a nil field value deletes that child.
	Update(ctx context.Context, path string, fields map[string]any) error
	Delete(ctx context.Context, path string) error
}

// Identities maps e-mail addresses to opaque user ids.
type Identities interface {
	CreateIdentity(ctx context.Context, email string) (string, error)
	LookupEmail(ctx context.Context, email string) (string, bool, error)
	DeleteIdentity(ctx context.Context, uid string) error
}

// SessionStore issues and validates session tokens.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}

// UserSessionRevoker is an optional capability that revokes all sessions
// issued for a user since a cutoff time.
type UserSessionRevoker interface {
	RevokeUserSessions(userID string, since time.Time) error
}
