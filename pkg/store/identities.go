package store

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

// MemoryIdentities keeps identities in-memory (single instance only).
type MemoryIdentities struct {
	mu      sync.Mutex
	byEmail map[string]string
	byID    map[string]string
}

// NewMemoryIdentities builds an empty in-memory identity provider.
func NewMemoryIdentities() *MemoryIdentities {
	return &MemoryIdentities{
		byEmail: make(map[string]string),
		byID:    make(map[string]string),
	}
}

func (m *MemoryIdentities) CreateIdentity(_ context.Context, email string) (string, error) {
	email = normalizeEmail(email)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[email]; ok {
		return "", ErrEmailExists
	}
	uid := uuid.NewString()
	m.byEmail[email] = uid
	m.byID[uid] = email
	return uid, nil
}

func (m *MemoryIdentities) LookupEmail(_ context.Context, email string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	uid, ok := m.byEmail[normalizeEmail(email)]
	return uid, ok, nil
}

func (m *MemoryIdentities) DeleteIdentity(_ context.Context, uid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	email, ok := m.byID[uid]
	if !ok {
		return ErrIdentityNotFound
	}
	delete(m.byID, uid)
	delete(m.byEmail, email)
	return nil
}

// GormIdentities stores identities in the identities table.
type GormIdentities struct {
	db *gorm.DB
}

func (g *GormIdentities) CreateIdentity(ctx context.Context, email string) (string, error) {
	model := IdentityModel{
		ID:        uuid.NewString(),
		Email:     normalizeEmail(email),
		CreatedAt: time.Now().UTC(),
	}
	if err := g.db.WithContext(ctx).Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return "", ErrEmailExists
		}
		return "", err
	}
	return model.ID, nil
}

func (g *GormIdentities) LookupEmail(ctx context.Context, email string) (string, bool, error) {
	var model IdentityModel
	if err := g.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).Take(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return model.ID, true, nil
}

func (g *GormIdentities) DeleteIdentity(ctx context.Context, uid string) error {
	res := g.db.WithContext(ctx).Where("id = ?", uid).Delete(&IdentityModel{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrIdentityNotFound
	}
	return nil
}
