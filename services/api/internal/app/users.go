package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cowly/internal/util"
	"cowly/pkg/auth"
	"cowly/pkg/domain"
	"cowly/pkg/store"
)

type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     string
}

type LoginResult struct {
	Token  string
	UserID string
	Role   domain.UserRole
}

// Register creates an identity and its details document. If writing the
// details fails the identity is rolled back.
func (a *App) Register(ctx context.Context, in RegisterInput) (string, error) {
	name := strings.TrimSpace(in.Name)
	email := strings.TrimSpace(in.Email)
	role := domain.UserRole(strings.TrimSpace(in.Role))
	if name == "" || email == "" || in.Password == "" || role == "" {
		return "", ErrMissingFields
	}
	if !role.Valid() {
		return "", ErrInvalidRole
	}
	if err := auth.ValidatePassword(in.Password); err != nil {
		return "", err
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	uid, err := a.identities.CreateIdentity(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrEmailExists) {
			return "", ErrEmailAlreadyExists
		}
		return "", fmt.Errorf("create identity: %w", err)
	}
	details := map[string]any{
		"user_id":       uid,
		"name":          name,
		"email":         email,
		"role":          string(role),
		"password_hash": hash,
		"created_at":    a.timestamp(),
	}
	if err := a.docs.Set(ctx, store.DetailsPath(uid), details); err != nil {
		if rbErr := a.identities.DeleteIdentity(ctx, uid); rbErr != nil {
			util.LoggerFromContext(ctx).Error("identity rollback failed", "user_id", uid, "err", rbErr)
		}
		return "", fmt.Errorf("store details: %w", err)
	}
	return uid, nil
}

// Login verifies the password against the stored hash and issues a session.
func (a *App) Login(ctx context.Context, email, password string) (LoginResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return LoginResult{}, ErrMissingCredentials
	}
	uid, ok, err := a.identities.LookupEmail(ctx, email)
	if err != nil {
		return LoginResult{}, fmt.Errorf("lookup email: %w", err)
	}
	if !ok {
		return LoginResult{}, ErrInvalidCredentials
	}
	details, ok, err := a.details(ctx, uid)
	if err != nil {
		return LoginResult{}, err
	}
	if !ok {
		return LoginResult{}, ErrInvalidCredentials
	}
	if details.PasswordHash == "" {
		return LoginResult{}, ErrPasswordNotSet
	}
	if !auth.CheckPassword(password, details.PasswordHash) {
		return LoginResult{}, ErrInvalidCredentials
	}
	token, err := a.sessions.NewSession(uid)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue session: %w", err)
	}
	return LoginResult{Token: token, UserID: uid, Role: details.Role}, nil
}

// Logout revokes token. An empty or already invalid token is not an error.
func (a *App) Logout(token string) error {
	if strings.TrimSpace(token) == "" {
		return nil
	}
	return a.sessions.DeleteSession(token)
}

// Profile returns the public part of the caller's details.
func (a *App) Profile(ctx context.Context, uid string) (domain.UserDetails, error) {
	details, ok, err := a.details(ctx, uid)
	if err != nil {
		return domain.UserDetails{}, err
	}
	if !ok {
		return domain.UserDetails{}, ErrUserNotFound
	}
	if details.UserID == "" {
		details.UserID = uid
	}
	return details, nil
}

// UpdateProfile changes the display name and contact e-mail stored in the
// details document. The login identity is left untouched.
func (a *App) UpdateProfile(ctx context.Context, uid, name, email string) error {
	name, email = strings.TrimSpace(name), strings.TrimSpace(email)
	if name == "" || email == "" {
		return ErrMissingFields
	}
	_, ok, err := a.docs.Get(ctx, store.DetailsPath(uid))
	if err != nil {
		return fmt.Errorf("load details: %w", err)
	}
	if !ok {
		return ErrUserNotFound
	}
	return a.docs.Update(ctx, store.DetailsPath(uid), map[string]any{
		"name":       name,
		"email":      email,
		"updated_at": a.timestamp(),
	})
}

// DeleteUser removes the user's subtree, then the identity, then every
// session issued to that user.
func (a *App) DeleteUser(ctx context.Context, uid string) error {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return ErrUserNotFound
	}
	_, ok, err := a.docs.Get(ctx, store.UserPath(uid))
	if err != nil {
		if errors.Is(err, store.ErrInvalidPath) {
			return ErrUserNotFound
		}
		return fmt.Errorf("load user: %w", err)
	}
	if !ok {
		return ErrUserNotFound
	}
	if err := a.docs.Delete(ctx, store.UserPath(uid)); err != nil {
		return fmt.Errorf("delete user data: %w", err)
	}
	if err := a.identities.DeleteIdentity(ctx, uid); err != nil && !errors.Is(err, store.ErrIdentityNotFound) {
		return fmt.Errorf("delete identity: %w", err)
	}
	if revoker, ok := a.sessions.(store.UserSessionRevoker); ok {
		if err := revoker.RevokeUserSessions(uid, time.Now()); err != nil {
			return fmt.Errorf("revoke sessions: %w", err)
		}
	}
	return nil
}

func (a *App) details(ctx context.Context, uid string) (domain.UserDetails, bool, error) {
	raw, ok, err := a.docs.Get(ctx, store.DetailsPath(uid))
	if err != nil {
		return domain.UserDetails{}, false, fmt.Errorf("load details: %w", err)
	}
	record, isObject := raw.(map[string]any)
	if !ok || !isObject {
		return domain.UserDetails{}, false, nil
	}
	text := func(k string) string {
		s, _ := record[k].(string)
		return s
	}
	return domain.UserDetails{
		UserID:       text("user_id"),
		Name:         text("name"),
		Email:        text("email"),
		Role:         domain.UserRole(text("role")),
		PasswordHash: text("password_hash"),
	}, true, nil
}
