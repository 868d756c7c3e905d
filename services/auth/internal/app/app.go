package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"aitutor/internal/util"
	"aitutor/pkg/auth"
	"aitutor/pkg/domain"
	"aitutor/pkg/store"
)

// Config holds runtime dependencies for the auth application.
type Config struct {
	Store    store.UserStore
	Sessions store.SessionStore
	// JWKS publishes the session signing keys; optional.
	JWKS store.JWKSProvider
}

// App owns accounts and session tokens.
type App struct {
	store    store.UserStore
	sessions store.SessionStore
	jwks     store.JWKSProvider
}

// New constructs the application.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("user store required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session store required")
	}
	jwks := cfg.JWKS
	if jwks == nil {
		jwks, _ = cfg.Sessions.(store.JWKSProvider)
	}
	return &App{store: cfg.Store, sessions: cfg.Sessions, jwks: jwks}, nil
}

// RegisterInput carries a self-service signup.
type RegisterInput struct {
	Email      string
	Password   string
	FullName   string
	Role       domain.UserRole
	Stream     string
	ClassLevel int
}

// Register creates a student or teacher account and signs it in. Admin
// accounts are only created through EnsureAdmin.
func (a *App) Register(ctx context.Context, in RegisterInput) (domain.User, string, error) {
	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return domain.User{}, "", ErrEmailAndPasswordRequired
	}
	fullName := strings.TrimSpace(in.FullName)
	if fullName == "" {
		return domain.User{}, "", ErrFullNameRequired
	}
	role := in.Role
	if role == "" {
		role = domain.RoleStudent
	}
	if role != domain.RoleStudent && role != domain.RoleTeacher {
		return domain.User{}, "", ErrInvalidRole
	}
	if err := auth.ValidatePassword(in.Password); err != nil {
		return domain.User{}, "", err
	}
	user, err := a.createUser(ctx, domain.User{
		Email:      email,
		FullName:   fullName,
		Role:       role,
		Stream:     strings.TrimSpace(in.Stream),
		ClassLevel: in.ClassLevel,
	}, in.Password)
	if err != nil {
		return domain.User{}, "", err
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue session: %w", err)
	}
	return user, token, nil
}

// Login validates credentials and issues a session token.
func (a *App) Login(ctx context.Context, email, password string) (domain.User, string, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return domain.User{}, "", ErrEmailAndPasswordRequired
	}
	user, ok, err := a.store.GetUserByEmail(ctx, email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("fetch user: %w", err)
	}
	if !ok || !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	if user.Status == domain.StatusDisabled {
		return domain.User{}, "", ErrUserDisabled
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue session: %w", err)
	}
	return user, token, nil
}

// UserFromToken resolves an active user from a session token.
func (a *App) UserFromToken(ctx context.Context, token string) (domain.User, bool) {
	userID, ok, err := a.sessions.GetUserIDByToken(token)
	if err != nil || !ok {
		if err != nil {
			util.LoggerFromContext(ctx).Debug("token rejected", "err", err)
		}
		return domain.User{}, false
	}
	user, ok, err := a.store.GetUserByID(ctx, userID)
	if err != nil {
		util.LoggerFromContext(ctx).Error("load token user failed", "err", err)
		return domain.User{}, false
	}
	if !ok || user.Status == domain.StatusDisabled {
		return domain.User{}, false
	}
	return user, true
}

// Logout revokes the presented token until it expires. With all set every
// session the user holds is revoked.
func (a *App) Logout(ctx context.Context, token string, all bool) error {
	user, ok := a.UserFromToken(ctx, token)
	if !ok {
		return ErrInvalidToken
	}
	if err := a.sessions.DeleteSession(token); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	if !all {
		return nil
	}
	revoker, ok := a.sessions.(store.UserSessionRevoker)
	if !ok {
		return errors.New("session store cannot revoke all user sessions")
	}
	if err := revoker.RevokeUserSessions(user.ID, time.Now().UTC()); err != nil {
		return fmt.Errorf("revoke user sessions: %w", err)
	}
	return nil
}

// JWKS returns public signing keys when session store supports it.
func (a *App) JWKS() []store.JWK {
	if a.jwks == nil {
		return nil
	}
	return a.jwks.JWKS()
}

// EnsureAdmin creates the seed admin account if the email is not taken yet.
// It reports whether an account was created.
func (a *App) EnsureAdmin(ctx context.Context, email, password, fullName string) (bool, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return false, ErrEmailAndPasswordRequired
	}
	if _, ok, err := a.store.GetUserByEmail(ctx, email); err != nil {
		return false, fmt.Errorf("fetch user: %w", err)
	} else if ok {
		return false, nil
	}
	if err := auth.ValidatePassword(password); err != nil {
		return false, err
	}
	if strings.TrimSpace(fullName) == "" {
		fullName = "Administrator"
	}
	user, err := a.createUser(ctx, domain.User{Email: email, FullName: strings.TrimSpace(fullName), Role: domain.RoleAdmin}, password)
	if errors.Is(err, ErrEmailAlreadyExists) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	slog.Info("seed admin created", "user_id", user.ID)
	return true, nil
}

func (a *App) createUser(ctx context.Context, user domain.User, password string) (domain.User, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	user.ID = util.NewID()
	user.PasswordHash = hash
	user.Status = domain.StatusActive
	user.CreatedAt = now
	user.UpdatedAt = now
	if err := a.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return domain.User{}, ErrEmailAlreadyExists
		}
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}
