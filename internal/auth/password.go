// ABOUTME: Single-user password login backed by user_settings and bcrypt
// ABOUTME: Issues login tokens, verifies credentials in constant-ish time, changes the password

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/2389/coven-dashboard/internal/store"
	"golang.org/x/crypto/bcrypt"
)

// Login errors
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotConfigured      = errors.New("login is not configured")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
)

// MinPasswordLength is the shortest password SetPassword accepts.
const MinPasswordLength = 8

// compared against when no account exists so failures take similar time
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Authenticator checks the dashboard's single account.
type Authenticator struct {
	settings store.SettingsStore
	activity store.ActivityStore
	tokens   *JWTVerifier
	ttl      time.Duration
	logger   *slog.Logger
}

// NewAuthenticator creates an Authenticator. activity may be nil.
func NewAuthenticator(settings store.SettingsStore, activity store.ActivityStore, tokens *JWTVerifier, ttl time.Duration, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Authenticator{
		settings: settings,
		activity: activity,
		tokens:   tokens,
		ttl:      ttl,
		logger:   logger.With("component", "auth"),
	}
}

// Verifier returns the token verifier used for issued tokens.
func (a *Authenticator) Verifier() TokenVerifier {
	return a.tokens
}

// Login checks username and password and returns a signed token.
func (a *Authenticator) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	storedUser, err := a.settings.GetSetting(ctx, store.SettingUsername)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("loading username: %w", err)
	}
	storedHash, err := a.settings.GetSetting(ctx, store.SettingPasswordHash)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("loading password hash: %w", err)
	}

	if storedUser == "" || storedHash == "" {
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
		a.logger.Warn("login attempted before an account was configured")
		return nil, ErrNotConfigured
	}

	if !strings.EqualFold(storedUser, username) {
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(password)); err != nil {
		a.logger.Info("login rejected", "username", username)
		return nil, ErrInvalidCredentials
	}

	token, err := a.tokens.Generate(storedUser, a.ttl)
	if err != nil {
		return nil, fmt.Errorf("signing token: %w", err)
	}

	a.logActivity(ctx, store.ActivityLogin, "Signed in")
	a.logger.Info("login succeeded", "username", storedUser)
	return &LoginResult{Token: token, Username: storedUser, ExpiresAt: time.Now().Add(a.ttl)}, nil
}

// ChangePassword replaces the password after checking the current one.
func (a *Authenticator) ChangePassword(ctx context.Context, current, next string) error {
	storedHash, err := a.settings.GetSetting(ctx, store.SettingPasswordHash)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotConfigured
	}
	if err != nil {
		return fmt.Errorf("loading password hash: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(current)); err != nil {
		return ErrInvalidCredentials
	}

	if err := a.SetPassword(ctx, next); err != nil {
		return err
	}

	a.logActivity(ctx, store.ActivityPasswordChange, "Password changed")
	return nil
}

// SetPassword stores a new bcrypt hash without checking the old password.
// Used by the CLI.
func (a *Authenticator) SetPassword(ctx context.Context, password string) error {
	return SetPassword(ctx, a.settings, password)
}

// SetPassword hashes password and stores it in settings.
func SetPassword(ctx context.Context, settings store.SettingsStore, password string) error {
	if len(password) < MinPasswordLength {
		return ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	if err := settings.SetSetting(ctx, store.SettingPasswordHash, string(hash)); err != nil {
		return fmt.Errorf("storing password hash: %w", err)
	}
	return nil
}

func (a *Authenticator) logActivity(ctx context.Context, activityType, description string) {
	if a.activity == nil {
		return
	}
	if err := a.activity.LogActivity(ctx, activityType, description, ""); err != nil {
		a.logger.Warn("failed to record activity", "type", activityType, "error", err)
	}
}
