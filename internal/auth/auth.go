// Package auth checks logins against the accounts table and issues the
// session tokens that guard the API.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"inventuri/internal/inventory"
	"inventuri/internal/storage"
)

var (
	// ErrInvalidCredentials is the single answer to every failed login.
	ErrInvalidCredentials = errors.New("Invalid username or password.")
	// ErrInvalidToken rejects a missing, expired or forged session token.
	ErrInvalidToken = errors.New("invalid session token")
)

const (
	minUsernameLen = 3
	minPasswordLen = 6
)

// Config holds token signing parameters.
type Config struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

// Claims are carried inside issued tokens.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Session is returned after a successful login.
type Session struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Authenticator validates logins and tokens.
type Authenticator struct {
	accounts storage.AccountStore
	cfg      Config
	logger   zerolog.Logger
	now      func() time.Time
}

// New constructs an Authenticator.
func New(accounts storage.AccountStore, cfg Config, logger zerolog.Logger) *Authenticator {
	return &Authenticator{
		accounts: accounts,
		cfg:      cfg,
		logger:   logger.With().Str("component", "auth").Logger(),
		now:      time.Now,
	}
}

// ValidateForm applies the login form rules.
func ValidateForm(username, password string) error {
	if len(username) < minUsernameLen {
		return fmt.Errorf("%w: Username must be at least %d characters", inventory.ErrInvalidInput, minUsernameLen)
	}
	if len(password) < minPasswordLen {
		return fmt.Errorf("%w: Password must be at least %d characters", inventory.ErrInvalidInput, minPasswordLen)
	}
	return nil
}

// Authenticate compares the password with the stored one and issues a token.
func (a *Authenticator) Authenticate(ctx context.Context, username, password string) (Session, error) {
	if err := ValidateForm(username, password); err != nil {
		return Session{}, err
	}

	acc, err := a.accounts.GetAccount(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			a.logger.Info().Str("username", username).Msg("login rejected")
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, fmt.Errorf("load account: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(acc.Password), []byte(password)) != 1 {
		a.logger.Info().Str("username", username).Msg("login rejected")
		return Session{}, ErrInvalidCredentials
	}

	return a.Issue(acc.Username)
}

// Issue signs a token for username.
func (a *Authenticator) Issue(username string) (Session, error) {
	if a.cfg.Secret == "" {
		return Session{}, errors.New("auth.token_secret not configured")
	}
	now := a.now()
	expires := now.Add(a.cfg.TTL)
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.cfg.Issuer,
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(a.cfg.Secret))
	if err != nil {
		return Session{}, fmt.Errorf("sign token: %w", err)
	}
	return Session{Token: signed, Username: username, ExpiresAt: expires}, nil
}

// Verify parses a token and returns its claims.
func (a *Authenticator) Verify(token string) (*Claims, error) {
	if token == "" || a.cfg.Secret == "" {
		return nil, ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(a.cfg.Secret), nil
	}, jwt.WithIssuer(a.cfg.Issuer), jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
