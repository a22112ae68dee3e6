// Package token issues and verifies the signed, time-bound tokens that bind
// a user to a live session. A token is only as good as its session record:
// verification checks the signature and expiry first, then proves the
// session still exists in the store, so a logout revokes the token
// immediately regardless of its embedded expiry.
package token

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/adaptai/edge/internal/session"
)

var (
	ErrTokenInvalid    = errors.New("token invalid")
	ErrTokenExpired    = errors.New("token expired")
	ErrSessionNotFound = errors.New("session not found")
)

// Identity is the verified (user, session) pair embedded in a token.
type Identity struct {
	UserID    string
	SessionID string
}

// IssuedToken is the result of a successful login.
type IssuedToken struct {
	Token     string
	SessionID string
	ExpiresIn time.Duration
}

type claims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

type Service struct {
	secret []byte
	ttl    time.Duration
	store  session.Store
	now    func() time.Time
}

func NewService(secret string, ttl time.Duration, store session.Store) *Service {
	return &Service{
		secret: []byte(secret),
		ttl:    ttl,
		store:  store,
		now:    time.Now,
	}
}

// Issue creates a fresh session for userID and returns a signed token bound
// to it. The session record is written before the token is returned; if the
// write fails no token is issued, so a token never outlives proof of its
// own liveness.
func (s *Service) Issue(ctx context.Context, userID string) (IssuedToken, error) {
	sessionID, err := newSessionID()
	if err != nil {
		return IssuedToken{}, err
	}

	now := s.now()
	expiresAt := now.Add(s.ttl)

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})

	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("token: sign: %w", err)
	}

	if err := s.store.Put(ctx, userID, sessionID, signed, s.ttl); err != nil {
		return IssuedToken{}, fmt.Errorf("token: store session: %w", err)
	}

	return IssuedToken{
		Token:     signed,
		SessionID: sessionID,
		ExpiresIn: s.ttl,
	}, nil
}

// Verify checks signature and expiry, then the session's liveness record.
// Expiry is checked before the liveness lookup so callers get the precise
// failure. Verification never mutates state.
func (s *Service) Verify(ctx context.Context, tokenString string) (Identity, error) {
	var c claims
	_, err := jwt.ParseWithClaims(tokenString, &c,
		func(t *jwt.Token) (any, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrTokenExpired
		}
		return Identity{}, ErrTokenInvalid
	}

	if c.Subject == "" || c.SessionID == "" {
		return Identity{}, ErrTokenInvalid
	}

	// A store error reads as "not live": the safe answer when liveness
	// cannot be proven.
	ok, err := s.store.Exists(ctx, c.Subject, c.SessionID)
	if err != nil || !ok {
		return Identity{}, ErrSessionNotFound
	}

	return Identity{UserID: c.Subject, SessionID: c.SessionID}, nil
}

// Revoke deletes the session record, invalidating every copy of the token
// bound to it.
func (s *Service) Revoke(ctx context.Context, userID, sessionID string) error {
	return s.store.Delete(ctx, userID, sessionID)
}

func newSessionID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("token: generate session id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
