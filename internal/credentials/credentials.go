// Package credentials answers exactly one question: is this
// username/password pair valid. Identity beyond the username is out of
// scope here; the token service owns sessions.
package credentials

import (
	"context"
	"crypto/subtle"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type Verifier interface {
	// VerifyPassword returns ErrInvalidCredentials for unknown users and
	// wrong passwords alike; the two cases must be indistinguishable to
	// the caller.
	VerifyPassword(ctx context.Context, username, password string) error
}

// StaticVerifier accepts a single configured user. It backs deployments
// without a user database.
type StaticVerifier struct {
	username     string
	passwordHash []byte
}

func NewStaticVerifier(username, password string) (*StaticVerifier, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return &StaticVerifier{username: username, passwordHash: hash}, nil
}

func (v *StaticVerifier) VerifyPassword(_ context.Context, username, password string) error {
	// Compare the username in constant time, then always run the bcrypt
	// comparison so unknown users cost the same as wrong passwords.
	nameOK := subtle.ConstantTimeCompare([]byte(v.username), []byte(username)) == 1
	hashErr := bcrypt.CompareHashAndPassword(v.passwordHash, []byte(password))
	if !nameOK || hashErr != nil {
		return ErrInvalidCredentials
	}
	return nil
}
