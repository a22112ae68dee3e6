package credentials

import (
	"context"
	"database/sql"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// PostgresVerifier checks credentials against a users table holding bcrypt
// hashes.
type PostgresVerifier struct {
	db *sql.DB
}

func NewPostgresVerifier(db *sql.DB) *PostgresVerifier {
	return &PostgresVerifier{db: db}
}

func (v *PostgresVerifier) VerifyPassword(ctx context.Context, username, password string) error {
	const q = `SELECT password_hash FROM users WHERE username = $1`

	var hash string
	err := v.db.QueryRowContext(ctx, q, username).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		// Burn a bcrypt comparison anyway so unknown users are not
		// distinguishable by timing.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return ErrInvalidCredentials
	}
	if err != nil {
		return err
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return ErrInvalidCredentials
	}
	return nil
}

var dummyHash = func() []byte {
	h, err := bcrypt.GenerateFromPassword([]byte("placeholder-password"), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return h
}()
