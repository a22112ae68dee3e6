package credentials_test

import (
	"context"
	"errors"
	"testing"

	"github.com/adaptai/edge/internal/credentials"
)

func TestStaticVerifier(t *testing.T) {
	v, err := credentials.NewStaticVerifier("admin", "password")
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	if err := v.VerifyPassword(context.Background(), "admin", "password"); err != nil {
		t.Fatalf("expected valid credentials, got %v", err)
	}

	if err := v.VerifyPassword(context.Background(), "admin", "wrong"); !errors.Is(err, credentials.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}

	if err := v.VerifyPassword(context.Background(), "nobody", "password"); !errors.Is(err, credentials.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}
