package server

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// EnsureAdmin creates the bootstrap admin account from configuration if
// no admin exists yet. Idempotent: does nothing once any admin exists.
func EnsureAdmin(ctx context.Context, logger *slog.Logger, store Store, email, password string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil
	}

	count, err := store.CountAdmins(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := store.CreateAdmin(ctx, email, string(hash)); err != nil {
		return err
	}

	logger.Info("bootstrap admin created", "email", email)
	return nil
}
