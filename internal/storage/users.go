package storage

import (
	"net/mail"
	"strings"

	beavererrors "github.com/julianstephens/beaver/internal/errors"
)

// NormalizeEmail lowercases and validates a user email. Emails name files
// in the file backend, so path separators are rejected.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", beavererrors.Validation("email", "email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", beavererrors.Validation("email", "invalid email %q", email)
	}
	if strings.ContainsAny(email, `/\`) || strings.Contains(email, "..") {
		return "", beavererrors.Validation("email", "invalid email %q", email)
	}
	return email, nil
}
