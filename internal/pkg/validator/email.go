package validator

import (
	"errors"
	"net/mail"
	"strings"
)

// NormalizeEmail lowercases and validates an address used as a login name.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", errors.New("invalid email format")
	}
	return email, nil
}
