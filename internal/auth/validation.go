package auth

import (
	"net/mail"
	"regexp"
	"strings"
)

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]{4,32}$`)

func validateUsername(username string) error {
	if username == "" {
		return NewValidationError("username", "Username is required.")
	}
	if len(username) < 4 {
		return NewValidationError("username", "Username must be at least 4 characters.")
	}
	if len(username) > 32 {
		return NewValidationError("username", "Username must be less than 32 characters.")
	}
	if first := username[0]; !(('A' <= first && first <= 'Z') || ('a' <= first && first <= 'z')) {
		return NewValidationError("username", "Username must start with a letter.")
	}
	if !usernameRegex.MatchString(username) {
		return NewValidationError("username", "Username can only contain letters, numbers, and underscores.")
	}
	return nil
}

func validateEmail(email string) error {
	if len(email) > 254 {
		return NewValidationError("email", "Email address is too long.")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return NewValidationError("email", "Invalid email address.")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 8 {
		return NewValidationError("password", "Password must be at least 8 characters.")
	}
	if len(password) > 72 {
		// bcrypt truncates beyond 72 bytes
		return NewValidationError("password", "Password must be at most 72 characters.")
	}
	hasLetter := strings.ContainsFunc(password, func(r rune) bool {
		return ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z')
	})
	hasDigit := strings.ContainsFunc(password, func(r rune) bool {
		return '0' <= r && r <= '9'
	})
	if !hasLetter || !hasDigit {
		return NewValidationError("password", "Password must contain at least one letter and one digit.")
	}
	return nil
}

func validateFullName(fullName string) error {
	if len(fullName) > 64 {
		return NewValidationError("fullName", "Full name must be less than 64 characters.")
	}
	return nil
}
