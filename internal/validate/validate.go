package validate

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"
)

// Field limits shared by the forms and their handlers.
const (
	MaxDisplayNameLength = 100
	MaxChannelURLLength  = 2048
	MinPasswordLength    = 6
	MaxPasswordLength    = 72
)

func checkLen(value string, max int, field string) string {
	if utf8.RuneCountInString(value) > max {
		return fmt.Sprintf("%s must be %d characters or fewer", field, max)
	}
	return ""
}

func DisplayName(s string) string { return checkLen(s, MaxDisplayNameLength, "Display name") }

// ChannelURL reports why s cannot be sent as a channel URL, or "" when it may
// be. Parsing the URL and deciding whether the platform is supported is left
// to the backend.
func ChannelURL(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Please enter a channel URL"
	}
	if msg := checkLen(s, MaxChannelURLLength, "Channel URL"); msg != "" {
		return msg
	}
	return ""
}

func Email(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Email is required"
	}
	if _, err := mail.ParseAddress(s); err != nil {
		return "Invalid email address"
	}
	return ""
}

// Password checks a new password and its confirmation.
func Password(password, confirm string) string {
	if password != confirm {
		return "Passwords do not match"
	}
	if len(password) < MinPasswordLength {
		return fmt.Sprintf("Password must be at least %d characters", MinPasswordLength)
	}
	if len(password) > MaxPasswordLength {
		return fmt.Sprintf("Password must be at most %d characters", MaxPasswordLength)
	}
	return ""
}
