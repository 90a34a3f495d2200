package middleware

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	tokenPattern   = regexp.MustCompile(`^[A-Za-z0-9_-]{8,128}$`)
	ownerIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.@:-]{1,128}$`)
)

// ValidateToken checks the analysis token path segment.
func ValidateToken(token string) error {
	if token == "" {
		return fmt.Errorf("token cannot be empty")
	}
	if !tokenPattern.MatchString(token) {
		return fmt.Errorf("invalid token format")
	}
	return nil
}

// ValidateOwnerID accepts an empty owner (a placeholder is generated later).
func ValidateOwnerID(owner string) error {
	if owner == "" {
		return nil
	}
	if !ownerIDPattern.MatchString(owner) {
		return fmt.Errorf("invalid ownerId format (max 128 chars)")
	}
	return nil
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")

	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}

	return strings.TrimSpace(result.String())
}
