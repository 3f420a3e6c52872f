package publisher

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Body length bounds imposed by the platform, counted in characters.
const (
	MinBodyLength = 1000
	MaxBodyLength = 60000
)

// ValidateContent checks the content bounds the platform enforces.
func ValidateContent(c Content) error {
	if strings.TrimSpace(c.Title) == "" {
		return &ValidationError{Field: "title", Reason: "must not be blank"}
	}
	n := utf8.RuneCountInString(c.Body)
	if n < MinBodyLength || n > MaxBodyLength {
		return &ValidationError{
			Field:  "body",
			Reason: fmt.Sprintf("length %d is outside [%d, %d]", n, MinBodyLength, MaxBodyLength),
		}
	}
	return nil
}

// ValidateCredentials rejects credentials that cannot possibly log in.
func ValidateCredentials(c Credentials) error {
	if strings.TrimSpace(c.Identity) == "" {
		return &ValidationError{Field: "identity", Reason: "is required"}
	}
	if c.Secret == "" {
		return &ValidationError{Field: "secret", Reason: "is required"}
	}
	return nil
}

var targetIDPattern = regexp.MustCompile(`^[A-Za-z0-9._~-]+$`)

// ValidateTarget checks an optional target. IDs are embedded in URLs and
// selectors, so only URL-unreserved characters are accepted.
func ValidateTarget(t *TargetRef) error {
	if t == nil || t.ID == "" {
		return nil
	}
	if !targetIDPattern.MatchString(t.ID) {
		return &ValidationError{Field: "target.id", Reason: "may only contain letters, digits and . _ ~ -"}
	}
	return nil
}
