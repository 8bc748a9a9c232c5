package validation

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/CIRISAI/CIRISBridge/pkg/models"
)

const (
	MaxNoteLength  = 2000
	MaxActorLength = 100
)

var (
	// Service names as they appear in request logs: dotted, dashed or underscored.
	serviceNameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._:-]{0,127}$`)

	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_.@-]{3,50}$`)
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", models.ErrInvalidInput, fmt.Sprintf(format, args...))
}

// SanitizeString trims whitespace and strips control characters other than
// newline and tab.
func SanitizeString(input string) string {
	input = strings.TrimSpace(input)

	var builder strings.Builder
	for _, r := range input {
		if !unicode.IsControl(r) || r == '\n' || r == '\t' {
			builder.WriteRune(r)
		}
	}
	return builder.String()
}

func ValidateServiceName(name string) error {
	if name == "" {
		return invalid("service cannot be empty")
	}
	if !serviceNameRegex.MatchString(name) {
		return invalid("service %q contains unsupported characters", name)
	}
	return nil
}

// ValidateActor checks the operator name recorded on a transition.
func ValidateActor(actor string) error {
	actor = SanitizeString(actor)
	if actor == "" {
		return invalid("actor is required")
	}
	if len(actor) > MaxActorLength {
		return invalid("actor must not exceed %d characters", MaxActorLength)
	}
	return nil
}

func ValidateNote(note string) error {
	if len(note) > MaxNoteLength {
		return invalid("note must not exceed %d characters", MaxNoteLength)
	}
	return nil
}

// ValidateTimeRange requires from before to and, when maxRange is positive,
// a span no longer than maxRange. Zero times are open ends.
func ValidateTimeRange(from, to time.Time, maxRange time.Duration) error {
	if from.IsZero() || to.IsZero() {
		return nil
	}
	if !from.Before(to) {
		return invalid("from must be before to")
	}
	if maxRange > 0 && to.Sub(from) > maxRange {
		return invalid("time range must not exceed %s", maxRange)
	}
	return nil
}

func ValidateUsername(username string) error {
	username = SanitizeString(username)
	if !usernameRegex.MatchString(username) {
		return invalid("username must be 3-50 letters, digits or _.@-")
	}
	return nil
}

// ValidatePassword requires 8-128 characters with upper, lower, digit and
// punctuation classes all present.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return invalid("password must be at least 8 characters")
	}
	if len(password) > 128 {
		return invalid("password must not exceed 128 characters")
	}

	var hasUpper, hasLower, hasNumber, hasSpecial bool
	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsDigit(char):
			hasNumber = true
		case unicode.IsPunct(char) || unicode.IsSymbol(char):
			hasSpecial = true
		}
	}

	var missing []string
	if !hasUpper {
		missing = append(missing, "an uppercase letter")
	}
	if !hasLower {
		missing = append(missing, "a lowercase letter")
	}
	if !hasNumber {
		missing = append(missing, "a number")
	}
	if !hasSpecial {
		missing = append(missing, "a special character")
	}
	if len(missing) > 0 {
		return invalid("password must contain %s", strings.Join(missing, ", "))
	}
	return nil
}
