package domain

import (
	"fmt"
	"regexp"
	"time"
)

var variableKeyPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]{0,63}$`)

// OrganizationVariable is a named value substituted into {{key}} placeholders
// of knowledge content.
type OrganizationVariable struct {
	OrgID     string
	Key       string
	Value     string
	UpdatedAt time.Time
}

// ValidateVariableKey checks that key is usable as a placeholder name.
func ValidateVariableKey(key string) error {
	if !variableKeyPattern.MatchString(key) {
		return fmt.Errorf("variable key %q must start with a letter and contain only letters, digits or underscores", key)
	}
	return nil
}
