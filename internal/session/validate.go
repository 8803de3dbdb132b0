package session

import (
	"fmt"
	"regexp"
)

var namePattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

// ValidateName checks a session name: lowercase alphanumerics, hyphen
// and underscore, at most 64 characters.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("session name is empty")
	}
	if len(name) > 64 {
		return fmt.Errorf("session name %q is longer than 64 characters", name)
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("session name %q may only contain a-z, 0-9, '-' and '_'", name)
	}
	return nil
}
