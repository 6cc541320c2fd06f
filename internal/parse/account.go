package parse

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// AccountSeparator splits hierarchical account ids ("tower.factory").
	AccountSeparator = "."

	minAccountLen = 2
	maxAccountLen = 64
)

var (
	accountRe = regexp.MustCompile(`^(([a-z\d]+[\-_])*[a-z\d]+\.)*([a-z\d]+[\-_])*[a-z\d]+$`)
	segmentRe = regexp.MustCompile(`^([a-z\d]+[\-_])*[a-z\d]+$`)
)

// ValidateAccountID checks the host's account id syntax: 2 to 64 characters,
// lowercase alphanumeric runs joined by '-' or '_', parts separated by '.'.
func ValidateAccountID(id string) error {
	if len(id) < minAccountLen || len(id) > maxAccountLen {
		return fmt.Errorf("account id %q must be %d-%d characters", id, minAccountLen, maxAccountLen)
	}
	if !accountRe.MatchString(id) {
		return fmt.Errorf("account id %q has invalid characters or separators", id)
	}
	return nil
}

// SubAccount derives the child account id for name under parent and
// validates the result. name must be a single segment.
func SubAccount(name, parent string) (string, error) {
	if strings.Contains(name, AccountSeparator) {
		return "", fmt.Errorf("name %q must not contain %q", name, AccountSeparator)
	}
	if !segmentRe.MatchString(name) {
		return "", fmt.Errorf("name %q is not a valid sub-account name", name)
	}
	id := name + AccountSeparator + parent
	if err := ValidateAccountID(id); err != nil {
		return "", err
	}
	return id, nil
}
