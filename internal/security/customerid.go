// Package security validates user-supplied identifiers before they are
// turned into file names.
package security

import (
	"fmt"
	"strings"
)

// MaxCustomerIDLength bounds the customer id embedded in a series file name.
const MaxCustomerIDLength = 64

// ValidateCustomerID rejects ids that are empty, too long, or that could
// escape the data directory once joined into a path. Only ASCII letters,
// digits, dot, underscore and dash are allowed.
func ValidateCustomerID(id string) error {
	if id == "" {
		return fmt.Errorf("customer id is empty")
	}
	if len(id) > MaxCustomerIDLength {
		return fmt.Errorf("customer id is longer than %d characters", MaxCustomerIDLength)
	}
	if strings.Trim(id, ".") == "" {
		return fmt.Errorf("customer id %q is not a file name", id)
	}
	for _, r := range id {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
		case r == '.' || r == '_' || r == '-':
		default:
			return fmt.Errorf("customer id %q contains invalid character %q", id, r)
		}
	}
	return nil
}
