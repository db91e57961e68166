// Package handle generates the opaque correlation tokens used to name portal
// request and session objects.
package handle

import (
	"strings"

	"github.com/google/uuid"
)

const prefix = "rdesktopd_"

// Handle is an immutable printable token. It is valid both as a D-Bus object
// path element and as a portal handle_token option.
type Handle struct {
	value string
}

// New returns a fresh handle backed by 122 bits of random entropy.
func New() Handle {
	id := uuid.New()
	return Handle{value: prefix + strings.ReplaceAll(id.String(), "-", "")}
}

// String returns the token text.
func (h Handle) String() string {
	return h.value
}

// IsZero reports whether h was never generated.
func (h Handle) IsZero() bool {
	return h.value == ""
}

// Valid reports whether s is usable as a handle: non-empty, and made only of
// ASCII letters, digits, and underscores, not starting with a digit.
func Valid(s string) bool {
	if s == "" || len(s) > 255 {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
