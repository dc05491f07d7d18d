// Package pathutil provides checkpoint id validation.
package pathutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/ckpt-project/ckpt/pkg/errclass"
)

// ValidateID checks that a checkpoint id is safe to embed in a ref name.
// Ids become path components under the checkpoint ref namespace, so the
// rules are strict: no separators, no "..", no control characters, and
// only characters from a conservative charset.
func ValidateID(id string) error {
	if id == "" {
		return errclass.ErrIDInvalid.WithMessage("checkpoint id must not be empty")
	}

	// NFC normalize before inspection so visually identical ids compare equal
	id = norm.NFC.String(id)

	if strings.Contains(id, "..") {
		return errclass.ErrIDInvalid.WithMessagef("checkpoint id must not contain '..': %s", id)
	}

	if strings.ContainsAny(id, "/\\") {
		return errclass.ErrIDInvalid.WithMessagef("checkpoint id must not contain separators: %s", id)
	}

	for _, r := range id {
		if unicode.IsControl(r) {
			return errclass.ErrIDInvalid.WithMessagef("checkpoint id must not contain control characters: %q", id)
		}
		if !isIDRune(r) {
			return errclass.ErrIDInvalid.WithMessagef("checkpoint id must match [a-zA-Z0-9._-]+: %s", id)
		}
	}

	// git refuses ref components that start with a dot or end with ".lock"
	if strings.HasPrefix(id, ".") || strings.HasSuffix(id, ".lock") {
		return errclass.ErrIDInvalid.WithMessagef("checkpoint id is not a valid ref component: %s", id)
	}

	return nil
}

func isIDRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '.' || r == '_' || r == '-':
		return true
	}
	return false
}
