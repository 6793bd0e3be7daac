package domain

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var dashFolder = strings.NewReplacer("\u2013", "-", "\u2014", "-")

// NormalizeKey canonicalises a record key before hashing so that visually
// identical titles land on the same node. It applies NFKC, folds en and em
// dashes to '-', trims, and collapses inner whitespace. Case is preserved.
func NormalizeKey(key string) (string, error) {
	s := norm.NFKC.String(key)
	s = dashFolder.Replace(s)
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return s, nil
}
