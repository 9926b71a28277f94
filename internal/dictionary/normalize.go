package dictionary

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MaxQueryLength is the maximum query length in code points after
// canonicalization.
const MaxQueryLength = 100

var (
	ErrEmptyQuery = errors.New("query must not be empty")
	ErrBlankQuery = errors.New("query must not consist only of whitespace")
)

// QueryTooLongError reports a query exceeding MaxQueryLength.
type QueryTooLongError struct {
	Max    int
	Length int
}

func (e *QueryTooLongError) Error() string {
	return fmt.Sprintf("query exceeds the maximum length of %d characters: got %d", e.Max, e.Length)
}

// Normalize validates and canonicalizes a raw query string: the empty check
// runs before trimming so that empty and whitespace-only inputs produce
// distinct errors, then the query is trimmed, NFC-composed and length-checked
// against the canonical form. Normalize is pure and idempotent.
func Normalize(raw string) (string, error) {
	if raw == "" {
		return "", ErrEmptyQuery
	}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrBlankQuery
	}
	composed := norm.NFC.String(trimmed)
	if length := utf8.RuneCountInString(composed); length > MaxQueryLength {
		return "", &QueryTooLongError{Max: MaxQueryLength, Length: length}
	}
	return composed, nil
}
