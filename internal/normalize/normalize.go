package normalize

import "strings"

// Email returns a normalized form of an email address suitable for
// storage and comparisons. Normalization trims surrounding whitespace
// and lower-cases the address.
func Email(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}

// Content prepares free-text message content for storage: surrounding
// whitespace is dropped so emptiness and length checks see the real
// payload.
func Content(s string) string {
	return strings.TrimSpace(s)
}
