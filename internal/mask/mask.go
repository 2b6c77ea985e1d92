// Package mask computes the redacted display form of secret values shown
// to an authenticated owner before explicit reveal. Masking is display-only
// and never substitutes for access control.
package mask

import "strings"

// Mask redacts value for display. Values longer than four characters keep
// their first and last two characters with the middle replaced by '*'.
// Shorter values (including empty) become exactly "****" so the mask leaks
// nothing about the real length.
func Mask(value string) string {
	runes := []rune(value)
	if len(runes) <= 4 {
		return "****"
	}
	return string(runes[:2]) + strings.Repeat("*", len(runes)-4) + string(runes[len(runes)-2:])
}
