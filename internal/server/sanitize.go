package server

import (
	"strings"
	"unicode"
)

// anonymousName is the display name substituted when sanitization leaves
// nothing usable.
const anonymousName = "Anónimo"

// maxUsernameLen caps display names at 32 runes.
const maxUsernameLen = 32

// usernameExtraRunes are the non-alphanumeric characters allowed in a
// display name.
const usernameExtraRunes = " _-.'"

// sanitizeUsername normalizes a self-asserted display name: it keeps only
// letters, digits, and usernameExtraRunes, strips surrounding whitespace,
// truncates to maxUsernameLen runes, and falls back to anonymousName when
// nothing remains. The function is idempotent: applying it to its own
// output returns the output unchanged.
func sanitizeUsername(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune(usernameExtraRunes, r) {
			b.WriteRune(r)
		}
	}

	// Filtering can leave edge spaces behind (e.g. "a !" -> "a "), so trim
	// again before and after truncation to keep the result stable.
	filtered := strings.TrimSpace(b.String())
	runes := []rune(filtered)
	if len(runes) > maxUsernameLen {
		runes = runes[:maxUsernameLen]
	}
	result := strings.TrimSpace(string(runes))
	if result == "" {
		return anonymousName
	}
	return result
}
