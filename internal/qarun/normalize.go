package qarun

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxTestIDLen = 64

var (
	validTestIDRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)
	invalidChars  = regexp.MustCompile(`[^a-z0-9_-]+`)
	leadingDash   = regexp.MustCompile(`^-+`)
	trailingDash  = regexp.MustCompile(`-+$`)
)

// NormalizeTestID turns a plan name into a URL-safe test id:
//   - lowercase, accents removed ("Café" becomes "cafe"), at most 64 chars
//   - only [a-z0-9_-], other runs collapse to "-"
//   - no leading or trailing dashes
//
// An empty result becomes a random "qa-" id.
func NormalizeTestID(name string) string {
	lower := strings.ToLower(strings.TrimSpace(name))
	if folded, _, err := transform.String(foldAccents(), lower); err == nil {
		lower = folded
	}
	if validTestIDRe.MatchString(lower) {
		return lower
	}

	result := invalidChars.ReplaceAllString(lower, "-")
	result = leadingDash.ReplaceAllString(result, "")
	if len(result) > maxTestIDLen {
		result = result[:maxTestIDLen]
	}
	result = trailingDash.ReplaceAllString(result, "")

	if result == "" {
		return "qa-" + uuid.NewString()[:8]
	}
	return result
}

// foldAccents strips combining marks. Transformers keep state, so each call
// gets its own chain.
func foldAccents() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}
