package capture

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var asciiFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// FoldLabel reduces a free-form label to a filesystem-safe ASCII slug.
// Diacritics are stripped, anything outside [a-z0-9] becomes a hyphen, and
// runs of hyphens collapse.
func FoldLabel(label string) string {
	folded, _, err := transform.String(asciiFolder, label)
	if err != nil {
		folded = label
	}
	var builder strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(folded) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			builder.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				builder.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimRight(builder.String(), "-")
}

// Filename derives the deterministic recording filename for a session
// started at the given instant. The optional label is folded into the name.
func Filename(label string, startedAt time.Time) string {
	timestamp := startedAt.UTC().Format("2006-01-02T15-04-05")
	if slug := FoldLabel(label); slug != "" {
		return fmt.Sprintf("recording_%s_%s.mp4", slug, timestamp)
	}
	return fmt.Sprintf("recording_%s.mp4", timestamp)
}
