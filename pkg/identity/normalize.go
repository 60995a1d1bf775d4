// Package identity derives provider-independent identity for music entities:
// it normalizes raw provider metadata into a canonical textual form and hashes
// it into a stable sync ID.
package identity

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	parenRegex       = regexp.MustCompile(`\s*\([^)]*\)`)
	bracketRegex     = regexp.MustCompile(`\s*\[[^\]]*\]`)
	featRegex        = regexp.MustCompile(`(?i)\(\s*feat\.\s*([^)]+)\)`)
	artistSplitRegex = regexp.MustCompile(`,|&|\s+and\s+`)
	whitespaceRegex  = regexp.MustCompile(`\s+`)
)

// Normalized is the best-effort canonical form of raw entity fields.
type Normalized struct {
	CleanTitle string
	AllArtists []string
}

// Normalize cleans a raw title and artist list into the canonical form used
// for hashing and for cross-provider search queries. It never fails: empty or
// garbage input yields an empty result.
func Normalize(title string, artists []string) Normalized {
	clean := stripBrackets(title)

	all := splitArtists(artists)

	// Providers often fold featured artists into the title instead of the
	// artist list. Pull them out so both sides normalize the same way.
	if strings.Contains(title, "feat.") {
		if m := featRegex.FindStringSubmatch(title); len(m) == 2 {
			all = append(all, splitArtists([]string{m[1]})...)
		}
	}

	return Normalized{
		CleanTitle: clean,
		AllArtists: dedupe(all),
	}
}

// SearchQuery renders the normalized form as the text sent to a provider's
// search endpoint on a conversion cache miss.
func (n Normalized) SearchQuery() string {
	if len(n.AllArtists) == 0 {
		return n.CleanTitle
	}
	return n.CleanTitle + " " + strings.Join(n.AllArtists, ", ")
}

// stripBrackets removes parenthesized and bracketed segments (remaster tags,
// live tags and similar suffixes).
func stripBrackets(title string) string {
	title = parenRegex.ReplaceAllString(title, "")
	title = bracketRegex.ReplaceAllString(title, "")
	return strings.TrimSpace(title)
}

// splitArtists splits every artist string on ",", "&" and " and ", trims the
// pieces and drops empties.
func splitArtists(artists []string) []string {
	var out []string
	for _, raw := range artists {
		for _, part := range artistSplitRegex.Split(raw, -1) {
			part = strings.TrimSpace(part)
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// dedupe removes duplicate artist names preserving first-seen order.
func dedupe(artists []string) []string {
	seen := make(map[string]struct{}, len(artists))
	out := make([]string, 0, len(artists))
	for _, a := range artists {
		key := strings.ToLower(a)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, a)
	}
	return out
}

// fold applies NFKD decomposition and strips combining marks so that accented
// variants of the same name hash identically.
func fold(text string) string {
	text = norm.NFKD.String(text)

	var b strings.Builder
	for _, r := range text {
		if !unicode.IsMark(r) {
			b.WriteRune(r)
		}
	}

	return whitespaceRegex.ReplaceAllString(strings.TrimSpace(b.String()), " ")
}
