// Package titlekey derives canonical matching keys from noisy paper titles,
// author names, dates, and filenames.
package titlekey

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	// PrefixLen is the length of the compact-title prefix key.
	PrefixLen = 16
	// MinChars is the minimum length of the shorter title for an overlap match.
	MinChars = 24
	// MinTokens is the minimum token count of the shorter title for an overlap match.
	MinTokens = 4
	// LeadingNumericMaxLen bounds the digit count of strippable leading tokens.
	LeadingNumericMaxLen = 2
)

var greekNames = map[rune]string{
	'α': "alpha", 'β': "beta", 'γ': "gamma", 'δ': "delta", 'ε': "epsilon",
	'ζ': "zeta", 'η': "eta", 'θ': "theta", 'ι': "iota", 'κ': "kappa",
	'λ': "lambda", 'μ': "mu", 'ν': "nu", 'ξ': "xi", 'ο': "omicron",
	'π': "pi", 'ρ': "rho", 'σ': "sigma", 'τ': "tau", 'υ': "upsilon",
	'φ': "phi", 'χ': "chi", 'ψ': "psi", 'ω': "omega",
}

var (
	latexGreekRe  = regexp.MustCompile(`(?i)\\(alpha|beta|gamma|delta|epsilon|zeta|eta|theta|iota|kappa|lambda|mu|nu|xi|omicron|pi|rho|sigma|tau|upsilon|phi|chi|psi|omega)\b`)
	letterDigitRe = regexp.MustCompile(`(?i)([a-z])([0-9])`)
	digitLetterRe = regexp.MustCompile(`(?i)([0-9])([a-z])`)
	nonAlnumRe    = regexp.MustCompile(`[^a-z0-9]+`)
)

// Normalize turns a raw title into a lowercase, whitespace-collapsed token
// string suitable for identity matching. Accents are folded via NFKD, Greek
// letters and LaTeX-style Greek commands expand to their names, digit/letter
// boundaries split ("GPT4" -> "gpt 4"), and stray single-character tokens are
// merged into the following token so titles broken across hyphens or line
// wraps still produce the same key.
func Normalize(title string) string {
	fold := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	value, _, err := transform.String(fold, title)
	if err != nil {
		value = title
	}

	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if name, ok := greekNames[r]; ok {
			b.WriteByte(' ')
			b.WriteString(name)
			b.WriteByte(' ')
			continue
		}
		b.WriteRune(r)
	}
	value = latexGreekRe.ReplaceAllString(b.String(), " $1 ")
	value = strings.NewReplacer("{", "", "}", "", "_", " ").Replace(value)
	value = letterDigitRe.ReplaceAllString(value, "$1 $2")
	value = digitLetterRe.ReplaceAllString(value, "$1 $2")
	value = nonAlnumRe.ReplaceAllString(strings.ToLower(value), " ")

	tokens := strings.Fields(value)
	if len(tokens) == 0 {
		return ""
	}
	merged := make([]string, 0, len(tokens))
	for i := 0; i < len(tokens); i++ {
		if len(tokens[i]) == 1 && i+1 < len(tokens) {
			merged = append(merged, tokens[i]+tokens[i+1])
			i++
			continue
		}
		merged = append(merged, tokens[i])
	}
	return strings.Join(merged, " ")
}

// Compact removes internal whitespace from a normalized title key. It defends
// against inconsistent tokenization between extraction runs.
func Compact(titleKey string) string {
	return strings.ReplaceAll(titleKey, " ", "")
}

// StripLeadingNumericTokens drops short leading digit tokens (section numbers,
// list markers) from a normalized title key.
func StripLeadingNumericTokens(titleKey string) string {
	tokens := strings.Fields(titleKey)
	idx := 0
	for idx < len(tokens) {
		t := tokens[idx]
		if len(t) <= LeadingNumericMaxLen && isDigits(t) {
			idx++
			continue
		}
		break
	}
	if idx == 0 {
		return titleKey
	}
	return strings.Join(tokens[idx:], " ")
}

// Prefix returns the compact-prefix key for a normalized title, or "" when the
// title is too short or too ambiguous to yield a trustworthy prefix.
func Prefix(titleKey string) string {
	if len(strings.Fields(titleKey)) < MinTokens {
		return ""
	}
	compact := Compact(titleKey)
	if len(compact) < PrefixLen {
		return ""
	}
	return compact[:PrefixLen]
}

// AuthorKey reduces an author name to a lowercase surname key.
func AuthorKey(name string) string {
	raw := strings.ToLower(strings.TrimSpace(name))
	raw = strings.ReplaceAll(raw, "et al.", "")
	raw = strings.ReplaceAll(raw, "et al", "")
	if i := strings.Index(raw, ","); i >= 0 {
		raw = raw[:i]
	}
	raw = nonAlnumRe.ReplaceAllString(raw, " ")
	parts := strings.Fields(raw)
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
