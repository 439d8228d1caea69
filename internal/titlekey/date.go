package titlekey

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	yearRe        = regexp.MustCompile(`(19|20)\d{2}`)
	yearMonthRe   = regexp.MustCompile(`((19|20)\d{2})[-/](\d{1,2})`)
	monthWordRe   = regexp.MustCompile(`(january|february|march|april|june|july|august|september|october|november|december|jan|feb|mar|apr|may|jun|jul|aug|sept|sep|oct|nov|dec)`)
)

var monthLookup = map[string]string{
	"january": "01", "february": "02", "march": "03", "april": "04",
	"may": "05", "june": "06", "july": "07", "august": "08",
	"september": "09", "october": "10", "november": "11", "december": "12",
	"jan": "01", "feb": "02", "mar": "03", "apr": "04", "jun": "06",
	"jul": "07", "aug": "08", "sep": "09", "sept": "09", "oct": "10",
	"nov": "11", "dec": "12",
}

// ParseYearMonth extracts a 4-digit year and a zero-padded month from a
// free-form publication date string. Either result may be empty.
func ParseYearMonth(date string) (year, month string) {
	text := strings.TrimSpace(date)
	if text == "" {
		return "", ""
	}
	if m := yearRe.FindString(text); m != "" {
		year = m
	}
	if m := yearMonthRe.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[3]); err == nil && n >= 1 && n <= 12 {
			month = zeroPad(n)
		}
		return year, month
	}
	if m := monthWordRe.FindString(strings.ToLower(text)); m != "" {
		month = monthLookup[m]
	}
	return year, month
}

// NormalizeMonth converts a month token ("3", "mar", "March") to "01".."12",
// or "" when unrecognized.
func NormalizeMonth(value string) string {
	raw := strings.ToLower(strings.TrimSpace(value))
	if raw == "" {
		return ""
	}
	if isDigits(raw) {
		if n, err := strconv.Atoi(raw); err == nil && n >= 1 && n <= 12 {
			return zeroPad(n)
		}
		return ""
	}
	return monthLookup[raw]
}

func zeroPad(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
