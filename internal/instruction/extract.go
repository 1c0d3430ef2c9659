package instruction

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/satriahrh/kundli/server/domain/entities"
)

const (
	monthNames  = `(?:jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)`
	datePattern = `(\d{4}-\d{1,2}-\d{1,2}|\d{1,2}[/.\-]\d{1,2}[/.\-]\d{2,4}|\d{1,2}(?:st|nd|rd|th)?\s+(?:of\s+)?` + monthNames + `,?\s+\d{4}|` + monthNames + `\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4})`
	timePattern = `(\d{1,2}[:.]\d{2}\s*(?:am|pm|a\.m\.|p\.m\.)?|\d{1,2}\s*(?:am|pm|a\.m\.|p\.m\.)|\d{1,2}\s+baje)`
	wordsTail   = `([\p{L}][\p{L}'\- ]*)`
)

var (
	namePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bmy name is\s+` + wordsTail),
		regexp.MustCompile(`(?i)\bmy name'?s\s+` + wordsTail),
		regexp.MustCompile(`(?i)\bcall me\s+` + wordsTail),
		regexp.MustCompile(`(?i)\bmera\s+naa?m\s+` + wordsTail),
		regexp.MustCompile(`(?i)\bnaa?m\s+hai\s+` + wordsTail),
	}
	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:born on|date of birth(?: is)?|dob(?: is)?|birth ?date(?: is)?|birthday(?: is)?|janam tithi|janm tithi)\s*[:\-]?\s*` + datePattern),
		regexp.MustCompile(`(?i)\b` + datePattern),
	}
	timePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:born at|birth time(?: is)?|time of birth(?: is)?|janam samay|janm samay)\s*[:\-]?\s*(?:around\s+|about\s+)?` + timePattern),
		regexp.MustCompile(`(?i)\b(\d{1,2}:\d{2}\s*(?:am|pm)?|\d{1,2}\s*(?:am|pm))\b`),
	}
	locationPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bborn in\s+` + wordsTail),
		regexp.MustCompile(`(?i)\bborn\b[^,;!?]{0,40}?\bin\s+` + wordsTail),
		regexp.MustCompile(`(?i)\b(?:birth ?place|place of birth)(?: is)?\s*[:\-]?\s*` + wordsTail),
		regexp.MustCompile(`(?i)\b(?:janam sthan|janm sthan)(?: hai)?\s*[:\-]?\s*` + wordsTail),
		regexp.MustCompile(`(?i)\b([\p{L}]+)\s+(?:mein|me)\s+paid[ae]\s+hu[ae]`),
	}
)

var stopWords = map[string]bool{
	"and": true, "aur": true, "hai": true, "hain": true, "hoon": true, "hu": true,
	"born": true, "on": true, "at": true, "in": true, "i": true, "my": true,
	"mera": true, "meri": true, "ka": true, "ki": true, "ke": true, "mein": true,
	"me": true, "the": true, "from": true, "around": true, "but": true, "ji": true,
	"date": true, "time": true, "please": true, "so": true, "is": true,
	"was": true, "city": true,
}

const maxValueWords = 3

// Extract scans a user message for profile fields. Fields it cannot find are
// left empty.
func Extract(message string) entities.ProfileFragment {
	var f entities.ProfileFragment
	f.Name = firstMatch(namePatterns, message, cleanWords)
	f.BirthDate = firstMatch(datePatterns, message, strings.TrimSpace)
	f.BirthTime = firstMatch(timePatterns, message, strings.TrimSpace)
	f.BirthLocation = firstMatch(locationPatterns, message, cleanWords)
	return f
}

func firstMatch(patterns []*regexp.Regexp, message string, clean func(string) string) string {
	for _, p := range patterns {
		m := p.FindStringSubmatch(message)
		if len(m) < 2 {
			continue
		}
		if v := clean(m[1]); v != "" {
			return v
		}
	}
	return ""
}

// cleanWords keeps the leading words of a captured value up to the first stop
// word and title-cases them
func cleanWords(s string) string {
	var kept []string
	for _, w := range strings.Fields(s) {
		w = strings.Trim(w, "'-")
		if w == "" || stopWords[strings.ToLower(w)] || len(kept) == maxValueWords {
			break
		}
		kept = append(kept, titleCase(w))
	}
	return strings.Join(kept, " ")
}

func titleCase(w string) string {
	r := []rune(strings.ToLower(w))
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
