package instruction

import (
	"regexp"
	"strings"
)

var (
	bannedPattern = compileBanned(BannedPhrases)
	spaceRun      = regexp.MustCompile(`[ \t]{2,}`)
	spaceBefore   = regexp.MustCompile(`\s+([,.!?;:])`)
	danglingPunct = regexp.MustCompile(`([,;:])\s*([,.!?;:])`)
)

func compileBanned(phrases []string) *regexp.Regexp {
	quoted := make([]string, 0, len(phrases))
	for _, p := range phrases {
		words := strings.Fields(p)
		for i, w := range words {
			words[i] = regexp.QuoteMeta(w)
		}
		quoted = append(quoted, strings.Join(words, `\s+`))
	}
	return regexp.MustCompile(`(?i)` + strings.Join(quoted, "|"))
}

// ContainsBanned reports whether text contains any banned phrase
func ContainsBanned(text string) bool {
	return bannedPattern.MatchString(text)
}

// Scrub removes every banned phrase, ignoring case, and tidies the spacing
// left behind. Removal repeats until no phrase remains.
func Scrub(text string) string {
	for ContainsBanned(text) {
		text = bannedPattern.ReplaceAllString(text, "")
		text = spaceRun.ReplaceAllString(text, " ")
	}
	text = spaceBefore.ReplaceAllString(text, "$1")
	text = danglingPunct.ReplaceAllString(text, "$2")
	return strings.TrimSpace(strings.TrimLeft(text, ",;: "))
}
