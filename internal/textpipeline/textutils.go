package textpipeline

import (
	"regexp"
	"strings"
)

var (
	reEmptyBrackets    = regexp.MustCompile(`\(\s*\)|\[\s*\]|\{\s*\}`)
	reDoubleSpace      = regexp.MustCompile(`[ \t]{2,}`)
	reSpaceBeforePunct = regexp.MustCompile(`\s+([,.;:)\]}])`)
	reSpaceAfterOpen   = regexp.MustCompile(`([(\[{])\s+`)
	reDupPunct         = regexp.MustCompile(`,\s*,+|\.\s*\.+|;\s*;+|:\s*:+`)
	reLeadingPunct     = regexp.MustCompile(`(?m)^[\t ]*([,.;:])\s*`)
	reTrailingSpace    = regexp.MustCompile(`(?m)[ \t]+$`)
	reTripleNewline    = regexp.MustCompile(`\n{3,}`)
	reBulletLine       = regexp.MustCompile(`^[ \t]*[\-*+•][ \t]*$`)
	reBulletPrefix     = regexp.MustCompile(`^[ \t]*([\-*+•])\s+(.*)$`)
)

// RemoveEmptyBrackets strips empty bracket pairs "()", "[]", "{}" (allowing
// interior whitespace), repeating until no further removal occurs — an
// empty pair can be exposed by removing another.
func RemoveEmptyBrackets(text string) string {
	for {
		next := reEmptyBrackets.ReplaceAllString(text, "")
		if next == text {
			return text
		}
		text = next
	}
}

// CleanupPunctuationAndSpaces collapses redundant spacing and punctuation
// artifacts: runs of spaces/tabs, whitespace before closing punctuation,
// whitespace after opening brackets, duplicated terminal punctuation,
// leading line punctuation, trailing line whitespace, and caps consecutive
// blank lines at 2.
func CleanupPunctuationAndSpaces(text string) string {
	text = reDoubleSpace.ReplaceAllString(text, " ")
	text = reSpaceBeforePunct.ReplaceAllString(text, "$1")
	text = reSpaceAfterOpen.ReplaceAllString(text, "$1")
	text = reDupPunct.ReplaceAllStringFunc(text, func(m string) string { return m[:1] })
	text = reLeadingPunct.ReplaceAllString(text, "")
	text = reTrailingSpace.ReplaceAllString(text, "")
	text = reTripleNewline.ReplaceAllString(text, "\n\n")
	return text
}

// DropEmptyLinesAndListItems removes lines that are a solitary list marker,
// or whose content (after any list marker) collapses to nothing once empty
// brackets are removed. Whitespace-only lines are kept as empty lines, and
// runs of three or more newlines are collapsed to two.
func DropEmptyLinesAndListItems(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		raw := strings.TrimRight(line, " \t\r")
		stripped := strings.TrimSpace(raw)
		if stripped == "" {
			out = append(out, "")
			continue
		}
		if reBulletLine.MatchString(raw) {
			continue
		}
		if m := reBulletPrefix.FindStringSubmatch(raw); m != nil {
			content := m[2]
			if isEmptyContent(content) {
				continue
			}
			out = append(out, raw)
			continue
		}
		if isEmptyContent(stripped) {
			continue
		}
		out = append(out, raw)
	}
	text = strings.Join(out, "\n")
	return reTripleNewline.ReplaceAllString(text, "\n\n")
}

func isEmptyContent(value string) bool {
	cleaned := RemoveEmptyBrackets(value)
	for _, r := range cleaned {
		if r != ' ' && r != '\t' && r != '*' {
			return false
		}
	}
	return true
}
