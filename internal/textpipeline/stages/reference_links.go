package stages

import (
	"regexp"
	"strings"

	"github.com/necrasov-ilya/gpt-artifact-scrub/internal/textpipeline"
)

var (
	reReferenceLink  = regexp.MustCompile(`\[([^\]]+)\]\s*\[([^\]]+)\]`)
	reDefinitionLine = regexp.MustCompile(`(?m)^\[([^\]]+)\]:\s*(\S+).*$`)
	reDomainLike     = regexp.MustCompile(`(?i)^(?:[a-z][a-z0-9+.\-]*://)?([a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z]{2,}(?:/\S*)?$`)
	reHasScheme      = regexp.MustCompile(`(?i)^[a-z][a-z0-9+.\-]*://`)
)

// ReferenceLinks converts Markdown reference-style links "[text][label]"
// that have no matching "[label]: url" definition into either a bare
// https:// URL (when text looks like a bare domain) or the text verbatim;
// genuine reference links (with a definition) are left untouched, and
// definitions that no usage ever referenced are dropped as orphans.
type ReferenceLinks struct{}

// NewReferenceLinks constructs the reference-links stage.
func NewReferenceLinks() textpipeline.Stage { return ReferenceLinks{} }

func (ReferenceLinks) Name() string { return "reference_links" }

func (ReferenceLinks) Apply(ctx *textpipeline.Context) {
	text := ctx.Text

	defined := make(map[string]bool)
	for _, m := range reDefinitionLine.FindAllStringSubmatch(text, -1) {
		defined[strings.ToLower(m[1])] = true
	}

	used := make(map[string]bool)
	converted := 0

	text = reReferenceLink.ReplaceAllStringFunc(text, func(match string) string {
		m := reReferenceLink.FindStringSubmatch(match)
		linkText, label := m[1], m[2]
		key := strings.ToLower(label)

		if defined[key] {
			used[key] = true
			return match
		}

		converted++
		stripped := strings.Trim(linkText, " \t.,;:!?()[]{}\"'")
		if reDomainLike.MatchString(stripped) && !reHasScheme.MatchString(stripped) {
			return "https://" + stripped
		}
		return linkText
	})

	if len(defined) > 0 {
		text = reDefinitionLine.ReplaceAllStringFunc(text, func(line string) string {
			m := reDefinitionLine.FindStringSubmatch(line)
			if used[strings.ToLower(m[1])] {
				return line
			}
			return ""
		})
	}

	text = textpipeline.CleanupPunctuationAndSpaces(text)

	ctx.SetText(text)
	ctx.AddStat("reference_links", converted)
}
