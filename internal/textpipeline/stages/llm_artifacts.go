package stages

import (
	"regexp"
	"sort"

	"github.com/necrasov-ilya/gpt-artifact-scrub/internal/textpipeline"
)

const typePart = `(?:search|click|fetch|view|news|image|product|sports|finance|forecast|time|maps|calc|translate|msearch|mclick)`

var (
	turnTokenPattern = `turn\d+` + typePart + `\d+`
	reTurnToken      = regexp.MustCompile(`\b` + turnTokenPattern + `\b`)
	reCiteSeq        = regexp.MustCompile(`\bcite\b(?:[\s,]+` + turnTokenPattern + `\b)+`)
)

type span struct {
	start, end int // end exclusive
}

// LLMArtifacts removes machine-citation artifacts: bare "turn<n><type><n>"
// tokens, "cite" followed by one or more such tokens, and whole bracketed
// groups whose contents (however deeply nested) contain any such marker.
// When a marked group nests inside another marked group, only the widest
// enclosing group is removed.
type LLMArtifacts struct{}

// NewLLMArtifacts constructs the llm-artifacts stage.
func NewLLMArtifacts() textpipeline.Stage { return LLMArtifacts{} }

func (LLMArtifacts) Name() string { return "llm_artifacts" }

func (LLMArtifacts) Apply(ctx *textpipeline.Context) {
	text := ctx.Text

	citeSpans := matchSpans(reCiteSeq, text)
	citeCovered := make([]bool, len(text)+1)
	for _, s := range citeSpans {
		for i := s.start; i < s.end; i++ {
			citeCovered[i] = true
		}
	}

	tokenSpans := matchSpans(reTurnToken, text)
	var standaloneTokens []span
	for _, s := range tokenSpans {
		if !citeCovered[s.start] {
			standaloneTokens = append(standaloneTokens, s)
		}
	}

	markers := append(append([]span{}, citeSpans...), standaloneTokens...)
	sort.Slice(markers, func(i, j int) bool { return markers[i].start < markers[j].start })

	groups := findBracketGroups(text)
	var markedGroups []span
	for _, g := range groups {
		if groupContainsMarker(g, markers) {
			markedGroups = append(markedGroups, g)
		}
	}
	widest := widestEnclosing(markedGroups)

	removable := append([]span{}, widest...)
	for _, m := range markers {
		if !containedInAny(m, widest) {
			removable = append(removable, m)
		}
	}

	merged := mergeSpans(removable)
	text = removeSpans(text, merged)

	ctx.SetText(text)
	ctx.AddStat("llm_tokens", len(tokenSpans))
	ctx.AddStat("llm_cite", len(citeSpans))
	ctx.AddStat("llm_bracket_groups", len(widest))
}

func matchSpans(re *regexp.Regexp, text string) []span {
	idx := re.FindAllStringIndex(text, -1)
	out := make([]span, len(idx))
	for i, m := range idx {
		out[i] = span{start: m[0], end: m[1]}
	}
	return out
}

var openToClose = map[byte]byte{'(': ')', '[': ']', '{': '}'}

// findBracketGroups performs a stack-based scan pairing each closing
// bracket with the most recently opened bracket of the matching type. A
// closer whose type does not match the top of the stack is skipped and the
// stack is left untouched, so a dangling "(" in malformed text never
// swallows a later "]" into one group.
func findBracketGroups(text string) []span {
	type frame struct {
		start int
		ch    byte
	}
	var stack []frame
	var groups []span
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch c {
		case '(', '[', '{':
			stack = append(stack, frame{start: i, ch: c})
		case ')', ']', '}':
			if len(stack) == 0 || openToClose[stack[len(stack)-1].ch] != c {
				continue
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			groups = append(groups, span{start: top.start, end: i + 1})
		}
	}
	return groups
}

func groupContainsMarker(g span, markers []span) bool {
	for _, m := range markers {
		if m.start >= g.start && m.end <= g.end {
			return true
		}
	}
	return false
}

// widestEnclosing keeps only groups not fully contained within another
// marked group, so nested marked groups collapse into their outermost
// ancestor.
func widestEnclosing(groups []span) []span {
	if len(groups) == 0 {
		return nil
	}
	sorted := append([]span{}, groups...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].start != sorted[j].start {
			return sorted[i].start < sorted[j].start
		}
		return sorted[i].end > sorted[j].end
	})
	var out []span
	lastEnd := -1
	for _, g := range sorted {
		if g.start >= lastEnd {
			out = append(out, g)
			lastEnd = g.end
		}
	}
	return out
}

func containedInAny(s span, groups []span) bool {
	for _, g := range groups {
		if s.start >= g.start && s.end <= g.end {
			return true
		}
	}
	return false
}

func mergeSpans(spans []span) []span {
	if len(spans) == 0 {
		return nil
	}
	sorted := append([]span{}, spans...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].start < sorted[j].start })
	merged := []span{sorted[0]}
	for _, s := range sorted[1:] {
		last := &merged[len(merged)-1]
		if s.start <= last.end {
			if s.end > last.end {
				last.end = s.end
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

func removeSpans(text string, spans []span) string {
	if len(spans) == 0 {
		return text
	}
	var out []byte
	prev := 0
	for _, s := range spans {
		out = append(out, text[prev:s.start]...)
		prev = s.end
	}
	out = append(out, text[prev:]...)
	return string(out)
}
