package stages

import "github.com/necrasov-ilya/gpt-artifact-scrub/internal/textpipeline"

// FinalCleanup is the last built-in stage: it removes empty bracket pairs,
// collapses redundant whitespace/punctuation, and drops lines that are
// empty or a bare list marker once cleaned up.
type FinalCleanup struct{}

// NewFinalCleanup constructs the final-cleanup stage.
func NewFinalCleanup() textpipeline.Stage { return FinalCleanup{} }

func (FinalCleanup) Name() string { return "final_cleanup" }

func (FinalCleanup) Apply(ctx *textpipeline.Context) {
	text := textpipeline.RemoveEmptyBrackets(ctx.Text)
	text = textpipeline.CleanupPunctuationAndSpaces(text)
	text = textpipeline.DropEmptyLinesAndListItems(text)
	ctx.SetText(text)
}
