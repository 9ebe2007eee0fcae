package stages

import "github.com/necrasov-ilya/gpt-artifact-scrub/internal/textpipeline"

// Typography normalizes Unicode punctuation variants to their plain-ASCII
// equivalents: dashes to "-", quote-family characters to '"', list bullets
// to "- ", and non-breaking spaces to a regular space.
type Typography struct{}

// NewTypography constructs the typography stage.
func NewTypography() textpipeline.Stage { return Typography{} }

func (Typography) Name() string { return "typography" }

func (Typography) Apply(ctx *textpipeline.Context) {
	text := ctx.Text
	text = reDashes.ReplaceAllString(text, "-")
	text = reQuotes.ReplaceAllString(text, `"`)
	text = reBullets.ReplaceAllString(text, "- ")
	text = reNBSP.ReplaceAllString(text, " ")
	ctx.SetText(text)
}
