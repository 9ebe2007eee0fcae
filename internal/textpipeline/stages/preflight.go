// Package stages holds the built-in text-pipeline stages and a
// RegisterBuiltins helper that wires them into a caller-owned registry.
package stages

import (
	"regexp"

	"github.com/necrasov-ilya/gpt-artifact-scrub/internal/textpipeline"
)

var (
	reDashes  = regexp.MustCompile(`[\x{2012}-\x{2015}\x{2212}]`)
	reQuotes  = regexp.MustCompile(`[\x{00AB}\x{00BB}\x{201C}\x{201D}\x{201E}\x{201F}\x{2039}\x{203A}\x{2018}\x{2019}\x{201A}\x{201B}]`)
	reBullets = regexp.MustCompile(`(?m)^[ \t]*([\x{2022}\x{2023}\x{25E6}\x{2043}\x{2219}\-\x{2013}\x{2014}])\s+`)
	reNBSP    = regexp.MustCompile(`\x{00A0}`)
)

// PreflightStats counts dash/quote/bullet/nbsp occurrences in the incoming
// text before any other stage runs.
type PreflightStats struct{}

// NewPreflightStats constructs the preflight-stats stage.
func NewPreflightStats() textpipeline.Stage { return PreflightStats{} }

func (PreflightStats) Name() string { return "preflight_stats" }

func (PreflightStats) Apply(ctx *textpipeline.Context) {
	text := ctx.Text
	ctx.SetStat("dashes", len(reDashes.FindAllString(text, -1)))
	ctx.SetStat("quotes", len(reQuotes.FindAllString(text, -1)))
	ctx.SetStat("bullets", len(reBullets.FindAllString(text, -1)))
	ctx.SetStat("nbsp", len(reNBSP.FindAllString(text, -1)))
}
