package textpipeline

// Stage is one ordered transformation step over a Context.
type Stage interface {
	Name() string
	Apply(ctx *Context)
}

// Result is what Pipeline.Run returns: the final text, its accumulated
// stats, and the context that produced them (for callers that need
// metadata or OriginalText).
type Result struct {
	Text    string
	Stats   map[string]int
	Context *Context
}

// Pipeline runs an ordered, fixed list of stages over a context.
type Pipeline struct {
	stages []Stage
}

// NewPipeline builds a pipeline from an explicit stage list, bypassing any
// registry.
func NewPipeline(stages []Stage) *Pipeline {
	cp := make([]Stage, len(stages))
	copy(cp, stages)
	return &Pipeline{stages: cp}
}

// Stages returns the ordered stage list.
func (p *Pipeline) Stages() []Stage {
	out := make([]Stage, len(p.stages))
	copy(out, p.stages)
	return out
}

// Run applies every stage in order over a fresh context seeded with text
// and returns the result.
func (p *Pipeline) Run(text string) Result {
	ctx := NewContext(text)
	for _, stage := range p.stages {
		stage.Apply(ctx)
	}
	return Result{Text: ctx.Text, Stats: ctx.Stats, Context: ctx}
}
