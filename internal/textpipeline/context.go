// Package textpipeline is a staged text-normalization engine: a transformation
// over a mutable context, with an explicit, non-global stage registry.
package textpipeline

// Context carries mutable state through a pipeline run: the text under
// transformation, accumulated stats, free-form metadata, and the text as it
// was before the first stage ran.
type Context struct {
	Text         string
	Stats        map[string]int
	Metadata     map[string]string
	OriginalText string
}

// NewContext creates a context seeded with text; OriginalText is captured
// immediately and never mutated afterward.
func NewContext(text string) *Context {
	return &Context{
		Text:         text,
		Stats:        make(map[string]int),
		Metadata:     make(map[string]string),
		OriginalText: text,
	}
}

// SetText replaces the working text.
func (c *Context) SetText(text string) { c.Text = text }

// AddStat accumulates delta into the named counter.
func (c *Context) AddStat(name string, delta int) {
	c.Stats[name] += delta
}

// SetStat overwrites the named counter.
func (c *Context) SetStat(name string, value int) {
	c.Stats[name] = value
}

// GetStat returns the named counter, defaulting to 0.
func (c *Context) GetStat(name string) int {
	return c.Stats[name]
}
