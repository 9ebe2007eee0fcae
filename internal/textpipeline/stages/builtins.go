package stages

import "github.com/necrasov-ilya/gpt-artifact-scrub/internal/textpipeline"

// RegisterBuiltins registers the five built-in stages, in pipeline order,
// on a freshly constructed registry. Call this once at container-init time.
func RegisterBuiltins(reg *textpipeline.Registry) error {
	builtins := []struct {
		name    string
		factory textpipeline.Factory
	}{
		{"preflight_stats", func() textpipeline.Stage { return NewPreflightStats() }},
		{"llm_artifacts", func() textpipeline.Stage { return NewLLMArtifacts() }},
		{"reference_links", func() textpipeline.Stage { return NewReferenceLinks() }},
		{"typography", func() textpipeline.Stage { return NewTypography() }},
		{"final_cleanup", func() textpipeline.Stage { return NewFinalCleanup() }},
	}
	for _, b := range builtins {
		if err := reg.Register(b.name, b.factory, textpipeline.RegisterOptions{}); err != nil {
			return err
		}
	}
	return nil
}
