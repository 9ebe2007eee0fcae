package stages

import (
	"strings"
	"testing"

	"github.com/necrasov-ilya/gpt-artifact-scrub/internal/textpipeline"
)

func buildDefaultPipeline(t *testing.T) *textpipeline.Pipeline {
	t.Helper()
	reg := textpipeline.NewRegistry()
	if err := RegisterBuiltins(reg); err != nil {
		t.Fatalf("RegisterBuiltins: %v", err)
	}
	return reg.CreatePipeline(nil)
}

func TestRegisterBuiltinsOrder(t *testing.T) {
	reg := textpipeline.NewRegistry()
	if err := RegisterBuiltins(reg); err != nil {
		t.Fatalf("RegisterBuiltins: %v", err)
	}
	want := []string{"preflight_stats", "llm_artifacts", "reference_links", "typography", "final_cleanup"}
	got := reg.ListStageNames()
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestPipelineRemovesCitationArtifacts(t *testing.T) {
	p := buildDefaultPipeline(t)
	result := p.Run("See (cite turn0search1) and [cite turn2fetch3 example.com].")

	if strings.Contains(result.Text, "cite") {
		t.Fatalf("output still contains cite: %q", result.Text)
	}
	if reTurnToken.MatchString(result.Text) {
		t.Fatalf("output still contains a turn token: %q", result.Text)
	}
	if strings.ContainsAny(result.Text, "()[]") {
		t.Fatalf("output still contains bracket punctuation: %q", result.Text)
	}
	if result.Stats["llm_bracket_groups"] < 2 {
		t.Fatalf("llm_bracket_groups = %d, want >= 2", result.Stats["llm_bracket_groups"])
	}
}

// An undefined reference link whose text is a bare domain becomes an
// https:// URL.
func TestPipelineConvertsUndefinedReferenceLinkToURL(t *testing.T) {
	p := buildDefaultPipeline(t)
	result := p.Run("Проверка [ssi.inc][3] в тексте без определений")

	if !strings.Contains(result.Text, "https://ssi.inc") {
		t.Fatalf("expected https://ssi.inc in output, got %q", result.Text)
	}
	if result.Stats["reference_links"] < 1 {
		t.Fatalf("reference_links = %d, want >= 1", result.Stats["reference_links"])
	}
}

func TestLLMArtifactsMismatchedClosersDoNotMergeGroups(t *testing.T) {
	p := buildDefaultPipeline(t)
	result := p.Run("(foo [turn0search1) baz]")

	// The ")" does not match the open "[" on top of the stack, so only the
	// matched "[...]" group is removed; the dangling "(" and its text stay.
	if !strings.Contains(result.Text, "foo") {
		t.Fatalf("text outside the matched group must survive, got %q", result.Text)
	}
	if reTurnToken.MatchString(result.Text) {
		t.Fatalf("output still contains a turn token: %q", result.Text)
	}
	if strings.Contains(result.Text, "]") || strings.Contains(result.Text, "baz") {
		t.Fatalf("matched [...] group should be removed whole, got %q", result.Text)
	}
	if result.Stats["llm_bracket_groups"] != 1 {
		t.Fatalf("llm_bracket_groups = %d, want 1", result.Stats["llm_bracket_groups"])
	}
}

func TestPipelineLeavesGenuineReferenceLinksAlone(t *testing.T) {
	p := buildDefaultPipeline(t)
	text := "See [the docs][ref] for more.\n\n[ref]: https://example.com/docs"
	result := p.Run(text)
	if !strings.Contains(result.Text, "[the docs][ref]") {
		t.Fatalf("expected genuine reference link preserved, got %q", result.Text)
	}
	if !strings.Contains(result.Text, "https://example.com/docs") {
		t.Fatalf("expected definition line preserved, got %q", result.Text)
	}
}

func TestPipelineTypographySubstitutions(t *testing.T) {
	p := buildDefaultPipeline(t)
	result := p.Run("em—dash and “quote” and nbsp")
	if strings.ContainsAny(result.Text, "—“” ") {
		t.Fatalf("expected typography substitutions applied, got %q", result.Text)
	}
}

func TestPipelineFinalCleanupDropsEmptyBracketsAndBlankLines(t *testing.T) {
	p := buildDefaultPipeline(t)
	result := p.Run("Hello () world []\n\n\n\nNext paragraph")
	if strings.Contains(result.Text, "()") || strings.Contains(result.Text, "[]") {
		t.Fatalf("expected empty brackets removed, got %q", result.Text)
	}
	if strings.Contains(result.Text, "\n\n\n") {
		t.Fatalf("expected blank lines capped at 2, got %q", result.Text)
	}
}

func TestPreflightStatsCountsBeforeOtherStagesMutate(t *testing.T) {
	reg := textpipeline.NewRegistry()
	_ = RegisterBuiltins(reg)
	pipeline := reg.CreatePipeline(nil)
	result := pipeline.Run("a–b “q”  x")
	if result.Stats["dashes"] != 1 {
		t.Fatalf("dashes = %d, want 1", result.Stats["dashes"])
	}
	if result.Stats["quotes"] != 2 {
		t.Fatalf("quotes = %d, want 2", result.Stats["quotes"])
	}
	if result.Stats["nbsp"] != 1 {
		t.Fatalf("nbsp = %d, want 1", result.Stats["nbsp"])
	}
}
