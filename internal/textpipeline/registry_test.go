package textpipeline

import "testing"

type stubStage struct{ name string }

func (s stubStage) Name() string       { return s.name }
func (s stubStage) Apply(ctx *Context) {}

func TestRegisterDuplicateNameWithoutReplaceFails(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register("a", func() Stage { return stubStage{"a"} }, RegisterOptions{}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := reg.Register("a", func() Stage { return stubStage{"a"} }, RegisterOptions{}); err == nil {
		t.Fatal("expected error re-registering the same name without Replace")
	}
}

func TestRegisterReplaceOverwrites(t *testing.T) {
	reg := NewRegistry()
	_ = reg.Register("a", func() Stage { return stubStage{"a"} }, RegisterOptions{})
	v1 := reg.Version()
	if err := reg.Register("a", func() Stage { return stubStage{"a2"} }, RegisterOptions{Replace: true}); err != nil {
		t.Fatalf("replace register: %v", err)
	}
	if reg.Version() <= v1 {
		t.Fatal("expected version to advance on replace")
	}
	if names := reg.ListStageNames(); len(names) != 1 {
		t.Fatalf("names = %v, want single entry", names)
	}
}

func TestRegisterBeforeAfterOrdering(t *testing.T) {
	reg := NewRegistry()
	_ = reg.Register("a", func() Stage { return stubStage{"a"} }, RegisterOptions{})
	_ = reg.Register("c", func() Stage { return stubStage{"c"} }, RegisterOptions{})
	_ = reg.Register("b", func() Stage { return stubStage{"b"} }, RegisterOptions{Before: "c"})

	names := reg.ListStageNames()
	want := []string{"a", "b", "c"}
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names = %v, want %v", names, want)
		}
	}
}

func TestBuilderMemoizesUntilVersionAdvances(t *testing.T) {
	reg := NewRegistry()
	_ = reg.Register("a", func() Stage { return stubStage{"a"} }, RegisterOptions{})
	b := NewBuilder(reg)

	p1 := b.Default()
	p2 := b.Default()
	if p1 != p2 {
		t.Fatal("expected memoized pipeline instance to be reused")
	}

	_ = reg.Register("b", func() Stage { return stubStage{"b"} }, RegisterOptions{})
	p3 := b.Default()
	if p3 == p1 {
		t.Fatal("expected pipeline to be rebuilt after version advance")
	}
}

func TestBuilderWithStagesBypassesRegistry(t *testing.T) {
	reg := NewRegistry()
	b := NewBuilder(reg)
	p := b.WithStages([]Stage{stubStage{"only"}})
	if len(p.Stages()) != 1 || p.Stages()[0].Name() != "only" {
		t.Fatalf("expected explicit stage list to be used verbatim")
	}
}

func TestPipelineRunSeedsOriginalText(t *testing.T) {
	p := NewPipeline(nil)
	result := p.Run("hello")
	if result.Context.OriginalText != "hello" {
		t.Fatalf("OriginalText = %q, want hello", result.Context.OriginalText)
	}
	if result.Text != "hello" {
		t.Fatalf("Text = %q, want hello", result.Text)
	}
}
