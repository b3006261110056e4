package autofix

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/dshills/diagfix/internal/adapter"
	"github.com/dshills/diagfix/internal/diagnostic"
	"github.com/dshills/diagfix/internal/layout"
	"github.com/dshills/diagfix/internal/oracle"
	"github.com/dshills/diagfix/internal/patch"
)

// ── Test doubles ────────────────────────────────────────────────────────────

// plantumlChecker accepts PlantUML source only when it carries @enduml.
type plantumlChecker struct {
	mu    sync.Mutex
	calls int
}

func (c *plantumlChecker) SyntaxCheck(_ context.Context, source, _ string) (oracle.CheckResult, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if strings.Contains(source, "@enduml") {
		return oracle.CheckResult{Valid: true}, nil
	}
	return oracle.CheckResult{Valid: false, Error: "Syntax Error? (line 2)", Line: diagnostic.IntPtr(2)}, nil
}

// stubAdapter returns scripted results, one per call, repeating the last.
type stubAdapter struct {
	lang    diagnostic.Language
	results []diagnostic.ValidationResult
	err     error
	seen    []string
}

func (a *stubAdapter) Language() diagnostic.Language { return a.lang }

func (a *stubAdapter) Validate(_ context.Context, source string) (diagnostic.ValidationResult, error) {
	a.seen = append(a.seen, source)
	if a.err != nil {
		return diagnostic.ValidationResult{}, a.err
	}
	i := min(len(a.seen)-1, len(a.results)-1)
	return a.results[i], nil
}

// stubProposer returns the same patches on every call.
type stubProposer struct {
	patches []diagnostic.Patch
	calls   int
	errs    [][]diagnostic.Error
}

func (p *stubProposer) Propose(_ string, errs []diagnostic.Error, _ diagnostic.Language) []diagnostic.Patch {
	p.calls++
	p.errs = append(p.errs, errs)
	return p.patches
}

type stubRewriter struct {
	out   string
	err   error
	calls int
}

func (r *stubRewriter) Rewrite(_ context.Context, _ diagnostic.Language, _ string, _ []diagnostic.Error) (string, error) {
	r.calls++
	return r.out, r.err
}

func invalid(msg string) diagnostic.ValidationResult {
	return diagnostic.Invalid(diagnostic.Error{Kind: diagnostic.KindUnknown, Message: msg})
}

func logContains(log []string, sub string) bool {
	for _, l := range log {
		if strings.Contains(l, sub) {
			return true
		}
	}
	return false
}

const mermaidSrc = "graph TD\nA-->B"

// ── End-to-end with real components ─────────────────────────────────────────

const bpmnNoDI = `<?xml version="1.0" encoding="UTF-8"?>
<bpmn:definitions xmlns:bpmn="http://www.omg.org/spec/BPMN/20100524/MODEL" id="Definitions_1">
  <bpmn:process id="Process_1">
    <bpmn:startEvent id="Start"/>
    <bpmn:task id="Work"/>
    <bpmn:endEvent id="End"/>
    <bpmn:sequenceFlow id="f1" sourceRef="Start" targetRef="Work"/>
    <bpmn:sequenceFlow id="f2" sourceRef="Work" targetRef="End"/>
  </bpmn:process>
</bpmn:definitions>`

func TestAttempt_BPMNGeneratesDI(t *testing.T) {
	f := &Fixer{
		Adapters: adapter.Default(&plantumlChecker{}),
		Proposer: patch.Default(layout.New(nil)),
	}
	res, err := f.Attempt(context.Background(), Input{Code: bpmnNoDI})
	if err != nil {
		t.Fatalf("Attempt: %v", err)
	}
	if !res.Fixed {
		t.Fatalf("not fixed; log:\n%s", strings.Join(res.Log, "\n"))
	}
	if res.Language != diagnostic.LanguageBPMN {
		t.Errorf("Language = %s", res.Language)
	}
	if !strings.Contains(res.Code, "<bpmndi:BPMNDiagram") {
		t.Errorf("fixed code has no diagram section:\n%s", res.Code)
	}
	if res.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", res.Attempts)
	}
	if !logContains(res.Log, patch.GenerateDIDescription) {
		t.Errorf("log does not mention the DI patch: %v", res.Log)
	}
}

func TestAttempt_PlantUMLAppendsEnd(t *testing.T) {
	checker := &plantumlChecker{}
	f := &Fixer{
		Adapters: adapter.Default(checker),
		Proposer: patch.Default(layout.New(nil)),
	}
	res, err := f.Attempt(context.Background(), Input{Code: "@startuml\nA -> B\n"})
	if err != nil {
		t.Fatalf("Attempt: %v", err)
	}
	if !res.Fixed {
		t.Fatalf("not fixed; log:\n%s", strings.Join(res.Log, "\n"))
	}
	if !strings.HasSuffix(res.Code, "@enduml") {
		t.Errorf("code does not end with @enduml: %q", res.Code)
	}
	if checker.calls != 2 {
		t.Errorf("checker calls = %d, want 2", checker.calls)
	}
}

// ── Loop control ────────────────────────────────────────────────────────────

func TestAttempt_AlreadyValid(t *testing.T) {
	a := &stubAdapter{lang: diagnostic.LanguageMermaid, results: []diagnostic.ValidationResult{diagnostic.Valid()}}
	p := &stubProposer{}
	f := &Fixer{Adapters: adapter.NewRegistry(a), Proposer: p}

	res, err := f.Attempt(context.Background(), Input{Code: mermaidSrc})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Fixed || res.Code != mermaidSrc || res.Attempts != 1 {
		t.Errorf("result = %+v", res)
	}
	if p.calls != 0 {
		t.Errorf("proposer called %d times for valid input", p.calls)
	}
}

func TestAttempt_TerminatesAfterMaxAttempts(t *testing.T) {
	a := &stubAdapter{lang: diagnostic.LanguageMermaid, results: []diagnostic.ValidationResult{invalid("still broken")}}
	n := 0
	p := &stubProposer{patches: []diagnostic.Patch{{
		Description: "noop",
		Confidence:  0.5,
		Apply: func(_ context.Context, s string) (string, error) {
			n++
			return fmt.Sprintf("%s\n%%%% %d", s, n), nil
		},
	}}}
	f := &Fixer{Adapters: adapter.NewRegistry(a), Proposer: p}

	res, err := f.Attempt(context.Background(), Input{Code: mermaidSrc})
	if err != nil {
		t.Fatal(err)
	}
	if res.Fixed {
		t.Fatal("expected fixed=false")
	}
	if len(a.seen) != MaxAttempts || n != MaxAttempts {
		t.Errorf("validations = %d, applies = %d, want %d each", len(a.seen), n, MaxAttempts)
	}
	if !logContains(res.Log, "Giving up") {
		t.Errorf("log = %v", res.Log)
	}
}

func TestAttempt_MaxAttemptsOverride(t *testing.T) {
	a := &stubAdapter{lang: diagnostic.LanguageMermaid, results: []diagnostic.ValidationResult{invalid("x")}}
	p := &stubProposer{patches: []diagnostic.Patch{{Description: "p", Confidence: 1, Apply: func(_ context.Context, s string) (string, error) { return s, nil }}}}
	f := &Fixer{Adapters: adapter.NewRegistry(a), Proposer: p, MaxAttempts: 1}

	res, _ := f.Attempt(context.Background(), Input{Code: mermaidSrc})
	if res.Attempts != 1 || len(a.seen) != 1 {
		t.Errorf("attempts = %d, validations = %d", res.Attempts, len(a.seen))
	}
}

func TestAttempt_SeededErrorSkipsFirstValidation(t *testing.T) {
	a := &stubAdapter{lang: diagnostic.LanguageMermaid, results: []diagnostic.ValidationResult{diagnostic.Valid()}}
	p := &stubProposer{patches: []diagnostic.Patch{{
		Description: "fix",
		Confidence:  0.9,
		Apply:       func(_ context.Context, s string) (string, error) { return s + "\nend", nil },
	}}}
	f := &Fixer{Adapters: adapter.NewRegistry(a), Proposer: p}

	res, err := f.Attempt(context.Background(), Input{
		Code:     mermaidSrc,
		Existing: Reported("Parse error on line 2: unexpected token", nil),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Fixed {
		t.Fatalf("not fixed: %v", res.Log)
	}
	if len(a.seen) != 1 || a.seen[0] != mermaidSrc+"\nend" {
		t.Errorf("adapter saw %q; first validation should be skipped", a.seen)
	}
	if len(p.errs) != 1 || len(p.errs[0]) != 1 {
		t.Fatalf("proposer errors = %v", p.errs)
	}
	e := p.errs[0][0]
	if e.Kind != diagnostic.KindParse {
		t.Errorf("seeded error kind = %s, want PARSE", e.Kind)
	}
	if e.Line == nil || *e.Line != 2 {
		t.Errorf("seeded error line = %v, want 2", e.Line)
	}
}

func TestAttempt_SeededRenderErrorKeepsLine(t *testing.T) {
	a := &stubAdapter{lang: diagnostic.LanguageMermaid, results: []diagnostic.ValidationResult{diagnostic.Valid()}}
	p := &stubProposer{patches: []diagnostic.Patch{{Description: "fix", Confidence: 1, Apply: func(_ context.Context, s string) (string, error) { return s, nil }}}}
	f := &Fixer{Adapters: adapter.NewRegistry(a), Proposer: p}

	existing := fmt.Errorf("preview: %w", &oracle.RenderError{Notation: "mermaid", Status: 400, Message: "boom", Line: diagnostic.IntPtr(7)})
	if _, err := f.Attempt(context.Background(), Input{Code: mermaidSrc, Existing: existing}); err != nil {
		t.Fatal(err)
	}
	e := p.errs[0][0]
	if e.Message != "boom" || e.Line == nil || *e.Line != 7 {
		t.Errorf("seeded error = %+v", e)
	}
}

func TestAttempt_LLMFallback(t *testing.T) {
	a := &stubAdapter{lang: diagnostic.LanguageMermaid, results: []diagnostic.ValidationResult{invalid("weird"), diagnostic.Valid()}}
	rw := &stubRewriter{out: "graph TD\nA-->C"}
	f := &Fixer{Adapters: adapter.NewRegistry(a), Proposer: &stubProposer{}, Rewriter: rw}

	res, err := f.Attempt(context.Background(), Input{Code: mermaidSrc})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Fixed || res.Code != rw.out {
		t.Errorf("result = %+v", res)
	}
	if rw.calls != 1 {
		t.Errorf("rewriter calls = %d", rw.calls)
	}
}

func TestAttempt_LLMFailureStops(t *testing.T) {
	a := &stubAdapter{lang: diagnostic.LanguageMermaid, results: []diagnostic.ValidationResult{invalid("weird")}}
	rw := &stubRewriter{err: errors.New("quota exceeded")}
	f := &Fixer{Adapters: adapter.NewRegistry(a), Proposer: &stubProposer{}, Rewriter: rw}

	res, err := f.Attempt(context.Background(), Input{Code: mermaidSrc})
	if err != nil {
		t.Fatal(err)
	}
	if res.Fixed || res.Code != mermaidSrc {
		t.Errorf("result = %+v", res)
	}
	if len(a.seen) != 1 {
		t.Errorf("validations = %d, want 1", len(a.seen))
	}
	if !logContains(res.Log, "quota exceeded") {
		t.Errorf("log = %v", res.Log)
	}
}

func TestAttempt_NoRewriterStops(t *testing.T) {
	a := &stubAdapter{lang: diagnostic.LanguageMermaid, results: []diagnostic.ValidationResult{invalid("weird")}}
	f := &Fixer{Adapters: adapter.NewRegistry(a), Proposer: &stubProposer{}}

	res, err := f.Attempt(context.Background(), Input{Code: mermaidSrc})
	if err != nil || res.Fixed {
		t.Errorf("res = %+v, err = %v", res, err)
	}
}

func TestAttempt_PatchFailureKeepsLastGoodCode(t *testing.T) {
	a := &stubAdapter{lang: diagnostic.LanguageMermaid, results: []diagnostic.ValidationResult{invalid("x")}}
	p := &stubProposer{patches: []diagnostic.Patch{
		{Description: "explodes", Confidence: 0.9, Apply: func(context.Context, string) (string, error) { return "", errors.New("layout crashed") }},
	}}
	f := &Fixer{Adapters: adapter.NewRegistry(a), Proposer: p}

	res, err := f.Attempt(context.Background(), Input{Code: mermaidSrc})
	if err != nil {
		t.Fatal(err)
	}
	if res.Fixed || res.Code != mermaidSrc {
		t.Errorf("result = %+v", res)
	}
	if !logContains(res.Log, "layout crashed") {
		t.Errorf("log = %v", res.Log)
	}
}

func TestAttempt_TransportErrorIsFatal(t *testing.T) {
	a := &stubAdapter{lang: diagnostic.LanguageMermaid, err: fmt.Errorf("%w: dial tcp", oracle.ErrTransport)}
	f := &Fixer{Adapters: adapter.NewRegistry(a), Proposer: &stubProposer{}}

	res, err := f.Attempt(context.Background(), Input{Code: mermaidSrc})
	if !errors.Is(err, oracle.ErrTransport) {
		t.Fatalf("err = %v, want ErrTransport", err)
	}
	if res.Fixed || res.Code != mermaidSrc {
		t.Errorf("result = %+v", res)
	}
}

func TestAttempt_Unsupported(t *testing.T) {
	f := &Fixer{Adapters: adapter.NewRegistry(), Proposer: &stubProposer{}}

	res, err := f.Attempt(context.Background(), Input{Code: "hello world"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Fixed || res.Language != diagnostic.LanguageUnknown {
		t.Errorf("result = %+v", res)
	}
	if !logContains(res.Log, "No adapter") {
		t.Errorf("log = %v", res.Log)
	}
}

func TestAttempt_HintUsedOnlyWhenUndetected(t *testing.T) {
	a := &stubAdapter{lang: diagnostic.LanguagePlantUML, results: []diagnostic.ValidationResult{diagnostic.Valid()}}
	m := &stubAdapter{lang: diagnostic.LanguageMermaid, results: []diagnostic.ValidationResult{diagnostic.Valid()}}
	f := &Fixer{Adapters: adapter.NewRegistry(a, m), Proposer: &stubProposer{}}

	res, _ := f.Attempt(context.Background(), Input{Code: "A -> B : hi", Notation: "plantuml"})
	if res.Language != diagnostic.LanguagePlantUML {
		t.Errorf("undetected with hint: Language = %s", res.Language)
	}
	res, _ = f.Attempt(context.Background(), Input{Code: mermaidSrc, Notation: "plantuml"})
	if res.Language != diagnostic.LanguageMermaid {
		t.Errorf("detected source must ignore hint: Language = %s", res.Language)
	}
}

func TestAttempt_Cancelled(t *testing.T) {
	a := &stubAdapter{lang: diagnostic.LanguageMermaid, results: []diagnostic.ValidationResult{diagnostic.Valid()}}
	f := &Fixer{Adapters: adapter.NewRegistry(a), Proposer: &stubProposer{}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Attempt(ctx, Input{Code: mermaidSrc})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

// ── Batch ───────────────────────────────────────────────────────────────────

func TestFixAll_KeepsInputOrder(t *testing.T) {
	f := &Fixer{
		Adapters: adapter.Default(&plantumlChecker{}),
		Proposer: patch.Default(layout.New(nil)),
	}
	inputs := []Input{
		{Code: "@startuml\nA -> B\n"},
		{Code: bpmnNoDI},
		{Code: "just text"},
		{Code: "@startuml\nB -> C\n@enduml"},
	}
	out := FixAll(context.Background(), f, inputs, 2)
	if len(out) != len(inputs) {
		t.Fatalf("got %d results", len(out))
	}
	want := []struct {
		lang  diagnostic.Language
		fixed bool
	}{
		{diagnostic.LanguagePlantUML, true},
		{diagnostic.LanguageBPMN, true},
		{diagnostic.LanguageUnknown, false},
		{diagnostic.LanguagePlantUML, true},
	}
	for i, w := range want {
		if out[i].Err != nil {
			t.Errorf("[%d] err = %v", i, out[i].Err)
		}
		if out[i].Result.Language != w.lang || out[i].Result.Fixed != w.fixed {
			t.Errorf("[%d] = %s fixed=%v, want %s fixed=%v", i, out[i].Result.Language, out[i].Result.Fixed, w.lang, w.fixed)
		}
	}
}

func TestFixAll_Empty(t *testing.T) {
	if out := FixAll(context.Background(), &Fixer{}, nil, 4); len(out) != 0 {
		t.Errorf("got %v", out)
	}
}
