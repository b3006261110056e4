package patch

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dshills/diagfix/internal/diagnostic"
)

func parseErr(msg string) diagnostic.Error {
	return diagnostic.Error{Kind: diagnostic.KindParse, Message: msg}
}

func apply(t *testing.T, p diagnostic.Patch, src string) string {
	t.Helper()
	out, err := p.Apply(context.Background(), src)
	if err != nil {
		t.Fatalf("Apply(%q): %v", p.Description, err)
	}
	return out
}

func TestSanitizeTimelineColons(t *testing.T) {
	cases := []struct {
		name, in, want string
	}{
		{
			"content colon rewritten",
			"    Feb 02 : Module 1: Feed Mixing Config",
			"    Feb 02 : Module 1 - Feed Mixing Config",
		},
		{"title untouched", "title Release: Q1 plan", "title Release: Q1 plan"},
		{"caption untouched", "  Caption: a: b", "  Caption: a: b"},
		{"title text with colons untouched", "Title My Plan : phase: one", "Title My Plan : phase: one"},
		{"keyword only as prefix", "titles : a: b", "titles : a - b"},
		{"single colon untouched", "2024 : Launch", "2024 : Launch"},
		{"empty label", ": a: b", ": a - b"},
		{"several colons", "x: a:b:c", "x: a -b -c"},
		{
			"multi line",
			"@startuml\ntimeline\ntitle T: 1\n  Jan : A: B\n  Feb : C\n@enduml",
			"@startuml\ntimeline\ntitle T: 1\n  Jan : A - B\n  Feb : C\n@enduml",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := SanitizeTimelineColons(c.in); got != c.want {
				t.Errorf("got  %q\nwant %q", got, c.want)
			}
		})
	}
}

func TestPlantUML_MissingEnd(t *testing.T) {
	src := "@startmindmap\n* root\n"
	patches := PlantUMLStrategy{}.Propose(src, nil)
	if len(patches) != 1 {
		t.Fatalf("patches = %d, want 1", len(patches))
	}
	if patches[0].Confidence != 0.95 {
		t.Errorf("confidence = %v", patches[0].Confidence)
	}
	out := apply(t, patches[0], src)
	if !strings.HasSuffix(out, "\n@endmindmap") {
		t.Errorf("out = %q", out)
	}
}

func TestPlantUML_EndPresent(t *testing.T) {
	src := "@startuml\nA -> B\n@enduml"
	if patches := (PlantUMLStrategy{}).Propose(src, []diagnostic.Error{parseErr("Syntax Error?")}); len(patches) != 0 {
		t.Errorf("unexpected patches: %v", patches)
	}
}

func TestPlantUML_TimelineNeedsParseError(t *testing.T) {
	src := "@startuml\ntimeline\n Jan : a: b\n@enduml"
	if got := (PlantUMLStrategy{}).Propose(src, []diagnostic.Error{{Kind: diagnostic.KindUnknown, Message: "?"}}); len(got) != 0 {
		t.Errorf("sanitizer proposed without a PARSE error: %v", got)
	}
	got := PlantUMLStrategy{}.Propose(src, []diagnostic.Error{parseErr("Syntax Error?")})
	if len(got) != 1 || got[0].Confidence != 0.8 {
		t.Fatalf("patches = %+v", got)
	}
	if out := apply(t, got[0], src); !strings.Contains(out, " Jan : a - b") {
		t.Errorf("out = %q", out)
	}
}

func TestMermaid_AppendEnd(t *testing.T) {
	src := "flowchart TD\nsubgraph one\nA-->B"
	got := MermaidStrategy{}.Propose(src, []diagnostic.Error{parseErr("Parse error on line 3: Expecting 'SEMI', got 'EOF'")})
	if len(got) != 1 {
		t.Fatalf("patches = %+v", got)
	}
	if got[0].Confidence != 0.9 {
		t.Errorf("confidence = %v", got[0].Confidence)
	}
	if out := apply(t, got[0], src); out != src+"\nend" {
		t.Errorf("out = %q", out)
	}
}

func TestMermaid_AlreadyEnded(t *testing.T) {
	src := "flowchart TD\nsubgraph one\nA-->B\nend\n"
	got := MermaidStrategy{}.Propose(src, []diagnostic.Error{parseErr("got 'EOF'")})
	if len(got) != 0 {
		t.Errorf("patches = %+v", got)
	}
}

func TestMermaid_StripInit(t *testing.T) {
	src := "%%{init: {\n  'theme': 'dark'\n}}%%\ngraph TD\nA-->B"
	got := MermaidStrategy{}.Propose(src, []diagnostic.Error{parseErr("Lexical error on line 1")})
	if len(got) != 1 {
		t.Fatalf("patches = %+v", got)
	}
	if got[0].Confidence != 0.6 {
		t.Errorf("init strip confidence = %v, want 0.6", got[0].Confidence)
	}
	if out := apply(t, got[0], src); out != "\ngraph TD\nA-->B" {
		t.Errorf("out = %q", out)
	}
}

type stubLayouter struct {
	out string
	err error
}

func (s stubLayouter) Layout(context.Context, string) (string, error) { return s.out, s.err }

func TestBPMN_OnlyForDILayout(t *testing.T) {
	s := BPMNStrategy{Layouter: stubLayouter{out: "<laid/>"}}
	if got := s.Propose("<x/>", []diagnostic.Error{parseErr("bad xml")}); len(got) != 0 {
		t.Errorf("patches for PARSE error: %v", got)
	}
	got := s.Propose("<x/>", []diagnostic.Error{{Kind: diagnostic.KindDILayout, Message: "Missing Diagram Layout (DI)"}})
	if len(got) != 1 || got[0].Description != GenerateDIDescription || got[0].Confidence != 0.95 {
		t.Fatalf("patches = %+v", got)
	}
	if out := apply(t, got[0], "<x/>"); out != "<laid/>" {
		t.Errorf("out = %q", out)
	}
}

func TestBPMN_LayoutFailurePropagates(t *testing.T) {
	s := BPMNStrategy{Layouter: stubLayouter{err: errors.New("layout exploded")}}
	got := s.Propose("<x/>", []diagnostic.Error{{Kind: diagnostic.KindDILayout}})
	if _, err := got[0].Apply(context.Background(), "<x/>"); err == nil {
		t.Fatal("expected error from Apply")
	}
}

// fixedStrategy returns a canned candidate list.
type fixedStrategy struct {
	lang    diagnostic.Language
	patches []diagnostic.Patch
}

func (f fixedStrategy) Language() diagnostic.Language { return f.lang }
func (f fixedStrategy) Propose(string, []diagnostic.Error) []diagnostic.Patch {
	return f.patches
}

func TestProposer_SortsDedupsStable(t *testing.T) {
	p := NewProposer(fixedStrategy{lang: diagnostic.LanguageMermaid, patches: []diagnostic.Patch{
		{Description: "low", Confidence: 0.2},
		{Description: "tie-first", Confidence: 0.8},
		{Description: "high", Confidence: 0.9},
		{Description: "tie-second", Confidence: 0.8},
		{Description: "high", Confidence: 0.9},
		{Description: "high", Confidence: 0.5},
	}})

	got := p.Propose("", nil, diagnostic.LanguageMermaid)
	want := []string{"high", "tie-first", "tie-second", "high", "low"}
	if len(got) != len(want) {
		t.Fatalf("got %d patches, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].Description != w {
			t.Errorf("[%d] = %q, want %q", i, got[i].Description, w)
		}
	}
	if got[3].Confidence != 0.5 {
		t.Errorf("same description with different confidence must survive")
	}
}

func TestProposer_UnknownLanguage(t *testing.T) {
	if got := Default(nil).Propose("x", nil, diagnostic.LanguageUnknown); len(got) != 0 {
		t.Errorf("got %v", got)
	}
}
