package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/dshills/diagfix/internal/autofix"
	"github.com/dshills/diagfix/internal/diagnostic"
)

func sampleReport() *Report {
	paths := []string{"flow.bpmn", "seq.puml", "notes.txt", "graph.mmd"}
	sources := []string{"<bpmn/>", "@startuml\nA -> B", "hello", "graph TD\nA-->"}
	results := []autofix.BatchResult{
		{Result: autofix.Result{Fixed: true, Code: "<bpmn di/>", Language: diagnostic.LanguageBPMN, Attempts: 2, Log: []string{"Detected language: BPMN"}}},
		{Result: autofix.Result{Fixed: true, Code: "@startuml\nA -> B", Language: diagnostic.LanguagePlantUML, Attempts: 1, Log: []string{"Validation passed"}}},
		{Result: autofix.Result{Fixed: false, Code: "hello", Language: diagnostic.LanguageUnknown, Attempts: 0, Log: []string{"No adapter available"}}},
		{Result: autofix.Result{Fixed: false, Code: "graph TD\nA-->", Language: diagnostic.LanguageMermaid, Attempts: 1, Log: []string{"Validation failed: dial tcp"}},
			Err: errors.New("autofix: validate: oracle: transport failure")},
	}
	return NewReport("0.1.0", paths, sources, results)
}

func TestNewReport_Summary(t *testing.T) {
	r := sampleReport()
	want := Summary{Total: 4, Fixed: 2, NotFixed: 0, Unsupported: 1, Errors: 1}
	if r.Summary != want {
		t.Errorf("summary = %+v, want %+v", r.Summary, want)
	}
	if !r.Files[0].Changed || r.Files[1].Changed {
		t.Errorf("changed flags = %v, %v", r.Files[0].Changed, r.Files[1].Changed)
	}
	if r.Files[3].Error == "" {
		t.Error("transport error not recorded")
	}
}

func TestRenderJSON_RoundTrip(t *testing.T) {
	report := sampleReport()
	b, err := RenderJSON(report)
	if err != nil {
		t.Fatalf("RenderJSON error: %v", err)
	}
	var got Report
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("json.Unmarshal error: %v", err)
	}
	if got.Summary != report.Summary {
		t.Errorf("summary mismatch: got %+v, want %+v", got.Summary, report.Summary)
	}
	if len(got.Files) != len(report.Files) {
		t.Fatalf("file count mismatch: got %d, want %d", len(got.Files), len(report.Files))
	}
	for i := range got.Files {
		if got.Files[i].Path != report.Files[i].Path || got.Files[i].Language != report.Files[i].Language {
			t.Errorf("files[%d] = %+v", i, got.Files[i])
		}
	}
	if strings.Contains(string(b), "<bpmn di/>") {
		t.Error("final code must not be serialized")
	}
}

func TestRenderJSON_NilReport(t *testing.T) {
	if _, err := RenderJSON(nil); err == nil {
		t.Error("expected error for nil report, got nil")
	}
}

func TestRenderText_Plain(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderText(&buf, sampleReport(), false, false); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"FIXED flow.bpmn", "VALID seq.puml", "SKIP  notes.txt", "ERROR graph.mmd", "4 files: 2 fixed"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("plain output contains colour escapes")
	}
	if strings.Contains(out, "Detected language: BPMN") {
		t.Error("logs of fixed files shown without verbose")
	}
}

func TestRenderText_VerboseAndColour(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderText(&buf, sampleReport(), true, true); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "\x1b[") {
		t.Error("coloured output has no escapes")
	}
	if !strings.Contains(out, "Detected language: BPMN") {
		t.Error("verbose output missing session log")
	}
}

func TestRenderMarkdown_ContainsAllPaths(t *testing.T) {
	md := RenderMarkdown(sampleReport())
	for _, p := range []string{"flow.bpmn", "seq.puml", "notes.txt", "graph.mmd"} {
		if !strings.Contains(md, p) {
			t.Errorf("markdown missing %q", p)
		}
	}
	if !strings.Contains(md, "**Errors:** 1") {
		t.Error("markdown missing error count")
	}
	if !strings.Contains(md, "oracle: transport failure") {
		t.Error("markdown missing error detail")
	}
}

func TestRenderMarkdown_EscapesPaths(t *testing.T) {
	r := NewReport("0.1.0", []string{"a|b.mmd"}, []string{"x"},
		[]autofix.BatchResult{{Result: autofix.Result{Fixed: true, Code: "x", Language: diagnostic.LanguageMermaid}}})
	if md := RenderMarkdown(r); !strings.Contains(md, `a\|b.mmd`) {
		t.Errorf("pipe not escaped:\n%s", md)
	}
}

func TestRenderMarkdown_NilReport(t *testing.T) {
	if got := RenderMarkdown(nil); got != "" {
		t.Errorf("expected empty string for nil report, got %q", got)
	}
}

func TestMdEscape(t *testing.T) {
	cases := []struct{ in, want string }{
		{"no pipes", "no pipes"},
		{"a|b", `a\|b`},
		{"a\nb", "a b"},
		{"", ""},
	}
	for _, c := range cases {
		if got := mdEscape(c.in); got != c.want {
			t.Errorf("mdEscape(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
