package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dshills/diagfix/internal/diagnostic"
)

const fixtureDir = "../../testdata/diagrams"

func paths(files []File) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = filepath.ToSlash(f.Path)
	}
	return out
}

func TestScan_CollectsDiagrams(t *testing.T) {
	files, err := Scan(fixtureDir, nil)
	if err != nil {
		t.Fatalf("Scan error: %v", err)
	}
	got := paths(files)
	want := []string{"README.md", "docs/guide.md", "flow.mmd", "nested/context.plantuml", "order.bpmn", "scripts/gen.puml", "seq.puml"}
	if len(got) != len(want) {
		t.Fatalf("Scan = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestScan_MarksMarkdown(t *testing.T) {
	files, err := Scan(fixtureDir, nil)
	if err != nil {
		t.Fatalf("Scan error: %v", err)
	}
	for _, f := range files {
		if want := filepath.Ext(f.Path) == ".md"; f.Markdown != want {
			t.Errorf("%s: Markdown = %v, want %v", f.Path, f.Markdown, want)
		}
	}
}

func TestScan_IgnorePatterns(t *testing.T) {
	files, err := Scan(fixtureDir, []string{"scripts"})
	if err != nil {
		t.Fatalf("Scan error: %v", err)
	}
	for _, p := range paths(files) {
		if p == "scripts/gen.puml" {
			t.Error("ignored directory 'scripts' still produced a file")
		}
	}
}

func TestScan_MissingRoot(t *testing.T) {
	if _, err := Scan(filepath.Join(t.TempDir(), "nope"), nil); err == nil {
		t.Error("expected error for missing root")
	}
}

func TestLanguageOf(t *testing.T) {
	cases := map[string]diagnostic.Language{
		"a.bpmn":      diagnostic.LanguageBPMN,
		"a.MMD":       diagnostic.LanguageMermaid,
		"a.mermaid":   diagnostic.LanguageMermaid,
		"a.puml":      diagnostic.LanguagePlantUML,
		"a.iuml":      diagnostic.LanguagePlantUML,
		"a.svg":       diagnostic.LanguageUnknown,
		"no-ext-file": diagnostic.LanguageUnknown,
	}
	for in, want := range cases {
		if got := LanguageOf(in); got != want {
			t.Errorf("LanguageOf(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestFile_ReadWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.mmd")
	if err := os.WriteFile(path, []byte("graph TD"), 0o600); err != nil {
		t.Fatal(err)
	}
	files, err := Scan(dir, nil)
	if err != nil || len(files) != 1 {
		t.Fatalf("Scan = %v, %v", files, err)
	}
	f := files[0]
	if err := f.Write("graph LR"); err != nil {
		t.Fatal(err)
	}
	got, err := f.Read()
	if err != nil || got != "graph LR" {
		t.Errorf("Read = %q, %v", got, err)
	}
	info, _ := os.Stat(path)
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}
}
