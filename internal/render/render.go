// Package render produces output from a batch of auto-fix results.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/dshills/diagfix/internal/autofix"
	"github.com/dshills/diagfix/internal/diagnostic"
)

// Report is the serializable outcome of one `diagfix fix` run.
type Report struct {
	Tool    string       `json:"tool"`
	Version string       `json:"version"`
	Summary Summary      `json:"summary"`
	Files   []FileResult `json:"files"`
}

// Summary counts file outcomes.
type Summary struct {
	Total       int `json:"total"`
	Fixed       int `json:"fixed"`
	NotFixed    int `json:"not_fixed"`
	Unsupported int `json:"unsupported"`
	Errors      int `json:"errors"`
}

// FileResult is the outcome for one input file.
type FileResult struct {
	Path     string              `json:"path"`
	Fixed    bool                `json:"fixed"`
	Changed  bool                `json:"changed"`
	Language diagnostic.Language `json:"language"`
	Attempts int                 `json:"attempts"`
	Log      []string            `json:"log"`
	// Error is set when the session aborted on a transport failure.
	Error string `json:"error,omitempty"`
	// Code is the final source; omitted from JSON to keep reports small.
	Code string `json:"-"`
}

// NewReport assembles a report. paths, sources and results are parallel.
func NewReport(version string, paths, sources []string, results []autofix.BatchResult) *Report {
	r := &Report{Tool: "diagfix", Version: version, Files: make([]FileResult, 0, len(results))}
	for i, br := range results {
		fr := FileResult{
			Path:     paths[i],
			Fixed:    br.Result.Fixed,
			Changed:  br.Result.Code != sources[i],
			Language: br.Result.Language,
			Attempts: br.Result.Attempts,
			Log:      br.Result.Log,
			Code:     br.Result.Code,
		}
		if br.Err != nil {
			fr.Error = br.Err.Error()
		}
		r.Files = append(r.Files, fr)

		r.Summary.Total++
		switch {
		case br.Err != nil:
			r.Summary.Errors++
		case fr.Fixed:
			r.Summary.Fixed++
		case fr.Language == diagnostic.LanguageUnknown:
			r.Summary.Unsupported++
		default:
			r.Summary.NotFixed++
		}
	}
	return r
}

// RenderJSON produces a pretty-printed JSON representation of the report.
// The output round-trips through json.Unmarshal back to an equal Report,
// except for the unexported-to-JSON Code field.
func RenderJSON(report *Report) ([]byte, error) {
	if report == nil {
		return nil, fmt.Errorf("render: nil report")
	}
	b, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render: json marshal: %w", err)
	}
	return b, nil
}

// ── Terminal text ──────────────────────────────────────────────────────────

type palette struct {
	ok, fail, warn, dim, bold *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		ok:   color.New(color.FgGreen, color.Bold),
		fail: color.New(color.FgRed, color.Bold),
		warn: color.New(color.FgYellow),
		dim:  color.New(color.Faint),
		bold: color.New(color.Bold),
	}
	for _, c := range []*color.Color{p.ok, p.fail, p.warn, p.dim, p.bold} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// RenderText writes a human-readable summary to w. Colour escapes are
// emitted only when colored is true. Session logs are included when verbose.
func RenderText(w io.Writer, report *Report, colored, verbose bool) error {
	if report == nil {
		return fmt.Errorf("render: nil report")
	}
	p := newPalette(colored)
	var sb strings.Builder

	for _, f := range report.Files {
		var status string
		switch {
		case f.Error != "":
			status = p.fail.Sprint("ERROR")
		case f.Fixed && f.Changed:
			status = p.ok.Sprint("FIXED")
		case f.Fixed:
			status = p.ok.Sprint("VALID")
		case f.Language == diagnostic.LanguageUnknown:
			status = p.warn.Sprint("SKIP ")
		default:
			status = p.fail.Sprint("FAIL ")
		}
		fmt.Fprintf(&sb, "%s %s %s\n", status, p.bold.Sprint(f.Path),
			p.dim.Sprintf("(%s, %d attempt%s)", f.Language, f.Attempts, plural(f.Attempts)))
		if f.Error != "" {
			fmt.Fprintf(&sb, "      %s\n", f.Error)
		}
		if verbose || (!f.Fixed && f.Language != diagnostic.LanguageUnknown) {
			for _, line := range f.Log {
				fmt.Fprintf(&sb, "      %s\n", p.dim.Sprint(line))
			}
		}
	}

	s := report.Summary
	fmt.Fprintf(&sb, "\n%d file%s: %s, %s, %s, %s\n", s.Total, plural(s.Total),
		p.ok.Sprintf("%d fixed", s.Fixed),
		p.fail.Sprintf("%d not fixed", s.NotFixed),
		p.warn.Sprintf("%d unsupported", s.Unsupported),
		p.fail.Sprintf("%d errors", s.Errors))

	_, err := io.WriteString(w, sb.String())
	return err
}

// ── Markdown ───────────────────────────────────────────────────────────────

// RenderMarkdown produces a GitHub-flavoured Markdown summary of the report,
// suitable for PR comments. Every file path in the report appears in the
// output.
func RenderMarkdown(report *Report) string {
	if report == nil {
		return ""
	}
	var sb strings.Builder

	sb.WriteString("## diagfix Report\n\n")
	fmt.Fprintf(&sb, "**Fixed:** %d | **Not fixed:** %d | **Unsupported:** %d | **Errors:** %d\n\n",
		report.Summary.Fixed, report.Summary.NotFixed, report.Summary.Unsupported, report.Summary.Errors)

	if len(report.Files) == 0 {
		return sb.String()
	}
	sb.WriteString("| File | Language | Fixed | Attempts |\n")
	sb.WriteString("|---|---|---|---|\n")
	for _, f := range report.Files {
		fixed := "no"
		if f.Fixed {
			fixed = "yes"
		}
		fmt.Fprintf(&sb, "| %s | %s | %s | %d |\n", mdEscape(f.Path), f.Language, fixed, f.Attempts)
	}
	sb.WriteString("\n")

	for _, f := range report.Files {
		if f.Fixed || len(f.Log) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "<details>\n<summary><strong>%s</strong></summary>\n\n", mdEscape(f.Path))
		if f.Error != "" {
			fmt.Fprintf(&sb, "**Error:** %s\n\n", mdEscape(f.Error))
		}
		sb.WriteString("```\n")
		for _, line := range f.Log {
			sb.WriteString(line)
			sb.WriteString("\n")
		}
		sb.WriteString("```\n\n</details>\n\n")
	}
	return sb.String()
}

// mdEscape replaces characters that would break Markdown table cells.
func mdEscape(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", "")
	return s
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
