package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dshills/diagfix/internal/autofix"
	"github.com/dshills/diagfix/internal/markdown"
	"github.com/dshills/diagfix/internal/render"
	"github.com/dshills/diagfix/internal/workspace"
)

type fixFlags struct {
	files    []string
	dir      string
	ignore   []string
	write    bool
	format   string
	out      string
	notation string
	errMsg   string
	errLine  int
	noLLM    bool
	noColor  bool
	verbose  bool
}

func newFixCmd(c *cli) *cobra.Command {
	var f fixFlags
	cmd := &cobra.Command{
		Use:   "fix [FILE...]",
		Short: "Repair diagram sources until they validate",
		Long: `fix runs an auto-fix session per diagram: validate, classify the errors,
apply the best heuristic patch (or ask the LLM for a rewrite) and repeat.

Exit codes: 0 all fixed or valid, 2 some not fixed, 3 bad input,
4 rendering service or LLM transport failure.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f.files = args
			cfg, err := c.config()
			if err != nil {
				return err
			}
			return runFix(cmd.Context(), newApp(cfg, f.noLLM), f, cmd.OutOrStdout())
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.dir, "dir", "", "fix every diagram file under DIR")
	fl.StringSliceVar(&f.ignore, "ignore", nil, "extra directory names to skip with --dir")
	fl.BoolVarP(&f.write, "write", "w", false, "write fixed sources back to their files")
	fl.StringVar(&f.format, "format", "text", "report format: text, json or markdown")
	fl.StringVarP(&f.out, "out", "o", "", "write the report to a file instead of stdout")
	fl.StringVar(&f.notation, "notation", "", "notation hint when detection fails")
	fl.StringVar(&f.errMsg, "error", "", "error already reported for the (single) file")
	fl.IntVar(&f.errLine, "error-line", 0, "line of --error, if known")
	fl.BoolVar(&f.noLLM, "no-llm", false, "disable the LLM rewrite fallback")
	fl.BoolVar(&f.noColor, "no-color", false, "disable coloured text output")
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "print every session log")
	fl.Int("jobs", 0, "files fixed in parallel")
	fl.Int("max-attempts", 0, "validate/patch cycles per file")
	c.bind("fix.jobs", fl.Lookup("jobs"))
	c.bind("fix.max_attempts", fl.Lookup("max-attempts"))
	return cmd
}

func runFix(ctx context.Context, a *app, f fixFlags, stdout io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	switch f.format {
	case "text", "json", "markdown":
	default:
		return badInput("unknown --format %q (want text, json or markdown)", f.format)
	}
	if (len(f.files) == 0) == (f.dir == "") {
		return badInput("give either FILE arguments or --dir")
	}

	var files []workspace.File
	if f.dir != "" {
		found, err := workspace.Scan(f.dir, f.ignore)
		if err != nil {
			return badInput("%v", err)
		}
		files = found
	} else {
		for _, p := range f.files {
			files = append(files, workspace.File{
				Path:     p,
				Abs:      p,
				Language: workspace.LanguageOf(p),
				Markdown: workspace.IsMarkdown(p),
			})
		}
	}
	if len(files) == 0 {
		return badInput("no diagram files found under %s", f.dir)
	}

	var units []unit
	docs := make(map[int]string)
	for i, file := range files {
		src, err := file.Read()
		if err != nil {
			return badInput("%v", err)
		}
		hint := f.notation
		if hint == "" {
			hint = file.Language.Notation()
		}
		if !file.Markdown {
			units = append(units, unit{file: i, block: -1, path: file.Path, source: src, notation: hint})
			continue
		}
		docs[i] = src
		for j, b := range markdown.Extract(src) {
			units = append(units, unit{
				file:     i,
				block:    j,
				path:     fmt.Sprintf("%s:%d", file.Path, b.LineStart),
				source:   b.Code,
				notation: b.Language.Notation(),
				md:       b,
			})
		}
	}
	if len(units) == 0 {
		return badInput("no diagrams found")
	}
	if f.errMsg != "" && len(units) != 1 {
		return badInput("--error applies to exactly one diagram")
	}

	paths := make([]string, len(units))
	sources := make([]string, len(units))
	inputs := make([]autofix.Input, len(units))
	for i, u := range units {
		paths[i], sources[i] = u.path, u.source
		inputs[i] = autofix.Input{Code: u.source, Notation: u.notation}
	}
	if f.errMsg != "" {
		var line *int
		if f.errLine > 0 {
			line = &f.errLine
		}
		inputs[0].Existing = autofix.Reported(f.errMsg, line)
	}

	a.logger.Info("fixing diagrams", "diagrams", len(inputs), "files", len(files), "jobs", a.cfg.Fix.Jobs)
	results := autofix.FixAll(ctx, a.fixer, inputs, a.cfg.Fix.Jobs)
	report := render.NewReport(version, paths, sources, results)

	if f.write {
		if err := writeBack(a, files, docs, units, report); err != nil {
			return err
		}
	}

	if err := writeReport(report, f, stdout); err != nil {
		return err
	}

	switch {
	case report.Summary.Errors > 0:
		for _, r := range results {
			if r.Err != nil {
				return &exitError{code: exitCodeTransport, err: r.Err}
			}
		}
	case report.Summary.Fixed < report.Summary.Total:
		return &exitError{
			code: exitCodeNotFixed,
			err:  fmt.Errorf("%d of %d diagrams not fixed", report.Summary.Total-report.Summary.Fixed, report.Summary.Total),
		}
	}
	return nil
}

// unit is one diagram: a whole diagram file or one Markdown block.
type unit struct {
	file     int
	block    int // -1 for whole files
	path     string
	source   string
	notation string
	md       markdown.Block
}

// writeBack stores every fixed and changed diagram. Markdown documents are
// rewritten once with all of their fixed blocks spliced in.
func writeBack(a *app, files []workspace.File, docs map[int]string, units []unit, report *render.Report) error {
	blocks := make(map[int][]markdown.Block)
	codes := make(map[int][]string)
	for i, u := range units {
		fr := report.Files[i]
		if !fr.Fixed || !fr.Changed {
			continue
		}
		if u.block < 0 {
			if err := files[u.file].Write(fr.Code); err != nil {
				return err
			}
			a.logger.Info("wrote fixed source", "path", fr.Path)
			continue
		}
		blocks[u.file] = append(blocks[u.file], u.md)
		codes[u.file] = append(codes[u.file], fr.Code)
	}
	for i, bs := range blocks {
		doc := markdown.Replace(docs[i], bs, codes[i])
		if err := files[i].Write(doc); err != nil {
			return err
		}
		a.logger.Info("wrote fixed markdown", "path", files[i].Path, "blocks", len(bs))
	}
	return nil
}

func writeReport(report *render.Report, f fixFlags, stdout io.Writer) error {
	w := stdout
	if f.out != "" {
		file, err := os.Create(f.out)
		if err != nil {
			return fmt.Errorf("create report: %w", err)
		}
		defer file.Close()
		w = file
	}

	switch f.format {
	case "json":
		b, err := render.RenderJSON(report)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	case "markdown":
		_, err := io.WriteString(w, render.RenderMarkdown(report))
		return err
	default:
		colored := !f.noColor && f.out == "" && !color.NoColor && w == io.Writer(os.Stdout)
		return render.RenderText(w, report, colored, f.verbose)
	}
}
