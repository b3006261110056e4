package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/diagfix/internal/classify"
	"github.com/dshills/diagfix/internal/detect"
	"github.com/dshills/diagfix/internal/diagnostic"
	"github.com/dshills/diagfix/internal/oracle"
	"github.com/dshills/diagfix/internal/server"
	"github.com/dshills/diagfix/internal/workspace"
)

func readSource(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", badInput("%v", err)
	}
	return string(b), nil
}

// language detects the notation of src, falling back to the explicit hint
// and then to the file extension.
func language(path, src, hint string) diagnostic.Language {
	lang := detect.Detect(src)
	if lang == diagnostic.LanguageUnknown && hint != "" {
		lang = diagnostic.ParseLanguage(hint)
	}
	if lang == diagnostic.LanguageUnknown {
		lang = workspace.LanguageOf(path)
	}
	return lang
}

// ── detect ─────────────────────────────────────────────────────────────────

func newDetectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detect FILE...",
		Short: "Print the detected notation of each file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDetect(args, cmd.OutOrStdout())
		},
	}
}

func runDetect(paths []string, w io.Writer) error {
	for _, p := range paths {
		src, err := readSource(p)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\n", p, detect.Detect(src))
	}
	return nil
}

// ── validate ───────────────────────────────────────────────────────────────

type validateFlags struct {
	notation string
	format   string
}

func newValidateCmd(c *cli) *cobra.Command {
	var f validateFlags
	cmd := &cobra.Command{
		Use:   "validate FILE",
		Short: "Validate a diagram and print its classified errors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.config()
			if err != nil {
				return err
			}
			return runValidate(cmd.Context(), newApp(cfg, true), args[0], f, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&f.notation, "notation", "", "notation hint when detection fails")
	cmd.Flags().StringVar(&f.format, "format", "text", "output format: text or json")
	return cmd
}

func runValidate(ctx context.Context, a *app, path string, f validateFlags, w io.Writer) error {
	src, err := readSource(path)
	if err != nil {
		return err
	}
	lang := language(path, src, f.notation)
	ad, err := a.adapters.For(lang)
	if err != nil {
		return exitFor(err)
	}
	res, err := ad.Validate(ctx, src)
	if err != nil {
		return exitFor(err)
	}
	res.Errors = classify.All(res.Errors, lang)

	if f.format == "json" {
		b, err := json.MarshalIndent(struct {
			Language diagnostic.Language `json:"language"`
			diagnostic.ValidationResult
		}{lang, res}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(b))
	} else {
		if res.Valid {
			fmt.Fprintf(w, "%s: valid %s\n", path, lang)
		}
		for _, e := range res.Errors {
			fmt.Fprintf(w, "%s: %s\n", path, e)
		}
	}
	if !res.Valid {
		return &exitError{code: exitCodeNotFixed, err: fmt.Errorf("%s: %d error(s)", path, len(res.Errors))}
	}
	return nil
}

// ── layout ─────────────────────────────────────────────────────────────────

func newLayoutCmd(c *cli) *cobra.Command {
	var out string
	var write bool
	cmd := &cobra.Command{
		Use:   "layout FILE",
		Short: "Generate BPMN diagram interchange (DI) for a process or collaboration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.config()
			if err != nil {
				return err
			}
			if write {
				out = args[0]
			}
			return runLayout(cmd.Context(), newApp(cfg, true), args[0], out, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the result to a file instead of stdout")
	cmd.Flags().BoolVarP(&write, "write", "w", false, "replace FILE with the result")
	return cmd
}

func runLayout(ctx context.Context, a *app, path, out string, w io.Writer) error {
	src, err := readSource(path)
	if err != nil {
		return err
	}
	result, err := a.engine.Layout(ctx, src)
	if err != nil {
		return exitFor(err)
	}
	if out == "" {
		_, err = io.WriteString(w, result+"\n")
		return err
	}
	return os.WriteFile(out, []byte(result), 0o644)
}

// ── render ─────────────────────────────────────────────────────────────────

type renderFlags struct {
	out      string
	notation string
	format   string
}

func newRenderCmd(c *cli) *cobra.Command {
	var f renderFlags
	cmd := &cobra.Command{
		Use:   "render FILE",
		Short: "Render a diagram through the rendering service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.config()
			if err != nil {
				return err
			}
			return runRender(cmd.Context(), newApp(cfg, true), args[0], f)
		},
	}
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "output file (required)")
	cmd.Flags().StringVar(&f.notation, "notation", "", "service notation, e.g. c4plantuml or vegalite (default: detected)")
	cmd.Flags().StringVar(&f.format, "format", "svg", "output format: svg, png or pdf")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func runRender(ctx context.Context, a *app, path string, f renderFlags) error {
	if f.out == "" {
		return badInput("--out is required")
	}
	src, err := readSource(path)
	if err != nil {
		return err
	}
	notation := f.notation
	if notation == "" {
		notation = language(path, src, "").Notation()
	}
	if !oracle.Notations[notation] {
		return badInput("cannot render %s: unknown notation %q (use --notation)", path, notation)
	}

	b, err := a.oracle.Render(ctx, src, notation, f.format)
	if err != nil {
		var re *oracle.RenderError
		if errors.As(err, &re) {
			return &exitError{code: exitCodeNotFixed, err: err}
		}
		return exitFor(err)
	}
	if err := os.WriteFile(f.out, b, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", f.out, err)
	}
	a.logger.Info("rendered diagram", "path", path, "notation", notation, "out", f.out, "bytes", len(b))
	return nil
}

// ── serve ──────────────────────────────────────────────────────────────────

func newServeCmd(c *cli) *cobra.Command {
	var noLLM bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the detect/validate/autofix/layout HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.config()
			if err != nil {
				return err
			}
			a := newApp(cfg, noLLM)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return server.New(cfg.Server.Port, a.fixer, a.adapters, a.engine, a.logger).Run(ctx)
		},
	}
	cmd.Flags().String("port", "", "listen port")
	cmd.Flags().BoolVar(&noLLM, "no-llm", false, "disable the LLM rewrite fallback")
	c.bind("server.port", cmd.Flags().Lookup("port"))
	return cmd
}
