// Package llm handles LLM provider communication and the free-form source
// rewrite used when no heuristic patch applies.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/dshills/diagfix/internal/diagnostic"
	"github.com/dshills/diagfix/internal/profile"
)

// ErrEmptyRewrite is returned when the model answers with no usable source.
var ErrEmptyRewrite = errors.New("llm: empty rewrite")

// Provider is the interface for LLM backends.
type Provider interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, temperature float64) (string, error)
}

// NewProvider is the factory for creating LLM providers. It is a package-level
// variable so tests can replace it with a mock without modifying the call site.
// Tests must restore the original value; use t.Cleanup to do so safely.
var NewProvider func(providerName, model string) (Provider, error) = defaultNewProvider

// Options configures a Rewriter.
type Options struct {
	Provider    string
	Model       string
	MaxTokens   int
	Temperature float64
	Debug       bool
}

// DefaultModel returns the model used for providerName when none is configured.
func DefaultModel(providerName string) string {
	switch strings.ToLower(providerName) {
	case "openai":
		return "gpt-4o"
	case "google":
		return "gemini-1.5-pro"
	default:
		return "claude-sonnet-4-5"
	}
}

// Rewriter asks a model for a corrected version of a diagram source.
type Rewriter struct {
	opts   Options
	logger *slog.Logger
}

// NewRewriter returns a Rewriter. The provider is created per call, so a
// missing API key only surfaces when a rewrite is actually needed.
func NewRewriter(opts Options, logger *slog.Logger) *Rewriter {
	if opts.Model == "" {
		opts.Model = DefaultModel(opts.Provider)
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 4096
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Rewriter{opts: opts, logger: logger}
}

// Rewrite returns the model's corrected source for code.
func (r *Rewriter) Rewrite(ctx context.Context, lang diagnostic.Language, code string, errs []diagnostic.Error) (string, error) {
	provider, err := NewProvider(r.opts.Provider, r.opts.Model)
	if err != nil {
		return "", fmt.Errorf("llm: create provider: %w", err)
	}

	sysPrompt := buildSystemPrompt(lang)
	userPrompt := buildUserPrompt(code, errs)
	if r.opts.Debug {
		fmt.Fprintf(os.Stderr, "=== DEBUG: system prompt ===\n%s\n", sysPrompt)
		fmt.Fprintf(os.Stderr, "=== DEBUG: user prompt ===\n%s\n", userPrompt)
	}

	r.logger.Info("requesting llm rewrite", "provider", r.opts.Provider, "model", r.opts.Model,
		"language", lang, "errors", len(errs))
	raw, err := provider.Complete(ctx, sysPrompt, userPrompt, r.opts.MaxTokens, r.opts.Temperature)
	if err != nil {
		return "", fmt.Errorf("llm: complete: %w", err)
	}

	fixed := StripFences(raw)
	if fixed == "" {
		return "", ErrEmptyRewrite
	}
	return fixed, nil
}

// fenceRe matches a markdown code fence block (``` or ~~~) with an optional
// language tag anywhere in the response and captures its content.
var fenceRe = regexp.MustCompile("(?s)(?:`{3}|~{3})[^\\n]*\\n(.*?)(?:`{3}|~{3})")

var (
	// openFenceRe matches a stray opening fence line.
	openFenceRe = regexp.MustCompile("^(?:`{3}|~{3})[^\\n]*\\n?")
	// closeFenceRe matches a stray closing fence.
	closeFenceRe = regexp.MustCompile("\\n?(?:`{3}|~{3})\\s*$")
)

// StripFences extracts source from a model response. A complete fenced block
// wins; otherwise stray leading and trailing fence markers are removed, which
// also covers responses truncated before the closing fence.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	s = openFenceRe.ReplaceAllString(s, "")
	s = closeFenceRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// buildSystemPrompt assembles the LLM system prompt.
func buildSystemPrompt(lang diagnostic.Language) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "You are an expert in %s diagrams. ", lang)
	sb.WriteString("The user will give you diagram source that fails validation, " +
		"together with the errors reported for it.\n\n")
	sb.WriteString("Return ONLY the complete corrected source. " +
		"No markdown code fences, no prose, no explanation.\n\n")
	sb.WriteString("Preserve the author's intent, labels and structure. " +
		"Change only what is needed to make the diagram valid.\n\n")

	p, err := profile.Load(lang.Notation())
	if err != nil {
		p, _ = profile.Load("generic")
	}
	sb.WriteString(p.SystemPromptAddendum)
	sb.WriteString("\n")
	return sb.String()
}

// buildUserPrompt lists the errors, one "<kind>: <message> (Line <line>)"
// entry per line, followed by the source.
func buildUserPrompt(code string, errs []diagnostic.Error) string {
	lines := make([]string, len(errs))
	for i, e := range errs {
		lines[i] = e.String()
	}

	var sb strings.Builder
	sb.WriteString("Errors:\n")
	sb.WriteString(strings.Join(lines, "\n"))
	sb.WriteString("\n\nSource:\n")
	sb.WriteString(code)
	return sb.String()
}
