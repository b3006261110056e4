// Package autofix is the closed-loop repair orchestrator. It detects the
// notation once, then validates, classifies, proposes and applies patches
// until the source validates or the attempt budget runs out, falling back to
// an LLM rewrite when no heuristic patch exists.
package autofix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dshills/diagfix/internal/adapter"
	"github.com/dshills/diagfix/internal/classify"
	"github.com/dshills/diagfix/internal/detect"
	"github.com/dshills/diagfix/internal/diagnostic"
	"github.com/dshills/diagfix/internal/oracle"
)

// MaxAttempts is the number of validate/patch cycles per session.
const MaxAttempts = 3

// Adapters selects a validation adapter by language.
type Adapters interface {
	For(lang diagnostic.Language) (adapter.Adapter, error)
}

// Proposer returns ranked candidate patches.
type Proposer interface {
	Propose(source string, errs []diagnostic.Error, lang diagnostic.Language) []diagnostic.Patch
}

// Rewriter produces a free-form corrected source.
type Rewriter interface {
	Rewrite(ctx context.Context, lang diagnostic.Language, code string, errs []diagnostic.Error) (string, error)
}

// Fixer runs auto-fix sessions. A Fixer holds no per-session state, so one
// value may serve concurrent sessions.
type Fixer struct {
	Adapters Adapters
	Proposer Proposer
	// Rewriter is optional; nil disables the LLM fallback.
	Rewriter Rewriter
	Logger   *slog.Logger
	// MaxAttempts overrides the package default when positive.
	MaxAttempts int
}

// Input is one auto-fix request.
type Input struct {
	Code string
	// Notation is consulted only when detection yields UNKNOWN.
	Notation string
	// Existing seeds the first attempt with an error already observed by
	// the caller instead of validating again.
	Existing error
}

// Result is the outcome of a session.
type Result struct {
	Fixed    bool                `json:"fixed"`
	Code     string              `json:"code"`
	Language diagnostic.Language `json:"language"`
	Attempts int                 `json:"attempts"`
	Log      []string            `json:"log"`
}

// ReportedError is an error observed outside the session, e.g. by a
// rendering preview.
type ReportedError struct {
	Message string
	Line    *int
}

func (e *ReportedError) Error() string { return e.Message }

// Reported wraps an externally observed error message for Input.Existing.
func Reported(message string, line *int) error {
	return &ReportedError{Message: message, Line: line}
}

// Attempt runs one session. The returned error is non-nil only when the
// validation transport fails or ctx is done; the Result still carries the
// last good code and the log in that case.
func (f *Fixer) Attempt(ctx context.Context, in Input) (Result, error) {
	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxAttempts := f.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = MaxAttempts
	}

	lang := detect.Detect(in.Code)
	if lang == diagnostic.LanguageUnknown && in.Notation != "" {
		lang = diagnostic.ParseLanguage(in.Notation)
	}
	s := diagnostic.NewSession(lang, in.Code).Logf("Detected language: %s", lang)
	logger = logger.With("language", lang)

	a, err := f.Adapters.For(lang)
	if err != nil {
		s = s.Logf("No adapter available for %s; cannot auto-fix", lang)
		logger.Info("unsupported notation")
		return finish(s, false), nil
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		s = s.WithAttempt(attempt).Logf("Attempt %d/%d", attempt, maxAttempts)
		logger.Debug("auto-fix attempt", "attempt", attempt)
		if err := ctx.Err(); err != nil {
			s = s.Logf("Cancelled: %v", err)
			return finish(s, false), err
		}

		var res diagnostic.ValidationResult
		if attempt == 1 && in.Existing != nil {
			res = diagnostic.Invalid(existingError(in.Existing))
			s = s.Logf("Using reported error instead of validating")
		} else {
			res, err = a.Validate(ctx, s.Code)
			if err != nil {
				s = s.Logf("Validation failed: %v", err)
				logger.Warn("validation transport failure", "error", err)
				return finish(s, false), fmt.Errorf("autofix: validate: %w", err)
			}
		}

		if res.Valid {
			s = s.Logf("Validation passed")
			return finish(s, true), nil
		}
		if len(res.Errors) == 0 {
			res.Errors = []diagnostic.Error{{Kind: diagnostic.KindUnknown, Message: "validation failed"}}
		}

		errs := classify.All(res.Errors, lang)
		for _, e := range errs {
			s = s.Logf("Error: %s", e)
		}

		patches := f.Proposer.Propose(s.Code, errs, lang)
		if len(patches) == 0 {
			var ok bool
			s, ok = f.rewrite(ctx, logger, s, errs)
			if !ok {
				return finish(s, false), nil
			}
			continue
		}

		best := patches[0]
		s = s.Logf("Applying patch: %s (confidence %.2f)", best.Description, best.Confidence)
		logger.Info("applying patch", "patch", best.Description, "confidence", best.Confidence)
		out, err := best.Apply(ctx, s.Code)
		if err != nil {
			s = s.Logf("Patch failed: %v", err)
			logger.Warn("patch failed", "patch", best.Description, "error", err)
			return finish(s, false), nil
		}
		s = s.WithCode(out)
	}

	s = s.Logf("Giving up after %d attempts", maxAttempts)
	return finish(s, false), nil
}

// rewrite runs the LLM fallback. It reports false when the session must stop.
func (f *Fixer) rewrite(ctx context.Context, logger *slog.Logger, s diagnostic.Session, errs []diagnostic.Error) (diagnostic.Session, bool) {
	if f.Rewriter == nil {
		return s.Logf("No heuristic patch found and LLM fallback is disabled"), false
	}
	s = s.Logf("No heuristic patch found; requesting LLM rewrite")
	logger.Info("llm fallback")
	out, err := f.Rewriter.Rewrite(ctx, s.Language, s.Code, errs)
	if err != nil {
		logger.Warn("llm rewrite failed", "error", err)
		return s.Logf("LLM rewrite failed: %v", err), false
	}
	return s.WithCode(out).Logf("Applied LLM rewrite"), true
}

func finish(s diagnostic.Session, fixed bool) Result {
	log := s.Log
	if log == nil {
		log = []string{}
	}
	return Result{Fixed: fixed, Code: s.Code, Language: s.Language, Attempts: s.Attempt, Log: log}
}

// existingError turns a caller-supplied error into an unclassified diagnostic.
func existingError(err error) diagnostic.Error {
	e := diagnostic.Error{Kind: diagnostic.KindUnknown, Message: err.Error(), Raw: err}

	var re *oracle.RenderError
	var rep *ReportedError
	switch {
	case errors.As(err, &re):
		e.Message, e.Line = re.Message, re.Line
		if re.Kind != "" {
			e.Kind = re.Kind
		}
	case errors.As(err, &rep):
		e.Line = rep.Line
	}
	if e.Line == nil {
		e.Line = oracle.ExtractLine(e.Message)
	}
	return e
}
