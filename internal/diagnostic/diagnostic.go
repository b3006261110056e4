// Package diagnostic defines the canonical data types shared by the detector,
// adapters, classifier, patch strategies and the auto-fix orchestrator.
package diagnostic

import (
	"context"
	"fmt"
	"strings"
)

// Language is a supported diagram notation.
type Language string

const (
	LanguageBPMN     Language = "BPMN"
	LanguagePlantUML Language = "PLANTUML"
	LanguageMermaid  Language = "MERMAID"
	LanguageUnknown  Language = "UNKNOWN"
)

// ParseLanguage maps a user- or UI-supplied notation hint to a Language.
// Unrecognized hints map to LanguageUnknown.
func ParseLanguage(s string) Language {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bpmn", "bpmn2", "bpmn-js":
		return LanguageBPMN
	case "plantuml", "puml", "c4plantuml":
		return LanguagePlantUML
	case "mermaid", "mmd":
		return LanguageMermaid
	default:
		return LanguageUnknown
	}
}

// Notation returns the lower-case notation name used by the rendering
// service, or "" for LanguageUnknown.
func (l Language) Notation() string {
	switch l {
	case LanguageBPMN:
		return "bpmn"
	case LanguagePlantUML:
		return "plantuml"
	case LanguageMermaid:
		return "mermaid"
	default:
		return ""
	}
}

// ErrorKind is the universal error taxonomy assigned by the classifier.
type ErrorKind string

const (
	KindParse     ErrorKind = "PARSE"
	KindReference ErrorKind = "REFERENCE"
	KindVersion   ErrorKind = "VERSION"
	KindDILayout  ErrorKind = "DI_LAYOUT"
	// KindRenderer is reserved for adapters; the classifier never assigns it.
	KindRenderer ErrorKind = "RENDERER"
	KindUnknown  ErrorKind = "UNKNOWN"
)

// Error is one detected defect in a diagram source.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	// Line and Column are 1-based; nil when the validator cannot localize the fault.
	Line   *int `json:"line,omitempty"`
	Column *int `json:"column,omitempty"`
	// Raw is the adapter-specific payload, kept for logging only.
	Raw any `json:"-"`
}

// String formats the error as "<kind>: <message> (Line <line>)".
func (e Error) String() string {
	line := "?"
	if e.Line != nil {
		line = fmt.Sprintf("%d", *e.Line)
	}
	return fmt.Sprintf("%s: %s (Line %s)", e.Kind, e.Message, line)
}

// IntPtr returns a pointer to n.
func IntPtr(n int) *int { return &n }

// ValidationResult is the uniform result of an adapter validation.
// Errors is non-empty whenever Valid is false.
type ValidationResult struct {
	Valid  bool    `json:"valid"`
	Errors []Error `json:"errors"`
}

// Valid returns a successful validation result.
func Valid() ValidationResult {
	return ValidationResult{Valid: true, Errors: []Error{}}
}

// Invalid returns a failed validation result carrying errs.
func Invalid(errs ...Error) ValidationResult {
	return ValidationResult{Valid: false, Errors: errs}
}

// ApplyFunc transforms the current source into repaired source. It may block
// (e.g. running the auto-layout engine) and may fail.
type ApplyFunc func(ctx context.Context, source string) (string, error)

// Patch is one candidate repair. Patches are built fresh for every attempt
// and never reused.
type Patch struct {
	Description string
	// Confidence lies in [0,1]; higher wins.
	Confidence float64
	Apply      ApplyFunc
}

// Session is the working state of one auto-fix run. It is passed by value;
// every mutation returns a new Session.
type Session struct {
	Language Language
	Code     string
	Attempt  int
	Log      []string
}

// NewSession starts a session for code in the detected language.
func NewSession(lang Language, code string) Session {
	return Session{Language: lang, Code: code}
}

// WithCode returns a copy of s whose current code is code.
func (s Session) WithCode(code string) Session {
	s.Code = code
	return s
}

// WithAttempt returns a copy of s positioned at attempt n.
func (s Session) WithAttempt(n int) Session {
	s.Attempt = n
	return s
}

// Logf returns a copy of s with one formatted trace line appended. The
// returned session never shares its log backing array with s.
func (s Session) Logf(format string, args ...any) Session {
	log := make([]string, len(s.Log), len(s.Log)+1)
	copy(log, s.Log)
	s.Log = append(log, fmt.Sprintf(format, args...))
	return s
}
