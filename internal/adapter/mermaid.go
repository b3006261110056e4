package adapter

import (
	"context"
	"errors"
	"regexp"
	"strconv"

	"github.com/dshills/diagfix/internal/diagnostic"
	"github.com/dshills/diagfix/internal/oracle"
)

// MermaidParser parses Mermaid source and fails on invalid input.
type MermaidParser interface {
	Parse(ctx context.Context, source string) error
}

// ParseError is a grammar failure reported by a MermaidParser.
type ParseError struct {
	Message string
	Line    *int
	Kind    diagnostic.ErrorKind
}

func (e *ParseError) Error() string { return e.Message }

// ErrorKind reports the parser-supplied classification, if any.
func (e *ParseError) ErrorKind() diagnostic.ErrorKind { return e.Kind }

// OracleParser parses Mermaid through the remote rendering service.
type OracleParser struct {
	Checker SyntaxChecker
}

func (p OracleParser) Parse(ctx context.Context, source string) error {
	res, err := p.Checker.SyntaxCheck(ctx, source, "mermaid")
	if err != nil {
		return err
	}
	if res.Valid {
		return nil
	}
	return &ParseError{Message: res.Error, Line: res.Line, Kind: res.Kind}
}

// Mermaid validates Mermaid source with a MermaidParser.
type Mermaid struct {
	Parser MermaidParser
}

func (Mermaid) Language() diagnostic.Language { return diagnostic.LanguageMermaid }

func (m Mermaid) Validate(ctx context.Context, source string) (diagnostic.ValidationResult, error) {
	err := m.Parser.Parse(ctx, source)
	if err == nil {
		return diagnostic.Valid(), nil
	}
	if errors.Is(err, oracle.ErrTransport) {
		return diagnostic.ValidationResult{}, err
	}
	return diagnostic.Invalid(NormalizeMermaidError(err)), nil
}

var onLineRe = regexp.MustCompile(`on line (\d+)`)

// NormalizeMermaidError converts a parser failure into a diagnostic. The kind
// is PARSE unless the error already carries a more specific classification.
func NormalizeMermaidError(err error) diagnostic.Error {
	e := diagnostic.Error{Kind: diagnostic.KindParse, Message: err.Error(), Raw: err}

	var k Kinded
	if errors.As(err, &k) {
		if kind := k.ErrorKind(); kind != "" && kind != diagnostic.KindUnknown {
			e.Kind = kind
		}
	}

	if m := onLineRe.FindStringSubmatch(e.Message); m != nil {
		if n, convErr := strconv.Atoi(m[1]); convErr == nil {
			e.Line = diagnostic.IntPtr(n)
		}
	} else {
		var pe *ParseError
		if errors.As(err, &pe) {
			e.Line = pe.Line
		}
	}
	if e.Message == "" {
		e.Message = "Mermaid parse error"
	}
	return e
}
