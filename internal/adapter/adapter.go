// Package adapter wraps each notation's validation procedure behind one
// uniform contract. Validate never fails for invalid diagrams: those are
// reported in the result. Only transport failures are returned as errors.
package adapter

import (
	"context"
	"errors"
	"fmt"

	"github.com/dshills/diagfix/internal/diagnostic"
	"github.com/dshills/diagfix/internal/oracle"
)

// ErrUnsupported is returned by Registry.For when no adapter exists for a language.
var ErrUnsupported = errors.New("adapter: unsupported notation")

// Adapter validates source in one notation.
type Adapter interface {
	Language() diagnostic.Language
	Validate(ctx context.Context, source string) (diagnostic.ValidationResult, error)
}

// SyntaxChecker is the remote oracle's syntax-check surface.
type SyntaxChecker interface {
	SyntaxCheck(ctx context.Context, source, notation string) (oracle.CheckResult, error)
}

// Kinded is implemented by errors that carry their own classification.
type Kinded interface {
	ErrorKind() diagnostic.ErrorKind
}

// Registry selects an adapter by detected language.
type Registry map[diagnostic.Language]Adapter

// NewRegistry builds a registry keyed by each adapter's language.
func NewRegistry(adapters ...Adapter) Registry {
	r := make(Registry, len(adapters))
	for _, a := range adapters {
		r[a.Language()] = a
	}
	return r
}

// Default returns the standard registry: local BPMN validation, and Mermaid
// and PlantUML validation delegated to checker.
func Default(checker SyntaxChecker) Registry {
	return NewRegistry(
		BPMN{},
		Mermaid{Parser: OracleParser{Checker: checker}},
		PlantUML{Checker: checker},
	)
}

// For returns the adapter for lang.
func (r Registry) For(lang diagnostic.Language) (Adapter, error) {
	a, ok := r[lang]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, lang)
	}
	return a, nil
}
