// Package patch proposes candidate repairs for classified diagram errors.
// Each notation has one Strategy; the Proposer selects it by language,
// removes duplicate candidates and ranks them by confidence.
package patch

import (
	"context"
	"sort"

	"github.com/dshills/diagfix/internal/diagnostic"
)

// Strategy proposes patches for one notation. Propose itself is pure; the
// returned Apply functions may block or fail.
type Strategy interface {
	Language() diagnostic.Language
	Propose(source string, errs []diagnostic.Error) []diagnostic.Patch
}

// Layouter generates BPMN diagram interchange for a document.
type Layouter interface {
	Layout(ctx context.Context, xml string) (string, error)
}

// Proposer aggregates and ranks the candidates of the matching strategy.
type Proposer struct {
	strategies map[diagnostic.Language]Strategy
}

// NewProposer registers strategies by language.
func NewProposer(strategies ...Strategy) *Proposer {
	p := &Proposer{strategies: make(map[diagnostic.Language]Strategy, len(strategies))}
	for _, s := range strategies {
		p.strategies[s.Language()] = s
	}
	return p
}

// Default returns a proposer with the BPMN, Mermaid and PlantUML strategies.
func Default(layouter Layouter) *Proposer {
	return NewProposer(
		BPMNStrategy{Layouter: layouter},
		MermaidStrategy{},
		PlantUMLStrategy{},
	)
}

// Propose returns candidate patches sorted by descending confidence. Ties
// keep proposal order. Candidates with the same description and confidence
// are duplicates; only the first is kept.
func (p *Proposer) Propose(source string, errs []diagnostic.Error, lang diagnostic.Language) []diagnostic.Patch {
	s, ok := p.strategies[lang]
	if !ok {
		return nil
	}

	type key struct {
		desc string
		conf float64
	}
	seen := make(map[key]bool)
	var out []diagnostic.Patch
	for _, c := range s.Propose(source, errs) {
		k := key{c.Description, c.Confidence}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}

// hasKind reports whether any error in errs has kind k.
func hasKind(errs []diagnostic.Error, k diagnostic.ErrorKind) bool {
	for _, e := range errs {
		if e.Kind == k {
			return true
		}
	}
	return false
}

// constant returns an ApplyFunc that ignores its input and yields out.
func constant(out string) diagnostic.ApplyFunc {
	return func(context.Context, string) (string, error) { return out, nil }
}
