// Package classify maps adapter-reported errors onto the universal error
// taxonomy. No I/O is performed here.
package classify

import (
	"strings"

	"github.com/dshills/diagfix/internal/diagnostic"
)

// rule is one ordered message heuristic.
type rule struct {
	kind    diagnostic.ErrorKind
	needles []string
	// only restricts the rule to one language; empty means all languages.
	only diagnostic.Language
}

// rules are evaluated in order; the first rule with a matching needle wins.
var rules = []rule{
	{kind: diagnostic.KindParse, needles: []string{"syntax", "parse", "unexpected", "token"}},
	{kind: diagnostic.KindReference, needles: []string{"not found", "undefined", "missing id"}},
	{kind: diagnostic.KindVersion, needles: []string{"version", "support"}},
	{kind: diagnostic.KindDILayout, needles: []string{"bounds", "diagram layout"}, only: diagnostic.LanguageBPMN},
}

// Classify returns the error kind for e.
//
// Rules (in order of precedence):
//  1. An adapter-supplied kind other than UNKNOWN is kept as-is.
//  2. Case-insensitive message heuristics: PARSE, REFERENCE, VERSION, then
//     DI_LAYOUT for BPMN only.
//  3. Otherwise UNKNOWN.
//
// RENDERER is never produced here; only adapters may assign it.
func Classify(e diagnostic.Error, lang diagnostic.Language) diagnostic.ErrorKind {
	if e.Kind != "" && e.Kind != diagnostic.KindUnknown {
		return e.Kind
	}

	msg := strings.ToLower(e.Message)
	for _, r := range rules {
		if r.only != "" && r.only != lang {
			continue
		}
		for _, n := range r.needles {
			if strings.Contains(msg, n) {
				return r.kind
			}
		}
	}
	return diagnostic.KindUnknown
}

// All classifies every error in errs and returns a new slice with kinds set.
func All(errs []diagnostic.Error, lang diagnostic.Language) []diagnostic.Error {
	out := make([]diagnostic.Error, len(errs))
	for i, e := range errs {
		e.Kind = Classify(e, lang)
		out[i] = e
	}
	return out
}

// CountByKind aggregates classified errors by kind.
func CountByKind(errs []diagnostic.Error) map[diagnostic.ErrorKind]int {
	counts := make(map[diagnostic.ErrorKind]int)
	for _, e := range errs {
		counts[e.Kind]++
	}
	return counts
}
