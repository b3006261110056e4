package adapter

import (
	"context"

	"github.com/dshills/diagfix/internal/diagnostic"
)

// PlantUML validates PlantUML source through the remote oracle's syntax
// check; there is no client-side parser for this notation.
type PlantUML struct {
	Checker SyntaxChecker
}

func (PlantUML) Language() diagnostic.Language { return diagnostic.LanguagePlantUML }

func (p PlantUML) Validate(ctx context.Context, source string) (diagnostic.ValidationResult, error) {
	res, err := p.Checker.SyntaxCheck(ctx, source, "plantuml")
	if err != nil {
		return diagnostic.ValidationResult{}, err
	}
	if res.Valid {
		return diagnostic.Valid(), nil
	}
	msg := res.Error
	if msg == "" {
		msg = "PlantUML syntax error"
	}
	return diagnostic.Invalid(diagnostic.Error{
		Kind:    diagnostic.KindParse,
		Message: msg,
		Line:    res.Line,
		Raw:     res,
	}), nil
}
