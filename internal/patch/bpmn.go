package patch

import (
	"context"

	"github.com/dshills/diagfix/internal/diagnostic"
)

// GenerateDIDescription describes the BPMN auto-layout patch.
const GenerateDIDescription = "Generate BPMN Diagram Layout (DI)"

// BPMNStrategy repairs missing diagram layout with the auto-layout engine.
type BPMNStrategy struct {
	Layouter Layouter
}

func (BPMNStrategy) Language() diagnostic.Language { return diagnostic.LanguageBPMN }

func (s BPMNStrategy) Propose(_ string, errs []diagnostic.Error) []diagnostic.Patch {
	if !hasKind(errs, diagnostic.KindDILayout) || s.Layouter == nil {
		return nil
	}
	return []diagnostic.Patch{{
		Description: GenerateDIDescription,
		Confidence:  0.95,
		Apply: func(ctx context.Context, source string) (string, error) {
			return s.Layouter.Layout(ctx, source)
		},
	}}
}
