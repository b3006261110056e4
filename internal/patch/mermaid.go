package patch

import (
	"regexp"
	"strings"

	"github.com/dshills/diagfix/internal/diagnostic"
)

var (
	initDirectiveRe = regexp.MustCompile(`(?s)%%\{\s*init\s*:.*?\}%%`)
	endsWithEndRe   = regexp.MustCompile(`(?:^|\s)end$`)
)

// MermaidStrategy proposes fixes for common Mermaid grammar failures.
type MermaidStrategy struct{}

func (MermaidStrategy) Language() diagnostic.Language { return diagnostic.LanguageMermaid }

func (MermaidStrategy) Propose(source string, errs []diagnostic.Error) []diagnostic.Patch {
	var out []diagnostic.Patch
	hasParse := hasKind(errs, diagnostic.KindParse)

	if unterminatedBlock(errs) && !endsWithEndRe.MatchString(strings.TrimSpace(source)) {
		out = append(out, diagnostic.Patch{
			Description: "Append missing 'end' keyword",
			Confidence:  0.9,
			Apply:       constant(source + "\nend"),
		})
	}

	// Stripping the init directive only isolates the fault; it is never a
	// guaranteed fix, hence the low confidence.
	if hasParse {
		if loc := initDirectiveRe.FindStringIndex(source); loc != nil {
			out = append(out, diagnostic.Patch{
				Description: "Remove %%{init}%% directive to isolate the error",
				Confidence:  0.6,
				Apply:       constant(source[:loc[0]] + source[loc[1]:]),
			})
		}
	}
	return out
}

// unterminatedBlock reports whether a parse error points at a block that
// was never closed.
func unterminatedBlock(errs []diagnostic.Error) bool {
	for _, e := range errs {
		if e.Kind != diagnostic.KindParse {
			continue
		}
		if strings.Contains(e.Message, "EOF") ||
			strings.Contains(e.Message, "end") ||
			strings.Contains(e.Message, "Expecting") {
			return true
		}
	}
	return false
}
