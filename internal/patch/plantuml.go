package patch

import (
	"regexp"
	"strings"

	"github.com/dshills/diagfix/internal/diagnostic"
)

var (
	startTagRe = regexp.MustCompile(`(?i)@start(\w+)`)
	// fieldLineRe splits a line into indentation, optional label, the
	// separating colon and the content after it.
	fieldLineRe = regexp.MustCompile(`(?m)^([ \t]*)([^:\n]*):([^\n]*)$`)
)

// metadataLabels are directive lines whose colons are never rewritten.
var metadataLabels = map[string]bool{
	"title":   true,
	"header":  true,
	"footer":  true,
	"legend":  true,
	"caption": true,
}

// PlantUMLStrategy proposes fixes for PlantUML sources.
type PlantUMLStrategy struct{}

func (PlantUMLStrategy) Language() diagnostic.Language { return diagnostic.LanguagePlantUML }

func (PlantUMLStrategy) Propose(source string, errs []diagnostic.Error) []diagnostic.Patch {
	var out []diagnostic.Patch

	if strings.Contains(source, "timeline") && hasKind(errs, diagnostic.KindParse) {
		if fixed := SanitizeTimelineColons(source); fixed != source {
			out = append(out, diagnostic.Patch{
				Description: "Escape colons inside timeline event labels",
				Confidence:  0.8,
				Apply:       constant(fixed),
			})
		}
	}

	if m := startTagRe.FindStringSubmatch(source); m != nil {
		tag := m[1]
		if !strings.Contains(strings.ToLower(source), "@end"+strings.ToLower(tag)) {
			out = append(out, diagnostic.Patch{
				Description: "Append missing @end" + tag,
				Confidence:  0.95,
				Apply:       constant(source + "\n@end" + tag),
			})
		}
	}
	return out
}

// SanitizeTimelineColons rewrites every colon inside the content part of a
// "label : content" line to " -". The separating colon, the label and the
// indentation are kept verbatim. A line whose first label word is a
// metadata keyword ("title Release: Q1") is left alone, since the directive's
// own text precedes the first colon.
func SanitizeTimelineColons(source string) string {
	return fieldLineRe.ReplaceAllStringFunc(source, func(line string) string {
		m := fieldLineRe.FindStringSubmatch(line)
		indent, label, content := m[1], m[2], m[3]
		if fields := strings.Fields(label); len(fields) > 0 && metadataLabels[strings.ToLower(fields[0])] {
			return line
		}
		if !strings.Contains(content, ":") {
			return line
		}
		return indent + label + ":" + strings.ReplaceAll(content, ":", " -")
	})
}
