// Package detect classifies raw diagram source into a notation by content
// sniffing. Detection is pure and total.
package detect

import (
	"regexp"
	"strings"

	"github.com/dshills/diagfix/internal/diagnostic"
)

var (
	// definitionsRe matches a BPMN root element, namespaced or not.
	definitionsRe = regexp.MustCompile(`<(?:[A-Za-z_][\w.-]*:)?definitions[\s>/]`)
	startTagRe    = regexp.MustCompile(`(?i)@start\w+`)
)

// mermaidKeywords are the diagram-type keywords that may open a Mermaid document.
var mermaidKeywords = map[string]bool{
	"flowchart":          true,
	"graph":              true,
	"sequenceDiagram":    true,
	"classDiagram":       true,
	"stateDiagram":       true,
	"stateDiagram-v2":    true,
	"erDiagram":          true,
	"journey":            true,
	"gantt":              true,
	"gitGraph":           true,
	"timeline":           true,
	"mindmap":            true,
	"quadrantChart":      true,
	"sankey":             true,
	"sankey-beta":        true,
	"xychart-beta":       true,
	"pie":                true,
	"requirementDiagram": true,
	"c4Context":          true,
	"c4Container":        true,
	"c4Component":        true,
	"c4Dynamic":          true,
	"c4Deployment":       true,
}

// mermaidArrows are edge tokens that strongly suggest Mermaid when no keyword is found.
var mermaidArrows = []string{"-->", "---", "-.-"}

// Detect returns the notation of source. Rules are applied in priority
// order and the first match wins: BPMN, PlantUML, Mermaid keyword, Mermaid
// arrow heuristic, otherwise LanguageUnknown.
func Detect(source string) diagnostic.Language {
	trimmed := strings.TrimSpace(source)

	if IsBPMN(trimmed) {
		return diagnostic.LanguageBPMN
	}
	if startTagRe.MatchString(source) {
		return diagnostic.LanguagePlantUML
	}
	if kw := leadingToken(source); mermaidKeywords[kw] {
		return diagnostic.LanguageMermaid
	}
	for _, arrow := range mermaidArrows {
		if strings.Contains(source, arrow) {
			return diagnostic.LanguageMermaid
		}
	}
	return diagnostic.LanguageUnknown
}

// IsBPMN reports whether trimmed source carries a BPMN structural signature:
// an XML declaration prefix or a definitions root element.
func IsBPMN(trimmed string) bool {
	return strings.HasPrefix(trimmed, "<?xml") || definitionsRe.MatchString(trimmed)
}

// leadingToken returns the first whitespace-delimited token of the first
// line that is neither blank nor a Mermaid comment.
func leadingToken(source string) string {
	for _, line := range strings.Split(source, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "%%") {
			continue
		}
		fields := strings.Fields(line)
		return fields[0]
	}
	return ""
}
