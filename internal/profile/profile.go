// Package profile defines per-notation repair profiles that modulate the LLM
// rewrite prompt. Each profile provides a SystemPromptAddendum that is
// appended to the system prompt sent to the LLM.
package profile

import (
	"fmt"
	"sort"
	"strings"
)

// Profile describes notation-specific repair guidance.
type Profile struct {
	Name                 string
	Description          string
	SystemPromptAddendum string
}

// builtins is the registry of built-in profiles keyed by notation name.
var builtins = map[string]Profile{
	"bpmn": {
		Name:        "bpmn",
		Description: "BPMN 2.0 XML with diagram interchange.",
		SystemPromptAddendum: "The source is BPMN 2.0 XML. Keep every existing element id unchanged. " +
			"Keep the XML declaration and the bpmn, bpmndi, dc and di namespace declarations. " +
			"Every sequenceFlow sourceRef and targetRef must reference an existing flow node id.",
	},
	"mermaid": {
		Name:        "mermaid",
		Description: "Mermaid diagrams of any type.",
		SystemPromptAddendum: "The source is Mermaid. Keep the diagram type keyword on the first line. " +
			"Every subgraph, loop, alt, opt, par and rect block must be closed with 'end'. " +
			"Quote labels that contain parentheses, brackets or colons.",
	},
	"plantuml": {
		Name:        "plantuml",
		Description: "PlantUML diagrams including C4 and mindmaps.",
		SystemPromptAddendum: "The source is PlantUML. It must start with an @start<type> line and end " +
			"with the matching @end<type> line. In timeline diagrams ':' separates fields, so " +
			"literal colons inside labels must be replaced.",
	},
	"generic": {
		Name:        "generic",
		Description: "Fallback guidance for any notation.",
		SystemPromptAddendum: "Keep the notation of the input. Do not convert the diagram into " +
			"another diagram language.",
	},
}

// Load returns the named built-in profile or an error if the name is unknown.
func Load(name string) (Profile, error) {
	p, ok := builtins[strings.ToLower(name)]
	if !ok {
		return Profile{}, fmt.Errorf("profile: unknown profile %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	return p, nil
}

// Names lists the built-in profile names in sorted order.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
