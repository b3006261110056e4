package adapter

import (
	"context"
	"encoding/xml"
	"errors"
	"io"
	"strings"

	"github.com/dshills/diagfix/internal/detect"
	"github.com/dshills/diagfix/internal/diagnostic"
)

// MissingDIMessage is the message of the single error reported for a BPMN
// document without diagram interchange.
const MissingDIMessage = "Missing Diagram Layout (DI)"

// BPMN validates BPMN 2.0 XML locally.
type BPMN struct{}

func (BPMN) Language() diagnostic.Language { return diagnostic.LanguageBPMN }

// Validate checks, in order: the structural signature, XML well-formedness,
// and the presence of a diagram-interchange container.
func (BPMN) Validate(_ context.Context, source string) (diagnostic.ValidationResult, error) {
	if !detect.IsBPMN(strings.TrimSpace(source)) {
		return diagnostic.Invalid(diagnostic.Error{
			Kind:    diagnostic.KindParse,
			Message: "Invalid BPMN: missing XML declaration or definitions element",
		}), nil
	}

	if e, ok := checkWellFormed(source); !ok {
		return diagnostic.Invalid(e), nil
	}

	if !strings.Contains(source, "BPMNDiagram") && !strings.Contains(source, "BPMNPlane") {
		return diagnostic.Invalid(diagnostic.Error{
			Kind:    diagnostic.KindDILayout,
			Message: MissingDIMessage,
		}), nil
	}
	return diagnostic.Valid(), nil
}

// checkWellFormed streams every token of source. A syntax error carries the
// decoder's line number; the decoder does not track columns.
func checkWellFormed(source string) (diagnostic.Error, bool) {
	d := xml.NewDecoder(strings.NewReader(source))
	d.Strict = true
	d.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}
	for {
		_, err := d.Token()
		if err == io.EOF {
			return diagnostic.Error{}, true
		}
		if err == nil {
			continue
		}
		e := diagnostic.Error{
			Kind:    diagnostic.KindParse,
			Message: "XML Parsing Error: " + err.Error(),
			Raw:     err,
		}
		var se *xml.SyntaxError
		if errors.As(err, &se) {
			e.Message = "XML Parsing Error: " + se.Msg
			e.Line = diagnostic.IntPtr(se.Line)
		}
		return e, false
	}
}
