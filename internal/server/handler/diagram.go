// Package handler provides the HTTP handlers of the diagfix API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dshills/diagfix/internal/adapter"
	"github.com/dshills/diagfix/internal/autofix"
	"github.com/dshills/diagfix/internal/classify"
	"github.com/dshills/diagfix/internal/detect"
	"github.com/dshills/diagfix/internal/diagnostic"
	"github.com/dshills/diagfix/internal/layout"
	"github.com/dshills/diagfix/internal/oracle"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 8 << 20

// Fixer runs one auto-fix session.
type Fixer interface {
	Attempt(ctx context.Context, in autofix.Input) (autofix.Result, error)
}

// Layouter generates BPMN diagram interchange.
type Layouter interface {
	Layout(ctx context.Context, xml string) (string, error)
}

// DiagramHandler serves detection, validation, auto-fix and layout requests.
type DiagramHandler struct {
	fixer    Fixer
	adapters autofix.Adapters
	layouter Layouter
	logger   *slog.Logger
}

// NewDiagramHandler creates a handler over the given engine components.
func NewDiagramHandler(fixer Fixer, adapters autofix.Adapters, layouter Layouter, logger *slog.Logger) *DiagramHandler {
	return &DiagramHandler{fixer: fixer, adapters: adapters, layouter: layouter, logger: logger}
}

// Request is the body accepted by every diagram endpoint.
type Request struct {
	Code     string `json:"code"`
	Notation string `json:"notation,omitempty"`
	// Error and Line carry an error already observed by the caller; only
	// the autofix endpoint reads them.
	Error string `json:"error,omitempty"`
	Line  *int   `json:"line,omitempty"`
}

type detectResponse struct {
	Language diagnostic.Language `json:"language"`
}

type validateResponse struct {
	Language diagnostic.Language `json:"language"`
	Valid    bool                `json:"valid"`
	Errors   []diagnostic.Error  `json:"errors"`
}

type layoutResponse struct {
	Code string `json:"code"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Detect reports the notation of the submitted source.
func (h *DiagramHandler) Detect(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, detectResponse{Language: h.language(req)})
}

// Validate runs the notation's adapter and returns classified errors.
func (h *DiagramHandler) Validate(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	lang := h.language(req)
	a, err := h.adapters.For(lang)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		return
	}
	res, err := a.Validate(r.Context(), req.Code)
	if err != nil {
		h.logger.Error("validation failed", "language", lang, "error", err)
		writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, validateResponse{
		Language: lang,
		Valid:    res.Valid,
		Errors:   classify.All(res.Errors, lang),
	})
}

// Autofix runs one repair session.
func (h *DiagramHandler) Autofix(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	in := autofix.Input{Code: req.Code, Notation: req.Notation}
	if req.Error != "" {
		in.Existing = autofix.Reported(req.Error, req.Line)
	}
	res, err := h.fixer.Attempt(r.Context(), in)
	if err != nil {
		h.logger.Error("auto-fix aborted", "language", res.Language, "error", err)
		writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
		return
	}
	h.logger.Info("auto-fix finished", "language", res.Language, "fixed", res.Fixed, "attempts", res.Attempts)
	writeJSON(w, http.StatusOK, res)
}

// Layout generates diagram interchange for a BPMN document.
func (h *DiagramHandler) Layout(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	out, err := h.layouter.Layout(r.Context(), req.Code)
	if err != nil {
		writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, layoutResponse{Code: out})
}

func (h *DiagramHandler) decode(w http.ResponseWriter, r *http.Request) (Request, bool) {
	var req Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		h.logger.Debug("bad request body", "error", err)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body: " + err.Error()})
		return req, false
	}
	if req.Code == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "code is required"})
		return req, false
	}
	return req, true
}

// language detects the notation, falling back to the request hint.
func (h *DiagramHandler) language(req Request) diagnostic.Language {
	lang := detect.Detect(req.Code)
	if lang == diagnostic.LanguageUnknown && req.Notation != "" {
		lang = diagnostic.ParseLanguage(req.Notation)
	}
	return lang
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, oracle.ErrTransport):
		return http.StatusBadGateway
	case errors.Is(err, layout.ErrNoProcess), errors.Is(err, adapter.ErrUnsupported):
		return http.StatusUnprocessableEntity
	case errors.Is(err, layout.ErrMalformed):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
