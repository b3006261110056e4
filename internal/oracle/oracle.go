// Package oracle is the HTTP client for the remote rendering service. The
// service is treated as an opaque oracle: it either renders the diagram or
// answers with a textual error.
package oracle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dshills/diagfix/internal/diagnostic"
)

// ErrTransport wraps every failure to reach the service or to get a usable
// answer from it (network errors, 5xx, unreadable bodies). Transport errors
// are session-fatal; diagram errors are not.
var ErrTransport = errors.New("oracle: transport failure")

// maxBodyBytes bounds how much of a response is read.
const maxBodyBytes = 16 << 20

// Notations accepted by Render, keyed by the service path segment.
var Notations = map[string]bool{
	"bpmn":       true,
	"mermaid":    true,
	"plantuml":   true,
	"c4plantuml": true,
	"excalidraw": true,
	"vega":       true,
	"vegalite":   true,
}

// Client talks to a Kroki-compatible rendering service.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Logger  *slog.Logger
}

// New returns a client for baseURL with the given request timeout.
func New(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
		Logger:  logger,
	}
}

// RenderError is a diagram-level rejection from the service. Message is the
// service's text, passed through unmodified apart from the status prefix.
type RenderError struct {
	Notation string
	Status   int
	Message  string
	Line     *int
	// Kind is set only when the service text carries a recognizable
	// classification of its own.
	Kind diagnostic.ErrorKind
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("oracle: %s rejected (%d): %s", e.Notation, e.Status, e.Message)
}

// ErrorKind reports the service-supplied classification, if any.
func (e *RenderError) ErrorKind() diagnostic.ErrorKind {
	return e.Kind
}

// CheckResult is the outcome of a syntax check.
type CheckResult struct {
	Valid bool
	Error string
	Line  *int
	Kind  diagnostic.ErrorKind
}

// Render posts source to the service and returns the rendered payload.
// Diagram errors are returned as *RenderError; anything else wraps ErrTransport.
func (c *Client) Render(ctx context.Context, source, notation, format string) ([]byte, error) {
	if !Notations[notation] {
		return nil, fmt.Errorf("oracle: unsupported notation %q", notation)
	}
	if format == "" {
		format = "svg"
	}
	url := fmt.Sprintf("%s/%s/%s", c.BaseURL, notation, format)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(source))
	if err != nil {
		return nil, fmt.Errorf("oracle: build request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")

	start := time.Now()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrTransport, url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrTransport, err)
	}
	c.Logger.Debug("oracle render", "notation", notation, "format", format,
		"status", resp.StatusCode, "bytes", len(body), "elapsed", time.Since(start))

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, newRenderError(notation, resp.StatusCode, body)
	default:
		return nil, fmt.Errorf("%w: %s: status %d: %s", ErrTransport, url, resp.StatusCode, firstLine(body))
	}
}

// SyntaxCheck renders source and reports whether the service accepted it.
// A rejection is a valid answer (Valid=false), not an error.
func (c *Client) SyntaxCheck(ctx context.Context, source, notation string) (CheckResult, error) {
	_, err := c.Render(ctx, source, notation, "svg")
	if err == nil {
		return CheckResult{Valid: true}, nil
	}
	var re *RenderError
	if errors.As(err, &re) {
		return CheckResult{Valid: false, Error: re.Message, Line: re.Line, Kind: re.Kind}, nil
	}
	return CheckResult{}, err
}

var (
	statusPrefixRe = regexp.MustCompile(`^Error \d{3}:\s*`)
	// lineRe matches "on line 3", "(line: 3)", "Line 3".
	lineRe = regexp.MustCompile(`(?i)\bline[:\s]+(\d+)`)
)

func newRenderError(notation string, status int, body []byte) *RenderError {
	msg := strings.TrimSpace(string(body))
	msg = statusPrefixRe.ReplaceAllString(msg, "")
	if msg == "" {
		msg = http.StatusText(status)
	}
	re := &RenderError{Notation: notation, Status: status, Message: msg, Line: ExtractLine(msg)}
	if strings.Contains(strings.ToLower(msg), "unsupported diagram type") {
		re.Kind = diagnostic.KindVersion
	}
	return re
}

// ExtractLine returns the first line number mentioned in msg, or nil.
func ExtractLine(msg string) *int {
	m := lineRe.FindStringSubmatch(msg)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return nil
	}
	return &n
}

func firstLine(b []byte) string {
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		b = b[:i]
	}
	return strings.TrimSpace(string(b))
}
