// Package layout generates BPMN diagram interchange (DI) for documents that
// carry process semantics but no visual layout. Single-process documents go
// straight to LayoutProcess; collaborations are laid out pool by pool and
// stitched into one vertically stacked diagram.
package layout

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/beevik/etree"
	"golang.org/x/sync/errgroup"
)

// Pool stacking constants.
const (
	PoolMargin    = 50.0
	HeaderWidth   = 30.0
	PoolPadding   = 30.0
	MinPoolWidth  = 600.0
	MinPoolHeight = 200.0
)

// fallbackBox is the content box of a pool with nothing positioned in it.
var fallbackBox = Rect{X: 0, Y: 0, W: 100, H: 100}

// ProcessLayouter lays out a standalone single-process document.
type ProcessLayouter func(ctx context.Context, xml string) (string, error)

// Engine is the auto-layout engine.
type Engine struct {
	LayoutProcess ProcessLayouter
	Logger        *slog.Logger
	// Jobs bounds concurrent per-pool layouts; <= 0 means one per pool.
	Jobs int
}

// New returns an engine using the built-in single-process layout.
func New(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{LayoutProcess: LayoutProcess, Logger: logger}
}

// poolLayout is the independently laid-out content of one participant.
type poolLayout struct {
	participant string
	shapes      []*etree.Element
	edges       []*etree.Element
	bounds      Bounds
	err         error
}

// Layout returns xml with a complete diagram interchange section.
func (e *Engine) Layout(ctx context.Context, xml string) (string, error) {
	doc, err := parseDocument(xml)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	root := doc.Root()
	if root == nil {
		return "", fmt.Errorf("%w: empty document", ErrMalformed)
	}

	collab := firstChild(root, "collaboration")
	if collab == nil || len(childrenByTag(collab, "participant")) == 0 {
		return e.LayoutProcess(ctx, xml)
	}
	participants := childrenByTag(collab, "participant")

	// Every pool is laid out from its own temporary document, so the
	// sub-layouts share no state and may run concurrently.
	processes := indexByID(root)
	pools := make([]poolLayout, len(participants))
	g, gctx := errgroup.WithContext(ctx)
	if e.Jobs > 0 {
		g.SetLimit(e.Jobs)
	}
	for i, part := range participants {
		pools[i].participant = part.SelectAttrValue("id", "")
		ref := part.SelectAttrValue("processRef", "")
		proc := processes[ref]
		if ref == "" || proc == nil || proc.Tag != "process" {
			continue
		}
		i := i
		g.Go(func() error {
			pools[i] = e.layoutPool(gctx, root, proc, pools[i].participant)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	removeDiagrams(root)
	p := ensureNamespaces(root)
	plane := newPlane(root, p, collab.SelectAttrValue("id", ""))

	// Sub-layouts produce DI that references elements by id; resolve every
	// reference against the original tree so only elements that exist in
	// this document are attached.
	semantic := indexByID(root)
	placed := make(map[string]Rect)

	currentY := 0.0
	for _, pool := range pools {
		if pool.err != nil {
			e.Logger.Warn("pool layout failed, emitting empty pool",
				"participant", pool.participant, "error", pool.err)
		}
		box := pool.bounds
		if box.Empty() {
			box = Bounds{}
			box.AddRect(fallbackBox)
		}
		w := math.Max(MinPoolWidth, box.Width()+2*PoolPadding+HeaderWidth)
		h := math.Max(MinPoolHeight, box.Height()+2*PoolPadding)
		dx := HeaderWidth + PoolPadding - box.MinX
		dy := currentY + PoolPadding - box.MinY

		poolRect := Rect{X: 0, Y: currentY, W: w, H: h}
		addShape(plane, p, pool.participant, poolRect, etree.Attr{Key: "isHorizontal", Value: "true"})
		placed[pool.participant] = poolRect

		for _, s := range pool.shapes {
			id := s.SelectAttrValue("bpmnElement", "")
			if semantic[id] == nil {
				continue
			}
			r, _ := readBounds(s)
			r = r.Shift(dx, dy)
			addShape(plane, p, id, r, shapeAttrs(s)...)
			placed[id] = r
		}
		for _, ed := range pool.edges {
			id := ed.SelectAttrValue("bpmnElement", "")
			if semantic[id] == nil {
				continue
			}
			pts := readWaypoints(ed)
			for j := range pts {
				pts[j].X += dx
				pts[j].Y += dy
			}
			addEdge(plane, p, id, pts)
		}
		currentY += h + PoolMargin
	}

	// Message flows are computed only after every pool is in place.
	for _, mf := range childrenByTag(collab, "messageFlow") {
		src, okS := placed[mf.SelectAttrValue("sourceRef", "")]
		dst, okT := placed[mf.SelectAttrValue("targetRef", "")]
		if !okS || !okT {
			continue
		}
		addEdge(plane, p, mf.SelectAttrValue("id", ""), []Point{src.Center(), dst.Center()})
	}

	out, err := writeDocument(doc)
	if err != nil {
		return "", fmt.Errorf("layout: serialize: %w", err)
	}
	return out, nil
}

// layoutPool serializes one process as a standalone document, lays it out
// and reads back its shapes, edges and content bounds. Failures are recorded
// on the result rather than returned so the pool is still emitted.
func (e *Engine) layoutPool(ctx context.Context, root, proc *etree.Element, participant string) poolLayout {
	pl := poolLayout{participant: participant}

	tmp := etree.NewDocument()
	tmp.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	defs := tmp.CreateElement(root.FullTag())
	for _, a := range root.Attr {
		defs.CreateAttr(a.FullKey(), a.Value)
	}
	defs.AddChild(proc.Copy())
	src, err := tmp.WriteToString()
	if err != nil {
		pl.err = err
		return pl
	}

	out, err := e.LayoutProcess(ctx, src)
	if err != nil {
		pl.err = err
		return pl
	}
	laid, err := parseDocument(out)
	if err != nil {
		pl.err = err
		return pl
	}
	for _, plane := range descendantsByTag(laid.Root(), "BPMNPlane") {
		for _, c := range plane.ChildElements() {
			switch c.Tag {
			case "BPMNShape":
				if r, ok := readBounds(c); ok {
					pl.bounds.AddRect(r)
					pl.shapes = append(pl.shapes, c)
				}
			case "BPMNEdge":
				for _, pt := range readWaypoints(c) {
					pl.bounds.AddPoint(pt)
				}
				pl.edges = append(pl.edges, c)
			}
		}
	}
	return pl
}

// shapeAttrs returns the presentation attributes of a laid-out shape that
// are carried over when it is re-attached.
func shapeAttrs(s *etree.Element) []etree.Attr {
	var out []etree.Attr
	for _, key := range []string{"isMarkerVisible", "isExpanded", "isHorizontal"} {
		if v := s.SelectAttrValue(key, ""); v != "" {
			out = append(out, etree.Attr{Key: key, Value: v})
		}
	}
	return out
}
