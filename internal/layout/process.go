package layout

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/beevik/etree"
)

// ErrNoProcess is returned when a document has no process to lay out.
var ErrNoProcess = errors.New("layout: no process element")

// ErrMalformed is returned when the input is not a well-formed XML document.
var ErrMalformed = errors.New("layout: malformed document")

// Grid spacing of the single-process layout.
const (
	originX   = 180.0
	originY   = 80.0
	colStride = 160.0
	rowStride = 130.0
	loopDrop  = 40.0
)

// size is the default shape size for a flow-node tag.
func size(tag string) (w, h float64, ok bool) {
	switch tag {
	case "startEvent", "endEvent", "intermediateCatchEvent", "intermediateThrowEvent", "boundaryEvent":
		return 36, 36, true
	case "exclusiveGateway", "parallelGateway", "inclusiveGateway", "eventBasedGateway", "complexGateway":
		return 50, 50, true
	case "task", "userTask", "serviceTask", "scriptTask", "manualTask", "businessRuleTask",
		"sendTask", "receiveTask", "callActivity", "subProcess", "transaction", "adHocSubProcess":
		return 100, 80, true
	case "dataObjectReference":
		return 36, 50, true
	case "dataStoreReference":
		return 50, 50, true
	}
	return 0, 0, false
}

type node struct {
	id    string
	tag   string
	order int
	rank  int
	row   int
	host  string // attachedToRef for boundary events
	rect  Rect
}

type flow struct {
	id, source, target string
	back               bool
}

// graph is the flow-node graph of one process.
type graph struct {
	nodes map[string]*node
	order []*node
	flows []*flow
}

func buildGraph(process *etree.Element) *graph {
	g := &graph{nodes: make(map[string]*node)}
	for _, c := range process.ChildElements() {
		id := c.SelectAttrValue("id", "")
		if id == "" {
			continue
		}
		if c.Tag == "sequenceFlow" {
			g.flows = append(g.flows, &flow{
				id:     id,
				source: c.SelectAttrValue("sourceRef", ""),
				target: c.SelectAttrValue("targetRef", ""),
			})
			continue
		}
		if _, _, ok := size(c.Tag); !ok {
			continue
		}
		n := &node{id: id, tag: c.Tag, order: len(g.order)}
		if c.Tag == "boundaryEvent" {
			n.host = c.SelectAttrValue("attachedToRef", "")
		}
		g.nodes[id] = n
		g.order = append(g.order, n)
	}
	return g
}

// markBackEdges flags the edges that close a cycle in depth-first order from
// the start nodes, so ranking runs on an acyclic graph. Host to boundary
// attachments count as out-edges of the host.
func (g *graph) markBackEdges() {
	out := make(map[string][]*flow)
	in := make(map[string]int)
	attached := make(map[string][]string)
	for _, n := range g.order {
		if n.host != "" && g.nodes[n.host] != nil {
			attached[n.host] = append(attached[n.host], n.id)
		}
	}
	for _, f := range g.flows {
		if g.nodes[f.source] == nil || g.nodes[f.target] == nil {
			continue
		}
		out[f.source] = append(out[f.source], f)
		in[f.target]++
	}

	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int)
	var visit func(id string)
	visit = func(id string) {
		color[id] = grey
		for _, f := range out[id] {
			switch color[f.target] {
			case grey:
				f.back = true
			case white:
				visit(f.target)
			}
		}
		// Boundary events rank after their host, so a path leaving one and
		// returning to the host closes a cycle.
		for _, b := range attached[id] {
			if color[b] == white {
				visit(b)
			}
		}
		color[id] = black
	}

	// Start events first, then any other node without incoming flows,
	// then whatever is left (pure cycles).
	for _, n := range g.order {
		if n.tag == "startEvent" && color[n.id] == white {
			visit(n.id)
		}
	}
	for _, n := range g.order {
		if in[n.id] == 0 && n.host == "" && color[n.id] == white {
			visit(n.id)
		}
	}
	for _, n := range g.order {
		if color[n.id] == white {
			visit(n.id)
		}
	}
}

// assignRanks computes the longest-path column of every node. Boundary
// events share their host's column.
func (g *graph) assignRanks() {
	type edge struct {
		to     string
		weight int
	}
	adj := make(map[string][]edge)
	indeg := make(map[string]int)
	for _, n := range g.order {
		if n.host != "" && g.nodes[n.host] != nil {
			adj[n.host] = append(adj[n.host], edge{n.id, 0})
			indeg[n.id]++
		}
	}
	for _, f := range g.flows {
		if f.back || g.nodes[f.source] == nil || g.nodes[f.target] == nil {
			continue
		}
		adj[f.source] = append(adj[f.source], edge{f.target, 1})
		indeg[f.target]++
	}

	// Kahn's algorithm, seeded in document order for stable output.
	var queue []*node
	for _, n := range g.order {
		if indeg[n.id] == 0 {
			queue = append(queue, n)
		}
	}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, e := range adj[n.id] {
			t := g.nodes[e.to]
			if r := n.rank + e.weight; r > t.rank {
				t.rank = r
			}
			indeg[e.to]--
			if indeg[e.to] == 0 {
				queue = append(queue, t)
			}
		}
	}
}

// place assigns rows within each column and computes shape bounds.
func (g *graph) place() {
	rows := make(map[int]int)
	ordered := make([]*node, len(g.order))
	copy(ordered, g.order)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].rank < ordered[j].rank })

	for _, n := range ordered {
		if n.host != "" && g.nodes[n.host] != nil {
			continue
		}
		n.row = rows[n.rank]
		rows[n.rank]++
		w, h, _ := size(n.tag)
		cx := originX + float64(n.rank)*colStride + 50
		cy := originY + float64(n.row)*rowStride + 40
		n.rect = Rect{X: cx - w/2, Y: cy - h/2, W: w, H: h}
	}

	// Boundary events sit on the host's bottom edge, spread left to right.
	attached := make(map[string]int)
	for _, n := range g.order {
		host := g.nodes[n.host]
		if n.host == "" || host == nil {
			continue
		}
		i := attached[n.host]
		attached[n.host]++
		n.rect = Rect{
			X: host.rect.X + host.rect.W - 18 - float64(i+1)*30,
			Y: host.rect.Bottom() - 18,
			W: 36,
			H: 36,
		}
	}
}

// route computes orthogonal waypoints for f.
func (g *graph) route(f *flow, floor float64) []Point {
	s, t := g.nodes[f.source].rect, g.nodes[f.target].rect
	sc, tc := s.Center(), t.Center()

	switch {
	case g.nodes[f.source].host != "":
		return []Point{{sc.X, s.Bottom()}, {sc.X, tc.Y}, {t.X, tc.Y}}
	case f.back || t.X <= s.X:
		y := floor + loopDrop
		return []Point{{sc.X, s.Bottom()}, {sc.X, y}, {tc.X, y}, {tc.X, t.Bottom()}}
	case sc.Y == tc.Y:
		return []Point{{s.Right(), sc.Y}, {t.X, tc.Y}}
	default:
		midX := (s.Right() + t.X) / 2
		return []Point{{s.Right(), sc.Y}, {midX, sc.Y}, {midX, tc.Y}, {t.X, tc.Y}}
	}
}

// LayoutProcess lays out the first process of a BPMN document that has no
// collaboration. Any existing diagram interchange is replaced.
func LayoutProcess(ctx context.Context, xml string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	doc, err := parseDocument(xml)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	root := doc.Root()
	if root == nil {
		return "", fmt.Errorf("%w: empty document", ErrMalformed)
	}
	process := firstChild(root, "process")
	if process == nil {
		return "", ErrNoProcess
	}

	g := buildGraph(process)
	g.markBackEdges()
	g.assignRanks()
	g.place()

	var floor float64
	for _, n := range g.order {
		if b := n.rect.Bottom(); b > floor {
			floor = b
		}
	}

	removeDiagrams(root)
	p := ensureNamespaces(root)
	plane := newPlane(root, p, process.SelectAttrValue("id", ""))

	for _, n := range g.order {
		var attrs []etree.Attr
		switch n.tag {
		case "exclusiveGateway":
			attrs = append(attrs, etree.Attr{Key: "isMarkerVisible", Value: "true"})
		case "subProcess", "transaction", "adHocSubProcess":
			attrs = append(attrs, etree.Attr{Key: "isExpanded", Value: "false"})
		}
		addShape(plane, p, n.id, n.rect, attrs...)
	}
	for _, f := range g.flows {
		if g.nodes[f.source] == nil || g.nodes[f.target] == nil {
			continue
		}
		addEdge(plane, p, f.id, g.route(f, floor))
	}

	out, err := writeDocument(doc)
	if err != nil {
		return "", fmt.Errorf("layout: serialize: %w", err)
	}
	return out, nil
}
