package layout

import (
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// Namespace URIs of BPMN 2.0 and its diagram interchange.
const (
	NSModel  = "http://www.omg.org/spec/BPMN/20100524/MODEL"
	NSBPMNDI = "http://www.omg.org/spec/BPMN/20100524/DI"
	NSDC     = "http://www.omg.org/spec/DD/20100524/DC"
	NSDI     = "http://www.omg.org/spec/DD/20100524/DI"
)

// prefixes holds the namespace prefixes used when creating DI elements.
type prefixes struct {
	bpmndi, dc, di string
}

func (p prefixes) tag(prefix, local string) string {
	if prefix == "" {
		return local
	}
	return prefix + ":" + local
}

// ensureNamespaces returns the prefixes bound to the DI namespaces on root,
// declaring the conventional ones where a namespace is not yet bound.
func ensureNamespaces(root *etree.Element) prefixes {
	bound := make(map[string]string)
	for _, a := range root.Attr {
		if a.Space == "xmlns" {
			bound[a.Value] = a.Key
		}
	}
	want := func(uri, conventional string) string {
		if p, ok := bound[uri]; ok {
			return p
		}
		root.CreateAttr("xmlns:"+conventional, uri)
		return conventional
	}
	return prefixes{
		bpmndi: want(NSBPMNDI, "bpmndi"),
		dc:     want(NSDC, "dc"),
		di:     want(NSDI, "di"),
	}
}

// childrenByTag returns the direct children of e whose local name is tag.
func childrenByTag(e *etree.Element, tag string) []*etree.Element {
	var out []*etree.Element
	for _, c := range e.ChildElements() {
		if c.Tag == tag {
			out = append(out, c)
		}
	}
	return out
}

// firstChild returns the first direct child of e with local name tag, or nil.
func firstChild(e *etree.Element, tag string) *etree.Element {
	for _, c := range e.ChildElements() {
		if c.Tag == tag {
			return c
		}
	}
	return nil
}

// descendantsByTag walks e depth-first and returns every element named tag.
func descendantsByTag(e *etree.Element, tag string) []*etree.Element {
	var out []*etree.Element
	var walk func(*etree.Element)
	walk = func(n *etree.Element) {
		for _, c := range n.ChildElements() {
			if c.Tag == tag {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(e)
	return out
}

// indexByID maps every id attribute in the tree rooted at e to its element.
func indexByID(e *etree.Element) map[string]*etree.Element {
	idx := make(map[string]*etree.Element)
	var walk func(*etree.Element)
	walk = func(n *etree.Element) {
		if id := n.SelectAttrValue("id", ""); id != "" {
			idx[id] = n
		}
		for _, c := range n.ChildElements() {
			walk(c)
		}
	}
	walk(e)
	return idx
}

// removeDiagrams drops every BPMNDiagram child of root.
func removeDiagrams(root *etree.Element) {
	for _, d := range childrenByTag(root, "BPMNDiagram") {
		root.RemoveChild(d)
	}
}

func formatNum(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseNum(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

// readBounds returns the dc:Bounds of a BPMNShape.
func readBounds(shape *etree.Element) (Rect, bool) {
	b := firstChild(shape, "Bounds")
	if b == nil {
		return Rect{}, false
	}
	return Rect{
		X: parseNum(b.SelectAttrValue("x", "0")),
		Y: parseNum(b.SelectAttrValue("y", "0")),
		W: parseNum(b.SelectAttrValue("width", "0")),
		H: parseNum(b.SelectAttrValue("height", "0")),
	}, true
}

// readWaypoints returns the di:waypoint list of a BPMNEdge.
func readWaypoints(edge *etree.Element) []Point {
	var pts []Point
	for _, w := range childrenByTag(edge, "waypoint") {
		pts = append(pts, Point{
			X: parseNum(w.SelectAttrValue("x", "0")),
			Y: parseNum(w.SelectAttrValue("y", "0")),
		})
	}
	return pts
}

func addShape(plane *etree.Element, p prefixes, elementID string, r Rect, attrs ...etree.Attr) *etree.Element {
	shape := plane.CreateElement(p.tag(p.bpmndi, "BPMNShape"))
	shape.CreateAttr("id", elementID+"_di")
	shape.CreateAttr("bpmnElement", elementID)
	for _, a := range attrs {
		shape.CreateAttr(a.Key, a.Value)
	}
	b := shape.CreateElement(p.tag(p.dc, "Bounds"))
	b.CreateAttr("x", formatNum(r.X))
	b.CreateAttr("y", formatNum(r.Y))
	b.CreateAttr("width", formatNum(r.W))
	b.CreateAttr("height", formatNum(r.H))
	return shape
}

func addEdge(plane *etree.Element, p prefixes, elementID string, pts []Point) *etree.Element {
	edge := plane.CreateElement(p.tag(p.bpmndi, "BPMNEdge"))
	edge.CreateAttr("id", elementID+"_di")
	edge.CreateAttr("bpmnElement", elementID)
	for _, pt := range pts {
		w := edge.CreateElement(p.tag(p.di, "waypoint"))
		w.CreateAttr("x", formatNum(pt.X))
		w.CreateAttr("y", formatNum(pt.Y))
	}
	return edge
}

// newPlane appends a fresh BPMNDiagram/BPMNPlane pair to root.
func newPlane(root *etree.Element, p prefixes, elementID string) *etree.Element {
	diagram := root.CreateElement(p.tag(p.bpmndi, "BPMNDiagram"))
	diagram.CreateAttr("id", "BPMNDiagram_1")
	plane := diagram.CreateElement(p.tag(p.bpmndi, "BPMNPlane"))
	plane.CreateAttr("id", "BPMNPlane_1")
	plane.CreateAttr("bpmnElement", elementID)
	return plane
}

func parseDocument(xml string) (*etree.Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(xml); err != nil {
		return nil, err
	}
	return doc, nil
}

func writeDocument(doc *etree.Document) (string, error) {
	doc.Indent(2)
	return doc.WriteToString()
}
