package layout

import "math"

// Point is a waypoint in diagram coordinates.
type Point struct {
	X, Y float64
}

// Rect is an axis-aligned shape bound.
type Rect struct {
	X, Y, W, H float64
}

// Center returns the midpoint of r.
func (r Rect) Center() Point {
	return Point{X: r.X + r.W/2, Y: r.Y + r.H/2}
}

// Right returns r's right edge.
func (r Rect) Right() float64 { return r.X + r.W }

// Bottom returns r's bottom edge.
func (r Rect) Bottom() float64 { return r.Y + r.H }

// Shift returns r translated by (dx, dy).
func (r Rect) Shift(dx, dy float64) Rect {
	r.X += dx
	r.Y += dy
	return r
}

// Bounds accumulates the min/max extent of shapes and waypoints.
// The zero value is empty.
type Bounds struct {
	MinX, MinY, MaxX, MaxY float64
	set                    bool
}

// AddRect extends b to cover r.
func (b *Bounds) AddRect(r Rect) {
	b.AddPoint(Point{X: r.X, Y: r.Y})
	b.AddPoint(Point{X: r.Right(), Y: r.Bottom()})
}

// AddPoint extends b to cover p.
func (b *Bounds) AddPoint(p Point) {
	if !b.set {
		b.MinX, b.MaxX, b.MinY, b.MaxY = p.X, p.X, p.Y, p.Y
		b.set = true
		return
	}
	b.MinX = math.Min(b.MinX, p.X)
	b.MinY = math.Min(b.MinY, p.Y)
	b.MaxX = math.Max(b.MaxX, p.X)
	b.MaxY = math.Max(b.MaxY, p.Y)
}

// Empty reports whether nothing has been added.
func (b Bounds) Empty() bool { return !b.set }

// Width returns MaxX-MinX.
func (b Bounds) Width() float64 { return b.MaxX - b.MinX }

// Height returns MaxY-MinY.
func (b Bounds) Height() float64 { return b.MaxY - b.MinY }
