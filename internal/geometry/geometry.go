/**
 * Geometry for bounding-box reconciliation
 *
 * All boxes live in one image's pixel space. Boxes are values: every
 * helper returns a new box rather than modifying its receiver.
 */

package geometry

import (
	"math"

	"github.com/adverant/nexus/whiteboard-tutor/internal/errors"
)

// Point is a 2D coordinate in pixel space
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// BoundingBox is an axis-aligned rectangle. Width and Height are never negative.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Area returns width × height
func (b BoundingBox) Area() float64 {
	return b.Width * b.Height
}

// Right returns the x coordinate of the right edge
func (b BoundingBox) Right() float64 {
	return b.X + b.Width
}

// Bottom returns the y coordinate of the bottom edge
func (b BoundingBox) Bottom() float64 {
	return b.Y + b.Height
}

// Translate returns the box shifted by (dx, dy)
func (b BoundingBox) Translate(dx, dy float64) BoundingBox {
	return BoundingBox{X: b.X + dx, Y: b.Y + dy, Width: b.Width, Height: b.Height}
}

// Union returns the smallest box covering both b and o
func (b BoundingBox) Union(o BoundingBox) BoundingBox {
	return FromCorners(
		math.Min(b.X, o.X),
		math.Min(b.Y, o.Y),
		math.Max(b.Right(), o.Right()),
		math.Max(b.Bottom(), o.Bottom()),
	)
}

// FromCorners builds a box from its top-left and bottom-right corners.
// Inverted corners produce a zero-sized box rather than a negative one.
func FromCorners(x1, y1, x2, y2 float64) BoundingBox {
	return BoundingBox{
		X:      x1,
		Y:      y1,
		Width:  math.Max(0, x2-x1),
		Height: math.Max(0, y2-y1),
	}
}

// FromContour returns the box spanning a polygon contour, with every
// coordinate clamped at zero first.
func FromContour(contour [][2]float64) BoundingBox {
	if len(contour) == 0 {
		return BoundingBox{}
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range contour {
		x := math.Max(0, p[0])
		y := math.Max(0, p[1])
		minX = math.Min(minX, x)
		maxX = math.Max(maxX, x)
		minY = math.Min(minY, y)
		maxY = math.Max(maxY, y)
	}
	return FromCorners(minX, minY, maxX, maxY)
}

// OverlapPercentage returns the intersection area of a and b as a percentage
// of the smaller box's area, in [0, 100]. A box fully inside a larger one
// scores 100. Returns 0 when either box has zero area.
func OverlapPercentage(a, b BoundingBox) float64 {
	overlapWidth := math.Max(0, math.Min(a.Right(), b.Right())-math.Max(a.X, b.X))
	overlapHeight := math.Max(0, math.Min(a.Bottom(), b.Bottom())-math.Max(a.Y, b.Y))

	smaller := math.Min(a.Area(), b.Area())
	if smaller <= 0 {
		return 0
	}

	pct := overlapWidth * overlapHeight / smaller * 100
	return math.Min(pct, 100)
}

// BoundingBoxOf returns the box spanning all points
func BoundingBoxOf(points []Point) (BoundingBox, error) {
	if len(points) == 0 {
		return BoundingBox{}, errors.NewEmptyInputError("boundingBoxOf")
	}
	minX, minY := points[0].X, points[0].Y
	maxX, maxY := minX, minY
	for _, p := range points[1:] {
		minX = math.Min(minX, p.X)
		maxX = math.Max(maxX, p.X)
		minY = math.Min(minY, p.Y)
		maxY = math.Max(maxY, p.Y)
	}
	return FromCorners(minX, minY, maxX, maxY), nil
}

// CentroidOf returns the arithmetic mean of all points
func CentroidOf(points []Point) (Point, error) {
	if len(points) == 0 {
		return Point{}, errors.NewEmptyInputError("centroidOf")
	}
	var sumX, sumY float64
	for _, p := range points {
		sumX += p.X
		sumY += p.Y
	}
	n := float64(len(points))
	return Point{X: sumX / n, Y: sumY / n}, nil
}

// StrokeGeometry resolves a freehand stroke's segments, whose points are
// relative to origin, into absolute coordinates and returns their centroid
// and bounding box.
func StrokeGeometry(origin Point, segments [][]Point) (Point, BoundingBox, error) {
	var absolute []Point
	for _, segment := range segments {
		for _, p := range segment {
			absolute = append(absolute, Point{X: origin.X + p.X, Y: origin.Y + p.Y})
		}
	}
	if len(absolute) == 0 {
		return Point{}, BoundingBox{}, errors.NewEmptyInputError("strokeGeometry")
	}
	centroid, _ := CentroidOf(absolute)
	box, _ := BoundingBoxOf(absolute)
	return centroid, box, nil
}
