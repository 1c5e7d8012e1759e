package geometry

import (
	"math"
	"testing"

	"github.com/adverant/nexus/whiteboard-tutor/internal/errors"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestOverlapPercentage(t *testing.T) {
	tests := []struct {
		name string
		a, b BoundingBox
		want float64
	}{
		{
			name: "identical boxes",
			a:    BoundingBox{X: 3, Y: 4, Width: 10, Height: 5},
			b:    BoundingBox{X: 3, Y: 4, Width: 10, Height: 5},
			want: 100,
		},
		{
			name: "disjoint boxes",
			a:    BoundingBox{X: 0, Y: 0, Width: 10, Height: 10},
			b:    BoundingBox{X: 20, Y: 20, Width: 5, Height: 5},
			want: 0,
		},
		{
			name: "touching edges",
			a:    BoundingBox{X: 0, Y: 0, Width: 10, Height: 10},
			b:    BoundingBox{X: 10, Y: 0, Width: 10, Height: 10},
			want: 0,
		},
		{
			name: "term fully inside equation",
			a:    BoundingBox{X: 0, Y: 0, Width: 100, Height: 20},
			b:    BoundingBox{X: 10, Y: 5, Width: 20, Height: 10},
			want: 100,
		},
		{
			name: "half overlap of equal boxes",
			a:    BoundingBox{X: 0, Y: 0, Width: 10, Height: 10},
			b:    BoundingBox{X: 5, Y: 0, Width: 10, Height: 10},
			want: 50,
		},
		{
			name: "zero area box",
			a:    BoundingBox{X: 0, Y: 0, Width: 0, Height: 10},
			b:    BoundingBox{X: 0, Y: 0, Width: 10, Height: 10},
			want: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := OverlapPercentage(tt.a, tt.b); !almostEqual(got, tt.want) {
				t.Errorf("OverlapPercentage() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOverlapPercentageSymmetric(t *testing.T) {
	pairs := [][2]BoundingBox{
		{{X: 0, Y: 0, Width: 100, Height: 20}, {X: 10, Y: 5, Width: 20, Height: 10}},
		{{X: 0, Y: 0, Width: 10, Height: 10}, {X: 7, Y: 3, Width: 40, Height: 2}},
		{{X: 5, Y: 5, Width: 3, Height: 3}, {X: 0, Y: 0, Width: 6, Height: 6}},
		{{X: 0, Y: 0, Width: 10, Height: 10}, {X: 5, Y: 0, Width: 10, Height: 10}},
	}
	for _, p := range pairs {
		ab := OverlapPercentage(p[0], p[1])
		ba := OverlapPercentage(p[1], p[0])
		if !almostEqual(ab, ba) {
			t.Errorf("overlap(%v,%v) = %v but reversed = %v", p[0], p[1], ab, ba)
		}
		if ab < 0 || ab > 100 {
			t.Errorf("overlap(%v,%v) = %v, out of [0,100]", p[0], p[1], ab)
		}
	}
}

func TestBoundingBoxOf(t *testing.T) {
	got, err := BoundingBoxOf([]Point{{X: 4, Y: 9}, {X: -2, Y: 3}, {X: 10, Y: 5}})
	if err != nil {
		t.Fatalf("BoundingBoxOf() error = %v", err)
	}
	want := BoundingBox{X: -2, Y: 3, Width: 12, Height: 6}
	if got != want {
		t.Errorf("BoundingBoxOf() = %+v, want %+v", got, want)
	}
}

func TestBoundingBoxOfEmpty(t *testing.T) {
	_, err := BoundingBoxOf(nil)
	if !errors.IsCode(err, errors.ErrorEmptyInput) {
		t.Errorf("BoundingBoxOf(nil) error = %v, want EMPTY_INPUT", err)
	}
}

func TestCentroidOf(t *testing.T) {
	got, err := CentroidOf([]Point{{X: 0, Y: 0}, {X: 4, Y: 0}, {X: 4, Y: 2}, {X: 0, Y: 2}})
	if err != nil {
		t.Fatalf("CentroidOf() error = %v", err)
	}
	if got != (Point{X: 2, Y: 1}) {
		t.Errorf("CentroidOf() = %+v, want {2 1}", got)
	}

	if _, err := CentroidOf([]Point{}); !errors.IsCode(err, errors.ErrorEmptyInput) {
		t.Errorf("CentroidOf(empty) error = %v, want EMPTY_INPUT", err)
	}
}

func TestStrokeGeometry(t *testing.T) {
	segments := [][]Point{
		{{X: 0, Y: 0}, {X: 10, Y: 0}},
		{{X: 10, Y: 10}, {X: 0, Y: 10}},
	}
	centroid, box, err := StrokeGeometry(Point{X: 100, Y: 50}, segments)
	if err != nil {
		t.Fatalf("StrokeGeometry() error = %v", err)
	}
	if centroid != (Point{X: 105, Y: 55}) {
		t.Errorf("centroid = %+v, want {105 55}", centroid)
	}
	if box != (BoundingBox{X: 100, Y: 50, Width: 10, Height: 10}) {
		t.Errorf("box = %+v, want {100 50 10 10}", box)
	}

	if _, _, err := StrokeGeometry(Point{}, [][]Point{{}}); !errors.IsCode(err, errors.ErrorEmptyInput) {
		t.Errorf("StrokeGeometry(no points) error = %v, want EMPTY_INPUT", err)
	}
}

func TestFromContourClampsNegatives(t *testing.T) {
	got := FromContour([][2]float64{{-5, 2}, {30, -1}, {30, 12}, {-5, 12}})
	want := BoundingBox{X: 0, Y: 0, Width: 30, Height: 12}
	if got != want {
		t.Errorf("FromContour() = %+v, want %+v", got, want)
	}
}

func TestFromCornersNeverNegative(t *testing.T) {
	got := FromCorners(10, 10, 4, 2)
	if got.Width != 0 || got.Height != 0 {
		t.Errorf("FromCorners(inverted) = %+v, want zero size", got)
	}
}

func TestUnionAndTranslate(t *testing.T) {
	a := BoundingBox{X: 0, Y: 0, Width: 10, Height: 10}
	b := BoundingBox{X: 5, Y: -5, Width: 10, Height: 5}

	if got, want := a.Union(b), (BoundingBox{X: 0, Y: -5, Width: 15, Height: 15}); got != want {
		t.Errorf("Union() = %+v, want %+v", got, want)
	}
	if got, want := a.Translate(3, 4), (BoundingBox{X: 3, Y: 4, Width: 10, Height: 10}); got != want {
		t.Errorf("Translate() = %+v, want %+v", got, want)
	}
}
