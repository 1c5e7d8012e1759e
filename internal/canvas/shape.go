package canvas

import (
	"fmt"
	"strings"

	"github.com/adverant/nexus/whiteboard-tutor/internal/geometry"
)

// Kind distinguishes system-owned shapes from student content
type Kind string

const (
	KindUserContent   Kind = "user_content"
	KindAnnotationBox Kind = "annotation_box"
	KindQuestionLabel Kind = "question_label"
)

// ShapeType mirrors the drawing engine's primitive shape types
type ShapeType string

const (
	TypeGeo  ShapeType = "geo"
	TypeText ShapeType = "text"
	TypeDraw ShapeType = "draw"
)

// Id prefixes the browser client still uses to recognise system shapes
const (
	AnnotationIDPrefix       = "shape:annotated"
	LegacyAnnotationIDPrefix = "shape:annotation"
	QuestionIDPrefix         = "shape:question-"
)

// Shape is one element on a board
type Shape struct {
	ID       string             `json:"id"`
	Kind     Kind               `json:"kind"`
	Type     ShapeType          `json:"type"`
	X        float64            `json:"x"`
	Y        float64            `json:"y"`
	Rotation float64            `json:"rotation"`
	W        float64            `json:"w"`
	H        float64            `json:"h"`
	Color    string             `json:"color,omitempty"`
	Fill     string             `json:"fill,omitempty"`
	Text     string             `json:"text,omitempty"`
	Segments [][]geometry.Point `json:"segments,omitempty"`
	Locked   bool               `json:"locked,omitempty"`
}

// IsAnnotation reports whether the shape is a synthetic annotation box
func (s Shape) IsAnnotation() bool {
	return s.Kind == KindAnnotationBox
}

// Bounds returns the shape's page-space box. Freehand strokes without an
// explicit size are measured from their segment points.
func (s Shape) Bounds() geometry.BoundingBox {
	if s.Type == TypeDraw && (s.W == 0 || s.H == 0) && len(s.Segments) > 0 {
		if _, box, err := geometry.StrokeGeometry(geometry.Point{X: s.X, Y: s.Y}, s.Segments); err == nil {
			return box
		}
	}
	return geometry.BoundingBox{X: s.X, Y: s.Y, Width: s.W, Height: s.H}
}

// GeometryEqual reports whether position, rotation and size match
func (s Shape) GeometryEqual(o Shape) bool {
	return s.X == o.X && s.Y == o.Y && s.Rotation == o.Rotation && s.W == o.W && s.H == o.H
}

// InferKind classifies a shape pushed by a client that only sets ids
func InferKind(id string) Kind {
	switch {
	case strings.HasPrefix(id, AnnotationIDPrefix), strings.HasPrefix(id, LegacyAnnotationIDPrefix):
		return KindAnnotationBox
	case strings.HasPrefix(id, QuestionIDPrefix):
		return KindQuestionLabel
	default:
		return KindUserContent
	}
}

// QuestionShapeID returns the id of the locked question text on a board
func QuestionShapeID(question int) string {
	return fmt.Sprintf("%s%d-text", QuestionIDPrefix, question)
}

// AnnotationShapeID returns the deterministic id for an annotation box.
// The same tag and target always produce the same id.
func AnnotationShapeID(tag, targetID string) string {
	return fmt.Sprintf("%s-%s-%s", AnnotationIDPrefix, tag, targetID)
}
