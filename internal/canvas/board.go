/**
 * Board - server-side shape store for one question
 *
 * Holds the shapes the drawing client pushes, runs before-change
 * interceptors on every update and rasterises shape sets for OCR.
 */

package canvas

import (
	"sync"

	"github.com/adverant/nexus/whiteboard-tutor/internal/errors"
)

// BeforeChangeFunc inspects a proposed update and returns the state to apply.
// Returning prev vetoes the change.
type BeforeChangeFunc func(prev, next Shape) Shape

// Viewport is the client's camera over the page
type Viewport struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zoom float64 `json:"zoom"`
}

// Board is a concurrency-safe ordered shape collection
type Board struct {
	mu           sync.RWMutex
	question     int
	shapes       map[string]Shape
	order        []string
	interceptors []BeforeChangeFunc
	viewport     Viewport
}

// NewBoard creates an empty board for a question number
func NewBoard(question int) *Board {
	return &Board{
		question: question,
		shapes:   make(map[string]Shape),
		viewport: Viewport{Zoom: 1},
	}
}

// Question returns the question number the board belongs to
func (b *Board) Question() int {
	return b.question
}

// Shapes returns all shapes in creation order
func (b *Board) Shapes() []Shape {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Shape, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.shapes[id])
	}
	return out
}

// IDs returns all shape ids in creation order
func (b *Board) IDs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), b.order...)
}

// Shape resolves a shape by id
func (b *Board) Shape(id string) (Shape, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.shapes[id]
	return s, ok
}

// Create adds a shape. A shape with an existing id replaces the old one in
// place without running interceptors.
func (b *Board) Create(shape Shape) error {
	if shape.ID == "" {
		return errors.NewInvalidInputError("shape id is required")
	}
	if shape.Kind == "" {
		shape.Kind = InferKind(shape.ID)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.shapes[shape.ID]; !exists {
		b.order = append(b.order, shape.ID)
	}
	b.shapes[shape.ID] = shape
	return nil
}

// Update applies a change to an existing shape through the registered
// interceptors and returns the state that was stored. A shape keeps the
// kind it was created with.
func (b *Board) Update(next Shape) (Shape, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	prev, ok := b.shapes[next.ID]
	if !ok {
		return Shape{}, errors.NewNotFoundError("shape", next.ID)
	}
	next.Kind = prev.Kind

	applied := next
	for _, fn := range b.interceptors {
		applied = fn(prev, applied)
	}
	b.shapes[next.ID] = applied
	return applied, nil
}

// Delete removes shapes by id and returns the ids that existed
func (b *Board) Delete(ids ...string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	remove := make(map[string]bool, len(ids))
	var deleted []string
	for _, id := range ids {
		if _, ok := b.shapes[id]; ok && !remove[id] {
			remove[id] = true
			deleted = append(deleted, id)
			delete(b.shapes, id)
		}
	}
	if len(deleted) == 0 {
		return nil
	}

	kept := b.order[:0]
	for _, id := range b.order {
		if !remove[id] {
			kept = append(kept, id)
		}
	}
	b.order = kept
	return deleted
}

// RegisterBeforeChange adds an interceptor run on every Update
func (b *Board) RegisterBeforeChange(fn BeforeChangeFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.interceptors = append(b.interceptors, fn)
}

// Viewport returns the client's last reported camera
func (b *Board) Viewport() Viewport {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.viewport
}

// SetViewport records the client's camera
func (b *Board) SetViewport(v Viewport) {
	if v.Zoom <= 0 {
		v.Zoom = 1
	}
	b.mu.Lock()
	b.viewport = v
	b.mu.Unlock()
}

// EnsureQuestionLabel places the locked question text shape if the board has none
func (b *Board) EnsureQuestionLabel(text string, x, y float64) Shape {
	id := QuestionShapeID(b.question)
	if s, ok := b.Shape(id); ok {
		return s
	}
	label := Shape{
		ID:     id,
		Kind:   KindQuestionLabel,
		Type:   TypeText,
		X:      x,
		Y:      y,
		W:      720,
		H:      80,
		Color:  "black",
		Text:   text,
		Locked: true,
	}
	_ = b.Create(label)
	return label
}
