/**
 * Lifecycle Guard - keeps one generation of annotations per board
 *
 * Sweep removes every annotation box before a new cycle and on an explicit
 * clear. FreezeGeometry runs on every board update and vetoes moves, resizes
 * and rotations of annotation boxes.
 */

package annotate

import (
	"github.com/adverant/nexus/whiteboard-tutor/internal/canvas"
)

// ShapeStore is the part of a board the sweep needs
type ShapeStore interface {
	Shapes() []canvas.Shape
	Delete(ids ...string) []string
}

// Sweep deletes every annotation box and returns the deleted ids.
// Student strokes and the question label are left alone.
func Sweep(store ShapeStore) []string {
	var ids []string
	for _, s := range store.Shapes() {
		if s.IsAnnotation() {
			ids = append(ids, s.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	return store.Delete(ids...)
}

// FreezeGeometry vetoes any move, resize or rotation of an annotation box.
// Colour and other props still pass; deletion does not go through Update.
func FreezeGeometry(prev, next canvas.Shape) canvas.Shape {
	if !prev.IsAnnotation() {
		return next
	}
	if !prev.GeometryEqual(next) {
		return prev
	}
	next.Kind = prev.Kind
	return next
}

// Install registers the guard interceptors on a board
func Install(board interface {
	RegisterBeforeChange(canvas.BeforeChangeFunc)
}) {
	board.RegisterBeforeChange(FreezeGeometry)
}
