/**
 * Placement Engine - turns annotation descriptors into board rectangles
 *
 * Resolves each descriptor's target in the merged equation tree, pads and
 * offsets its box into page space and records the explanation under the new
 * shape id. Unresolved targets are logged and skipped.
 */

package annotate

import (
	"github.com/adverant/nexus/whiteboard-tutor/internal/canvas"
	"github.com/adverant/nexus/whiteboard-tutor/internal/errors"
	"github.com/adverant/nexus/whiteboard-tutor/internal/geometry"
	"github.com/adverant/nexus/whiteboard-tutor/internal/logging"
	"github.com/adverant/nexus/whiteboard-tutor/internal/ocr"
)

// QuestionTag replaces the colour in ids of question-term boxes
const QuestionTag = "question"

// TargetIndex resolves equation and term ids against one merged tree
type TargetIndex struct {
	equations map[string]geometry.BoundingBox
	terms     map[string]geometry.BoundingBox
}

// NewTargetIndex indexes every equation and nested term. The first box wins
// when the tree repeats an id.
func NewTargetIndex(equations []ocr.Equation) *TargetIndex {
	idx := &TargetIndex{
		equations: make(map[string]geometry.BoundingBox, len(equations)),
		terms:     make(map[string]geometry.BoundingBox),
	}
	for _, eq := range equations {
		if _, ok := idx.equations[eq.ID]; !ok {
			idx.equations[eq.ID] = eq.BoundingBox
		}
		for _, t := range eq.Terms {
			if _, ok := idx.terms[t.ID]; !ok {
				idx.terms[t.ID] = t.BoundingBox
			}
		}
	}
	return idx
}

// Resolve looks up the box of a target of the given kind
func (idx *TargetIndex) Resolve(kind TargetKind, id string) (geometry.BoundingBox, bool) {
	var (
		box geometry.BoundingBox
		ok  bool
	)
	switch kind {
	case TargetEquation:
		box, ok = idx.equations[id]
	case TargetTerm:
		box, ok = idx.terms[id]
	}
	return box, ok
}

// Placement is the output of one placement run
type Placement struct {
	Shapes       []canvas.Shape    `json:"shapes"`
	Explanations map[string]string `json:"explanations"`
	Targets      map[string]string `json:"targets"` // shape id -> target id
	Unresolved   []string          `json:"unresolved,omitempty"`
}

// style is the padding and offset applied around one target box
type style struct {
	padding float64
	offsetX float64
	offsetY float64
	color   string
	tag     string
}

func styleFor(variant Variant, d Descriptor, box geometry.BoundingBox) style {
	color := d.Color
	if color == "" {
		color = DefaultColor
	}

	switch {
	case d.Kind == TargetEquation:
		return style{padding: 10, offsetX: 10, offsetY: 10, color: color, tag: color}
	case variant == VariantTermOnly:
		return style{padding: 5, offsetX: 10, offsetY: 10, color: DefaultColor, tag: QuestionTag}
	default:
		return style{padding: 5, offsetX: box.Width * 0.1, offsetY: box.Height * 0.1, color: color, tag: color}
	}
}

// Placer builds annotation shapes
type Placer struct {
	logger *logging.Logger
}

// NewPlacer creates a placer logging through logger, or a default one
func NewPlacer(logger *logging.Logger) *Placer {
	if logger == nil {
		logger = logging.NewLogger("Placer")
	}
	return &Placer{logger: logger}
}

// Place builds one rectangle per resolvable descriptor. origin is the
// page-space top-left of the shapes that were sent for analysis.
func (p *Placer) Place(origin geometry.Point, variant Variant, descriptors []Descriptor, tree *TargetIndex) Placement {
	out := Placement{
		Explanations: make(map[string]string, len(descriptors)),
		Targets:      make(map[string]string, len(descriptors)),
	}
	seen := make(map[string]int, len(descriptors))

	for _, d := range descriptors {
		box, ok := tree.Resolve(d.Kind, d.TargetID)
		if !ok {
			err := errors.NewUnresolvedTargetError(d.TargetID, string(d.Kind))
			p.logger.Warn("Skipping annotation", "error", err.Error())
			out.Unresolved = append(out.Unresolved, d.TargetID)
			continue
		}

		st := styleFor(variant, d, box)
		shape := canvas.Shape{
			ID:    canvas.AnnotationShapeID(st.tag, d.TargetID),
			Kind:  canvas.KindAnnotationBox,
			Type:  canvas.TypeGeo,
			X:     origin.X + box.X - st.padding - st.offsetX,
			Y:     origin.Y + box.Y - st.padding - st.offsetY,
			W:     box.Width + 2*st.padding,
			H:     box.Height + 2*st.padding,
			Color: st.color,
			Fill:  "none",
		}

		// a repeated (tag, target) pair replaces the earlier box
		if i, dup := seen[shape.ID]; dup {
			out.Shapes[i] = shape
		} else {
			seen[shape.ID] = len(out.Shapes)
			out.Shapes = append(out.Shapes, shape)
		}
		out.Explanations[shape.ID] = d.Explanation
		out.Targets[shape.ID] = d.TargetID
	}

	p.logger.Debug("Placement complete",
		"placed", len(out.Shapes),
		"unresolved", len(out.Unresolved))
	return out
}

// Commit creates the placed shapes on a board. Existing shapes with the same
// id are replaced.
func Commit(board *canvas.Board, placement Placement) error {
	for _, shape := range placement.Shapes {
		if err := board.Create(shape); err != nil {
			return err
		}
	}
	return nil
}
