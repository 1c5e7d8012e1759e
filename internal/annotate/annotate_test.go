package annotate

import (
	"bytes"
	"strings"
	"testing"

	"github.com/adverant/nexus/whiteboard-tutor/internal/canvas"
	"github.com/adverant/nexus/whiteboard-tutor/internal/errors"
	"github.com/adverant/nexus/whiteboard-tutor/internal/geometry"
	"github.com/adverant/nexus/whiteboard-tutor/internal/logging"
	"github.com/adverant/nexus/whiteboard-tutor/internal/ocr"
)

func box(x, y, w, h float64) geometry.BoundingBox {
	return geometry.BoundingBox{X: x, Y: y, Width: w, Height: h}
}

func TestMergeAttachesContainedTerm(t *testing.T) {
	primary := []ocr.Equation{
		{ID: "item-aaaaaaaa", Latex: "x^2", BoundingBox: box(0, 0, 100, 20)},
		{ID: "item-bbbbbbbb", Latex: "2x", BoundingBox: box(0, 50, 100, 20)},
	}
	secondary := []ocr.Equation{
		{ID: "item-vvvvvvvv", Terms: []ocr.Term{
			{ID: "item-vvvvvvvv-term-abc123", Text: "x", BoundingBox: box(10, 5, 20, 10)},
		}},
	}

	res := Merge(primary, secondary)

	if got := len(res.Equations[0].Terms); got != 1 {
		t.Fatalf("first equation has %d terms, want 1", got)
	}
	if len(res.Equations[1].Terms) != 0 {
		t.Errorf("second equation received a term it does not overlap")
	}
	if id := res.Equations[0].Terms[0].ID; id != "item-aaaaaaaa-term-abc123" {
		t.Errorf("term id = %q, want item-aaaaaaaa-term-abc123", id)
	}
	if len(res.Dropped) != 0 {
		t.Errorf("Dropped = %v, want none", res.Dropped)
	}
	if primary[0].Terms != nil {
		t.Errorf("Merge mutated its primary input")
	}
	if secondary[0].Terms[0].ID != "item-vvvvvvvv-term-abc123" {
		t.Errorf("Merge mutated its secondary input")
	}
}

func TestMergeCarriesSymbols(t *testing.T) {
	primary := []ocr.Equation{{ID: "item-aaaaaaaa", Latex: "x^2", BoundingBox: box(0, 0, 100, 20)}}
	secondary := []ocr.Equation{{ID: "item-vvvvvvvv", Terms: []ocr.Term{{
		ID:          "item-vvvvvvvv-term-abc123",
		Text:        "x2",
		BoundingBox: box(10, 5, 20, 10),
		Symbols: []ocr.Symbol{
			{ID: "item-vvvvvvvv-term-abc123-symbol-s00001", Text: "x", BoundingBox: box(10, 5, 10, 10)},
			{ID: "item-vvvvvvvv-term-abc123-symbol-s00002", Text: "2", BoundingBox: box(20, 5, 10, 10)},
		},
	}}}}

	res := Merge(primary, secondary)

	symbols := res.Equations[0].Terms[0].Symbols
	if len(symbols) != 2 {
		t.Fatalf("symbols = %+v, want 2", symbols)
	}
	if symbols[1].ID != "item-aaaaaaaa-term-abc123-symbol-s00002" {
		t.Errorf("symbol id = %q, want it under the merged term", symbols[1].ID)
	}
	if symbols[1].BoundingBox != box(20, 5, 10, 10) {
		t.Errorf("symbol box = %+v", symbols[1].BoundingBox)
	}
	if secondary[0].Terms[0].Symbols[1].ID != "item-vvvvvvvv-term-abc123-symbol-s00002" {
		t.Errorf("Merge mutated the secondary symbols")
	}
}

func TestMergeThreshold(t *testing.T) {
	eq := ocr.Equation{ID: "item-e", BoundingBox: box(0, 0, 100, 100)}
	tests := []struct {
		name     string
		term     geometry.BoundingBox
		attached bool
	}{
		{"fully inside", box(10, 10, 10, 10), true},
		{"70 percent inside", box(-3, 0, 10, 10), true},
		{"exactly 65 percent", box(-3.5, 0, 10, 10), false},
		{"half inside", box(-5, 0, 10, 10), false},
		{"disjoint", box(200, 200, 10, 10), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := []ocr.Equation{{ID: "item-s", Terms: []ocr.Term{{ID: "item-s-term-000001", BoundingBox: tt.term}}}}
			res := Merge([]ocr.Equation{eq}, src)
			got := len(res.Equations[0].Terms) == 1
			if got != tt.attached {
				t.Errorf("attached = %v, want %v (overlap %.1f)", got, tt.attached, geometry.OverlapPercentage(tt.term, eq.BoundingBox))
			}
			if !tt.attached && len(res.Dropped) != 1 {
				t.Errorf("Dropped = %d terms, want 1", len(res.Dropped))
			}
		})
	}
}

func TestMergeFirstMatchWins(t *testing.T) {
	primary := []ocr.Equation{
		{ID: "item-first", BoundingBox: box(0, 0, 100, 100)},
		{ID: "item-second", BoundingBox: box(0, 0, 100, 100)},
	}
	secondary := []ocr.Equation{{ID: "item-s", Terms: []ocr.Term{{ID: "t1", BoundingBox: box(1, 1, 5, 5)}}}}

	res := Merge(primary, secondary)
	if len(res.Equations[0].Terms) != 1 || len(res.Equations[1].Terms) != 0 {
		t.Errorf("term attached to %d/%d equations, want first only", len(res.Equations[0].Terms), len(res.Equations[1].Terms))
	}
	if got := res.Equations[0].Terms[0].ID; got != "item-first-term-t1" {
		t.Errorf("term id = %q, want item-first-term-t1", got)
	}
}

func TestMergeAppendsToExistingTerms(t *testing.T) {
	primary := []ocr.Equation{{
		ID:          "item-p",
		BoundingBox: box(0, 0, 100, 100),
		Terms:       []ocr.Term{{ID: "item-p-term-old000"}},
	}}
	secondary := []ocr.Equation{{ID: "item-s", Terms: []ocr.Term{{ID: "item-s-term-new000", BoundingBox: box(1, 1, 5, 5)}}}}

	res := Merge(primary, secondary)
	if len(res.Equations[0].Terms) != 2 {
		t.Fatalf("terms = %d, want 2", len(res.Equations[0].Terms))
	}
	if len(primary[0].Terms) != 1 {
		t.Errorf("Merge appended into the caller's slice")
	}
}

func TestApplyCorrections(t *testing.T) {
	eqs := []ocr.Equation{{
		ID: "item-aaaaaaaa",
		Terms: []ocr.Term{
			{ID: "item-aaaaaaaa-term-000001", Text: "x2"},
			{ID: "item-aaaaaaaa-term-000002", Text: "+"},
		},
	}}
	corrected, missed := ApplyCorrections(eqs, []Correction{
		{ID: "item-aaaaaaaa-term-000001", Latex: "x^2"},
		{ID: "item-zzzzzzzz-term-000001", Latex: "y"},
		{ID: "nohyphen", Latex: "z"},
	})

	if corrected[0].Terms[0].Text != "x^2" {
		t.Errorf("term text = %q, want x^2", corrected[0].Terms[0].Text)
	}
	if corrected[0].Terms[1].Text != "+" {
		t.Errorf("uncorrected term changed to %q", corrected[0].Terms[1].Text)
	}
	if eqs[0].Terms[0].Text != "x2" {
		t.Errorf("ApplyCorrections mutated its input")
	}
	if len(missed) != 2 {
		t.Errorf("missed = %v, want two misses", missed)
	}
}

func TestDecodeFeedback(t *testing.T) {
	t.Run("equation and term", func(t *testing.T) {
		raw := `{"ovFb":"Nice start","annos":[{"eqsToAnno":[{"eqId":"item-1","annoExp":"check sign","annoColor":"red"}],"termsToAnno":[{"termId":"item-1-term-a","annoExp":"good","annoColor":"green"}]}]}`
		fb, err := DecodeFeedback(VariantEquationAndTerm, []byte(raw))
		if err != nil {
			t.Fatalf("DecodeFeedback() error = %v", err)
		}
		if fb.OverallFeedback != "Nice start" || fb.Variant != VariantEquationAndTerm {
			t.Errorf("feedback = %+v", fb)
		}
		want := []Descriptor{
			{TargetID: "item-1", Kind: TargetEquation, Explanation: "check sign", Color: "red"},
			{TargetID: "item-1-term-a", Kind: TargetTerm, Explanation: "good", Color: "green"},
		}
		if len(fb.Descriptors) != len(want) {
			t.Fatalf("descriptors = %+v", fb.Descriptors)
		}
		for i := range want {
			if fb.Descriptors[i] != want[i] {
				t.Errorf("descriptor %d = %+v, want %+v", i, fb.Descriptors[i], want[i])
			}
		}
	})

	t.Run("term only", func(t *testing.T) {
		raw := `{"ovFb":"Read carefully","termsToAnno":[{"termId":"item-q-term-b","termValue":"3","termExp":"the radius"}]}`
		fb, err := DecodeFeedback(VariantTermOnly, []byte(raw))
		if err != nil {
			t.Fatalf("DecodeFeedback() error = %v", err)
		}
		d := fb.Descriptors[0]
		if d.Kind != TargetTerm || d.TermValue != "3" || d.Explanation != "the radius" || d.Color != "" {
			t.Errorf("descriptor = %+v", d)
		}
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := DecodeFeedback(VariantTermOnly, []byte(`{"ovFb":`))
		if !errors.IsCode(err, errors.ErrorMalformedResponse) || !errors.IsNetwork(err) {
			t.Errorf("error = %v, want MALFORMED_RESPONSE", err)
		}
	})

	t.Run("corrections", func(t *testing.T) {
		got, err := DecodeCorrections([]byte(`{"correctedTerms":[{"id":"item-1-term-a","latex":"\\frac{1}{2}"}]}`))
		if err != nil || len(got) != 1 || got[0].Latex != `\frac{1}{2}` {
			t.Errorf("DecodeCorrections() = %+v, %v", got, err)
		}
	})
}

func quietPlacer() (*Placer, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewPlacer(logging.NewLoggerTo(&buf, "Placer", logging.LevelDebug)), &buf
}

func TestPlaceEquation(t *testing.T) {
	p, _ := quietPlacer()
	tree := NewTargetIndex([]ocr.Equation{{ID: "eq1", BoundingBox: box(10, 10, 30, 8)}})
	descriptors := []Descriptor{{TargetID: "eq1", Kind: TargetEquation, Explanation: "check sign", Color: "red"}}

	got := p.Place(geometry.Point{X: 50, Y: 50}, VariantEquationAndTerm, descriptors, tree)

	if len(got.Shapes) != 1 {
		t.Fatalf("shapes = %d, want 1", len(got.Shapes))
	}
	s := got.Shapes[0]
	if s.X != 40 || s.Y != 40 || s.W != 50 || s.H != 28 {
		t.Errorf("shape geometry = (%v,%v %vx%v), want (40,40 50x28)", s.X, s.Y, s.W, s.H)
	}
	if s.ID != "shape:annotated-red-eq1" || s.Kind != canvas.KindAnnotationBox || s.Color != "red" {
		t.Errorf("shape = %+v", s)
	}
	if got.Explanations[s.ID] != "check sign" {
		t.Errorf("explanation = %q, want check sign", got.Explanations[s.ID])
	}
}

func TestPlaceTermStyles(t *testing.T) {
	tree := NewTargetIndex([]ocr.Equation{{
		ID:          "item-1",
		BoundingBox: box(0, 0, 200, 50),
		Terms:       []ocr.Term{{ID: "item-1-term-a", BoundingBox: box(20, 10, 40, 20)}},
	}})
	origin := geometry.Point{X: 100, Y: 100}

	tests := []struct {
		name    string
		variant Variant
		color   string
		wantID  string
		wantX   float64
		wantY   float64
		wantCol string
	}{
		// padding 5, offset 0.1 * size = (4, 2)
		{"student term", VariantEquationAndTerm, "green", "shape:annotated-green-item-1-term-a", 111, 103, "green"},
		{"default colour", VariantEquationAndTerm, "", "shape:annotated-blue-item-1-term-a", 111, 103, "blue"},
		// padding 5, offset 10, always blue
		{"question term", VariantTermOnly, "red", "shape:annotated-question-item-1-term-a", 105, 95, "blue"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := quietPlacer()
			d := Descriptor{TargetID: "item-1-term-a", Kind: TargetTerm, Explanation: "x", Color: tt.color}
			got := p.Place(origin, tt.variant, []Descriptor{d}, tree)
			if len(got.Shapes) != 1 {
				t.Fatalf("shapes = %d, want 1", len(got.Shapes))
			}
			s := got.Shapes[0]
			if s.ID != tt.wantID || s.X != tt.wantX || s.Y != tt.wantY || s.Color != tt.wantCol {
				t.Errorf("shape = %s at (%v,%v) %s, want %s at (%v,%v) %s", s.ID, s.X, s.Y, s.Color, tt.wantID, tt.wantX, tt.wantY, tt.wantCol)
			}
			if s.W != 50 || s.H != 30 {
				t.Errorf("size = %vx%v, want 50x30", s.W, s.H)
			}
		})
	}
}

func TestPlaceSkipsUnresolved(t *testing.T) {
	p, logs := quietPlacer()
	tree := NewTargetIndex([]ocr.Equation{{ID: "eq1", BoundingBox: box(0, 0, 10, 10)}})
	descriptors := []Descriptor{
		{TargetID: "missing", Kind: TargetEquation, Color: "red"},
		{TargetID: "eq1", Kind: TargetTerm, Color: "red"},
		{TargetID: "eq1", Kind: TargetEquation, Color: "red"},
	}

	got := p.Place(geometry.Point{}, VariantEquationAndTerm, descriptors, tree)

	if len(got.Shapes) != 1 {
		t.Errorf("shapes = %d, want the one resolvable descriptor", len(got.Shapes))
	}
	if len(got.Unresolved) != 2 {
		t.Errorf("unresolved = %v, want 2 entries", got.Unresolved)
	}
	if !strings.Contains(logs.String(), "UNRESOLVED_TARGET") {
		t.Errorf("skip was not logged: %s", logs.String())
	}
}

func TestPlacementIsIdempotent(t *testing.T) {
	p, _ := quietPlacer()
	board := canvas.NewBoard(0)
	tree := NewTargetIndex([]ocr.Equation{{ID: "eq1", BoundingBox: box(0, 0, 10, 10)}})
	same := Descriptor{TargetID: "eq1", Kind: TargetEquation, Explanation: "again", Color: "red"}

	for i := 0; i < 2; i++ {
		if err := Commit(board, p.Place(geometry.Point{}, VariantEquationAndTerm, []Descriptor{same}, tree)); err != nil {
			t.Fatalf("Commit() error = %v", err)
		}
	}
	if n := len(board.Shapes()); n != 1 {
		t.Errorf("board has %d shapes after placing twice, want 1", n)
	}

	other := same
	other.Color = "green"
	_ = Commit(board, p.Place(geometry.Point{}, VariantEquationAndTerm, []Descriptor{other}, tree))
	if n := len(board.Shapes()); n != 2 {
		t.Errorf("board has %d shapes, want 2 stacked colours", n)
	}
}

func TestSweepLeavesStudentContent(t *testing.T) {
	board := canvas.NewBoard(1)
	board.EnsureQuestionLabel("Differentiate", 0, 0)
	_ = board.Create(canvas.Shape{ID: "shape:stroke1", Type: canvas.TypeDraw})
	_ = board.Create(canvas.Shape{ID: "shape:annotated-red-eq1", Type: canvas.TypeGeo})
	_ = board.Create(canvas.Shape{ID: "shape:custom", Kind: canvas.KindAnnotationBox})

	deleted := Sweep(board)

	if len(deleted) != 2 {
		t.Errorf("deleted = %v, want both annotation boxes", deleted)
	}
	for _, s := range board.Shapes() {
		if s.IsAnnotation() || strings.HasPrefix(s.ID, canvas.AnnotationIDPrefix) {
			t.Errorf("annotation %s survived the sweep", s.ID)
		}
	}
	if _, ok := board.Shape(canvas.QuestionShapeID(1)); !ok {
		t.Errorf("question label was swept")
	}
	if _, ok := board.Shape("shape:stroke1"); !ok {
		t.Errorf("student stroke was swept")
	}
	if Sweep(board) != nil {
		t.Errorf("second sweep deleted something")
	}
}

func TestFreezeGeometry(t *testing.T) {
	board := canvas.NewBoard(0)
	Install(board)
	annotation := canvas.Shape{ID: "shape:annotated-red-eq1", Type: canvas.TypeGeo, X: 10, Y: 10, W: 50, H: 20, Color: "red"}
	_ = board.Create(annotation)
	_ = board.Create(canvas.Shape{ID: "shape:stroke", Type: canvas.TypeDraw, X: 1})

	tests := []struct {
		name   string
		mutate func(s *canvas.Shape)
		want   func(s canvas.Shape) bool
	}{
		{"move vetoed", func(s *canvas.Shape) { s.X = 99 }, func(s canvas.Shape) bool { return s.X == 10 }},
		{"resize vetoed", func(s *canvas.Shape) { s.W = 1 }, func(s canvas.Shape) bool { return s.W == 50 }},
		{"rotate vetoed", func(s *canvas.Shape) { s.Rotation = 1.2 }, func(s canvas.Shape) bool { return s.Rotation == 0 }},
		{"recolour allowed", func(s *canvas.Shape) { s.Color = "green" }, func(s canvas.Shape) bool { return s.Color == "green" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, _ := board.Shape(annotation.ID)
			tt.mutate(&next)
			got, err := board.Update(next)
			if err != nil {
				t.Fatalf("Update() error = %v", err)
			}
			if !tt.want(got) {
				t.Errorf("Update() stored %+v", got)
			}
		})
	}

	moved, _ := board.Update(canvas.Shape{ID: "shape:stroke", Type: canvas.TypeDraw, X: 42})
	if moved.X != 42 {
		t.Errorf("student stroke move was vetoed")
	}

	if deleted := board.Delete(annotation.ID); len(deleted) != 1 {
		t.Errorf("annotation deletion was blocked")
	}
}
