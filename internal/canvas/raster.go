package canvas

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"
	"sync"

	"github.com/adverant/nexus/whiteboard-tutor/internal/errors"
	"github.com/adverant/nexus/whiteboard-tutor/internal/geometry"
	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

// ExportOptions controls rasterisation of a shape set
type ExportOptions struct {
	Padding    float64 // page units added on every side
	Scale      float64 // output pixels per page unit
	Background bool    // white background instead of transparent black
	Quality    int     // JPEG quality 1-100
}

// DefaultExportOptions matches the snapshot the OCR collaborators are tuned for
func DefaultExportOptions() ExportOptions {
	return ExportOptions{Padding: 10, Scale: 1, Background: true, Quality: 90}
}

// Snapshot is a rasterised shape set
type Snapshot struct {
	Image    []byte         `json:"-"`
	MimeType string         `json:"mimeType"`
	Origin   geometry.Point `json:"origin"` // page-space top-left of the exported shapes
	Width    int            `json:"width"`
	Height   int            `json:"height"`
	ShapeIDs []string       `json:"shapeIds"`
}

// palette maps the drawing client's colour names to hex values
var palette = map[string]string{
	"black":        "#1d1d1d",
	"grey":         "#9fa8b2",
	"light-violet": "#e085f4",
	"violet":       "#ae3ec9",
	"blue":         "#4465e9",
	"light-blue":   "#4ba1f1",
	"yellow":       "#f1ac4b",
	"orange":       "#e16919",
	"green":        "#099268",
	"light-green":  "#4cb05e",
	"light-red":    "#f87777",
	"red":          "#e03131",
	"white":        "#ffffff",
}

// ColorFor resolves a colour name or hex string, defaulting to black
func ColorFor(name string) color.Color {
	hex, ok := palette[strings.ToLower(name)]
	if !ok {
		hex = name
	}
	c, err := colorful.Hex(hex)
	if err != nil {
		c, _ = colorful.Hex(palette["black"])
	}
	return c
}

var (
	fontOnce sync.Once
	fontData *truetype.Font
	fontErr  error
)

func fontFace(size float64) (font.Face, error) {
	fontOnce.Do(func() {
		fontData, fontErr = truetype.Parse(goregular.TTF)
	})
	if fontErr != nil {
		return nil, fmt.Errorf("failed to parse font: %w", fontErr)
	}
	return truetype.NewFace(fontData, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	}), nil
}

// Export rasterises the given shapes to JPEG. Unknown ids are ignored;
// exporting nothing is an error.
func (b *Board) Export(ids []string, opts ExportOptions) (*Snapshot, error) {
	if opts.Scale <= 0 {
		opts.Scale = 1
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = 90
	}

	var shapes []Shape
	for _, id := range ids {
		if s, ok := b.Shape(id); ok {
			shapes = append(shapes, s)
		}
	}
	if len(shapes) == 0 {
		return nil, errors.NewEmptyInputError("export")
	}

	bounds := shapes[0].Bounds()
	for _, s := range shapes[1:] {
		bounds = bounds.Union(s.Bounds())
	}

	width := int(math.Ceil((bounds.Width + 2*opts.Padding) * opts.Scale))
	height := int(math.Ceil((bounds.Height + 2*opts.Padding) * opts.Scale))
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}

	dc := gg.NewContext(width, height)
	if opts.Background {
		dc.SetColor(color.White)
		dc.Clear()
	}

	// page → image transform
	tx := func(x float64) float64 { return (x - bounds.X + opts.Padding) * opts.Scale }
	ty := func(y float64) float64 { return (y - bounds.Y + opts.Padding) * opts.Scale }

	for _, s := range shapes {
		if err := drawShape(dc, s, tx, ty, opts.Scale); err != nil {
			return nil, err
		}
	}

	data, err := encodeJPEG(dc.Image(), opts.Quality)
	if err != nil {
		return nil, err
	}

	exported := make([]string, len(shapes))
	for i, s := range shapes {
		exported[i] = s.ID
	}

	return &Snapshot{
		Image:    data,
		MimeType: "image/jpeg",
		Origin:   geometry.Point{X: bounds.X, Y: bounds.Y},
		Width:    width,
		Height:   height,
		ShapeIDs: exported,
	}, nil
}

func drawShape(dc *gg.Context, s Shape, tx, ty func(float64) float64, scale float64) error {
	dc.Push()
	defer dc.Pop()

	if s.Rotation != 0 {
		dc.RotateAbout(s.Rotation, tx(s.X), ty(s.Y))
	}
	dc.SetColor(ColorFor(s.Color))
	dc.SetLineWidth(math.Max(1, 2*scale))

	switch s.Type {
	case TypeDraw:
		for _, segment := range s.Segments {
			for i, p := range segment {
				if i == 0 {
					dc.MoveTo(tx(s.X+p.X), ty(s.Y+p.Y))
					continue
				}
				dc.LineTo(tx(s.X+p.X), ty(s.Y+p.Y))
			}
			dc.Stroke()
		}
	case TypeText:
		face, err := fontFace(math.Max(8, 24*scale))
		if err != nil {
			return err
		}
		dc.SetFontFace(face)
		lineHeight := dc.FontHeight() * 1.3
		for i, line := range strings.Split(s.Text, "\n") {
			dc.DrawString(line, tx(s.X), ty(s.Y)+lineHeight*float64(i+1))
		}
	default:
		dc.DrawRectangle(tx(s.X), ty(s.Y), s.W*scale, s.H*scale)
		if s.Fill == "solid" {
			dc.FillPreserve()
		}
		dc.Stroke()
	}
	return nil
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// Compress downsizes an encoded image so neither side exceeds maxDimension,
// preserving aspect ratio, and re-encodes it as JPEG.
func Compress(data []byte, maxDimension int, quality int) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	b := img.Bounds()
	if b.Dx() > maxDimension || b.Dy() > maxDimension {
		img = imaging.Fit(img, maxDimension, maxDimension, imaging.Lanczos)
	}
	return encodeJPEG(img, quality)
}
