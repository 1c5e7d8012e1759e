/**
 * Google Vision Client - handwriting term segmentation
 *
 * Calls images:annotate with DOCUMENT_TEXT_DETECTION and maps the page
 * hierarchy onto the tutor's model:
 * - blocks become equations
 * - words become terms
 * - symbol texts are joined into each term's text
 */

package clients

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/adverant/nexus/whiteboard-tutor/internal/errors"
	"github.com/adverant/nexus/whiteboard-tutor/internal/geometry"
	"github.com/adverant/nexus/whiteboard-tutor/internal/logging"
	"github.com/adverant/nexus/whiteboard-tutor/internal/ocr"
)

const (
	DefaultVisionURL = "https://vision.googleapis.com/v1/images:annotate"
	visionService    = "google-vision"
)

// VisionClient handles communication with Google Cloud Vision
type VisionClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logging.Logger
}

// Vision REST wire types, trimmed to the fields the mapping reads

type visionVertex struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type visionBoundingPoly struct {
	Vertices []visionVertex `json:"vertices"`
}

type visionSymbol struct {
	Text        string             `json:"text"`
	BoundingBox visionBoundingPoly `json:"boundingBox"`
}

type visionWord struct {
	BoundingBox visionBoundingPoly `json:"boundingBox"`
	Symbols     []visionSymbol     `json:"symbols"`
}

type visionParagraph struct {
	Words []visionWord `json:"words"`
}

type visionBlock struct {
	BoundingBox visionBoundingPoly `json:"boundingBox"`
	Paragraphs  []visionParagraph  `json:"paragraphs"`
}

type visionPage struct {
	Blocks []visionBlock `json:"blocks"`
}

type visionAnnotateResponse struct {
	Responses []struct {
		FullTextAnnotation *struct {
			Text  string       `json:"text"`
			Pages []visionPage `json:"pages"`
		} `json:"fullTextAnnotation"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"responses"`
}

// NewVisionClient creates a new Vision client. An empty baseURL uses the public endpoint.
func NewVisionClient(baseURL, apiKey string) *VisionClient {
	if baseURL == "" {
		baseURL = DefaultVisionURL
	}
	return &VisionClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logging.NewLogger("VisionClient"),
	}
}

// DetectTerms runs document text detection over a JPEG or PNG image
func (c *VisionClient) DetectTerms(ctx context.Context, image []byte) (*ocr.Result, error) {
	if len(image) == 0 {
		return nil, errors.NewInvalidInputError("no image provided")
	}

	payload := map[string]interface{}{
		"requests": []map[string]interface{}{{
			"image":    map[string]string{"content": base64.StdEncoding.EncodeToString(image)},
			"features": []map[string]string{{"type": "DOCUMENT_TEXT_DETECTION"}},
		}},
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal vision request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"?key="+c.apiKey, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create vision request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	startTime := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.NewNetworkError(visionService, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewNetworkError(visionService, fmt.Errorf("failed to read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewNetworkError(visionService,
			fmt.Errorf("vision API returned status %d: %s", resp.StatusCode, string(body)))
	}

	var parsed visionAnnotateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, errors.NewMalformedResponseError(visionService, "invalid JSON", err)
	}
	if len(parsed.Responses) == 0 {
		return nil, errors.NewMalformedResponseError(visionService, "no responses", nil)
	}
	first := parsed.Responses[0]
	if first.Error != nil {
		return nil, errors.NewNetworkError(visionService,
			fmt.Errorf("annotate error %d: %s", first.Error.Code, first.Error.Message))
	}

	result := &ocr.Result{Source: visionService, Equations: []ocr.Equation{}}
	if first.FullTextAnnotation != nil {
		result.AllText = first.FullTextAnnotation.Text
		if len(first.FullTextAnnotation.Pages) > 0 {
			result.Equations = mapBlocks(first.FullTextAnnotation.Pages[0].Blocks)
		}
	}
	result.Duration = time.Since(startTime)

	c.logger.Info("Vision detection complete",
		"equations", len(result.Equations),
		"terms", ocr.TermCount(result.Equations),
		"duration", result.Duration)

	return result, nil
}

// polyBox uses vertices 0 and 2 as the top-left and bottom-right corners
func polyBox(p visionBoundingPoly) geometry.BoundingBox {
	if len(p.Vertices) < 3 {
		return geometry.BoundingBox{}
	}
	return geometry.FromCorners(p.Vertices[0].X, p.Vertices[0].Y, p.Vertices[2].X, p.Vertices[2].Y)
}

func mapBlocks(blocks []visionBlock) []ocr.Equation {
	equations := make([]ocr.Equation, 0, len(blocks))
	for _, block := range blocks {
		eq := ocr.Equation{
			ID:          ocr.NewEquationID(),
			BoundingBox: polyBox(block.BoundingBox),
		}

		var texts []string
		for _, paragraph := range block.Paragraphs {
			for _, word := range paragraph.Words {
				termID := ocr.NewTermID(eq.ID)
				var sb strings.Builder
				symbols := make([]ocr.Symbol, 0, len(word.Symbols))
				for _, symbol := range word.Symbols {
					sb.WriteString(symbol.Text)
					symbols = append(symbols, ocr.Symbol{
						ID:          ocr.NewSymbolID(termID),
						Text:        symbol.Text,
						BoundingBox: polyBox(symbol.BoundingBox),
					})
				}
				term := ocr.Term{
					ID:          termID,
					Text:        sb.String(),
					BoundingBox: polyBox(word.BoundingBox),
					Symbols:     symbols,
				}
				eq.Terms = append(eq.Terms, term)
				texts = append(texts, term.Text)
			}
		}
		eq.Text = strings.Join(texts, " ")
		equations = append(equations, eq)
	}
	return equations
}
