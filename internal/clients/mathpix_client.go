/**
 * Mathpix Client - LaTeX equation recognition
 *
 * Posts the snapshot to /v3/text with word data enabled. Each word_data
 * entry becomes one equation carrying LaTeX and a box from its contour.
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
	"time"

	"github.com/adverant/nexus/whiteboard-tutor/internal/errors"
	"github.com/adverant/nexus/whiteboard-tutor/internal/geometry"
	"github.com/adverant/nexus/whiteboard-tutor/internal/logging"
	"github.com/adverant/nexus/whiteboard-tutor/internal/ocr"
)

const (
	DefaultMathpixURL = "https://api.mathpix.com/v3/text"
	mathpixService    = "mathpix"
)

// MathpixClient handles communication with the Mathpix API
type MathpixClient struct {
	baseURL    string
	appID      string
	appKey     string
	httpClient *http.Client
	logger     *logging.Logger
}

// MathpixRequest is the /v3/text request body
type MathpixRequest struct {
	Src             string `json:"src"`
	IncludeWordData bool   `json:"include_word_data"`
}

type mathpixWord struct {
	Text string       `json:"text"`
	Cnt  [][2]float64 `json:"cnt"`
}

type mathpixResponse struct {
	WordData []mathpixWord `json:"word_data"`
	Error    string        `json:"error,omitempty"`
}

// NewMathpixClient creates a new Mathpix client. An empty baseURL uses the public endpoint.
func NewMathpixClient(baseURL, appID, appKey string) *MathpixClient {
	if baseURL == "" {
		baseURL = DefaultMathpixURL
	}
	return &MathpixClient{
		baseURL: baseURL,
		appID:   appID,
		appKey:  appKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logging.NewLogger("MathpixClient"),
	}
}

// Configured reports whether credentials are present
func (c *MathpixClient) Configured() bool {
	return c.appID != "" && c.appKey != ""
}

// DetectEquations recognises LaTeX equations in a JPEG image
func (c *MathpixClient) DetectEquations(ctx context.Context, image []byte) (*ocr.Result, error) {
	if len(image) == 0 {
		return nil, errors.NewInvalidInputError("no image data provided")
	}
	if !c.Configured() {
		return nil, errors.NewNetworkError(mathpixService, fmt.Errorf("mathpix API credentials not configured"))
	}

	reqBody := MathpixRequest{
		Src:             "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image),
		IncludeWordData: true,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal mathpix request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create mathpix request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("app_id", c.appID)
	httpReq.Header.Set("app_key", c.appKey)

	startTime := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.NewNetworkError(mathpixService, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewNetworkError(mathpixService, fmt.Errorf("failed to read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewNetworkError(mathpixService,
			fmt.Errorf("mathpix API returned status %d: %s", resp.StatusCode, string(body)))
	}

	var parsed mathpixResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, errors.NewMalformedResponseError(mathpixService, "invalid JSON", err)
	}
	if parsed.Error != "" {
		return nil, errors.NewMalformedResponseError(mathpixService, parsed.Error, nil)
	}

	equations := make([]ocr.Equation, 0, len(parsed.WordData))
	for _, w := range parsed.WordData {
		equations = append(equations, ocr.Equation{
			ID:          ocr.NewEquationID(),
			Latex:       w.Text,
			BoundingBox: geometry.FromContour(w.Cnt),
		})
	}

	result := &ocr.Result{
		Source:    mathpixService,
		Equations: equations,
		Duration:  time.Since(startTime),
	}
	c.logger.Info("Mathpix detection complete",
		"equations", len(equations),
		"duration", result.Duration)

	return result, nil
}
