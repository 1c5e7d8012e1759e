/**
 * Artifact Client for board snapshots
 *
 * Uploads the annotated board image attached to each assistant message so
 * the interaction log can reference it by URL.
 *
 * Storage Flow:
 * 1. Server exports the board with annotations after a cycle
 * 2. Worker picks up the snapshot:upload task
 * 3. Worker posts the JPEG to the artifact API under
 *    users/<userId>/system/q<n>/<messageId>_image
 * 4. API returns the artifact id and download URL
 * 5. Worker writes the URL into the message's imageUrl
 */

package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/adverant/nexus/whiteboard-tutor/internal/logging"
)

// ArtifactClient handles communication with the artifact storage API
type ArtifactClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// SnapshotUploadRequest represents a board snapshot upload
type SnapshotUploadRequest struct {
	Image     []byte // JPEG bytes
	UserID    string
	Question  int
	MessageID string
	Metadata  map[string]interface{}
}

// ArtifactUploadResponse represents the response from uploading an artifact
type ArtifactUploadResponse struct {
	Success  bool `json:"success"`
	Artifact struct {
		ID          string `json:"id"`
		Path        string `json:"path"`
		FileSize    int64  `json:"file_size"`
		MimeType    string `json:"mime_type"`
		DownloadURL string `json:"download_url"`
		CreatedAt   string `json:"created_at"`
	} `json:"artifact,omitempty"`
	Error string `json:"error,omitempty"`
}

// SnapshotPath returns the storage path of a message's board image
func SnapshotPath(userID string, question int, messageID string) string {
	return fmt.Sprintf("users/%s/system/q%d/%s_image", userID, question, messageID)
}

// NewArtifactClient creates a new artifact client
func NewArtifactClient(baseURL string) *ArtifactClient {
	return &ArtifactClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logging.NewLogger("ArtifactClient"),
	}
}

// HealthCheck verifies the artifact API is available
func (c *ArtifactClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("artifact service health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("artifact service health check returned status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

// UploadSnapshot stores a board image and returns its download URL
func (c *ArtifactClient) UploadSnapshot(ctx context.Context, req *SnapshotUploadRequest) (*ArtifactUploadResponse, error) {
	if len(req.Image) == 0 {
		return nil, fmt.Errorf("image is required: received empty buffer")
	}
	if req.UserID == "" || req.MessageID == "" {
		return nil, fmt.Errorf("user id and message id are required")
	}

	path := SnapshotPath(req.UserID, req.Question, req.MessageID)
	c.logger.Info("Uploading snapshot", "path", path, "size", len(req.Image))

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", req.MessageID+"_image.jpg")
	if err != nil {
		return nil, fmt.Errorf("failed to create form file part: %w", err)
	}
	bytesWritten, err := part.Write(req.Image)
	if err != nil {
		return nil, fmt.Errorf("failed to write image data to form: %w", err)
	}
	if bytesWritten != len(req.Image) {
		return nil, fmt.Errorf("incomplete image write: expected %d bytes, wrote %d bytes", len(req.Image), bytesWritten)
	}

	if err := writer.WriteField("path", path); err != nil {
		return nil, fmt.Errorf("failed to write path field: %w", err)
	}
	if err := writer.WriteField("mime_type", "image/jpeg"); err != nil {
		return nil, fmt.Errorf("failed to write mime_type field: %w", err)
	}
	if len(req.Metadata) > 0 {
		metadataJSON, err := json.Marshal(req.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata to JSON: %w", err)
		}
		if err := writer.WriteField("metadata", string(metadataJSON)); err != nil {
			return nil, fmt.Errorf("failed to write metadata field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/files/upload", &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	startTime := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request to artifact storage failed after %v: %w", time.Since(startTime), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("snapshot upload failed with HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	var result ArtifactUploadResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse artifact upload response: %w (raw response: %s)", err, string(respBody))
	}
	if !result.Success {
		return nil, fmt.Errorf("snapshot upload returned success=false: %s", result.Error)
	}
	if result.Artifact.DownloadURL == "" {
		return nil, fmt.Errorf("snapshot upload succeeded but returned empty download URL")
	}

	c.logger.Info("Snapshot uploaded",
		"id", result.Artifact.ID,
		"url", result.Artifact.DownloadURL,
		"duration", time.Since(startTime))

	return &result, nil
}
