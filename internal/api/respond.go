package api

import (
	stderrors "errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/adverant/nexus/whiteboard-tutor/internal/errors"
	"github.com/adverant/nexus/whiteboard-tutor/internal/storage"
	"github.com/gin-gonic/gin"
)

// statusFor maps error codes to HTTP statuses
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	if stderrors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}

	switch errors.CodeOf(err) {
	case errors.ErrorNetwork, errors.ErrorMalformedResponse:
		return http.StatusBadGateway
	case errors.ErrorBusy, errors.ErrorInvalidTransition:
		return http.StatusConflict
	case errors.ErrorInvalidInput, errors.ErrorEmptyInput:
		return http.StatusBadRequest
	case errors.ErrorNotFound:
		return http.StatusNotFound
	case errors.ErrorUnresolvedTarget:
		return http.StatusUnprocessableEntity
	case errors.ErrorStorageFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	body := gin.H{"error": err.Error()}

	var pe *errors.ProcessingError
	if stderrors.As(err, &pe) {
		body["error"] = pe.Message
		body["code"] = pe.Code
		if pe.CycleID != "" {
			body["cycleId"] = pe.CycleID
		}
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "path", c.FullPath(), "status", status, "error", err)
	}
	c.AbortWithStatusJSON(status, body)
}

// bind decodes a JSON body, reporting oversize bodies as 413
func (s *Server) bind(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			s.fail(c, err)
			return false
		}
		s.fail(c, errors.NewInvalidInputError("invalid request body: "+err.Error()))
		return false
	}
	return true
}

// imagePayload validates a whiteboard data URL and returns its base64 part
func imagePayload(dataURL string) (string, error) {
	if !imageDataURL.MatchString(dataURL) {
		return "", errors.NewInvalidInputError("invalid image format: expected a base64 JPEG or PNG data URL")
	}
	_, payload, _ := strings.Cut(dataURL, ",")
	if payload == "" {
		return "", errors.NewInvalidInputError("image data URL has no payload")
	}
	return payload, nil
}

func userIDParam(c *gin.Context) (int64, error) {
	return parseBodyUserID(c.Param("userId"))
}

func questionParam(c *gin.Context) (int, error) {
	q, err := strconv.Atoi(c.Param("question"))
	if err != nil {
		return 0, errors.NewInvalidInputError("question must be a number")
	}
	return q, nil
}

// parseBodyUserID accepts digit-only participant ids
func parseBodyUserID(raw string) (int64, error) {
	id, err := storage.ParseUserID(raw)
	if err != nil {
		return 0, errors.NewInvalidInputError(err.Error())
	}
	return id, nil
}
