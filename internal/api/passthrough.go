package api

import (
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/adverant/nexus/whiteboard-tutor/internal/annotate"
	"github.com/adverant/nexus/whiteboard-tutor/internal/errors"
	"github.com/adverant/nexus/whiteboard-tutor/internal/llm"
	"github.com/adverant/nexus/whiteboard-tutor/internal/ocr"
	"github.com/adverant/nexus/whiteboard-tutor/internal/prompts"
	"github.com/gin-gonic/gin"
)

type visionRequest struct {
	Base64Image string `json:"base64Image"`
}

type mathpixRequest struct {
	ImageData string `json:"imageData"`
}

// analysisRequest is shared by the four analysis routes
type analysisRequest struct {
	Question     int            `json:"question"`
	UserQuestion string         `json:"userQuestion"`
	Equations    []ocr.Equation `json:"equations"`
	Image        string         `json:"image"`
	Messages     []llm.Message  `json:"messages"`
	Baseline     bool           `json:"baseline"`
}

func (r analysisRequest) context() prompts.Context {
	pc := prompts.Context{Question: r.Question, UserQuestion: r.UserQuestion}
	if r.Baseline {
		pc.Catalog = prompts.Baseline
	}
	return pc
}

type verifyRequest struct {
	analysisRequest
	Annotations annotate.AnalysisResponse `json:"annotations"`
}

type verifyQuestionRequest struct {
	analysisRequest
	Annotations annotate.QuestionAnalysisResponse `json:"annotations"`
}

type chatRequest struct {
	Question int           `json:"question"`
	Messages []llm.Message `json:"messages" binding:"required"`
	Images   []string      `json:"images"`
	UserID   string        `json:"userId"`
}

type speechRequest struct {
	Text     string `json:"text"`
	UserID   string `json:"userId"`
	Question int    `json:"question"`
}

type transcribeRequest struct {
	Audio    string `json:"audio"`
	UserID   string `json:"userId"`
	Question int    `json:"question"`
}

func decodeImage(dataURL string) ([]byte, error) {
	payload, err := imagePayload(dataURL)
	if err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, errors.NewInvalidInputError("image is not valid base64")
	}
	return data, nil
}

func (s *Server) vision(c *gin.Context) {
	var req visionRequest
	if !s.bind(c, &req) {
		return
	}
	image, err := decodeImage(req.Base64Image)
	if err != nil {
		s.fail(c, err)
		return
	}
	if s.deps.Terms == nil {
		s.fail(c, errors.NewNetworkError("google-vision", fmt.Errorf("term detection is not configured")))
		return
	}
	result, err := s.deps.Terms.DetectTerms(c.Request.Context(), image)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) mathpix(c *gin.Context) {
	var req mathpixRequest
	if !s.bind(c, &req) {
		return
	}
	image, err := decodeImage(req.ImageData)
	if err != nil {
		s.fail(c, err)
		return
	}
	if s.deps.Equations == nil {
		s.fail(c, errors.NewNetworkError("mathpix", fmt.Errorf("mathpix credentials are not configured")))
		return
	}
	result, err := s.deps.Equations.DetectEquations(c.Request.Context(), image)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) analyze(c *gin.Context) {
	var req analysisRequest
	if !s.bind(c, &req) {
		return
	}
	image, err := imagePayload(req.Image)
	if err != nil {
		s.fail(c, err)
		return
	}
	resp, err := s.deps.Orchestrator.Tutor().Analyze(c.Request.Context(), req.context(), req.Equations, image, req.Messages)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) verify(c *gin.Context) {
	var req verifyRequest
	if !s.bind(c, &req) {
		return
	}
	image, err := imagePayload(req.Image)
	if err != nil {
		s.fail(c, err)
		return
	}
	resp, err := s.deps.Orchestrator.Tutor().Verify(c.Request.Context(), req.context(), req.Equations, image, &req.Annotations)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) analyzeQuestion(c *gin.Context) {
	var req analysisRequest
	if !s.bind(c, &req) {
		return
	}
	image, err := imagePayload(req.Image)
	if err != nil {
		s.fail(c, err)
		return
	}
	resp, err := s.deps.Orchestrator.Tutor().AnalyzeQuestion(c.Request.Context(), req.context(), req.Equations, image, req.Messages)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// verifyQuestion accepts a request without an image
func (s *Server) verifyQuestion(c *gin.Context) {
	var req verifyQuestionRequest
	if !s.bind(c, &req) {
		return
	}
	var image string
	if req.Image != "" {
		var err error
		if image, err = imagePayload(req.Image); err != nil {
			s.fail(c, err)
			return
		}
	}
	resp, err := s.deps.Orchestrator.Tutor().VerifyQuestion(c.Request.Context(), req.context(), req.Equations, image, &req.Annotations)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) newCorrection(c *gin.Context) {
	var req analysisRequest
	if !s.bind(c, &req) {
		return
	}
	image, err := imagePayload(req.Image)
	if err != nil {
		s.fail(c, err)
		return
	}
	corrections, err := s.deps.Orchestrator.Tutor().Correct(c.Request.Context(), req.Equations, image)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, annotate.CorrectionResponse{CorrectedTerms: corrections})
}

// chat records the turns on the participant's board when userId is given
func (s *Server) chat(c *gin.Context) {
	var req chatRequest
	if !s.bind(c, &req) {
		return
	}
	for _, img := range req.Images {
		if !imageDataURL.MatchString(img) {
			s.fail(c, errors.NewInvalidInputError("invalid image format in images"))
			return
		}
	}

	ctx := c.Request.Context()
	var (
		reply string
		err   error
	)
	if req.UserID != "" {
		userID, perr := parseBodyUserID(req.UserID)
		if perr != nil {
			s.fail(c, perr)
			return
		}
		reply, err = s.deps.Orchestrator.Chat(ctx, userID, req.Question, req.Messages, req.Images)
	} else {
		reply, err = s.deps.Orchestrator.Tutor().Chat(ctx, req.Question, req.Messages, req.Images)
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"role": llm.RoleAssistant, "content": reply})
}

func (s *Server) textToSpeech(c *gin.Context) {
	var req speechRequest
	if !s.bind(c, &req) {
		return
	}
	if s.deps.Speech == nil {
		s.fail(c, errors.NewNetworkError("speech", fmt.Errorf("speech backend is not configured")))
		return
	}
	audio, err := s.deps.Speech.Speech(c.Request.Context(), req.Text)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.countUsage(c, req.UserID, req.Question, false)
	c.Data(http.StatusOK, "audio/mpeg", audio)
}

func (s *Server) transcribe(c *gin.Context) {
	var req transcribeRequest
	if !s.bind(c, &req) {
		return
	}
	if req.Audio == "" {
		s.fail(c, errors.NewInvalidInputError("no audio data provided"))
		return
	}
	audio, err := base64.StdEncoding.DecodeString(req.Audio)
	if err != nil {
		s.fail(c, errors.NewInvalidInputError("audio is not valid base64"))
		return
	}
	if s.deps.Speech == nil {
		s.fail(c, errors.NewNetworkError("speech", fmt.Errorf("speech backend is not configured")))
		return
	}
	text, err := s.deps.Speech.Transcribe(c.Request.Context(), audio, "input.wav")
	if err != nil {
		s.fail(c, err)
		return
	}
	s.countUsage(c, req.UserID, req.Question, true)
	c.JSON(http.StatusOK, gin.H{"text": text})
}

// countUsage bumps the read or voice counter of a participant's board.
// Counting failures never fail the request.
func (s *Server) countUsage(c *gin.Context, rawUserID string, question int, voice bool) {
	if rawUserID == "" {
		return
	}
	userID, err := parseBodyUserID(rawUserID)
	if err != nil {
		return
	}
	ctx := c.Request.Context()
	if voice {
		_, err = s.deps.Orchestrator.RecordVoice(ctx, userID, question)
	} else {
		_, err = s.deps.Orchestrator.RecordRead(ctx, userID, question)
	}
	if err != nil {
		s.logger.Debug("Usage not counted", "user", userID, "question", question, "error", err)
	}
}
