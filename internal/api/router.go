/**
 * HTTP surface for the whiteboard tutor
 *
 * Two route groups:
 * - collaborator pass-through (/api/vision, /api/analyze, ...) used by the
 *   browser client and for debugging single pipeline stages
 * - session routes (/api/sessions/:userId/boards/:question/...) that drive
 *   the server-side boards and the analysis cycle
 */

package api

import (
	"context"
	"net/http"
	"regexp"

	"github.com/adverant/nexus/whiteboard-tutor/internal/logging"
	"github.com/adverant/nexus/whiteboard-tutor/internal/processor"
	"github.com/adverant/nexus/whiteboard-tutor/internal/storage"
	"github.com/gin-gonic/gin"
)

// Request body limits
const (
	MaxBodyBytes     = 10 << 20
	MaxChatBodyBytes = 20 << 20
)

// imageDataURL is the accepted whiteboard image encoding
var imageDataURL = regexp.MustCompile(`^data:image/(jpeg|png);base64,`)

// Speech converts between text and audio
type Speech interface {
	Speech(ctx context.Context, text string) ([]byte, error)
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// ExplanationSearcher finds earlier explanations by meaning
type ExplanationSearcher interface {
	SearchExplanations(ctx context.Context, userID int64, query string, limit int) ([]storage.ExplanationMatch, error)
}

// Deps holds everything the handlers call into. Only Orchestrator is required.
type Deps struct {
	Orchestrator *processor.Orchestrator
	Terms        processor.TermSource
	Equations    processor.EquationSource
	Speech       Speech
	Explanations ExplanationSearcher
	Health       func(ctx context.Context) map[string]interface{}
	Logger       *logging.Logger
}

// Server binds handlers to their dependencies
type Server struct {
	deps   Deps
	logger *logging.Logger
}

// NewServer creates the handler set
func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewLogger("API")
	}
	return &Server{deps: deps, logger: logger}
}

// Router builds the gin engine with every route registered
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Logger(), gin.Recovery(), cors())

	router.GET("/health", s.health)

	api := router.Group("/api")
	{
		limited := api.Group("", limitBody(MaxBodyBytes))
		limited.POST("/vision", s.vision)
		limited.POST("/mathpix", s.mathpix)
		limited.POST("/analyze", s.analyze)
		limited.POST("/verify", s.verify)
		limited.POST("/analyze-question", s.analyzeQuestion)
		limited.POST("/verify-question", s.verifyQuestion)
		limited.POST("/new-correction", s.newCorrection)
		limited.POST("/text-to-speech", s.textToSpeech)
		limited.POST("/transcribe", s.transcribe)
		limited.POST("/participants", s.registerParticipant)

		api.POST("/chat", limitBody(MaxChatBodyBytes), s.chat)

		sessions := limited.Group("/sessions/:userId")
		sessions.GET("/log", s.interactionLog)
		sessions.GET("/explanations/search", s.searchExplanations)

		board := sessions.Group("/boards/:question")
		board.GET("/shapes", s.listShapes)
		board.PUT("/shapes", s.putShapes)
		board.PATCH("/shapes/:shapeId", s.patchShape)
		board.DELETE("/shapes/:shapeId", s.deleteShape)
		board.PUT("/viewport", s.setViewport)
		board.POST("/ask", s.ask)
		board.POST("/clear", s.clear)
		board.POST("/reset", s.reset)
		board.GET("/annotations/:shapeId", s.annotation)
		board.GET("/state", s.state)
		board.GET("/snapshot", s.snapshot)
	}

	return router
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func limitBody(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		}
		c.Next()
	}
}

func (s *Server) health(c *gin.Context) {
	body := gin.H{
		"status":   "healthy",
		"service":  "whiteboard-tutor",
		"sessions": s.deps.Orchestrator.Registry().Len(),
	}
	if s.deps.Health != nil {
		body["storage"] = s.deps.Health(c.Request.Context())
	}
	c.JSON(http.StatusOK, body)
}
