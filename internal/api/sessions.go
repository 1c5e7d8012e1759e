package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/adverant/nexus/whiteboard-tutor/internal/canvas"
	"github.com/adverant/nexus/whiteboard-tutor/internal/errors"
	"github.com/adverant/nexus/whiteboard-tutor/internal/processor"
	"github.com/adverant/nexus/whiteboard-tutor/internal/storage"
	"github.com/gin-gonic/gin"
)

const defaultSearchLimit = 5

type participantRequest struct {
	UserID string `json:"userId" binding:"required"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

type shapesRequest struct {
	Shapes []canvas.Shape `json:"shapes" binding:"required"`
}

type askRequest struct {
	UserQuestion string `json:"userQuestion"`
}

func (s *Server) registerParticipant(c *gin.Context) {
	var req participantRequest
	if !s.bind(c, &req) {
		return
	}
	userID, err := parseBodyUserID(req.UserID)
	if err != nil {
		s.fail(c, err)
		return
	}

	session, created := s.deps.Orchestrator.Register(c.Request.Context(), storage.Participant{
		UserID: userID,
		Name:   req.Name,
		Email:  req.Email,
	})
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{
		"participant": session.Participant,
		"baseline":    session.Participant.IsBaseline(),
	})
}

// session resolves the :userId parameter
func (s *Server) session(c *gin.Context) (*processor.Session, bool) {
	userID, err := userIDParam(c)
	if err != nil {
		s.fail(c, err)
		return nil, false
	}
	session, err := s.deps.Orchestrator.Registry().Get(userID)
	if err != nil {
		s.fail(c, err)
		return nil, false
	}
	return session, true
}

// board resolves the :userId and :question parameters
func (s *Server) board(c *gin.Context) (*processor.Session, *processor.BoardSession, bool) {
	session, ok := s.session(c)
	if !ok {
		return nil, nil, false
	}
	q, err := questionParam(c)
	if err != nil {
		s.fail(c, err)
		return nil, nil, false
	}
	board, err := session.Board(q)
	if err != nil {
		s.fail(c, err)
		return nil, nil, false
	}
	return session, board, true
}

func (s *Server) listShapes(c *gin.Context) {
	_, board, ok := s.board(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"shapes":   board.Canvas.Shapes(),
		"state":    board.State.State(),
		"viewport": board.Canvas.Viewport(),
	})
}

// putShapes creates new student shapes and updates existing ones. Updates go
// through the board's interceptors, so annotation geometry stays frozen, and
// never change a shape's kind or lock.
func (s *Server) putShapes(c *gin.Context) {
	_, board, ok := s.board(c)
	if !ok {
		return
	}
	var req shapesRequest
	if !s.bind(c, &req) {
		return
	}

	stored := make([]canvas.Shape, 0, len(req.Shapes))
	for _, shape := range req.Shapes {
		if prev, exists := board.Canvas.Shape(shape.ID); exists {
			if prev.Locked {
				s.fail(c, errors.NewInvalidInputError("shape "+shape.ID+" is locked"))
				return
			}
			shape.Kind = prev.Kind
			shape.Locked = prev.Locked
			applied, err := board.Canvas.Update(shape)
			if err != nil {
				s.fail(c, err)
				return
			}
			stored = append(stored, applied)
			continue
		}

		if canvas.InferKind(shape.ID) != canvas.KindUserContent {
			s.fail(c, errors.NewInvalidInputError("shape id "+shape.ID+" is reserved for system shapes"))
			return
		}
		shape.Kind = canvas.KindUserContent
		if err := board.Canvas.Create(shape); err != nil {
			s.fail(c, err)
			return
		}
		stored = append(stored, shape)
	}
	c.JSON(http.StatusOK, gin.H{"shapes": stored})
}

// patchShape merges the body onto the stored shape
func (s *Server) patchShape(c *gin.Context) {
	_, board, ok := s.board(c)
	if !ok {
		return
	}
	id := c.Param("shapeId")
	prev, exists := board.Canvas.Shape(id)
	if !exists {
		s.fail(c, errors.NewNotFoundError("shape", id))
		return
	}
	if prev.Locked {
		s.fail(c, errors.NewInvalidInputError("shape "+id+" is locked"))
		return
	}

	raw, err := c.GetRawData()
	if err != nil {
		s.fail(c, err)
		return
	}
	next := prev
	if err := json.Unmarshal(raw, &next); err != nil {
		s.fail(c, errors.NewInvalidInputError("invalid shape patch: "+err.Error()))
		return
	}
	next.ID = id
	next.Kind = prev.Kind
	next.Locked = prev.Locked

	applied, err := board.Canvas.Update(next)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, applied)
}

// deleteShape removes any unlocked shape, annotation boxes included
func (s *Server) deleteShape(c *gin.Context) {
	_, board, ok := s.board(c)
	if !ok {
		return
	}
	id := c.Param("shapeId")
	shape, exists := board.Canvas.Shape(id)
	if !exists {
		s.fail(c, errors.NewNotFoundError("shape", id))
		return
	}
	if shape.Locked {
		s.fail(c, errors.NewInvalidInputError("shape "+id+" is locked"))
		return
	}
	board.Canvas.Delete(id)
	c.Status(http.StatusNoContent)
}

func (s *Server) setViewport(c *gin.Context) {
	_, board, ok := s.board(c)
	if !ok {
		return
	}
	var v canvas.Viewport
	if !s.bind(c, &v) {
		return
	}
	board.Canvas.SetViewport(v)
	c.JSON(http.StatusOK, board.Canvas.Viewport())
}

func (s *Server) ask(c *gin.Context) {
	session, board, ok := s.board(c)
	if !ok {
		return
	}
	var req askRequest
	if c.Request.ContentLength != 0 && !s.bind(c, &req) {
		return
	}

	result, err := s.deps.Orchestrator.Ask(c.Request.Context(), session.Participant.UserID, board.Question, req.UserQuestion)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// clear removes the annotation boxes and keeps the student's work
func (s *Server) clear(c *gin.Context) {
	session, board, ok := s.board(c)
	if !ok {
		return
	}
	deleted, state, err := s.deps.Orchestrator.ClearAnnotations(c.Request.Context(), session.Participant.UserID, board.Question)
	if err != nil {
		s.fail(c, err)
		return
	}
	if deleted == nil {
		deleted = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"state": state, "deleted": deleted})
}

// reset wipes the board back to its question label
func (s *Server) reset(c *gin.Context) {
	session, board, ok := s.board(c)
	if !ok {
		return
	}
	state, err := s.deps.Orchestrator.Reset(c.Request.Context(), session.Participant.UserID, board.Question)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

func (s *Server) annotation(c *gin.Context) {
	_, board, ok := s.board(c)
	if !ok {
		return
	}
	id := c.Param("shapeId")
	explanation, found := board.Explanation(id)
	if !found {
		s.fail(c, errors.NewNotFoundError("annotation", id))
		return
	}
	target, _ := board.Target(id)
	c.JSON(http.StatusOK, gin.H{
		"shapeId":     id,
		"targetId":    target,
		"explanation": explanation,
	})
}

func (s *Server) state(c *gin.Context) {
	_, board, ok := s.board(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"question": board.Question,
		"state":    board.State.State(),
	})
}

func (s *Server) snapshot(c *gin.Context) {
	_, board, ok := s.board(c)
	if !ok {
		return
	}
	image, err := s.deps.Orchestrator.Snapshot(board)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "image/jpeg", image)
}

func (s *Server) interactionLog(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, session.Log())
}

func (s *Server) searchExplanations(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	if s.deps.Explanations == nil {
		s.fail(c, errors.NewStorageFailedError("search explanations", storage.ErrNotConfigured))
		return
	}

	limit := defaultSearchLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 50 {
			s.fail(c, errors.NewInvalidInputError("limit must be between 1 and 50"))
			return
		}
		limit = n
	}

	matches, err := s.deps.Explanations.SearchExplanations(c.Request.Context(), session.Participant.UserID, c.Query("q"), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"matches": matches})
}
