/**
 * Analysis cycle orchestrator for the whiteboard tutor
 *
 * Runs one ask on a board through the pipeline:
 * - sweep of the previous cycle's annotation boxes
 * - board snapshot and handwriting recognition (Mathpix + Google Vision,
 *   or the question label through the term source alone)
 * - equation/term merge and LaTeX correction
 * - LLM analysis followed by a verification pass
 * - placement of the annotation boxes under the lifecycle guard
 * - hand-off of snapshot upload, interaction log and explanation indexing
 */

package processor

import (
	"context"
	"encoding/base64"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/adverant/nexus/whiteboard-tutor/internal/annotate"
	"github.com/adverant/nexus/whiteboard-tutor/internal/canvas"
	"github.com/adverant/nexus/whiteboard-tutor/internal/errors"
	"github.com/adverant/nexus/whiteboard-tutor/internal/llm"
	"github.com/adverant/nexus/whiteboard-tutor/internal/logging"
	"github.com/adverant/nexus/whiteboard-tutor/internal/ocr"
	"github.com/adverant/nexus/whiteboard-tutor/internal/prompts"
	"github.com/adverant/nexus/whiteboard-tutor/internal/queue"
	"github.com/adverant/nexus/whiteboard-tutor/internal/storage"
	"github.com/google/uuid"
)

// Snapshot sizing for LLM input and uploads
const (
	SnapshotMaxDimension = 1024
	SnapshotQuality      = 90
)

// DefaultCycleTimeout bounds one ask when none is configured
const DefaultCycleTimeout = 120 * time.Second

// TermSource segments handwriting into equations of terms
type TermSource interface {
	DetectTerms(ctx context.Context, image []byte) (*ocr.Result, error)
}

// EquationSource recognises equations as LaTeX
type EquationSource interface {
	DetectEquations(ctx context.Context, image []byte) (*ocr.Result, error)
}

// OrchestratorConfig holds orchestrator dependencies
type OrchestratorConfig struct {
	Registry     *Registry
	Terms        TermSource     // Google Vision, or Tesseract offline
	Equations    EquationSource // Mathpix; nil skips the merge
	LLM          llm.Completer
	Busy         BusyGuard
	Persister    Persister
	Notifier     Notifier // optional
	CycleTimeout time.Duration
	Logger       *logging.Logger
}

// AskResult is the outcome of one analysis cycle
type AskResult struct {
	CycleID         string                `json:"cycleId"`
	State           canvas.State          `json:"state"`
	Variant         annotate.Variant      `json:"variant"`
	OverallFeedback string                `json:"overallFeedback"`
	Annotations     []canvas.Shape        `json:"annotations"`
	Explanations    map[string]string     `json:"explanations"`
	Descriptors     []annotate.Descriptor `json:"descriptors"`
	Unresolved      []string              `json:"unresolved,omitempty"`
	Swept           []string              `json:"swept,omitempty"`
	MessageID       string                `json:"messageId"`
	Duration        time.Duration         `json:"-"`
}

// Orchestrator runs analysis cycles against participant sessions
type Orchestrator struct {
	registry  *Registry
	terms     TermSource
	equations EquationSource
	tutor     *Tutor
	placer    *annotate.Placer
	busy      BusyGuard
	persister Persister
	notifier  Notifier
	timeout   time.Duration
	logger    *logging.Logger
}

// NewOrchestrator creates an orchestrator
func NewOrchestrator(cfg *OrchestratorConfig) (*Orchestrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.LLM == nil {
		return nil, fmt.Errorf("LLM backend is required")
	}

	o := &Orchestrator{
		registry:  cfg.Registry,
		terms:     cfg.Terms,
		equations: cfg.Equations,
		tutor:     NewTutor(cfg.LLM),
		busy:      cfg.Busy,
		persister: cfg.Persister,
		notifier:  cfg.Notifier,
		timeout:   cfg.CycleTimeout,
		logger:    cfg.Logger,
	}
	if o.registry == nil {
		o.registry = NewRegistry()
	}
	if o.busy == nil {
		o.busy = NewMemoryBusyGuard()
	}
	if o.persister == nil {
		o.persister = discardPersister{}
	}
	if o.timeout <= 0 {
		o.timeout = DefaultCycleTimeout
	}
	if o.logger == nil {
		o.logger = logging.NewLogger("Orchestrator")
	}
	o.placer = annotate.NewPlacer(o.logger.With("component", "placement"))

	if o.terms == nil {
		o.logger.Warn("No term source configured; analysis cycles will fail until one is available")
	}
	if o.equations == nil {
		o.logger.Info("Mathpix not configured; student work uses term segmentation only")
	}
	return o, nil
}

// Registry returns the session registry
func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

// Tutor returns the LLM pipeline used by cycles
func (o *Orchestrator) Tutor() *Tutor {
	return o.tutor
}

// Register creates or refreshes a participant session and persists the
// participant record.
func (o *Orchestrator) Register(ctx context.Context, participant storage.Participant) (*Session, bool) {
	session, created := o.registry.Register(participant)
	p := session.Participant
	if err := o.persister.RegisterParticipant(ctx, &p); err != nil {
		o.logger.Warn("Failed to persist participant", "user", p.UserID, "error", err)
	}
	if created {
		o.logger.Info("Participant registered", "user", p.UserID, "baseline", p.IsBaseline())
	}
	return session, created
}

// board resolves a participant's board
func (o *Orchestrator) board(userID int64, question int) (*Session, *BoardSession, error) {
	session, err := o.registry.Get(userID)
	if err != nil {
		return nil, nil, err
	}
	board, err := session.Board(question)
	if err != nil {
		return nil, nil, err
	}
	return session, board, nil
}

func busyKey(userID int64, question int) string {
	return fmt.Sprintf("%d:%d", userID, question)
}

// acquire takes the board's busy flag or fails with BUSY
func (o *Orchestrator) acquire(ctx context.Context, userID int64, question int) (func(), error) {
	release, ok, err := o.busy.TryAcquire(ctx, busyKey(userID, question))
	if err != nil {
		return nil, errors.NewStorageFailedError("acquire busy flag", err)
	}
	if !ok {
		return nil, errors.NewBusyError(fmt.Sprintf("board %d of participant %d", question, userID))
	}
	return release, nil
}

func withCycle(err error, cycleID string) error {
	var pe *errors.ProcessingError
	if stderrors.As(err, &pe) {
		return pe.WithCycle(cycleID)
	}
	return err
}

// Ask runs one analysis cycle. Boards with student work go through the
// student-work flow; boards holding only the question label get the
// question-term flow. A second ask while one is in flight fails with BUSY.
func (o *Orchestrator) Ask(ctx context.Context, userID int64, question int, userQuestion string) (*AskResult, error) {
	session, board, err := o.board(userID, question)
	if err != nil {
		return nil, err
	}
	if session.Participant.IsBaseline() {
		return nil, errors.NewInvalidInputError("baseline participants use the chat tutor")
	}

	release, err := o.acquire(ctx, userID, question)
	if err != nil {
		return nil, err
	}
	defer release()

	startTime := time.Now()
	cycleID := uuid.NewString()
	logger := o.logger.With("cycle", cycleID, "user", userID, "question", question)

	if err := board.State.Transition(canvas.StateAnnotating); err != nil {
		return nil, withCycle(err, cycleID)
	}
	o.notifyState(ctx, userID, question, canvas.StateAnnotating)

	cycleCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	swept := annotate.Sweep(board.Canvas)
	logger.Info("Starting analysis cycle", "swept", len(swept), "has_work", board.HasUserContent())

	pc := prompts.Context{Question: question, UserQuestion: userQuestion, Catalog: session.Catalog()}

	var (
		feedback  annotate.Feedback
		placement annotate.Placement
	)
	if board.HasUserContent() {
		feedback, placement, err = o.studentWork(cycleCtx, logger, board, pc)
	} else {
		feedback, placement, err = o.questionOnly(cycleCtx, logger, board, pc)
	}
	if err == nil {
		err = annotate.Commit(board.Canvas, placement)
	}
	if err != nil {
		if terr := board.State.Transition(canvas.StateQuestionPlaced); terr != nil {
			logger.Error("Failed to reset board state", "error", terr)
		}
		o.notifyState(ctx, userID, question, canvas.StateQuestionPlaced)
		logger.Error("Analysis cycle failed", "error", err, "code", errors.CodeOf(err))
		return nil, withCycle(err, cycleID)
	}

	board.recordPlacement(placement)
	if err := board.State.Transition(canvas.StateAnnotated); err != nil {
		return nil, withCycle(err, cycleID)
	}

	if userQuestion != "" {
		board.AppendMessage(storage.LogMessage{ID: uuid.NewString(), Role: llm.RoleUser, Content: userQuestion})
	}
	messageID := uuid.NewString()
	board.AppendMessage(storage.LogMessage{
		ID:          messageID,
		Role:        llm.RoleAssistant,
		Content:     prompts.PreprocessLaTeX(feedback.OverallFeedback),
		Annotations: feedback.Descriptors,
	})

	o.persistCycle(ctx, logger, session, board, messageID, placement)
	o.notifyState(ctx, userID, question, canvas.StateAnnotated)

	result := &AskResult{
		CycleID:         cycleID,
		State:           board.State.State(),
		Variant:         feedback.Variant,
		OverallFeedback: prompts.PreprocessLaTeX(feedback.OverallFeedback),
		Annotations:     placement.Shapes,
		Explanations:    placement.Explanations,
		Descriptors:     feedback.Descriptors,
		Unresolved:      placement.Unresolved,
		Swept:           swept,
		MessageID:       messageID,
		Duration:        time.Since(startTime),
	}
	logger.Info("Analysis cycle complete",
		"variant", result.Variant,
		"placed", len(result.Annotations),
		"unresolved", len(result.Unresolved),
		"duration_ms", result.Duration.Milliseconds())
	return result, nil
}

// questionOnly annotates terms of the printed problem
func (o *Orchestrator) questionOnly(ctx context.Context, logger *logging.Logger, board *BoardSession, pc prompts.Context) (annotate.Feedback, annotate.Placement, error) {
	snapshot, err := board.Canvas.Export([]string{canvas.QuestionShapeID(board.Question)}, canvas.DefaultExportOptions())
	if err != nil {
		return annotate.Feedback{}, annotate.Placement{}, err
	}

	terms, err := o.detectTerms(ctx, snapshot.Image)
	if err != nil {
		return annotate.Feedback{}, annotate.Placement{}, err
	}
	logger.Debug("Question terms detected", "equations", len(terms.Equations), "terms", ocr.TermCount(terms.Equations))

	imageB64 := base64.StdEncoding.EncodeToString(snapshot.Image)
	analysis, err := o.tutor.AnalyzeQuestion(ctx, pc, terms.Equations, imageB64, board.History())
	if err != nil {
		return annotate.Feedback{}, annotate.Placement{}, err
	}
	verified, err := o.tutor.VerifyQuestion(ctx, pc, terms.Equations, imageB64, analysis)
	if err != nil {
		return annotate.Feedback{}, annotate.Placement{}, err
	}

	feedback := verified.Feedback()
	placement := o.placer.Place(snapshot.Origin, annotate.VariantTermOnly, feedback.Descriptors, annotate.NewTargetIndex(terms.Equations))
	return feedback, placement, nil
}

// studentWork annotates the student's handwriting
func (o *Orchestrator) studentWork(ctx context.Context, logger *logging.Logger, board *BoardSession, pc prompts.Context) (annotate.Feedback, annotate.Placement, error) {
	var userIDs []string
	for _, s := range board.Canvas.Shapes() {
		if s.Kind == canvas.KindUserContent {
			userIDs = append(userIDs, s.ID)
		}
	}
	work, err := board.Canvas.Export(userIDs, canvas.DefaultExportOptions())
	if err != nil {
		return annotate.Feedback{}, annotate.Placement{}, err
	}

	equations, err := o.recognise(ctx, logger, work.Image)
	if err != nil {
		return annotate.Feedback{}, annotate.Placement{}, err
	}

	if hasLatex(equations) {
		corrections, err := o.tutor.Correct(ctx, equations, base64.StdEncoding.EncodeToString(work.Image))
		if err != nil {
			return annotate.Feedback{}, annotate.Placement{}, err
		}
		var missed []string
		equations, missed = annotate.ApplyCorrections(equations, corrections)
		if len(missed) > 0 {
			logger.Warn("Corrections matched no term", "ids", missed)
		}
	}

	full, err := board.Canvas.Export(board.Canvas.IDs(), canvas.DefaultExportOptions())
	if err != nil {
		return annotate.Feedback{}, annotate.Placement{}, err
	}
	compressed, err := canvas.Compress(full.Image, SnapshotMaxDimension, SnapshotQuality)
	if err != nil {
		return annotate.Feedback{}, annotate.Placement{}, errors.NewInvalidInputError(err.Error())
	}
	imageB64 := base64.StdEncoding.EncodeToString(compressed)

	analysis, err := o.tutor.Analyze(ctx, pc, equations, imageB64, board.History())
	if err != nil {
		return annotate.Feedback{}, annotate.Placement{}, err
	}
	verified, err := o.tutor.Verify(ctx, pc, equations, imageB64, analysis)
	if err != nil {
		return annotate.Feedback{}, annotate.Placement{}, err
	}

	feedback := verified.Feedback()
	placement := o.placer.Place(work.Origin, feedback.Variant, feedback.Descriptors, annotate.NewTargetIndex(equations))
	return feedback, placement, nil
}

// recognise runs Mathpix then the term source and merges the two. Without
// Mathpix the term source's equations are used as they are.
func (o *Orchestrator) recognise(ctx context.Context, logger *logging.Logger, image []byte) ([]ocr.Equation, error) {
	var latex *ocr.Result
	if o.equations != nil {
		var err error
		latex, err = o.equations.DetectEquations(ctx, image)
		if err != nil {
			return nil, err
		}
	}

	terms, err := o.detectTerms(ctx, image)
	if err != nil {
		return nil, err
	}

	if latex == nil {
		return terms.Equations, nil
	}

	merged := annotate.Merge(latex.Equations, terms.Equations)
	logger.Debug("Merged recognition",
		"equations", len(merged.Equations),
		"terms", ocr.TermCount(merged.Equations),
		"dropped", len(merged.Dropped))
	return merged.Equations, nil
}

func (o *Orchestrator) detectTerms(ctx context.Context, image []byte) (*ocr.Result, error) {
	if o.terms == nil {
		return nil, errors.NewNetworkError("ocr", fmt.Errorf("no term source configured"))
	}
	return o.terms.DetectTerms(ctx, image)
}

func hasLatex(equations []ocr.Equation) bool {
	for _, eq := range equations {
		if eq.Latex != "" {
			return true
		}
	}
	return false
}

// persistCycle hands the cycle's outputs to the persister. Failures are
// logged and never fail the cycle.
func (o *Orchestrator) persistCycle(ctx context.Context, logger *logging.Logger, session *Session, board *BoardSession, messageID string, placement annotate.Placement) {
	userID := session.Participant.UserID

	if snapshot, err := o.Snapshot(board); err != nil {
		logger.Warn("Failed to export board for upload", "error", err)
	} else if err := o.persister.UploadSnapshot(ctx, userID, board.Question, messageID, snapshot); err != nil {
		logger.Warn("Failed to hand off snapshot upload", "error", err)
	}

	if err := o.persister.PersistLog(ctx, session.Log()); err != nil {
		logger.Warn("Failed to persist interaction log", "error", err)
	}

	records := make([]storage.ExplanationRecord, 0, len(placement.Shapes))
	for _, shape := range placement.Shapes {
		records = append(records, storage.ExplanationRecord{
			UserID:      userID,
			Question:    board.Question,
			ShapeID:     shape.ID,
			TargetID:    placement.Targets[shape.ID],
			Color:       shape.Color,
			Explanation: placement.Explanations[shape.ID],
		})
	}
	if err := o.persister.IndexExplanations(ctx, records); err != nil {
		logger.Warn("Failed to index explanations", "error", err)
	}
}

// Snapshot renders the whole board as a compressed JPEG
func (o *Orchestrator) Snapshot(board *BoardSession) ([]byte, error) {
	full, err := board.Canvas.Export(board.Canvas.IDs(), canvas.DefaultExportOptions())
	if err != nil {
		return nil, err
	}
	return canvas.Compress(full.Image, SnapshotMaxDimension, SnapshotQuality)
}

// ClearAnnotations sweeps the annotation boxes off a board. Student work,
// the question label and the explanation map are kept. It fails with BUSY
// during a cycle.
func (o *Orchestrator) ClearAnnotations(ctx context.Context, userID int64, question int) ([]string, canvas.State, error) {
	_, board, err := o.board(userID, question)
	if err != nil {
		return nil, "", err
	}
	release, err := o.acquire(ctx, userID, question)
	if err != nil {
		return nil, "", err
	}
	defer release()

	if err := board.State.Transition(canvas.StateCleared); err != nil {
		return nil, board.State.State(), err
	}
	deleted := annotate.Sweep(board.Canvas)
	if err := board.State.Transition(canvas.StateQuestionPlaced); err != nil {
		return deleted, board.State.State(), err
	}
	o.notifyState(ctx, userID, question, canvas.StateQuestionPlaced)
	o.logger.Info("Annotations cleared", "user", userID, "question", question, "deleted", len(deleted))
	return deleted, board.State.State(), nil
}

// Reset wipes a board back to its question label and drops the board's
// explanations. It fails with BUSY during a cycle.
func (o *Orchestrator) Reset(ctx context.Context, userID int64, question int) (canvas.State, error) {
	_, board, err := o.board(userID, question)
	if err != nil {
		return "", err
	}
	release, err := o.acquire(ctx, userID, question)
	if err != nil {
		return "", err
	}
	defer release()

	if err := board.State.Transition(canvas.StateCleared); err != nil {
		return board.State.State(), err
	}

	labelID := canvas.QuestionShapeID(question)
	var ids []string
	for _, id := range board.Canvas.IDs() {
		if id != labelID {
			ids = append(ids, id)
		}
	}
	deleted := board.Canvas.Delete(ids...)
	board.resetExplanations()

	if err := board.State.Transition(canvas.StateQuestionPlaced); err != nil {
		return board.State.State(), err
	}
	o.notifyState(ctx, userID, question, canvas.StateQuestionPlaced)
	o.logger.Info("Board reset", "user", userID, "question", question, "deleted", len(deleted))
	return board.State.State(), nil
}

// HandleEvent applies a board event from the worker or another replica.
// Events for participants this replica does not hold are ignored.
func (o *Orchestrator) HandleEvent(ctx context.Context, event queue.Event) {
	if event.Type != queue.EventSnapshotUploaded {
		return
	}
	session, board, err := o.board(event.UserID, event.Question)
	if err != nil {
		o.logger.Debug("Ignoring event for unknown board", "user", event.UserID, "question", event.Question)
		return
	}
	if !board.SetMessageImage(event.MessageID, event.URL) {
		o.logger.Debug("Ignoring snapshot for unknown message", "message", event.MessageID)
		return
	}
	if err := o.persister.PersistLog(ctx, session.Log()); err != nil {
		o.logger.Warn("Failed to persist interaction log", "user", event.UserID, "error", err)
	}
}

// RecordRead counts one text-to-speech playback on a board
func (o *Orchestrator) RecordRead(ctx context.Context, userID int64, question int) (int, error) {
	session, board, err := o.board(userID, question)
	if err != nil {
		return 0, err
	}
	n := board.incrementReads()
	o.persistLog(ctx, session)
	return n, nil
}

// RecordVoice counts one voice recording on a board
func (o *Orchestrator) RecordVoice(ctx context.Context, userID int64, question int) (int, error) {
	session, board, err := o.board(userID, question)
	if err != nil {
		return 0, err
	}
	n := board.incrementVoiceRecords()
	o.persistLog(ctx, session)
	return n, nil
}

// Chat runs the baseline tutor for a participant and records both turns
func (o *Orchestrator) Chat(ctx context.Context, userID int64, question int, messages []llm.Message, images []string) (string, error) {
	session, board, err := o.board(userID, question)
	if err != nil {
		return "", err
	}

	reply, err := o.tutor.Chat(ctx, question, messages, images)
	if err != nil {
		return "", err
	}

	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == llm.RoleUser {
			board.AppendMessage(storage.LogMessage{ID: uuid.NewString(), Role: llm.RoleUser, Content: messages[i].Text()})
			break
		}
	}
	board.AppendMessage(storage.LogMessage{ID: uuid.NewString(), Role: llm.RoleAssistant, Content: reply})
	o.persistLog(ctx, session)
	return reply, nil
}

func (o *Orchestrator) persistLog(ctx context.Context, session *Session) {
	if err := o.persister.PersistLog(ctx, session.Log()); err != nil {
		o.logger.Warn("Failed to persist interaction log", "user", session.Participant.UserID, "error", err)
	}
}

func (o *Orchestrator) notifyState(ctx context.Context, userID int64, question int, state canvas.State) {
	if o.notifier == nil {
		return
	}
	event := queue.Event{Type: queue.EventStateChanged, UserID: userID, Question: question, State: string(state)}
	if err := o.notifier.Publish(ctx, event); err != nil {
		o.logger.Warn("Failed to publish state change", "error", err)
	}
}
