/**
 * Participant sessions
 *
 * One Session per participant holds the three question boards. Each board
 * owns its shape store (with the lifecycle guard installed), its state
 * machine, the annotation-to-explanation map and the message history that
 * the interaction log is built from.
 */

package processor

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adverant/nexus/whiteboard-tutor/internal/annotate"
	"github.com/adverant/nexus/whiteboard-tutor/internal/canvas"
	"github.com/adverant/nexus/whiteboard-tutor/internal/errors"
	"github.com/adverant/nexus/whiteboard-tutor/internal/llm"
	"github.com/adverant/nexus/whiteboard-tutor/internal/prompts"
	"github.com/adverant/nexus/whiteboard-tutor/internal/storage"
)

// Page-space position of the question label on a fresh board
const (
	QuestionLabelX = 40.0
	QuestionLabelY = 40.0
)

// BoardSession is one question board of a participant
type BoardSession struct {
	Question int
	Canvas   *canvas.Board
	State    *canvas.StateMachine

	mu           sync.Mutex
	explanations map[string]string // annotation shape id -> explanation
	targets      map[string]string // annotation shape id -> target id
	messages     []storage.LogMessage
	voiceRecords int
	reads        int
}

func newBoardSession(question int, catalog *prompts.Catalog) *BoardSession {
	b := &BoardSession{
		Question:     question,
		Canvas:       canvas.NewBoard(question),
		State:        canvas.NewStateMachine(),
		explanations: make(map[string]string),
		targets:      make(map[string]string),
	}
	annotate.Install(b.Canvas)

	if text, ok := catalog.Question(question); ok {
		b.Canvas.EnsureQuestionLabel(text, QuestionLabelX, QuestionLabelY)
		_ = b.State.Transition(canvas.StateQuestionPlaced)
	}
	return b
}

// HasUserContent reports whether the student has drawn anything
func (b *BoardSession) HasUserContent() bool {
	for _, s := range b.Canvas.Shapes() {
		if s.Kind == canvas.KindUserContent {
			return true
		}
	}
	return false
}

// Explanation returns the explanation tied to an annotation shape
func (b *BoardSession) Explanation(shapeID string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	text, ok := b.explanations[shapeID]
	return text, ok
}

// Target returns the equation or term id an annotation shape points at
func (b *BoardSession) Target(shapeID string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.targets[shapeID]
	return id, ok
}

// Explanations returns a copy of the explanation map
func (b *BoardSession) Explanations() map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]string, len(b.explanations))
	for k, v := range b.explanations {
		out[k] = v
	}
	return out
}

// recordPlacement adds a placement's explanations. Earlier entries are kept.
func (b *BoardSession) recordPlacement(p annotate.Placement) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, text := range p.Explanations {
		b.explanations[id] = text
	}
	for id, target := range p.Targets {
		b.targets[id] = target
	}
}

// resetExplanations drops every explanation, used by a full board clear
func (b *BoardSession) resetExplanations() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.explanations = make(map[string]string)
	b.targets = make(map[string]string)
}

// AppendMessage adds a message unless one with the same role and content
// already exists. It reports whether the message was added.
func (b *BoardSession) AppendMessage(msg storage.LogMessage) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, m := range b.messages {
		if m.Role == msg.Role && m.Content == msg.Content {
			return false
		}
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	b.messages = append(b.messages, msg)
	return true
}

// SetMessageImage attaches an uploaded snapshot URL to a message
func (b *BoardSession) SetMessageImage(messageID, url string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.messages {
		if b.messages[i].ID == messageID {
			b.messages[i].ImageURL = url
			return true
		}
	}
	return false
}

// Messages returns a copy of the message history
func (b *BoardSession) Messages() []storage.LogMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]storage.LogMessage(nil), b.messages...)
}

// History converts the message history into LLM conversation turns
func (b *BoardSession) History() []llm.Message {
	msgs := b.Messages()
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		role := llm.RoleUser
		if strings.EqualFold(m.Role, llm.RoleAssistant) {
			role = llm.RoleAssistant
		}
		out = append(out, llm.Message{Role: role, Content: []llm.Part{llm.TextPart(m.Content)}})
	}
	return out
}

func (b *BoardSession) incrementReads() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reads++
	return b.reads
}

func (b *BoardSession) incrementVoiceRecords() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.voiceRecords++
	return b.voiceRecords
}

// Session is one participant's state across all boards
type Session struct {
	Participant storage.Participant
	boards      [prompts.QuestionCount]*BoardSession
}

// NewSession creates the boards for a participant. Baseline participants get
// the baseline problem set.
func NewSession(participant storage.Participant) *Session {
	catalog := prompts.System
	if participant.IsBaseline() {
		catalog = prompts.Baseline
	}
	s := &Session{Participant: participant}
	for q := range s.boards {
		s.boards[q] = newBoardSession(q, catalog)
	}
	return s
}

// Catalog returns the problem set the participant works on
func (s *Session) Catalog() *prompts.Catalog {
	if s.Participant.IsBaseline() {
		return prompts.Baseline
	}
	return prompts.System
}

// Board returns board q or NOT_FOUND
func (s *Session) Board(q int) (*BoardSession, error) {
	if q < 0 || q >= len(s.boards) {
		return nil, errors.NewNotFoundError("board", strconv.Itoa(q))
	}
	return s.boards[q], nil
}

// Log assembles the participant's interaction log
func (s *Session) Log() *storage.InteractionLog {
	log := &storage.InteractionLog{UserID: s.Participant.UserID, UpdatedAt: time.Now().UTC()}
	for q, b := range s.boards {
		b.mu.Lock()
		log.VoiceRecords[q] = b.voiceRecords
		log.Reads[q] = b.reads
		log.Messages[q] = append([]storage.LogMessage(nil), b.messages...)
		b.mu.Unlock()
	}
	return log
}

// Registry holds the sessions of every registered participant
type Registry struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[int64]*Session)}
}

// Register returns the participant's session, creating it on first use.
// Re-registering updates the participant's details and keeps the boards.
func (r *Registry) Register(participant storage.Participant) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[participant.UserID]; ok {
		s.Participant.Name = participant.Name
		s.Participant.Email = participant.Email
		return s, false
	}
	if participant.CreatedAt.IsZero() {
		participant.CreatedAt = time.Now().UTC()
	}
	s := NewSession(participant)
	r.sessions[participant.UserID] = s
	return s, true
}

// Get returns a session or NOT_FOUND
func (r *Registry) Get(userID int64) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[userID]
	if !ok {
		return nil, errors.NewNotFoundError("participant", strconv.FormatInt(userID, 10))
	}
	return s, nil
}

// Len returns the number of sessions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
