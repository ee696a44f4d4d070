package state

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Session is the persisted conversation document. It is read-merged at the start of every turn
// and overwritten wholesale at the end of it.
type Session struct {
	// Identity
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Status    Status    `json:"status"`

	Messages []Message `json:"messages,omitempty"`
	Summary  string    `json:"conversation_summary,omitempty"`

	Intent        string   `json:"user_intent,omitempty"`
	RecentIntents []string `json:"recent_intents,omitempty"` // oldest first
	Entities      Entities `json:"entities"`

	SentimentScore    float64  `json:"sentiment_score"`
	EscalationSignals []string `json:"escalation_signals,omitempty"`

	RetrievedProducts []Product `json:"retrieved_products,omitempty"`
	RetrievalScore    float64   `json:"retrieval_score"`
	AIConfidence      float64   `json:"ai_confidence"`

	Dialog      ActiveDialog `json:"active_dialog"`
	Preferences Preferences  `json:"collected_preferences"`
	RefundInfo  RefundInfo   `json:"refund_collected_info"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

type Status string

const (
	StatusActive    Status = "active"
	StatusEscalated Status = "escalated"
)

type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

type Message struct {
	Content   string         `json:"content"`
	Sender    Sender         `json:"sender"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type Entities struct {
	WatchModel string `json:"watch_model,omitempty"`
	Brand      string `json:"brand,omitempty"`
	PriceRange string `json:"price_range,omitempty"`
	OrderID    string `json:"order_id,omitempty"`
	Category   string `json:"category,omitempty"`
}

// Merge applies last-write-wins per key; empty values leave the key untouched.
func (e Entities) Merge(update Entities) Entities {
	e.WatchModel = pickString(e.WatchModel, update.WatchModel)
	e.Brand = pickString(e.Brand, update.Brand)
	e.PriceRange = pickString(e.PriceRange, update.PriceRange)
	e.OrderID = pickString(e.OrderID, update.OrderID)
	e.Category = pickString(e.Category, update.Category)
	return e
}

type Product struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Brand       string   `json:"brand,omitempty"`
	Model       string   `json:"model,omitempty"`
	Category    string   `json:"category,omitempty"`
	Price       float64  `json:"price"`
	Description string   `json:"description,omitempty"`
	Features    []string `json:"features,omitempty"`
	Score       float64  `json:"score,omitempty"`
}

type DialogKind string

const (
	DialogNone         DialogKind = ""
	DialogConsultation DialogKind = "consultation"
	DialogRefund       DialogKind = "refund"
)

// ActiveDialog is the single guided interview a session may be in. A single Kind makes two
// concurrently active interviews unrepresentable.
type ActiveDialog struct {
	Kind      DialogKind `json:"kind,omitempty"`
	Turns     int        `json:"turns,omitempty"`
	StartedAt time.Time  `json:"started_at,omitempty"`
}

func (d ActiveDialog) Active() bool { return d.Kind != DialogNone }

var (
	ErrInvalidDialog   = errors.New("invalid active dialog")
	ErrInvalidStatus   = errors.New("invalid session status")
	ErrHistoryOverflow = errors.New("message history exceeds limit")
)

const (
	DefaultHistoryLimit = 20
	recentIntentLimit   = 5
)

func NewSession(sessionID, userID string, now time.Time) *Session {
	return &Session{
		SessionID: sessionID,
		UserID:    userID,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
		Status:    StatusActive,
		Metadata:  make(map[string]any, 4),
	}
}

func (s *Session) Touch(now time.Time) {
	s.UpdatedAt = now.UTC()
}

func (s *Session) ConsultationActive() bool {
	return s != nil && s.Dialog.Kind == DialogConsultation
}

func (s *Session) RefundActive() bool {
	return s != nil && s.Dialog.Kind == DialogRefund
}

// StartDialog enters kind, replacing any other interview. Stale retrieval results are dropped so
// they do not leak into the interview.
func (s *Session) StartDialog(kind DialogKind, now time.Time) {
	if kind == DialogNone {
		s.EndDialog()
		return
	}
	if s.Dialog.Kind == kind {
		return
	}
	s.Dialog = ActiveDialog{Kind: kind, StartedAt: now.UTC()}
	s.RetrievedProducts = nil
	if kind == DialogRefund {
		s.RefundInfo = RefundInfo{}
	}
}

func (s *Session) EndDialog() {
	s.Dialog = ActiveDialog{}
}

// AppendMessage appends msg and keeps only the most recent limit messages.
func (s *Session) AppendMessage(msg Message, limit int) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	s.Messages = append(s.Messages, msg)
	s.TrimHistory(limit)
}

func (s *Session) TrimHistory(limit int) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if over := len(s.Messages) - limit; over > 0 {
		s.Messages = append([]Message(nil), s.Messages[over:]...)
	}
}

// RecordIntent remembers intent in a short rolling window used for repeated-question detection.
func (s *Session) RecordIntent(intent string) {
	s.Intent = intent
	s.RecentIntents = append(s.RecentIntents, intent)
	if over := len(s.RecentIntents) - recentIntentLimit; over > 0 {
		s.RecentIntents = append([]string(nil), s.RecentIntents[over:]...)
	}
}

func (s *Session) SetSentiment(score float64) {
	s.SentimentScore = ClampSentiment(score)
}

func (s *Session) SetMetadata(key string, val any) {
	if s.Metadata == nil {
		s.Metadata = make(map[string]any, 4)
	}
	s.Metadata[key] = val
}

// LastUserMessage returns the content of the most recent user message.
func (s *Session) LastUserMessage() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Sender == SenderUser {
			return s.Messages[i].Content
		}
	}
	return ""
}

// Tail returns at most n trailing messages.
func (s *Session) Tail(n int) []Message {
	if n <= 0 || n >= len(s.Messages) {
		return s.Messages
	}
	return s.Messages[len(s.Messages)-n:]
}

// ClampSentiment normalizes a score into [-1, 1]; NaN becomes neutral.
func ClampSentiment(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < -1:
		return -1
	case v > 1:
		return 1
	default:
		return v
	}
}

func (s *Session) Validate(historyLimit int) error {
	if s == nil {
		return ErrNilSessionState
	}
	if s.SessionID == "" {
		return ErrInvalidSession
	}
	switch s.Status {
	case StatusActive, StatusEscalated:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStatus, s.Status)
	}
	switch s.Dialog.Kind {
	case DialogNone, DialogConsultation, DialogRefund:
	default:
		return fmt.Errorf("%w: kind=%q", ErrInvalidDialog, s.Dialog.Kind)
	}
	if s.Dialog.Active() && len(s.RetrievedProducts) > 0 {
		return fmt.Errorf("%w: retrieved products present during %s", ErrInvalidDialog, s.Dialog.Kind)
	}
	if historyLimit > 0 && len(s.Messages) > historyLimit {
		return fmt.Errorf("%w: %d > %d", ErrHistoryOverflow, len(s.Messages), historyLimit)
	}
	if s.SentimentScore < -1 || s.SentimentScore > 1 {
		return fmt.Errorf("sentiment score %v out of range", s.SentimentScore)
	}
	return nil
}

// Repair brings an invalid session back to a consistent shape.
func (s *Session) Repair(historyLimit int) {
	if s.Status != StatusActive && s.Status != StatusEscalated {
		s.Status = StatusActive
	}
	switch s.Dialog.Kind {
	case DialogNone, DialogConsultation, DialogRefund:
	default:
		s.EndDialog()
	}
	if s.Dialog.Active() {
		s.RetrievedProducts = nil
	}
	s.TrimHistory(historyLimit)
	s.SentimentScore = ClampSentiment(s.SentimentScore)
}
