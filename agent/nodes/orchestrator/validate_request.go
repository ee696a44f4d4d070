package orchestratornode

import (
	"errors"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Chative-Support-Orchestrator/agent/contract"
	"github.com/tanpawarit/Chative-Support-Orchestrator/agent/friction"
	statex "github.com/tanpawarit/Chative-Support-Orchestrator/agent/state"
)

var (
	ErrInvalidMessage = errors.New("message is empty")
	ErrInvalidSession = errors.New("session id is empty")
	ErrNoSession      = errors.New("graph session is nil")
)

type GraphInput struct {
	SessionID string
	UserID    string
	Text      string
}

type IntakeRoute string

const (
	IntakeHandoff  IntakeRoute = "handoff"
	IntakeConsult  IntakeRoute = "consult"
	IntakeRefund   IntakeRoute = "refund"
	IntakeRetrieve IntakeRoute = "retrieve"
)

type ConsultRoute string

const (
	ConsultSearch ConsultRoute = "search"
	ConsultReply  ConsultRoute = "reply"
)

type RefundRoute string

const (
	RefundReply    RefundRoute = "reply"
	RefundEscalate RefundRoute = "escalate"
)

type DecisionRoute string

const (
	DecisionRespond          DecisionRoute = "respond"
	DecisionRespondWithOffer DecisionRoute = "respond_with_offer"
	DecisionEscalate         DecisionRoute = "escalate"
	DecisionConsult          DecisionRoute = "consult"
)

// GraphState is the per-turn state threaded through the graph. Session is the persisted part;
// every other field lives for one turn only.
type GraphState struct {
	SessionID string
	UserID    string
	Text      string
	Now       time.Time

	Session *statex.Session

	Intake      IntakeRoute
	ConsultNext ConsultRoute
	RefundNext  RefundRoute
	Decision    DecisionRoute

	Response  string
	AgentType contractx.AgentType

	// Grounded is the deterministic product answer built from this turn's retrieval.
	Grounded           string
	SearchQuery        string
	RetrievalAttempted bool
	ConsultRan         bool

	Urgency        friction.Urgency
	Signals        []string
	OracleEscalate bool
	HandoffReason  string
	Escalated      bool
	Finalized      bool

	// OracleErr is the last oracle failure seen this turn.
	OracleErr error
}

func ValidateRequest(in GraphInput, nowFn func() time.Time) (*GraphState, error) {
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		return nil, ErrInvalidSession
	}

	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, ErrInvalidMessage
	}

	return &GraphState{
		SessionID: sessionID,
		UserID:    strings.TrimSpace(in.UserID),
		Text:      text,
		Now:       nowFn().UTC(),
		Urgency:   friction.UrgencyLow,
	}, nil
}

// NoteOracleErr remembers err when it is an oracle failure. Rate limiting is sticky for the turn.
func (s *GraphState) NoteOracleErr(err error) {
	if err == nil {
		return
	}
	if !errors.Is(err, contractx.ErrOracleRateLimited) && !errors.Is(err, contractx.ErrOracleUnavailable) {
		return
	}
	if errors.Is(s.OracleErr, contractx.ErrOracleRateLimited) {
		return
	}
	s.OracleErr = err
}

func (s *GraphState) RateLimited() bool {
	return errors.Is(s.OracleErr, contractx.ErrOracleRateLimited)
}
