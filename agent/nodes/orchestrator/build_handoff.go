package orchestratornode

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Support-Orchestrator/agent/contract"
	"github.com/tanpawarit/Chative-Support-Orchestrator/agent/friction"
	promptx "github.com/tanpawarit/Chative-Support-Orchestrator/agent/prompt"
	"github.com/tanpawarit/Chative-Support-Orchestrator/agent/recovery"
	statex "github.com/tanpawarit/Chative-Support-Orchestrator/agent/state"
)

const (
	HandoffPackageKey    = "handoff_package"
	handoffHistoryWindow = 20
	defaultNotifyTimeout = 10 * time.Second
)

type handoffNote struct {
	IssueSummary      string   `json:"issue_summary"`
	KeyPoints         []string `json:"key_points"`
	SuggestedApproach string   `json:"suggested_approach"`
	UrgentFlags       []string `json:"urgent_flags"`
}

// HandoffPackage is what a human specialist receives with an escalated conversation.
type HandoffPackage struct {
	TicketID          string           `json:"ticket_id"`
	SessionID         string           `json:"session_id"`
	UserID            string           `json:"user_id,omitempty"`
	Reason            string           `json:"reason"`
	IssueSummary      string           `json:"issue_summary"`
	KeyPoints         []string         `json:"key_points,omitempty"`
	SuggestedApproach string           `json:"suggested_approach,omitempty"`
	UrgentFlags       []string         `json:"urgent_flags,omitempty"`
	Urgency           friction.Urgency `json:"urgency"`
	Sentiment         float64          `json:"sentiment_score"`
	Signals           []string         `json:"escalation_signals,omitempty"`
	Entities          statex.Entities  `json:"entities"`
	CreatedAt         time.Time        `json:"created_at"`
}

// BuildHandoff packages the conversation for a human, marks the session escalated and notifies
// support in the background.
func BuildHandoff(ctx context.Context, in *GraphState, d *Deps) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrValidation, ErrNoSession)
	}
	sess := in.Session
	in.AgentType = contractx.AgentTypeHandoff
	urgency := in.Urgency
	if urgency == "" {
		urgency = friction.UrgencyLow
	}

	transcript := formatHistory(sess.Tail(handoffHistoryWindow))
	note := handoffNote{}
	raw, err := d.ask(ctx, in, contractx.AgentTypeHandoff, promptx.Handoff, map[string]any{
		"history":   transcript,
		"entities":  toJSON(sess.Entities),
		"sentiment": fmt.Sprintf("%.2f", sess.SentimentScore),
		"urgency":   string(urgency),
	})
	if err == nil {
		if note, err = recovery.Decode[handoffNote](raw); err != nil {
			log.Warn().Err(err).Str("session_id", in.SessionID).Msg("handoff note unparseable")
		}
	} else {
		log.Warn().Err(err).Str("session_id", in.SessionID).Msg("handoff note generation failed")
	}
	if strings.TrimSpace(note.IssueSummary) == "" {
		note.IssueSummary = firstNonEmpty(sess.Summary, sess.LastUserMessage(), in.Text)
	}

	reason := firstNonEmpty(in.HandoffReason, "escalated to human support")
	pkg := HandoffPackage{
		TicketID:          uuid.NewString(),
		SessionID:         sess.SessionID,
		UserID:            sess.UserID,
		Reason:            reason,
		IssueSummary:      note.IssueSummary,
		KeyPoints:         note.KeyPoints,
		SuggestedApproach: note.SuggestedApproach,
		UrgentFlags:       note.UrgentFlags,
		Urgency:           urgency,
		Sentiment:         sess.SentimentScore,
		Signals:           append([]string(nil), in.Signals...),
		Entities:          sess.Entities,
		CreatedAt:         in.Now,
	}
	sess.SetMetadata(HandoffPackageKey, pkg)
	sess.Status = statex.StatusEscalated
	sess.EndDialog()
	sess.RetrievedProducts = nil

	in.Escalated = true
	in.Response = HandoffMessage
	d.Metrics.Escalation(string(urgency))

	log.Info().
		Str("session_id", sess.SessionID).
		Str("ticket_id", pkg.TicketID).
		Str("urgency", string(urgency)).
		Str("reason", reason).
		Msg("conversation escalated")

	d.notify(ctx, firstNonEmpty(sess.UserID, sess.SessionID), pkg.IssueSummary, transcript)
	return in, nil
}

// notify delivers the escalation without holding up the reply. It outlives the request context.
func (d *Deps) notify(ctx context.Context, identity, summary, transcript string) {
	if d.Notifier == nil {
		return
	}
	timeout := d.NotifyTimeout
	if timeout <= 0 {
		timeout = defaultNotifyTimeout
	}
	go func() {
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		ok, err := d.Notifier.SendEscalation(nctx, identity, summary, transcript)
		if err != nil || !ok {
			log.Error().Err(err).Str("user", identity).Msg("escalation notice not delivered")
		}
	}()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
