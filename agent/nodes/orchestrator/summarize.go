package orchestratornode

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Support-Orchestrator/agent/contract"
	promptx "github.com/tanpawarit/Chative-Support-Orchestrator/agent/prompt"
	statex "github.com/tanpawarit/Chative-Support-Orchestrator/agent/state"
)

const (
	summaryWindow    = 10
	summaryMaxChars  = 600
	summaryMinLength = 3
	summaryOpening   = "Conversation just started."
)

// Summarize refreshes the rolling summary and picks where the turn goes next.
func Summarize(ctx context.Context, in *GraphState, d *Deps) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrValidation, ErrNoSession)
	}
	sess := in.Session

	if len(sess.Messages) < summaryMinLength {
		if sess.Summary == "" {
			sess.Summary = summaryOpening
		}
	} else {
		raw, err := d.ask(ctx, in, contractx.AgentTypeSummary, promptx.Summary, map[string]any{
			"previous_summary": sess.Summary,
			"history":          formatHistory(sess.Tail(summaryWindow)),
		})
		switch summary := strings.TrimSpace(raw); {
		case err != nil:
			log.Warn().Err(err).Str("session_id", in.SessionID).Msg("summary refresh failed, keeping previous")
		case summary != "":
			sess.Summary = truncate(summary, summaryMaxChars)
		}
	}

	in.Intake = routeIntake(in)
	return in, nil
}

// routeIntake sends explicit handoff requests straight to a human and keeps an active interview
// ahead of any new intent.
func routeIntake(in *GraphState) IntakeRoute {
	sess := in.Session
	switch {
	case sess.Intent == contractx.IntentHumanHandoff:
		in.HandoffReason = "customer asked for a human agent"
		return IntakeHandoff
	case sess.RefundActive():
		return IntakeRefund
	case sess.ConsultationActive():
		return IntakeConsult
	case sess.Intent == contractx.IntentRefundRequest:
		sess.StartDialog(statex.DialogRefund, in.Now)
		return IntakeRefund
	case sess.Intent == contractx.IntentConsultation:
		sess.StartDialog(statex.DialogConsultation, in.Now)
		return IntakeConsult
	default:
		return IntakeRetrieve
	}
}
