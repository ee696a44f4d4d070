package orchestratornode

import (
	"context"
	"errors"
	"fmt"

	contractx "github.com/tanpawarit/Chative-Support-Orchestrator/agent/contract"
	"github.com/tanpawarit/Chative-Support-Orchestrator/agent/dialog"
	statex "github.com/tanpawarit/Chative-Support-Orchestrator/agent/state"
)

const dialogHistoryWindow = 6

// Consult advances the shopping consultation by one turn. A completed interview hands its query to
// retrieval.
func Consult(ctx context.Context, in *GraphState, d *Deps) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrValidation, ErrNoSession)
	}
	if d.Consultation == nil {
		return nil, fmt.Errorf("%w: consultation engine is nil", contractx.ErrValidation)
	}
	sess := in.Session
	if !sess.ConsultationActive() {
		sess.StartDialog(statex.DialogConsultation, in.Now)
	}

	in.AgentType = contractx.AgentTypeConsultant
	in.ConsultRan = true
	res := d.Consultation.Advance(ctx, dialog.Turn[statex.Preferences]{
		Slots:     d.Consultation.Load(sess),
		Utterance: in.Text,
		Turns:     sess.Dialog.Turns,
		History:   sess.Tail(dialogHistoryWindow),
		Now:       in.Now,
	})
	d.Consultation.Apply(sess, res, in.Now)
	d.Metrics.DialogOutcome(string(res.Kind), string(res.Outcome))
	in.NoteOracleErr(res.Err)

	in.Response = res.Response
	in.ConsultNext = ConsultReply
	switch {
	case res.Outcome == dialog.OutcomePositive:
		in.SearchQuery = res.Query
		sess.Entities = sess.Entities.Merge(statex.Entities{
			Category:   res.Slots.Style,
			PriceRange: res.Slots.Budget,
			Brand:      res.Slots.Brand,
		})
		in.ConsultNext = ConsultSearch
	case res.Outcome == dialog.OutcomeContinue && errors.Is(res.Err, contractx.ErrOracleRateLimited):
		in.Response = RateLimitMessage
	}
	return in, nil
}

// Refund advances the return interview by one turn. Running out of turns escalates to a human.
func Refund(ctx context.Context, in *GraphState, d *Deps) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrValidation, ErrNoSession)
	}
	if d.Refund == nil {
		return nil, fmt.Errorf("%w: refund engine is nil", contractx.ErrValidation)
	}
	sess := in.Session
	if !sess.RefundActive() {
		sess.StartDialog(statex.DialogRefund, in.Now)
	}

	in.AgentType = contractx.AgentTypeRefund
	res := d.Refund.Advance(ctx, dialog.Turn[statex.RefundInfo]{
		Slots:     d.Refund.Load(sess),
		Utterance: in.Text,
		Turns:     sess.Dialog.Turns,
		History:   sess.Tail(dialogHistoryWindow),
		Now:       in.Now,
	})
	d.Refund.Apply(sess, res, in.Now)
	d.Metrics.DialogOutcome(string(res.Kind), string(res.Outcome))
	in.NoteOracleErr(res.Err)

	in.Response = res.Response
	in.RefundNext = RefundReply
	switch {
	case res.Violation == dialog.ViolationInsufficientInfo:
		in.HandoffReason = "refund request could not be completed"
		in.RefundNext = RefundEscalate
	case res.Outcome == dialog.OutcomeContinue && errors.Is(res.Err, contractx.ErrOracleRateLimited):
		in.Response = RateLimitMessage
	}
	return in, nil
}
