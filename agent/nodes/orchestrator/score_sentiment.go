package orchestratornode

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Support-Orchestrator/agent/contract"
	"github.com/tanpawarit/Chative-Support-Orchestrator/agent/friction"
	promptx "github.com/tanpawarit/Chative-Support-Orchestrator/agent/prompt"
	"github.com/tanpawarit/Chative-Support-Orchestrator/agent/recovery"
)

type sentimentReply struct {
	Score     float64 `json:"score"`
	Rationale string  `json:"rationale"`
	Escalate  bool    `json:"escalate"`
}

var scorePattern = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// ScoreSentiment rates the message and derives escalation signals and urgency.
func ScoreSentiment(ctx context.Context, in *GraphState, d *Deps) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrValidation, ErrNoSession)
	}
	sess := in.Session

	score := 0.0
	raw, err := d.ask(ctx, in, contractx.AgentTypeSentiment, promptx.Sentiment, map[string]any{
		"history": formatHistory(sess.Tail(6)),
		"message": in.Text,
	})
	if err != nil {
		log.Warn().Err(err).Str("session_id", in.SessionID).Msg("sentiment scoring failed, assuming neutral")
	} else if reply, perr := recovery.Decode[sentimentReply](raw); perr == nil {
		score = reply.Score
		in.OracleEscalate = reply.Escalate
	} else if m := scorePattern.FindString(recovery.StripFences(raw)); m != "" {
		if v, cerr := strconv.ParseFloat(m, 64); cerr == nil {
			score = v
		}
	}

	var retrieval *float64
	if in.RetrievalAttempted {
		v := sess.RetrievalScore
		retrieval = &v
	}
	a := friction.Score(friction.Input{
		Sentiment:           score,
		EscalationThreshold: d.EscalationThreshold,
		Utterance:           in.Text,
		Keywords:            d.FrustrationKeywords,
		RecentIntents:       sess.RecentIntents,
		RetrievalScore:      retrieval,
		OracleEscalate:      in.OracleEscalate,
	})

	sess.SetSentiment(a.Sentiment)
	sess.EscalationSignals = a.SignalNames()
	in.Signals = sess.EscalationSignals
	in.Urgency = a.Urgency
	return in, nil
}
