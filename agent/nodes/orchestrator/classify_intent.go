package orchestratornode

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Support-Orchestrator/agent/contract"
	promptx "github.com/tanpawarit/Chative-Support-Orchestrator/agent/prompt"
	"github.com/tanpawarit/Chative-Support-Orchestrator/agent/recovery"
)

type intentReply struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

// ClassifyIntent labels the user message. Any failure degrades to general_chat.
func ClassifyIntent(ctx context.Context, in *GraphState, d *Deps) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrValidation, ErrNoSession)
	}

	intent := contractx.IntentGeneralChat
	raw, err := d.ask(ctx, in, contractx.AgentTypeIntent, promptx.Intent, map[string]any{
		"labels":  strings.Join(contractx.IntentLabels, ", "),
		"history": formatHistory(in.Session.Tail(6)),
		"message": in.Text,
	})
	if err != nil {
		log.Warn().Err(err).Str("session_id", in.SessionID).Msg("intent classification failed")
	} else if label, ok := parseIntent(raw); ok {
		intent = label
	} else {
		log.Warn().Str("session_id", in.SessionID).Str("raw", truncate(raw, 200)).Msg("intent label not recognized")
	}

	in.Session.RecordIntent(intent)
	return in, nil
}

func parseIntent(raw string) (string, bool) {
	if reply, err := recovery.Decode[intentReply](raw); err == nil {
		if label, ok := knownIntent(reply.Intent); ok {
			return label, true
		}
	}

	// Small models often answer with the bare label.
	text := strings.ToLower(recovery.StripFences(raw))
	if label, ok := knownIntent(strings.Trim(text, " \t\r\n\"'.")); ok {
		return label, true
	}
	// Prose naming more than one label is ambiguous.
	found := ""
	for _, label := range contractx.IntentLabels {
		if !strings.Contains(text, label) {
			continue
		}
		if found != "" {
			return "", false
		}
		found = label
	}
	return found, found != ""
}

func knownIntent(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, label := range contractx.IntentLabels {
		if s == label {
			return label, true
		}
	}
	return "", false
}
