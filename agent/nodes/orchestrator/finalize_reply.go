package orchestratornode

import (
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/Chative-Support-Orchestrator/agent/contract"
	statex "github.com/tanpawarit/Chative-Support-Orchestrator/agent/state"
)

// FinalizeReply guarantees a non-empty reply and records it in the history.
func FinalizeReply(in *GraphState, historyLimit int) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrValidation, ErrNoSession)
	}
	sess := in.Session

	reply := strings.TrimSpace(in.Response)
	if reply == "" {
		switch {
		case in.RateLimited():
			reply = RateLimitMessage
		case in.OracleErr != nil:
			reply = UnavailableMessage
		default:
			reply = FallbackMessage
		}
	}
	in.Response = reply
	if in.AgentType == "" {
		in.AgentType = contractx.AgentTypeOrchestrator
	}

	sess.AppendMessage(statex.Message{
		Content:   reply,
		Sender:    statex.SenderAssistant,
		Timestamp: in.Now,
		Metadata: map[string]any{
			"agent_type": string(in.AgentType),
			"intent":     sess.Intent,
		},
	}, historyLimit)

	if sess.Dialog.Active() {
		sess.RetrievedProducts = nil
	}
	sess.Touch(in.Now)
	in.Finalized = true
	return in, nil
}
