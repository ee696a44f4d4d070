package orchestratornode

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Chative-Support-Orchestrator/agent/contract"
	"github.com/tanpawarit/Chative-Support-Orchestrator/agent/dialog"
	promptx "github.com/tanpawarit/Chative-Support-Orchestrator/agent/prompt"
	statex "github.com/tanpawarit/Chative-Support-Orchestrator/agent/state"
	"github.com/tanpawarit/Chative-Support-Orchestrator/agent/tool"
	"github.com/tanpawarit/Chative-Support-Orchestrator/pkg/metrics"
)

const (
	RateLimitMessage   = "I apologize, but I'm currently at maximum capacity (Rate Limit Reached). Please try again in about 15 minutes."
	UnavailableMessage = "I'm sorry, I'm having trouble thinking right now. Please try again in a moment."
	FallbackMessage    = "I'm sorry, I didn't quite catch that. Could you rephrase your question?"
	HandoffMessage     = "I apologize for the trouble. I've escalated your issue to our human support team. A specialist will review your case and contact you via email within 24 hours."
	OfferMessage       = "If you'd prefer, I can connect you with a member of our support team."
)

// Deps are the collaborators shared by every step function.
type Deps struct {
	Oracle       contractx.Oracle
	Prompts      dialog.Renderer
	Catalog      contractx.Catalog
	Execute      tool.Executor
	Notifier     contractx.Notifier
	Consultation *dialog.Engine[statex.Preferences]
	Refund       *dialog.Engine[statex.RefundInfo]
	Metrics      *metrics.Recorder

	HistoryLimit        int
	EscalationThreshold float64
	FrustrationKeywords []string
	NotifyTimeout       time.Duration
}

// ask renders name and sends it to the oracle as agent. Oracle failures are noted on in.
func (d *Deps) ask(
	ctx context.Context,
	in *GraphState,
	agent contractx.AgentType,
	name promptx.Name,
	vars map[string]any,
) (string, error) {
	prompt, err := d.Prompts.Render(ctx, name, vars)
	if err != nil {
		return "", err
	}
	out, err := d.Oracle.Complete(ctx, contractx.OracleRequest{Agent: agent, Prompt: prompt})
	if err != nil {
		in.NoteOracleErr(err)
		return "", err
	}
	return out, nil
}

func formatHistory(msgs []statex.Message) string {
	if len(msgs) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for _, m := range msgs {
		fmt.Fprintf(&b, "%s: %s\n", m.Sender, m.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

func toJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n-3])) + "..."
}
