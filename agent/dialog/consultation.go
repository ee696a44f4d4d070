package dialog

import (
	"context"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/Chative-Support-Orchestrator/agent/contract"
	promptx "github.com/tanpawarit/Chative-Support-Orchestrator/agent/prompt"
	statex "github.com/tanpawarit/Chative-Support-Orchestrator/agent/state"
)

const consultationFallbackQuestion = "Could you tell me a bit more about what you're looking for? (Style, Budget, or Brands)"

// Renderer renders a named prompt template.
type Renderer interface {
	Render(ctx context.Context, name promptx.Name, vars map[string]any) (string, error)
}

// Consultation interviews an undecided shopper until style and budget are known.
type Consultation struct {
	prompts  Renderer
	maxTurns int
}

var _ Policy[statex.Preferences] = (*Consultation)(nil)

func NewConsultation(prompts Renderer, maxTurns int) *Consultation {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Consultation{prompts: prompts, maxTurns: maxTurns}
}

func (c *Consultation) Kind() statex.DialogKind    { return statex.DialogConsultation }
func (c *Consultation) Agent() contractx.AgentType { return contractx.AgentTypeConsultant }

func (c *Consultation) Prompt(ctx context.Context, turn Turn[statex.Preferences]) (string, error) {
	return c.prompts.Render(ctx, promptx.Consultant, map[string]any{
		"preferences": toJSON(turn.Slots),
		"history":     formatHistory(turn.History),
		"message":     turn.Utterance,
	})
}

func (c *Consultation) Extract(raw map[string]any) statex.Preferences {
	return statex.Preferences{
		Style:    asString(raw["style"]),
		Budget:   asString(raw["budget"]),
		Features: asStrings(raw["features"]),
		Brand:    asString(raw["brand"]),
	}
}

func (c *Consultation) Merge(current, update statex.Preferences) statex.Preferences {
	return current.Merge(update)
}

func (c *Consultation) Decide(
	turn Turn[statex.Preferences],
	merged statex.Preferences,
	p Proposal,
	parsed bool,
) (statex.Preferences, Verdict) {
	if cancelRequested(turn.Turns, turn.Utterance) {
		return merged, Verdict{
			Outcome:  OutcomeNegative,
			Status:   "cancelled",
			Response: "No problem! Whenever you'd like help choosing a watch, just let me know.",
		}
	}

	if ready(merged) {
		query := strings.TrimSpace(p.SearchQuery)
		if !parsed || query == "" {
			query = SynthesizeQuery(merged)
		}
		response := strings.TrimSpace(p.ResponseText)
		if !parsed || response == "" || p.NextAction != "search" {
			response = fmt.Sprintf("Great choice! Let me find %s watches within %s for you.", strings.ToLower(merged.Style), merged.Budget)
		}
		return merged, Verdict{
			Outcome:  OutcomePositive,
			Status:   "completed",
			Response: response,
			Query:    query,
		}
	}

	if turn.Turns+1 >= c.maxTurns {
		return merged, Verdict{
			Outcome:  OutcomeNegative,
			Status:   "abandoned",
			Response: "I don't want to keep you answering questions. Feel free to ask me about any specific watch or brand whenever you're ready.",
		}
	}

	response := strings.TrimSpace(p.ResponseText)
	if !parsed || response == "" || p.NextAction == "search" {
		response = nextConsultationQuestion(merged)
	}
	return merged, Verdict{Outcome: OutcomeContinue, Status: "in_progress", Response: response}
}

func (c *Consultation) Load(sess *statex.Session) statex.Preferences { return sess.Preferences }

func (c *Consultation) Store(sess *statex.Session, slots statex.Preferences) {
	sess.Preferences = slots
}

func ready(p statex.Preferences) bool {
	return p.Style != "" && p.Budget != ""
}

// SynthesizeQuery builds a catalog query from filled preferences. Never empty when style is set.
func SynthesizeQuery(p statex.Preferences) string {
	parts := make([]string, 0, 6)
	if p.Brand != "" {
		parts = append(parts, p.Brand)
	}
	if p.Style != "" {
		parts = append(parts, p.Style)
	}
	parts = append(parts, "watch")
	parts = append(parts, p.Features...)
	if p.Budget != "" {
		parts = append(parts, p.Budget)
	}
	return strings.Join(parts, " ")
}

func nextConsultationQuestion(p statex.Preferences) string {
	switch {
	case p.Style == "":
		return consultationFallbackQuestion
	case p.Budget == "":
		return fmt.Sprintf("A %s watch is a great choice. What budget do you have in mind?", strings.ToLower(p.Style))
	default:
		return consultationFallbackQuestion
	}
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
