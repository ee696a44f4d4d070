package prompt

import (
	"context"
	"embed"
	"fmt"
	"strings"

	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/Chative-Support-Orchestrator/agent/contract"
)

//go:embed template/*.txt
var templateFS embed.FS

type Name string

const (
	Intent     Name = "intent"
	Summary    Name = "summary"
	Knowledge  Name = "knowledge"
	Sentiment  Name = "sentiment"
	Decision   Name = "decision"
	Handoff    Name = "handoff"
	Consultant Name = "consultant"
	Refund     Name = "refund"
)

var allNames = []Name{Intent, Summary, Knowledge, Sentiment, Decision, Handoff, Consultant, Refund}

// PromptSet holds loaded prompt templates keyed by step.
type PromptSet struct {
	templates map[Name]string
}

// LoadPromptSet reads every embedded template. Missing files are reported by Render.
func LoadPromptSet() PromptSet {
	set := PromptSet{templates: make(map[Name]string, len(allNames))}
	for _, name := range allNames {
		raw, err := templateFS.ReadFile("template/" + string(name) + ".txt")
		if err != nil {
			continue
		}
		set.templates[name] = strings.TrimSpace(string(raw))
	}
	return set
}

// WithTemplate returns a copy of the set with name overridden. Used by tests and custom deployments.
func (p PromptSet) WithTemplate(name Name, tpl string) PromptSet {
	out := PromptSet{templates: make(map[Name]string, len(p.templates)+1)}
	for k, v := range p.templates {
		out.templates[k] = v
	}
	out.templates[name] = tpl
	return out
}

// Render formats the template with python-style {var} placeholders.
func (p PromptSet) Render(ctx context.Context, name Name, vars map[string]any) (string, error) {
	tpl, ok := p.templates[name]
	if !ok || tpl == "" {
		return "", fmt.Errorf("%w: %s", contractx.ErrPromptMissing, name)
	}

	msgs, err := einoprompt.FromMessages(schema.FString, schema.UserMessage(tpl)).Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("render prompt %s: %w", name, err)
	}
	if len(msgs) == 0 {
		return "", fmt.Errorf("%w: %s rendered empty", contractx.ErrPromptMissing, name)
	}
	return msgs[0].Content, nil
}
