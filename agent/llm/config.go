package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Chative-Support-Orchestrator/agent/contract"
	openrouterx "github.com/tanpawarit/Chative-Support-Orchestrator/pkg/openrouter"
)

const (
	BackendEino = "eino"
	BackendSDK  = "sdk"
)

type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" required:"true"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"2000"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0.5"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
	SiteURL            string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName           string        `envconfig:"SITE_NAME" split_words:"true"`
	Backend            string        `envconfig:"BACKEND" split_words:"true" default:"eino"`

	// Client-side limit on oracle calls; RPS <= 0 disables it.
	RPS   float64 `envconfig:"RPS" split_words:"true" default:"5"`
	Burst int     `envconfig:"BURST" split_words:"true" default:"10"`

	// Classification steps (intent, summary, sentiment).
	FastModel       string  `envconfig:"FAST_MODEL" split_words:"true"`
	FastTemperature float32 `envconfig:"FAST_TEMPERATURE" split_words:"true" default:"-1"`
	// Guided interviews (consultant, refund).
	DialogModel       string  `envconfig:"DIALOG_MODEL" split_words:"true"`
	DialogTemperature float32 `envconfig:"DIALOG_TEMPERATURE" split_words:"true" default:"-1"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: openrouter api key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: default model is required", contractx.ErrValidation)
	}
	switch c.Backend {
	case "", BackendEino, BackendSDK:
	default:
		return fmt.Errorf("%w: unknown llm backend %q", contractx.ErrValidation, c.Backend)
	}
	return nil
}

func (c Config) OpenRouterFor(agentType contractx.AgentType) openrouterx.Config {
	modelName := strings.TrimSpace(c.Model)
	temp := c.Temperature

	switch agentType {
	case contractx.AgentTypeIntent, contractx.AgentTypeSummary, contractx.AgentTypeSentiment:
		if v := strings.TrimSpace(c.FastModel); v != "" {
			modelName = v
		}
		if c.FastTemperature >= 0 {
			temp = c.FastTemperature
		}
	case contractx.AgentTypeConsultant, contractx.AgentTypeRefund:
		if v := strings.TrimSpace(c.DialogModel); v != "" {
			modelName = v
		}
		if c.DialogTemperature >= 0 {
			temp = c.DialogTemperature
		}
	}

	maxCompletionToken := c.MaxCompletionToken
	return openrouterx.Config{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              modelName,
		MaxCompletionToken: &maxCompletionToken,
		Temperature:        temp,
		Timeout:            c.Timeout,
		SiteURL:            strings.TrimSpace(c.SiteURL),
		SiteName:           strings.TrimSpace(c.SiteName),
	}
}
