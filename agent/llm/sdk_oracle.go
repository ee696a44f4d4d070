package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	contractx "github.com/tanpawarit/Chative-Support-Orchestrator/agent/contract"
	openrouterx "github.com/tanpawarit/Chative-Support-Orchestrator/pkg/openrouter"
)

// SDKOracle talks to OpenRouter with the OpenAI SDK directly, without an eino model in between.
type SDKOracle struct {
	cfg     Config
	opts    options
	timeout time.Duration
	client  *openaisdk.Client
}

var _ contractx.Oracle = (*SDKOracle)(nil)

func NewSDKOracle(cfg Config, opts ...Option) (*SDKOracle, error) {
	return newSDKOracle(cfg, nil, opts...)
}

func newSDKOracle(cfg Config, extra []option.RequestOption, opts ...Option) (*SDKOracle, error) {
	client := openrouterx.NewClient(cfg.OpenRouterFor(contractx.AgentTypeOrchestrator), extra...)
	if client == nil {
		return nil, fmt.Errorf("%w: openrouter api key is required", contractx.ErrValidation)
	}
	return &SDKOracle{
		cfg:     cfg,
		opts:    resolveOptions(cfg, opts),
		timeout: cfg.Timeout,
		client:  client,
	}, nil
}

func (s *SDKOracle) Complete(ctx context.Context, req contractx.OracleRequest) (string, error) {
	orCfg := s.cfg.OpenRouterFor(req.Agent)
	params := openaisdk.ChatCompletionNewParams{
		Model: openaisdk.ChatModel(orCfg.Model),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.UserMessage(req.Prompt),
		},
		Temperature: openaisdk.Float(float64(orCfg.Temperature)),
	}
	if orCfg.MaxCompletionToken != nil && *orCfg.MaxCompletionToken > 0 {
		params.MaxCompletionTokens = openaisdk.Int(int64(*orCfg.MaxCompletionToken))
	}

	return complete(ctx, s.opts, s.timeout, req, func(ctx context.Context) (string, error) {
		resp, err := s.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("%w: completion has no choices", contractx.ErrModelInvoke)
		}
		return resp.Choices[0].Message.Content, nil
	})
}

func statusCode(err error) (int, bool) {
	var apiErr *openaisdk.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode, true
	}
	return 0, false
}
