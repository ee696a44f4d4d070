package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Support-Orchestrator/agent/contract"
	"github.com/tanpawarit/Chative-Support-Orchestrator/pkg/metrics"
	"golang.org/x/time/rate"
)

// ModelFactory builds the chat model serving one agent.
type ModelFactory func(ctx context.Context, agent contractx.AgentType) (einomodel.BaseChatModel, error)

type options struct {
	factory ModelFactory
	limiter *rate.Limiter
	metrics *metrics.Recorder
}

type Option func(*options)

func WithModelFactory(f ModelFactory) Option {
	return func(o *options) { o.factory = f }
}

// WithLimiter replaces the limiter derived from Config.RPS. A nil limiter disables limiting.
func WithLimiter(l *rate.Limiter) Option {
	return func(o *options) { o.limiter = l }
}

func WithMetrics(m *metrics.Recorder) Option {
	return func(o *options) { o.metrics = m }
}

// NewOracle returns the oracle for cfg.Backend.
func NewOracle(cfg Config, opts ...Option) (contractx.Oracle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Backend == BackendSDK {
		return NewSDKOracle(cfg, opts...)
	}
	return NewChatOracle(cfg, opts...)
}

// ChatOracle completes prompts through eino chat models, one lazily built model per agent.
type ChatOracle struct {
	cfg     Config
	opts    options
	timeout time.Duration

	mu     sync.Mutex
	models map[contractx.AgentType]einomodel.BaseChatModel
}

var _ contractx.Oracle = (*ChatOracle)(nil)

func NewChatOracle(cfg Config, opts ...Option) (*ChatOracle, error) {
	o := resolveOptions(cfg, opts)
	if o.factory == nil {
		o.factory = func(ctx context.Context, agent contractx.AgentType) (einomodel.BaseChatModel, error) {
			orCfg := cfg.OpenRouterFor(agent)
			return orCfg.New(ctx)
		}
	}
	return &ChatOracle{
		cfg:     cfg,
		opts:    o,
		timeout: cfg.Timeout,
		models:  make(map[contractx.AgentType]einomodel.BaseChatModel, 8),
	}, nil
}

func (c *ChatOracle) Complete(ctx context.Context, req contractx.OracleRequest) (string, error) {
	return complete(ctx, c.opts, c.timeout, req, func(ctx context.Context) (string, error) {
		m, err := c.modelFor(ctx, req.Agent)
		if err != nil {
			return "", err
		}
		msg, err := m.Generate(ctx, []*schema.Message{schema.UserMessage(req.Prompt)})
		if err != nil {
			return "", err
		}
		if msg == nil {
			return "", fmt.Errorf("%w: empty completion", contractx.ErrModelInvoke)
		}
		return msg.Content, nil
	})
}

func (c *ChatOracle) modelFor(ctx context.Context, agent contractx.AgentType) (einomodel.BaseChatModel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m, ok := c.models[agent]; ok {
		return m, nil
	}
	m, err := c.opts.factory(ctx, agent)
	if err != nil {
		return nil, fmt.Errorf("%w: build model for agent=%s: %v", contractx.ErrModelInvoke, agent, err)
	}
	c.models[agent] = m
	return m, nil
}

func resolveOptions(cfg Config, opts []Option) options {
	o := options{}
	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		o.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// complete applies the limiter, the per-call timeout and error classification around call.
func complete(
	ctx context.Context,
	o options,
	timeout time.Duration,
	req contractx.OracleRequest,
	call func(ctx context.Context) (string, error),
) (string, error) {
	agent := string(req.Agent)
	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			o.metrics.OracleCall(agent, "rate_limited")
			return "", fmt.Errorf("%w: local limiter: %v", contractx.ErrOracleRateLimited, err)
		}
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := call(ctx)
	if err != nil {
		err = classify(err)
		status := "error"
		if errors.Is(err, contractx.ErrOracleRateLimited) {
			status = "rate_limited"
		}
		o.metrics.OracleCall(agent, status)
		log.Warn().Err(err).Str("agent", agent).Dur("elapsed", time.Since(start)).Msg("oracle call failed")
		return "", err
	}
	o.metrics.OracleCall(agent, "ok")
	log.Debug().Str("agent", agent).Dur("elapsed", time.Since(start)).Int("chars", len(out)).Msg("oracle call completed")
	return out, nil
}

func classify(err error) error {
	if errors.Is(err, contractx.ErrOracleRateLimited) || errors.Is(err, contractx.ErrOracleUnavailable) {
		return err
	}
	if isRateLimit(err) {
		return fmt.Errorf("%w: %v", contractx.ErrOracleRateLimited, err)
	}
	return fmt.Errorf("%w: %v", contractx.ErrOracleUnavailable, err)
}

func isRateLimit(err error) bool {
	if code, ok := statusCode(err); ok && code == 429 {
		return true
	}
	text := strings.ToLower(err.Error())
	return strings.Contains(text, "429") || strings.Contains(text, "rate limit") || strings.Contains(text, "too many requests")
}
