package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Support-Orchestrator/agent/contract"
	"github.com/tanpawarit/Chative-Support-Orchestrator/agent/dialog"
	"github.com/tanpawarit/Chative-Support-Orchestrator/agent/friction"
	nodex "github.com/tanpawarit/Chative-Support-Orchestrator/agent/nodes/orchestrator"
	promptx "github.com/tanpawarit/Chative-Support-Orchestrator/agent/prompt"
	statex "github.com/tanpawarit/Chative-Support-Orchestrator/agent/state"
	"github.com/tanpawarit/Chative-Support-Orchestrator/agent/tool"
	"github.com/tanpawarit/Chative-Support-Orchestrator/pkg/metrics"
)

var (
	ErrInvalidMessage = nodex.ErrInvalidMessage
	ErrInvalidSession = nodex.ErrInvalidSession
)

type Config struct {
	HistoryLimit        int           `envconfig:"HISTORY_LIMIT" split_words:"true" default:"20"`
	SessionTTL          time.Duration `envconfig:"SESSION_TTL" split_words:"true" default:"24h"`
	MaxDialogTurns      int           `envconfig:"MAX_DIALOG_TURNS" split_words:"true" default:"8"`
	EscalationThreshold *float64      `envconfig:"ESCALATION_THRESHOLD" split_words:"true" default:"-0.1"`
	FrustrationKeywords []string      `envconfig:"FRUSTRATION_KEYWORDS" split_words:"true"`
	MaxRunSteps         int           `envconfig:"MAX_RUN_STEPS" split_words:"true" default:"24"`
	NotifyTimeout       time.Duration `envconfig:"NOTIFY_TIMEOUT" split_words:"true" default:"10s"`
	TurnTimeout         time.Duration `envconfig:"TURN_TIMEOUT" split_words:"true" default:"90s"`
}

func (c Config) withDefaults() Config {
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = statex.DefaultHistoryLimit
	}
	if c.MaxDialogTurns <= 0 {
		c.MaxDialogTurns = dialog.DefaultMaxTurns
	}
	// Nil means unset; zero is a valid threshold.
	if c.EscalationThreshold == nil {
		threshold := friction.DefaultEscalationThreshold
		c.EscalationThreshold = &threshold
	}
	if c.MaxRunSteps <= 0 {
		c.MaxRunSteps = defaultMaxRunSteps
	}
	return c
}

type Request struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id,omitempty"`
	Text      string `json:"message"`
}

type Reply struct {
	SessionID string              `json:"session_id"`
	Text      string              `json:"response"`
	AgentType contractx.AgentType `json:"agent_type"`
	Intent    string              `json:"intent,omitempty"`
	Products  []statex.Product    `json:"products,omitempty"`
	Escalated bool                `json:"escalated"`
}

type Option func(*options)

type options struct {
	prompts      dialog.Renderer
	refundPolicy *dialog.RefundPolicyTable
	metrics      *metrics.Recorder
	now          func() time.Time
}

func WithPrompts(p dialog.Renderer) Option {
	return func(o *options) { o.prompts = p }
}

func WithRefundPolicy(t *dialog.RefundPolicyTable) Option {
	return func(o *options) { o.refundPolicy = t }
}

func WithMetrics(m *metrics.Recorder) Option {
	return func(o *options) { o.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

type Orchestrator struct {
	store   statex.Store
	deps    *nodex.Deps
	metrics *metrics.Recorder
	locks   *sessionLocks
	cfg     Config

	graphRunner compose.Runnable[*nodex.GraphState, *nodex.GraphState]

	now func() time.Time
}

func New(
	store statex.Store,
	oracle contractx.Oracle,
	catalog contractx.Catalog,
	notifier contractx.Notifier,
	cfg Config,
	opts ...Option,
) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("state store is required")
	}
	if oracle == nil {
		return nil, errors.New("oracle is required")
	}
	if catalog == nil {
		return nil, errors.New("catalog is required")
	}

	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.prompts == nil {
		o.prompts = promptx.LoadPromptSet()
	}
	cfg = cfg.withDefaults()

	consultation, err := dialog.NewEngine(oracle, dialog.Policy[statex.Preferences](dialog.NewConsultation(o.prompts, cfg.MaxDialogTurns)))
	if err != nil {
		return nil, fmt.Errorf("consultation engine: %w", err)
	}
	refundPolicy, err := dialog.NewRefund(o.prompts, o.refundPolicy, cfg.MaxDialogTurns)
	if err != nil {
		return nil, fmt.Errorf("refund policy: %w", err)
	}
	refund, err := dialog.NewEngine(oracle, dialog.Policy[statex.RefundInfo](refundPolicy))
	if err != nil {
		return nil, fmt.Errorf("refund engine: %w", err)
	}

	orch := &Orchestrator{
		store:   store,
		metrics: o.metrics,
		locks:   newSessionLocks(),
		cfg:     cfg,
		now:     o.now,
		deps: &nodex.Deps{
			Oracle:              oracle,
			Prompts:             o.prompts,
			Catalog:             catalog,
			Execute:             tool.NewExecutor(catalog),
			Notifier:            notifier,
			Consultation:        consultation,
			Refund:              refund,
			Metrics:             o.metrics,
			HistoryLimit:        cfg.HistoryLimit,
			EscalationThreshold: *cfg.EscalationThreshold,
			FrustrationKeywords: cfg.FrustrationKeywords,
			NotifyTimeout:       cfg.NotifyTimeout,
		},
	}

	graphRunner, err := orch.compileHandleMessageGraph(context.Background())
	if err != nil {
		return nil, err
	}
	orch.graphRunner = graphRunner

	return orch, nil
}

// Handle runs one turn. Turns of the same session never interleave. The session is saved even
// when the graph fails, in which case the reply is a safe apology.
func (o *Orchestrator) Handle(ctx context.Context, req Request) (Reply, error) {
	in, err := nodex.ValidateRequest(nodex.GraphInput{
		SessionID: req.SessionID,
		UserID:    req.UserID,
		Text:      req.Text,
	}, o.now)
	if err != nil {
		return Reply{}, err
	}

	unlock, err := o.locks.Lock(ctx, in.SessionID)
	if err != nil {
		return Reply{}, fmt.Errorf("wait for session %s: %w", in.SessionID, err)
	}
	defer unlock()

	if o.cfg.TurnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.TurnTimeout)
		defer cancel()
	}

	if _, err := nodex.LoadOrCreateState(ctx, in, o.store, o.cfg.HistoryLimit); err != nil {
		o.metrics.Turn(string(contractx.AgentTypeOrchestrator), "error")
		return Reply{}, fmt.Errorf("load session: %w", err)
	}

	result := "ok"
	if runErr := o.invoke(ctx, in); runErr != nil {
		result = "error"
		log.Error().Err(runErr).Str("session_id", in.SessionID).Msg("turn failed, replying with fallback")
		if !in.Finalized {
			in.Response = ""
			if _, err := nodex.FinalizeReply(in, o.cfg.HistoryLimit); err != nil {
				return Reply{}, err
			}
		}
	}
	if in.Escalated {
		result = "escalated"
	}

	reply := Reply{
		SessionID: in.SessionID,
		Text:      in.Response,
		AgentType: in.AgentType,
		Intent:    in.Session.Intent,
		Products:  in.Session.RetrievedProducts,
		Escalated: in.Escalated,
	}
	o.metrics.Turn(string(in.AgentType), result)

	if _, err := nodex.ValidateAndSaveState(context.WithoutCancel(ctx), in, o.store, o.cfg.HistoryLimit); err != nil {
		return reply, fmt.Errorf("save session: %w", err)
	}
	return reply, nil
}

func (o *Orchestrator) invoke(ctx context.Context, in *nodex.GraphState) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("orchestrator graph panic: %v", r)
		}
	}()
	_, err = o.graphRunner.Invoke(ctx, in)
	return err
}

func (o *Orchestrator) HandleMessage(ctx context.Context, sessionID string, text string) (string, error) {
	reply, err := o.Handle(ctx, Request{SessionID: sessionID, Text: text})
	if err != nil {
		return "", err
	}
	return reply.Text, nil
}

// Session returns the stored session.
func (o *Orchestrator) Session(ctx context.Context, sessionID string) (*statex.Session, error) {
	return o.store.Load(ctx, sessionID)
}

// Reset deletes a session once any turn in flight has finished.
func (o *Orchestrator) Reset(ctx context.Context, sessionID string) error {
	unlock, err := o.locks.Lock(ctx, sessionID)
	if err != nil {
		return err
	}
	defer unlock()
	return o.store.Delete(ctx, sessionID)
}
