package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanpawarit/Chative-Support-Orchestrator/agent/agents/orchestrator"
	contractx "github.com/tanpawarit/Chative-Support-Orchestrator/agent/contract"
	"github.com/tanpawarit/Chative-Support-Orchestrator/agent/dialog"
	"github.com/tanpawarit/Chative-Support-Orchestrator/agent/llm"
	"github.com/tanpawarit/Chative-Support-Orchestrator/agent/notify"
	statex "github.com/tanpawarit/Chative-Support-Orchestrator/agent/state"
	"github.com/tanpawarit/Chative-Support-Orchestrator/agent/tool"
	configx "github.com/tanpawarit/Chative-Support-Orchestrator/pkg/config"
	"github.com/tanpawarit/Chative-Support-Orchestrator/pkg/metrics"
	natsx "github.com/tanpawarit/Chative-Support-Orchestrator/pkg/nats"
	qstashx "github.com/tanpawarit/Chative-Support-Orchestrator/pkg/qstash"
)

type AppConfig struct {
	StoreBackend     string   `envconfig:"STORE_BACKEND" default:"memory"`
	CatalogBackend   string   `envconfig:"CATALOG_BACKEND" default:"local"`
	Notifiers        []string `envconfig:"NOTIFIERS" default:"log"`
	RefundPolicyPath string   `envconfig:"REFUND_POLICY_PATH"`
	SessionKeyPrefix string   `envconfig:"SESSION_KEY_PREFIX" default:"chronos:session:"`
}

type app struct {
	orch    *orchestrator.Orchestrator
	metrics *metrics.Recorder
	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn().Err(err).Msg("close resource")
		}
	}
}

func buildApp(ctx context.Context) (*app, error) {
	appCfg, err := configx.New[AppConfig]("APP")
	if err != nil {
		return nil, fmt.Errorf("app config: %w", err)
	}
	orchCfg, err := configx.New[orchestrator.Config]("ORCHESTRATOR")
	if err != nil {
		return nil, fmt.Errorf("orchestrator config: %w", err)
	}
	llmCfg, err := configx.New[llm.Config]("OPENROUTER")
	if err != nil {
		return nil, fmt.Errorf("llm config: %w", err)
	}

	a := &app{metrics: metrics.New()}
	fail := func(err error) (*app, error) {
		a.Close()
		return nil, err
	}

	store, err := a.openStore(ctx, *appCfg, orchCfg.SessionTTL)
	if err != nil {
		return fail(err)
	}
	catalog, err := openCatalog(appCfg.CatalogBackend)
	if err != nil {
		return fail(err)
	}
	notifier, err := a.openNotifier(appCfg.Notifiers)
	if err != nil {
		return fail(err)
	}
	oracle, err := llm.NewOracle(*llmCfg, llm.WithMetrics(a.metrics))
	if err != nil {
		return fail(fmt.Errorf("oracle: %w", err))
	}
	refundPolicy, err := dialog.LoadRefundPolicy(appCfg.RefundPolicyPath)
	if err != nil {
		return fail(fmt.Errorf("refund policy: %w", err))
	}

	a.orch, err = orchestrator.New(store, oracle, catalog, notifier, *orchCfg,
		orchestrator.WithMetrics(a.metrics),
		orchestrator.WithRefundPolicy(refundPolicy),
	)
	if err != nil {
		return fail(err)
	}

	log.Info().
		Str("store", appCfg.StoreBackend).
		Str("catalog", appCfg.CatalogBackend).
		Strs("notifiers", appCfg.Notifiers).
		Str("llm_backend", llmCfg.Backend).
		Msg("orchestrator ready")
	return a, nil
}

func (a *app) openStore(ctx context.Context, cfg AppConfig, ttl time.Duration) (statex.Store, error) {
	opts := []statex.StoreOption{statex.WithKeyPrefix(cfg.SessionKeyPrefix), statex.WithTTL(ttl)}

	switch backend := strings.ToLower(strings.TrimSpace(cfg.StoreBackend)); backend {
	case "", "memory":
		return statex.NewMemoryStore(statex.WithTTL(ttl)), nil
	case "redis":
		redisCfg, err := configx.New[statex.RedisConfig]("REDIS")
		if err != nil {
			return nil, fmt.Errorf("redis config: %w", err)
		}
		store, err := statex.NewRedisStore(ctx, *redisCfg, opts...)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	case "upstash":
		upstashCfg, err := configx.New[statex.UpstashRedisConfig]("UPSTASH_REDIS")
		if err != nil {
			return nil, fmt.Errorf("upstash config: %w", err)
		}
		return statex.NewUpstashRedisStore(*upstashCfg, opts...)
	case "postgres", "sqlite":
		sqlCfg, err := configx.New[statex.SQLConfig]("DATABASE")
		if err != nil {
			return nil, fmt.Errorf("database config: %w", err)
		}
		sqlCfg.Driver = backend
		db, err := statex.OpenSQL(*sqlCfg)
		if err != nil {
			return nil, err
		}
		store, err := statex.NewSQLStore(ctx, db, statex.WithTTL(ttl))
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func openCatalog(backend string) (contractx.Catalog, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "local":
		return tool.NewLocalCatalog()
	case "http":
		cfg, err := configx.New[tool.HTTPCatalogConfig]("CATALOG")
		if err != nil {
			return nil, fmt.Errorf("catalog config: %w", err)
		}
		return tool.NewHTTPCatalog(*cfg, nil)
	default:
		return nil, fmt.Errorf("unknown catalog backend %q", backend)
	}
}

func (a *app) openNotifier(names []string) (contractx.Notifier, error) {
	channels := make([]notify.Channel, 0, len(names))
	for _, name := range names {
		switch name = strings.ToLower(strings.TrimSpace(name)); name {
		case "":
			continue
		case "log":
			channels = append(channels, notify.Channel{Name: name, Notifier: notify.LogNotifier{}})
		case "qstash":
			cfg, err := configx.New[qstashx.Config]("QSTASH")
			if err != nil {
				return nil, fmt.Errorf("qstash config: %w", err)
			}
			client, err := qstashx.NewClient(*cfg)
			if err != nil {
				return nil, err
			}
			n, err := notify.NewQStashNotifier(client, cfg.Destination)
			if err != nil {
				return nil, err
			}
			channels = append(channels, notify.Channel{Name: name, Notifier: n})
		case "nats":
			cfg, err := configx.New[natsx.Config]("NATS")
			if err != nil {
				return nil, fmt.Errorf("nats config: %w", err)
			}
			client, err := natsx.NewClient(*cfg)
			if err != nil {
				return nil, err
			}
			a.closers = append(a.closers, func() error { client.Close(); return nil })
			n, err := notify.NewNATSNotifier(client, cfg.Subject)
			if err != nil {
				return nil, err
			}
			channels = append(channels, notify.Channel{Name: name, Notifier: n})
		default:
			return nil, errors.New("unknown notifier " + name)
		}
	}
	return notify.NewFanout(a.metrics, channels...), nil
}
