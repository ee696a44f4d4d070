// Package notify delivers escalation notices to human support over one or more channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Support-Orchestrator/agent/contract"
	"github.com/tanpawarit/Chative-Support-Orchestrator/pkg/metrics"
	natsx "github.com/tanpawarit/Chative-Support-Orchestrator/pkg/nats"
	qstashx "github.com/tanpawarit/Chative-Support-Orchestrator/pkg/qstash"
)

// Escalation is the wire body of an escalation notice.
type Escalation struct {
	UserIdentity string    `json:"user_identity"`
	IssueSummary string    `json:"issue_summary"`
	Transcript   string    `json:"transcript"`
	SentAt       time.Time `json:"sent_at"`
}

func newEscalation(userIdentity, issueSummary, transcript string) Escalation {
	return Escalation{
		UserIdentity: userIdentity,
		IssueSummary: issueSummary,
		Transcript:   transcript,
		SentAt:       time.Now().UTC(),
	}
}

// Publisher is the subset of the QStash client the notifier needs.
type Publisher interface {
	Publish(ctx context.Context, destination string, body any) (qstashx.PublishResult, error)
}

// QStashNotifier enqueues notices for an HTTP destination such as the support mailer.
type QStashNotifier struct {
	client      Publisher
	destination string
}

var _ contractx.Notifier = (*QStashNotifier)(nil)

func NewQStashNotifier(client Publisher, destination string) (*QStashNotifier, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: qstash client is required", contractx.ErrValidation)
	}
	if destination == "" {
		return nil, fmt.Errorf("%w: qstash destination is required", contractx.ErrValidation)
	}
	return &QStashNotifier{client: client, destination: destination}, nil
}

func (n *QStashNotifier) SendEscalation(ctx context.Context, userIdentity, issueSummary, transcript string) (bool, error) {
	res, err := n.client.Publish(ctx, n.destination, newEscalation(userIdentity, issueSummary, transcript))
	if err != nil {
		return false, fmt.Errorf("%w: qstash publish: %v", contractx.ErrCollaborator, err)
	}
	log.Info().Str("message_id", res.MessageID).Str("user", userIdentity).Msg("escalation queued")
	return true, nil
}

// Bus is the subset of the NATS client the notifier needs.
type Bus interface {
	Publish(subject string, data any) error
}

// NATSNotifier publishes notices on a subject for live support dashboards.
type NATSNotifier struct {
	bus     Bus
	subject string
}

var _ contractx.Notifier = (*NATSNotifier)(nil)

func NewNATSNotifier(bus Bus, subject string) (*NATSNotifier, error) {
	if bus == nil {
		return nil, fmt.Errorf("%w: nats client is required", contractx.ErrValidation)
	}
	if subject == "" {
		subject = "support.escalations"
	}
	return &NATSNotifier{bus: bus, subject: subject}, nil
}

var (
	_ Bus       = (*natsx.Client)(nil)
	_ Publisher = (*qstashx.Client)(nil)
)

func (n *NATSNotifier) SendEscalation(ctx context.Context, userIdentity, issueSummary, transcript string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := n.bus.Publish(n.subject, newEscalation(userIdentity, issueSummary, transcript)); err != nil {
		return false, fmt.Errorf("%w: nats publish: %v", contractx.ErrCollaborator, err)
	}
	return true, nil
}

// LogNotifier only writes the notice to the log. It is the fallback when no channel is configured.
type LogNotifier struct{}

func (LogNotifier) SendEscalation(_ context.Context, userIdentity, issueSummary, transcript string) (bool, error) {
	log.Warn().
		Str("user", userIdentity).
		Str("summary", issueSummary).
		Int("transcript_chars", len(transcript)).
		Msg("escalation raised without a delivery channel")
	return true, nil
}

// Channel names a notifier for metrics and logs.
type Channel struct {
	Name     string
	Notifier contractx.Notifier
}

// Fanout sends to every channel. It reports success when at least one channel delivered.
type Fanout struct {
	channels []Channel
	metrics  *metrics.Recorder
}

var _ contractx.Notifier = (*Fanout)(nil)

func NewFanout(m *metrics.Recorder, channels ...Channel) *Fanout {
	return &Fanout{channels: channels, metrics: m}
}

func (f *Fanout) Len() int { return len(f.channels) }

func (f *Fanout) SendEscalation(ctx context.Context, userIdentity, issueSummary, transcript string) (bool, error) {
	if len(f.channels) == 0 {
		return LogNotifier{}.SendEscalation(ctx, userIdentity, issueSummary, transcript)
	}

	var (
		delivered bool
		errs      []error
	)
	for _, ch := range f.channels {
		ok, err := ch.Notifier.SendEscalation(ctx, userIdentity, issueSummary, transcript)
		switch {
		case err != nil:
			f.metrics.Notice(ch.Name, "error")
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name, err))
		case ok:
			f.metrics.Notice(ch.Name, "ok")
			delivered = true
		default:
			f.metrics.Notice(ch.Name, "rejected")
		}
	}
	if delivered {
		if len(errs) > 0 {
			log.Warn().Err(errors.Join(errs...)).Msg("escalation partially delivered")
		}
		return true, nil
	}
	return false, errors.Join(errs...)
}
