// Package dialog drives guided slot-filling interviews toward a terminal outcome.
//
// An Engine makes exactly one oracle call per Advance, merges whatever the oracle extracted into
// the accumulated slots, and lets its Policy make the terminal decision against hard rules. The
// oracle's own verdict is advisory.
package dialog

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Support-Orchestrator/agent/contract"
	"github.com/tanpawarit/Chative-Support-Orchestrator/agent/recovery"
	statex "github.com/tanpawarit/Chative-Support-Orchestrator/agent/state"
)

type Outcome string

const (
	OutcomeContinue Outcome = "continue"
	OutcomePositive Outcome = "terminal_positive"
	OutcomeNegative Outcome = "terminal_negative"
)

func (o Outcome) Terminal() bool {
	return o == OutcomePositive || o == OutcomeNegative
}

type Violation string

const (
	ViolationNone             Violation = ""
	ViolationOutsideWindow    Violation = "outside_window"
	ViolationNonReturnable    Violation = "non_returnable_condition"
	ViolationInvalidReason    Violation = "invalid_reason"
	ViolationInsufficientInfo Violation = "insufficient_info"
)

const DefaultMaxTurns = 8

// Turn is the input of one Advance.
type Turn[S any] struct {
	Slots     S
	Utterance string
	Turns     int
	History   []statex.Message
	Now       time.Time
}

// Proposal is what the oracle suggests for this turn.
type Proposal struct {
	Slots        map[string]any `json:"slots"`
	NextAction   string         `json:"next_action"`
	ResponseText string         `json:"response_text"`
	SearchQuery  string         `json:"search_query"`
	Violation    string         `json:"policy_violation"`
}

// Verdict is the policy's decision over the merged slots.
type Verdict struct {
	Outcome   Outcome
	Status    string
	Response  string
	Violation Violation
	Query     string
}

type Result[S any] struct {
	Kind      statex.DialogKind
	Slots     S
	Outcome   Outcome
	Status    string
	Response  string
	Violation Violation
	Query     string
	// Err is the oracle or parse failure this turn recovered from, if any.
	Err error
}

// Record is the timestamped outcome stamped into session metadata when an interview ends.
type Record struct {
	Status    string    `json:"status"`
	Outcome   Outcome   `json:"outcome"`
	Violation Violation `json:"violation,omitempty"`
	Slots     any       `json:"info"`
	Timestamp time.Time `json:"timestamp"`
}

// Policy specializes the engine for one interview.
type Policy[S any] interface {
	Kind() statex.DialogKind
	Agent() contractx.AgentType
	Prompt(ctx context.Context, turn Turn[S]) (string, error)
	// Extract converts loosely typed oracle slots into S.
	Extract(raw map[string]any) S
	Merge(current, update S) S
	// Decide must not trust p when parsed is false.
	Decide(turn Turn[S], merged S, p Proposal, parsed bool) (S, Verdict)
	Load(sess *statex.Session) S
	Store(sess *statex.Session, slots S)
}

type Engine[S any] struct {
	oracle contractx.Oracle
	policy Policy[S]
}

func NewEngine[S any](oracle contractx.Oracle, policy Policy[S]) (*Engine[S], error) {
	if oracle == nil {
		return nil, fmt.Errorf("%w: oracle is required", contractx.ErrValidation)
	}
	if policy == nil {
		return nil, fmt.Errorf("%w: dialog policy is required", contractx.ErrValidation)
	}
	return &Engine[S]{oracle: oracle, policy: policy}, nil
}

func (e *Engine[S]) Kind() statex.DialogKind { return e.policy.Kind() }

// Advance never returns an error; failures are reported in Result.Err with a safe response.
func (e *Engine[S]) Advance(ctx context.Context, turn Turn[S]) Result[S] {
	if turn.Now.IsZero() {
		turn.Now = time.Now().UTC()
	}

	var (
		proposal Proposal
		parsed   bool
		turnErr  error
	)

	prompt, err := e.policy.Prompt(ctx, turn)
	if err != nil {
		turnErr = err
	} else {
		raw, err := e.oracle.Complete(ctx, contractx.OracleRequest{Agent: e.policy.Agent(), Prompt: prompt})
		switch {
		case err != nil:
			turnErr = err
		default:
			p, perr := recovery.Decode[Proposal](raw)
			if perr != nil {
				turnErr = perr
			} else {
				proposal, parsed = p, true
			}
		}
	}
	if turnErr != nil {
		log.Warn().Err(turnErr).Str("dialog", string(e.policy.Kind())).Msg("dialog turn recovered from oracle failure")
	}

	merged := turn.Slots
	if parsed && len(proposal.Slots) > 0 {
		merged = e.policy.Merge(turn.Slots, e.policy.Extract(proposal.Slots))
	}

	slots, verdict := e.policy.Decide(turn, merged, proposal, parsed)
	if strings.TrimSpace(verdict.Response) == "" {
		verdict.Response = "Could you tell me a little more so I can help?"
	}

	return Result[S]{
		Kind:      e.policy.Kind(),
		Slots:     slots,
		Outcome:   verdict.Outcome,
		Status:    verdict.Status,
		Response:  verdict.Response,
		Violation: verdict.Violation,
		Query:     verdict.Query,
		Err:       turnErr,
	}
}

// Load reads the slots this engine owns from sess.
func (e *Engine[S]) Load(sess *statex.Session) S { return e.policy.Load(sess) }

// Apply writes res into sess. Terminal outcomes close the interview and leave an outcome record
// under "<kind>_data".
func (e *Engine[S]) Apply(sess *statex.Session, res Result[S], now time.Time) {
	e.policy.Store(sess, res.Slots)
	if sess.Dialog.Kind == res.Kind {
		sess.Dialog.Turns++
	}
	if !res.Outcome.Terminal() {
		return
	}
	sess.EndDialog()
	sess.SetMetadata(string(res.Kind)+"_data", Record{
		Status:    res.Status,
		Outcome:   res.Outcome,
		Violation: res.Violation,
		Slots:     res.Slots,
		Timestamp: now.UTC(),
	})
}

var (
	cancelPhrases = map[string]bool{
		"cancel": true, "cancel it": true, "cancel that": true, "cancel this": true,
		"cancel the return": true, "cancel the refund": true, "cancel the request": true,
		"cancel the return request": true, "cancel the refund request": true,
		"never mind": true, "nevermind": true, "forget it": true, "forget about it": true,
		"stop": true, "stop asking": true, "stop it": true,
	}
	cancelFillers = map[string]bool{"please": true, "ok": true, "okay": true, "actually": true, "just": true, "oh": true}
	clauseBreak   = regexp.MustCompile(`[^a-z' ]+`)
)

// cancelRequested reports whether the utterance is nothing but a request to stop the interview.
// The opening turn never cancels; it is the message that started the interview.
func cancelRequested(turns int, utterance string) bool {
	if turns == 0 {
		return false
	}
	found := false
	for _, clause := range clauseBreak.Split(strings.ToLower(utterance), -1) {
		words := make([]string, 0, 4)
		for _, w := range strings.Fields(clause) {
			if !cancelFillers[w] {
				words = append(words, w)
			}
		}
		if len(words) == 0 {
			continue
		}
		if !cancelPhrases[strings.Join(words, " ")] {
			return false
		}
		found = true
	}
	return found
}
