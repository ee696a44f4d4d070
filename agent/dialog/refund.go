package dialog

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Support-Orchestrator/agent/contract"
	promptx "github.com/tanpawarit/Chative-Support-Orchestrator/agent/prompt"
	statex "github.com/tanpawarit/Chative-Support-Orchestrator/agent/state"
)

const warrantyOffer = "Would you like me to connect you with our warranty team?"

// Refund validates a return request against the store policy table.
type Refund struct {
	prompts  Renderer
	table    *RefundPolicyTable
	maxTurns int
}

var _ Policy[statex.RefundInfo] = (*Refund)(nil)

func NewRefund(prompts Renderer, table *RefundPolicyTable, maxTurns int) (*Refund, error) {
	if table == nil {
		var err error
		if table, err = DefaultRefundPolicy(); err != nil {
			return nil, err
		}
	}
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Refund{prompts: prompts, table: table, maxTurns: maxTurns}, nil
}

func (r *Refund) Kind() statex.DialogKind    { return statex.DialogRefund }
func (r *Refund) Agent() contractx.AgentType { return contractx.AgentTypeRefund }

func (r *Refund) Prompt(ctx context.Context, turn Turn[statex.RefundInfo]) (string, error) {
	return r.prompts.Render(ctx, promptx.Refund, map[string]any{
		"today":     turn.Now.UTC().Format("2006-01-02"),
		"policy":    r.table.Summary(),
		"collected": toJSON(turn.Slots),
		"message":   turn.Utterance,
	})
}

// Extract ignores any day count the oracle offers; Decide derives it from the purchase date.
func (r *Refund) Extract(raw map[string]any) statex.RefundInfo {
	return statex.RefundInfo{
		OrderID:        asString(raw["order_id"]),
		PurchaseDate:   asString(raw["purchase_date"]),
		Reason:         asString(raw["reason"]),
		Condition:      asString(raw["condition"]),
		HasPackaging:   asBool(raw["has_packaging"]),
		IsCustom:       asBool(raw["is_custom"]),
		CanShipInsured: asBool(raw["can_ship_insured"]),
	}
}

func (r *Refund) Merge(current, update statex.RefundInfo) statex.RefundInfo {
	return current.Merge(update)
}

func (r *Refund) Decide(
	turn Turn[statex.RefundInfo],
	merged statex.RefundInfo,
	p Proposal,
	parsed bool,
) (statex.RefundInfo, Verdict) {
	if cancelRequested(turn.Turns, turn.Utterance) {
		return merged, Verdict{
			Outcome:  OutcomeNegative,
			Status:   "cancelled",
			Response: "Okay, I've cancelled this return request. Is there anything else I can help you with?",
		}
	}

	// The day count only ever comes from a date we could parse. Without one the date is asked for again.
	merged.DaysSincePurchase = nil
	if days, ok := DaysSince(merged.PurchaseDate, turn.Now); ok {
		merged.DaysSincePurchase = &days
	}

	violation, err := r.table.Evaluate(merged)
	if err != nil {
		log.Error().Err(err).Msg("refund policy evaluation failed")
	}
	if parsed && p.Violation != "" && Violation(p.Violation) != violation {
		log.Debug().Str("oracle", p.Violation).Str("engine", string(violation)).Msg("refund verdict overridden by policy table")
	}

	if violation != ViolationNone {
		return merged, Verdict{
			Outcome:   OutcomeNegative,
			Status:    "denied",
			Violation: violation,
			Response:  r.denial(violation, merged, turn.Utterance),
		}
	}

	missing := missingRefundSlots(merged)
	if len(missing) == 0 {
		return merged, Verdict{
			Outcome:  OutcomePositive,
			Status:   "approved",
			Response: r.approval(merged),
		}
	}
	if turn.Turns+1 >= r.maxTurns {
		return merged, Verdict{
			Outcome:   OutcomeNegative,
			Status:    "escalated",
			Violation: ViolationInsufficientInfo,
			Response:  "I wasn't able to collect everything needed to process this return, so I'm passing it to our support team to finish it with you.",
		}
	}

	response := strings.TrimSpace(p.ResponseText)
	// An oracle that thinks it can approve or deny would phrase a verdict; ask instead.
	if !parsed || response == "" || (p.NextAction != "" && p.NextAction != "ask") {
		response = refundQuestions[missing[0]]
	}
	return merged, Verdict{Outcome: OutcomeContinue, Status: "collecting", Response: response}
}

func (r *Refund) Load(sess *statex.Session) statex.RefundInfo { return sess.RefundInfo }

func (r *Refund) Store(sess *statex.Session, slots statex.RefundInfo) {
	sess.RefundInfo = slots
	if slots.OrderID != "" {
		sess.Entities = sess.Entities.Merge(statex.Entities{OrderID: slots.OrderID})
	}
}

func (r *Refund) denial(v Violation, info statex.RefundInfo, utterance string) string {
	var msg string
	switch v {
	case ViolationOutsideWindow:
		window := r.table.ReturnWindowDays
		if contains(r.table.FaultReasons, info.Reason) {
			window = r.table.RefundWindowDays
		}
		days := 0
		if info.DaysSincePurchase != nil {
			days = *info.DaysSincePurchase
		}
		msg = fmt.Sprintf("I'm sorry, but this purchase was %d days ago and returns for this reason must be requested within %d days, so I can't approve it.", days, window)
	case ViolationNonReturnable:
		msg = "I'm sorry, but custom, final sale, or used items can't be returned under our policy."
	case ViolationInvalidReason:
		msg = fmt.Sprintf("I'm sorry, but %q isn't a reason we can accept for a return.", strings.ReplaceAll(info.Reason, "_", " "))
	default:
		msg = "I'm sorry, but I can't approve this return."
	}
	if mentionsDefect(utterance) || info.Reason == "defective" || info.Condition == "damaged" {
		msg += " " + warrantyOffer
	}
	return msg
}

func (r *Refund) approval(info statex.RefundInfo) string {
	msg := fmt.Sprintf("Good news! Your return for order %s has been approved. You'll receive a prepaid shipping label by email.", info.OrderID)
	if fee := r.table.RestockingFee(info.Reason); fee > 0 {
		msg += fmt.Sprintf(" A %d%% restocking fee applies to this return.", fee)
	}
	if info.CanShipInsured != nil && !*info.CanShipInsured {
		msg += " Our team will arrange insured pickup for you."
	}
	return msg
}

var refundQuestions = map[string]string{
	"order_id":      "Could you share your order number so I can look into the return?",
	"purchase_date": "When did you purchase the watch? (for example 2026-03-14)",
	"reason":        "What's the reason for the return: defective, damaged on arrival, wrong item, changed mind, size/fit issue, or not as described?",
	"condition":     "What condition is the watch in: pristine, worn, or damaged?",
	"has_packaging": "Do you still have the original packaging?",
	"is_custom":     "Was the watch custom engraved or bought as a final sale item?",
}

func missingRefundSlots(info statex.RefundInfo) []string {
	missing := make([]string, 0, 6)
	if info.OrderID == "" {
		missing = append(missing, "order_id")
	}
	if info.DaysSincePurchase == nil {
		missing = append(missing, "purchase_date")
	}
	if info.Reason == "" {
		missing = append(missing, "reason")
	}
	if info.Condition == "" {
		missing = append(missing, "condition")
	}
	if info.HasPackaging == nil {
		missing = append(missing, "has_packaging")
	}
	if info.IsCustom == nil {
		missing = append(missing, "is_custom")
	}
	return missing
}

func mentionsDefect(utterance string) bool {
	text := strings.ToLower(utterance)
	return strings.Contains(text, "defective") || strings.Contains(text, "damaged") || strings.Contains(text, "broken")
}

var (
	dateLayouts = []string{
		"2006-01-02",
		time.RFC3339,
		"2006/01/02",
		"01/02/2006",
		"1/2/2006",
		"January 2, 2006",
		"Jan 2, 2006",
		"2 January 2006",
		"2 Jan 2006",
	}
	daysAgoPattern = regexp.MustCompile(`(?i)^(\d+)\s+days?\s+ago$`)
	ordinalSuffix  = regexp.MustCompile(`(?i)\b(\d{1,2})(st|nd|rd|th)\b`)
)

// DaysSince returns whole days between a purchase date and now. Future or unparseable dates
// report false.
func DaysSince(purchaseDate string, now time.Time) (int, bool) {
	s := strings.TrimSpace(purchaseDate)
	if s == "" {
		return 0, false
	}
	switch strings.ToLower(s) {
	case "today":
		return 0, true
	case "yesterday":
		return 1, true
	case "last week", "a week ago":
		return 7, true
	}
	if m := daysAgoPattern.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			return n, true
		}
	}

	s = ordinalSuffix.ReplaceAllString(s, "$1")
	today := truncateDay(now)
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		days := int(today.Sub(truncateDay(t)).Hours() / 24)
		if days < 0 {
			return 0, false
		}
		return days, true
	}
	return 0, false
}

func truncateDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
