package orchestratornode

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Support-Orchestrator/agent/contract"
	"github.com/tanpawarit/Chative-Support-Orchestrator/agent/friction"
	promptx "github.com/tanpawarit/Chative-Support-Orchestrator/agent/prompt"
	"github.com/tanpawarit/Chative-Support-Orchestrator/agent/recovery"
	statex "github.com/tanpawarit/Chative-Support-Orchestrator/agent/state"
	"github.com/tanpawarit/Chative-Support-Orchestrator/agent/tool"
)

type decisionReply struct {
	Action       string         `json:"action" jsonschema:"enum=search_products,enum=add_to_cart,enum=update_cart_quantity,enum=clear_cart,enum=add_to_wishlist,enum=clear_wishlist,enum=wishlist_to_cart,enum=create_order,enum=get_orders,enum=update_address,enum=escalate_to_human,enum=request_consultation,enum=direct_response"`
	Args         map[string]any `json:"args,omitempty"`
	ResponseText string         `json:"response_text,omitempty"`
	Escalate     bool           `json:"escalate,omitempty"`
}

var decisionSchema = recovery.MustSchemaValidator("decision", decisionReply{})

var actionPhrases = map[contractx.Action]string{
	contractx.ActionAddToCart:          "add that to your cart",
	contractx.ActionUpdateCartQuantity: "update your cart",
	contractx.ActionClearCart:          "clear your cart",
	contractx.ActionAddToWishlist:      "add that to your wishlist",
	contractx.ActionClearWishlist:      "clear your wishlist",
	contractx.ActionWishlistToCart:     "move your wishlist to your cart",
	contractx.ActionCreateOrder:        "place your order",
	contractx.ActionGetOrders:          "look up your orders",
	contractx.ActionUpdateAddress:      "update your address",
	contractx.ActionSearchProducts:     "search the catalog",
}

// DecideAction picks one action from the closed vocabulary and produces the reply for it.
func DecideAction(ctx context.Context, in *GraphState, d *Deps) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrValidation, ErrNoSession)
	}
	sess := in.Session

	if in.Urgency == friction.UrgencyHigh {
		in.HandoffReason = "high urgency: " + strings.Join(in.Signals, ", ")
		in.Decision = DecisionEscalate
		return in, nil
	}

	if !in.ConsultRan {
		in.AgentType = contractx.AgentTypeDecision
	}
	reply, parsed := d.decide(ctx, in)

	action, _ := contractx.ParseAction(reply.Action)
	if !parsed {
		action = contractx.ActionDirectResponse
		if in.Grounded != "" {
			action = contractx.ActionSearchProducts
		}
	}

	in.Decision = DecisionRespond
	switch {
	case action == contractx.ActionEscalateToHuman || reply.Escalate:
		in.HandoffReason = "decision step recommended a human agent"
		in.Decision = DecisionEscalate
		return in, nil
	case action == contractx.ActionRequestConsultation && !in.ConsultRan && !sess.Dialog.Active():
		sess.StartDialog(statex.DialogConsultation, in.Now)
		in.Decision = DecisionConsult
		return in, nil
	case tool.IsCatalogAction(action) && action != contractx.ActionSearchProducts:
		in.AgentType = contractx.AgentTypeDecision
		in.Response = d.runTool(ctx, in, action, reply)
	case action == contractx.ActionSearchProducts && in.Grounded == "" && !in.RetrievalAttempted:
		in.Response = d.searchTool(ctx, in, reply)
	default:
		in.Response = directResponse(in, reply, parsed)
	}

	if in.Urgency == friction.UrgencyMedium {
		in.Decision = DecisionRespondWithOffer
		in.Response = strings.TrimSpace(in.Response) + "\n\n" + OfferMessage
	}
	return in, nil
}

func (d *Deps) decide(ctx context.Context, in *GraphState) (decisionReply, bool) {
	sess := in.Session
	raw, err := d.ask(ctx, in, contractx.AgentTypeDecision, promptx.Decision, map[string]any{
		"actions":   tool.Describe(),
		"summary":   sess.Summary,
		"intent":    sess.Intent,
		"logged_in": in.UserID != "",
		"sentiment": fmt.Sprintf("%.2f", sess.SentimentScore),
		"urgency":   string(in.Urgency),
		"signals":   strings.Join(in.Signals, ", "),
		"products":  formatProducts(sess.RetrievedProducts),
		"message":   in.Text,
	})
	if err != nil {
		log.Warn().Err(err).Str("session_id", in.SessionID).Msg("decision step failed")
		return decisionReply{}, false
	}
	reply, err := recovery.DecodeValid[decisionReply](raw, decisionSchema)
	if err != nil {
		log.Warn().Err(err).Str("session_id", in.SessionID).Msg("decision reply rejected")
		return decisionReply{}, false
	}
	sess.AIConfidence = 0.8
	return reply, true
}

func directResponse(in *GraphState, reply decisionReply, parsed bool) string {
	if in.Grounded != "" && (reply.Action == "" || reply.Action == string(contractx.ActionSearchProducts) || in.ConsultRan) {
		return in.Grounded
	}
	if text := strings.TrimSpace(reply.ResponseText); parsed && text != "" {
		return text
	}
	if in.Grounded != "" {
		return in.Grounded
	}
	switch {
	case in.RateLimited():
		return RateLimitMessage
	case in.OracleErr != nil:
		return UnavailableMessage
	case in.Response != "":
		return in.Response
	default:
		return FallbackMessage
	}
}

func (d *Deps) runTool(ctx context.Context, in *GraphState, action contractx.Action, reply decisionReply) string {
	phrase := actionPhrases[action]
	res, err := d.Execute(ctx, action, in.UserID, withDefaultWatch(reply.Args, in.Session))
	switch {
	case errors.Is(err, tool.ErrLoginRequired):
		return fmt.Sprintf("Please log in so I can %s.", phrase)
	case errors.Is(err, contractx.ErrValidation):
		if text := strings.TrimSpace(reply.ResponseText); text != "" {
			return text
		}
		return fmt.Sprintf("I need a bit more detail to %s. Which watch do you mean?", phrase)
	case err != nil:
		log.Error().Err(err).Str("session_id", in.SessionID).Str("action", string(action)).Msg("catalog action failed")
		return fmt.Sprintf("I'm sorry, I couldn't %s right now. Please try again in a moment.", phrase)
	case res.Error != "":
		return fmt.Sprintf("I couldn't %s: %s", phrase, res.Error)
	}

	switch v := res.Result.(type) {
	case []contractx.Order:
		return formatOrders(v)
	case contractx.Outcome:
		if v.Message != "" {
			return v.Message
		}
	case bool:
		if action == contractx.ActionUpdateAddress && v {
			return "Your shipping address has been updated."
		}
	}
	if text := strings.TrimSpace(reply.ResponseText); text != "" {
		return text
	}
	return "Done! Is there anything else I can help you with?"
}

func (d *Deps) searchTool(ctx context.Context, in *GraphState, reply decisionReply) string {
	args := map[string]any{"query": in.Text}
	if q, ok := reply.Args["query"].(string); ok && strings.TrimSpace(q) != "" {
		args["query"] = q
	}
	res, err := d.Execute(ctx, contractx.ActionSearchProducts, in.UserID, args)
	if err != nil || res.Error != "" {
		log.Warn().Err(err).Str("tool_error", res.Error).Str("session_id", in.SessionID).Msg("search tool failed")
		return directResponse(in, reply, true)
	}
	products, _ := res.Result.([]statex.Product)
	if len(products) == 0 {
		return "I couldn't find any watches matching that. Could you tell me more about what you're looking for?"
	}
	in.RetrievalAttempted = true
	if !in.Session.Dialog.Active() {
		in.Session.RetrievedProducts = products
		in.Session.RetrievalScore = retrievalHitScore
	}
	in.Grounded = groundedAnswer("", products)
	return in.Grounded
}

// withDefaultWatch targets the single product on screen when the oracle omitted watch_id.
func withDefaultWatch(args map[string]any, sess *statex.Session) map[string]any {
	out := make(map[string]any, len(args)+1)
	for k, v := range args {
		out[k] = v
	}
	if _, ok := out["watch_id"]; !ok && len(sess.RetrievedProducts) == 1 {
		out["watch_id"] = sess.RetrievedProducts[0].ID
	}
	return out
}

func formatOrders(orders []contractx.Order) string {
	if len(orders) == 0 {
		return "You don't have any orders yet."
	}
	var b strings.Builder
	b.WriteString("Here are your recent orders:\n")
	for _, o := range orders {
		fmt.Fprintf(&b, "- %s: %s ($%.2f)\n", o.ID, o.Status, o.Total)
	}
	return strings.TrimRight(b.String(), "\n")
}
