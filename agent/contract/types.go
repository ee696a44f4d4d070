package contract

import "time"

type AgentType string

const (
	AgentTypeOrchestrator AgentType = "orchestrator"
	AgentTypeIntent       AgentType = "intent"
	AgentTypeSummary      AgentType = "summary"
	AgentTypeKnowledge    AgentType = "knowledge"
	AgentTypeSentiment    AgentType = "sentiment"
	AgentTypeDecision     AgentType = "decision"
	AgentTypeConsultant   AgentType = "consultant"
	AgentTypeRefund       AgentType = "refund"
	AgentTypeHandoff      AgentType = "handoff"
)

type OracleRequest struct {
	Agent  AgentType `json:"agent"`
	Prompt string    `json:"prompt"`
}

// Intent labels produced by the classifier.
const (
	IntentProductInquiry = "product_inquiry"
	IntentOrderTracking  = "order_tracking"
	IntentAccountSupport = "account_support"
	IntentPricing        = "pricing"
	IntentTechnicalIssue = "technical_issue"
	IntentGeneralChat    = "general_chat"
	IntentPurchase       = "purchase"
	IntentCartManagement = "cart_management"
	IntentConsultation   = "consultation"
	IntentRefundRequest  = "refund_request"
	IntentHumanHandoff   = "human_handoff"
)

var IntentLabels = []string{
	IntentProductInquiry,
	IntentOrderTracking,
	IntentAccountSupport,
	IntentPricing,
	IntentTechnicalIssue,
	IntentGeneralChat,
	IntentPurchase,
	IntentCartManagement,
	IntentConsultation,
	IntentRefundRequest,
	IntentHumanHandoff,
}

type Action string

// Closed action vocabulary of the decide step.
const (
	ActionSearchProducts      Action = "search_products"
	ActionAddToCart           Action = "add_to_cart"
	ActionUpdateCartQuantity  Action = "update_cart_quantity"
	ActionClearCart           Action = "clear_cart"
	ActionAddToWishlist       Action = "add_to_wishlist"
	ActionClearWishlist       Action = "clear_wishlist"
	ActionWishlistToCart      Action = "wishlist_to_cart"
	ActionCreateOrder         Action = "create_order"
	ActionGetOrders           Action = "get_orders"
	ActionUpdateAddress       Action = "update_address"
	ActionEscalateToHuman     Action = "escalate_to_human"
	ActionRequestConsultation Action = "request_consultation"
	ActionDirectResponse      Action = "direct_response"
)

var Actions = []Action{
	ActionSearchProducts,
	ActionAddToCart,
	ActionUpdateCartQuantity,
	ActionClearCart,
	ActionAddToWishlist,
	ActionClearWishlist,
	ActionWishlistToCart,
	ActionCreateOrder,
	ActionGetOrders,
	ActionUpdateAddress,
	ActionEscalateToHuman,
	ActionRequestConsultation,
	ActionDirectResponse,
}

func ParseAction(s string) (Action, bool) {
	for _, a := range Actions {
		if string(a) == s {
			return a, true
		}
	}
	return "", false
}

// SearchParams are the structured filters extracted from a product question.
type SearchParams struct {
	Query    string   `json:"query,omitempty"`
	Brand    string   `json:"brand,omitempty"`
	Model    string   `json:"model,omitempty"`
	MinPrice float64  `json:"minPrice,omitempty"`
	MaxPrice float64  `json:"maxPrice,omitempty"`
	Features []string `json:"features,omitempty"`
	Intent   string   `json:"intent,omitempty"`
}

type Outcome struct {
	OK      bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type Order struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Total     float64   `json:"total"`
	CreatedAt time.Time `json:"createdAt"`
}

type ToolResult struct {
	Tool   string `json:"tool"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}
