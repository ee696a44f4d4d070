package tool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/Chative-Support-Orchestrator/agent/contract"
)

var ErrLoginRequired = errors.New("login required")

// Executor runs one catalog action on behalf of userID.
type Executor func(ctx context.Context, action contractx.Action, userID string, args map[string]any) (contractx.ToolResult, error)

// accountActions touch a customer's cart, wishlist, orders or profile.
var accountActions = map[contractx.Action]struct{}{
	contractx.ActionAddToCart:          {},
	contractx.ActionUpdateCartQuantity: {},
	contractx.ActionClearCart:          {},
	contractx.ActionAddToWishlist:      {},
	contractx.ActionClearWishlist:      {},
	contractx.ActionWishlistToCart:     {},
	contractx.ActionCreateOrder:        {},
	contractx.ActionGetOrders:          {},
	contractx.ActionUpdateAddress:      {},
}

func RequiresLogin(action contractx.Action) bool {
	_, ok := accountActions[action]
	return ok
}

// IsCatalogAction reports whether action is executed against the catalog rather than routed.
func IsCatalogAction(action contractx.Action) bool {
	return action == contractx.ActionSearchProducts || RequiresLogin(action)
}

func NewExecutor(catalog contractx.Catalog) Executor {
	fallback := DefaultExecutor()
	if catalog == nil {
		return fallback
	}
	return func(ctx context.Context, action contractx.Action, userID string, args map[string]any) (contractx.ToolResult, error) {
		if RequiresLogin(action) && strings.TrimSpace(userID) == "" {
			return contractx.ToolResult{Tool: string(action), Error: ErrLoginRequired.Error()}, ErrLoginRequired
		}

		var (
			result any
			err    error
		)
		switch action {
		case contractx.ActionSearchProducts:
			query := argString(args, "query")
			if query == "" {
				return invalidArgs(action, "query is required")
			}
			result, err = catalog.Search(ctx, query)
		case contractx.ActionAddToCart:
			watchID := argString(args, "watch_id", "watchId")
			if watchID == "" {
				return invalidArgs(action, "watch_id is required")
			}
			result, err = catalog.AddToCart(ctx, userID, watchID, argInt(args, 1, "quantity"))
		case contractx.ActionUpdateCartQuantity:
			watchID := argString(args, "watch_id", "watchId")
			if watchID == "" {
				return invalidArgs(action, "watch_id is required")
			}
			result, err = catalog.UpdateCartQuantity(ctx, userID, watchID, argInt(args, 1, "quantity"))
		case contractx.ActionClearCart:
			result, err = catalog.ClearCart(ctx, userID)
		case contractx.ActionAddToWishlist:
			watchID := argString(args, "watch_id", "watchId")
			if watchID == "" {
				return invalidArgs(action, "watch_id is required")
			}
			result, err = catalog.AddToWishlist(ctx, userID, watchID)
		case contractx.ActionClearWishlist:
			result, err = catalog.ClearWishlist(ctx, userID)
		case contractx.ActionWishlistToCart:
			result, err = catalog.MoveWishlistToCart(ctx, userID)
		case contractx.ActionCreateOrder:
			result, err = catalog.CreateOrderFromCart(ctx, userID)
		case contractx.ActionGetOrders:
			result, err = catalog.ListOrders(ctx, userID)
		case contractx.ActionUpdateAddress:
			address := argString(args, "address", "new_address")
			if address == "" {
				return invalidArgs(action, "address is required")
			}
			result, err = catalog.UpdateAddress(ctx, userID, address)
		default:
			return fallback(ctx, action, userID, args)
		}

		if err != nil {
			return contractx.ToolResult{Tool: string(action), Error: err.Error()},
				fmt.Errorf("%w: action=%s: %v", contractx.ErrCollaborator, action, err)
		}
		if out, ok := result.(contractx.Outcome); ok && !out.OK {
			return contractx.ToolResult{Tool: string(action), Result: out, Error: firstNonEmpty(out.Error, out.Message, "request was not completed")}, nil
		}
		return contractx.ToolResult{Tool: string(action), Result: result}, nil
	}
}

func DefaultExecutor() Executor {
	return func(ctx context.Context, action contractx.Action, _ string, _ map[string]any) (contractx.ToolResult, error) {
		return contractx.ToolResult{
			Tool:  string(action),
			Error: fmt.Sprintf("action=%s is not a catalog tool", action),
		}, nil
	}
}

func invalidArgs(action contractx.Action, msg string) (contractx.ToolResult, error) {
	return contractx.ToolResult{Tool: string(action), Error: msg}, fmt.Errorf("%w: %s", contractx.ErrValidation, msg)
}

type actionSpec struct {
	action contractx.Action
	desc   string
	params map[string]*schema.ParameterInfo
}

var (
	watchIDParam  = &schema.ParameterInfo{Type: schema.String, Desc: "Catalog id of the watch", Required: true}
	quantityParam = &schema.ParameterInfo{Type: schema.Integer, Desc: "Number of units, defaults to 1"}
)

var actionSpecs = []actionSpec{
	{contractx.ActionSearchProducts, "Search the watch catalog.", map[string]*schema.ParameterInfo{
		"query": {Type: schema.String, Desc: "Natural language search query", Required: true},
	}},
	{contractx.ActionAddToCart, "Add a watch to the customer's cart.", map[string]*schema.ParameterInfo{
		"watch_id": watchIDParam,
		"quantity": quantityParam,
	}},
	{contractx.ActionUpdateCartQuantity, "Change the quantity of a watch already in the cart.", map[string]*schema.ParameterInfo{
		"watch_id": watchIDParam,
		"quantity": {Type: schema.Integer, Desc: "New quantity", Required: true},
	}},
	{contractx.ActionClearCart, "Remove every item from the cart.", nil},
	{contractx.ActionAddToWishlist, "Save a watch to the wishlist.", map[string]*schema.ParameterInfo{
		"watch_id": watchIDParam,
	}},
	{contractx.ActionClearWishlist, "Remove every item from the wishlist.", nil},
	{contractx.ActionWishlistToCart, "Move all wishlist items into the cart.", nil},
	{contractx.ActionCreateOrder, "Place an order for the current cart.", nil},
	{contractx.ActionGetOrders, "List the customer's orders and their status.", nil},
	{contractx.ActionUpdateAddress, "Change the customer's shipping address.", map[string]*schema.ParameterInfo{
		"address": {Type: schema.String, Desc: "Full new shipping address", Required: true},
	}},
	{contractx.ActionEscalateToHuman, "Hand the conversation to a human specialist.", nil},
	{contractx.ActionRequestConsultation, "Start a guided interview to help an undecided shopper.", nil},
	{contractx.ActionDirectResponse, "Answer directly without calling any tool.", nil},
}

// Infos describes the action vocabulary as tool schemas.
func Infos() []*schema.ToolInfo {
	infos := make([]*schema.ToolInfo, 0, len(actionSpecs))
	for _, spec := range actionSpecs {
		info := &schema.ToolInfo{Name: string(spec.action), Desc: spec.desc}
		if len(spec.params) > 0 {
			info.ParamsOneOf = schema.NewParamsOneOfByParams(spec.params)
		}
		infos = append(infos, info)
	}
	return infos
}

// Describe renders the vocabulary one action per line, e.g. "- add_to_cart(quantity?, watch_id): ...".
func Describe() string {
	var b strings.Builder
	for _, spec := range actionSpecs {
		fmt.Fprintf(&b, "- %s(%s): %s\n", spec.action, strings.Join(paramNames(spec.params), ", "), spec.desc)
	}
	return strings.TrimRight(b.String(), "\n")
}

func paramNames(params map[string]*schema.ParameterInfo) []string {
	names := make([]string, 0, len(params))
	for name, p := range params {
		if p == nil || !p.Required {
			name += "?"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func argString(args map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := args[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return fmt.Sprintf("%v", v)
		}
	}
	return ""
}

func argInt(args map[string]any, def int, keys ...string) int {
	for _, k := range keys {
		switch v := args[k].(type) {
		case float64:
			if v > 0 {
				return int(v)
			}
		case int:
			if v > 0 {
				return v
			}
		case string:
			var n int
			if _, err := fmt.Sscanf(strings.TrimSpace(v), "%d", &n); err == nil && n > 0 {
				return n
			}
		}
	}
	return def
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
