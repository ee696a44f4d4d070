package contract

import (
	"context"

	statex "github.com/tanpawarit/Chative-Support-Orchestrator/agent/state"
)

// Oracle is the remote text-completion service. Structure is recovered by the caller.
type Oracle interface {
	Complete(ctx context.Context, req OracleRequest) (string, error)
}

// Catalog is the commerce collaborator reached over HTTP.
type Catalog interface {
	Search(ctx context.Context, query string) ([]statex.Product, error)
	SearchStructured(ctx context.Context, params SearchParams, limit int) ([]statex.Product, error)

	AddToCart(ctx context.Context, userID, watchID string, quantity int) (Outcome, error)
	UpdateCartQuantity(ctx context.Context, userID, watchID string, quantity int) (Outcome, error)
	ClearCart(ctx context.Context, userID string) (Outcome, error)

	AddToWishlist(ctx context.Context, userID, watchID string) (Outcome, error)
	ClearWishlist(ctx context.Context, userID string) (Outcome, error)
	MoveWishlistToCart(ctx context.Context, userID string) (Outcome, error)

	CreateOrderFromCart(ctx context.Context, userID string) (Outcome, error)
	ListOrders(ctx context.Context, userID string) ([]Order, error)
	UpdateAddress(ctx context.Context, userID, address string) (bool, error)
}

// Notifier delivers escalation notices to human support.
type Notifier interface {
	SendEscalation(ctx context.Context, userIdentity, issueSummary, transcript string) (bool, error)
}
