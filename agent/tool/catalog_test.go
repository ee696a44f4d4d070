package tool

import (
	"context"
	"errors"
	"strings"
	"testing"

	contractx "github.com/tanpawarit/Chative-Support-Orchestrator/agent/contract"
	statex "github.com/tanpawarit/Chative-Support-Orchestrator/agent/state"
)

func newLocal(t *testing.T) *LocalCatalog {
	t.Helper()

	c, err := NewLocalCatalog()
	if err != nil {
		t.Fatalf("NewLocalCatalog() error = %v", err)
	}
	return c
}

func TestInfosCoverActionVocabulary(t *testing.T) {
	t.Parallel()

	infos := Infos()
	if len(infos) != len(contractx.Actions) {
		t.Fatalf("expected %d tool infos, got %d", len(contractx.Actions), len(infos))
	}
	for i, a := range contractx.Actions {
		if infos[i].Name != string(a) {
			t.Fatalf("info %d = %s, want %s", i, infos[i].Name, a)
		}
	}

	desc := Describe()
	if !strings.Contains(desc, "- add_to_cart(quantity?, watch_id): ") {
		t.Fatalf("Describe() missing add_to_cart line:\n%s", desc)
	}
	if !strings.Contains(desc, "- clear_cart(): ") {
		t.Fatalf("Describe() missing clear_cart line:\n%s", desc)
	}
}

func TestExecutorRequiresLogin(t *testing.T) {
	t.Parallel()

	executor := NewExecutor(newLocal(t))
	out, err := executor(context.Background(), contractx.ActionAddToCart, "", map[string]any{"watch_id": "w-casio-gshock"})
	if !errors.Is(err, ErrLoginRequired) {
		t.Fatalf("error = %v, want ErrLoginRequired", err)
	}
	if out.Error == "" {
		t.Fatal("expected tool error message")
	}
}

func TestExecutorCartFlow(t *testing.T) {
	t.Parallel()

	catalog := newLocal(t)
	executor := NewExecutor(catalog)
	ctx := context.Background()

	out, err := executor(ctx, contractx.ActionAddToCart, "u1", map[string]any{"watch_id": "w-casio-gshock", "quantity": float64(2)})
	if err != nil || out.Error != "" {
		t.Fatalf("add_to_cart: out=%#v err=%v", out, err)
	}
	if catalog.CartSize("u1") != 2 {
		t.Fatalf("cart size = %d, want 2", catalog.CartSize("u1"))
	}

	out, err = executor(ctx, contractx.ActionCreateOrder, "u1", nil)
	if err != nil || out.Error != "" {
		t.Fatalf("create_order: out=%#v err=%v", out, err)
	}
	orders, err := catalog.ListOrders(ctx, "u1")
	if err != nil || len(orders) != 1 || orders[0].Total != 300 {
		t.Fatalf("orders = %#v err=%v", orders, err)
	}

	out, err = executor(ctx, contractx.ActionCreateOrder, "u1", nil)
	if err != nil {
		t.Fatalf("second create_order error = %v", err)
	}
	if out.Error == "" {
		t.Fatal("ordering an empty cart must report a tool error")
	}
}

func TestExecutorValidatesArgs(t *testing.T) {
	t.Parallel()

	executor := NewExecutor(newLocal(t))
	_, err := executor(context.Background(), contractx.ActionUpdateAddress, "u1", map[string]any{})
	if !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
}

type failingCatalog struct{ contractx.Catalog }

func (failingCatalog) Search(context.Context, string) ([]statex.Product, error) {
	return nil, errors.New("connection reset")
}

func TestExecutorWrapsCollaboratorErrors(t *testing.T) {
	t.Parallel()

	executor := NewExecutor(failingCatalog{})
	out, err := executor(context.Background(), contractx.ActionSearchProducts, "", map[string]any{"query": "rolex"})
	if !errors.Is(err, contractx.ErrCollaborator) {
		t.Fatalf("error = %v, want ErrCollaborator", err)
	}
	if out.Error != "connection reset" {
		t.Fatalf("tool error = %q", out.Error)
	}
}

func TestDefaultExecutorForRoutingActions(t *testing.T) {
	t.Parallel()

	executor := NewExecutor(newLocal(t))
	out, err := executor(context.Background(), contractx.ActionDirectResponse, "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Tool != string(contractx.ActionDirectResponse) || out.Error == "" {
		t.Fatalf("unexpected result: %#v", out)
	}
	if IsCatalogAction(contractx.ActionEscalateToHuman) || !IsCatalogAction(contractx.ActionSearchProducts) {
		t.Fatal("IsCatalogAction misclassifies actions")
	}
}

func TestLocalCatalogSearchHonorsBudget(t *testing.T) {
	t.Parallel()

	catalog := newLocal(t)
	products, err := catalog.Search(context.Background(), "Dress watch Under $1,000")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(products) == 0 {
		t.Fatal("expected dress watches under budget")
	}
	for _, p := range products {
		if p.Price > 1000 {
			t.Fatalf("product %s over budget: %v", p.Name, p.Price)
		}
	}
	for i := 1; i < len(products); i++ {
		if products[i].Score > products[i-1].Score {
			t.Fatalf("results not ranked by score: %#v", products)
		}
	}
}

func TestLocalCatalogStructuredFilters(t *testing.T) {
	t.Parallel()

	catalog := newLocal(t)
	products, err := catalog.SearchStructured(context.Background(), contractx.SearchParams{Brand: "rolex", MinPrice: 10000}, 10)
	if err != nil {
		t.Fatalf("SearchStructured() error = %v", err)
	}
	if len(products) != 2 {
		t.Fatalf("expected Submariner and Daytona, got %#v", products)
	}
	for _, p := range products {
		if p.Brand != "Rolex" || p.Price < 10000 {
			t.Fatalf("unexpected product %#v", p)
		}
	}
}
