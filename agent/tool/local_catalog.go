package tool

import (
	"context"
	_ "embed"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	contractx "github.com/tanpawarit/Chative-Support-Orchestrator/agent/contract"
	statex "github.com/tanpawarit/Chative-Support-Orchestrator/agent/state"
	"gopkg.in/yaml.v3"
)

//go:embed catalog_seed.yaml
var defaultSeed []byte

const embeddingDims = 128

// LocalCatalog is an in-process catalog with a character-frequency vector index and in-memory
// carts, wishlists and orders. It backs the REPL and tests.
type LocalCatalog struct {
	mu        sync.Mutex
	products  []statex.Product
	vectors   [][]float64
	carts     map[string]map[string]int
	wishlists map[string][]string
	orders    map[string][]contractx.Order
	addresses map[string]string
	now       func() time.Time
}

var _ contractx.Catalog = (*LocalCatalog)(nil)

// NewLocalCatalog indexes products, or the embedded demo inventory when none are given.
func NewLocalCatalog(products ...statex.Product) (*LocalCatalog, error) {
	if len(products) == 0 {
		if err := yaml.Unmarshal(defaultSeed, &products); err != nil {
			return nil, fmt.Errorf("parse catalog seed: %w", err)
		}
	}
	c := &LocalCatalog{
		products:  products,
		vectors:   make([][]float64, len(products)),
		carts:     make(map[string]map[string]int),
		wishlists: make(map[string][]string),
		orders:    make(map[string][]contractx.Order),
		addresses: make(map[string]string),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for i, p := range products {
		c.vectors[i] = embed(documentText(p))
	}
	return c, nil
}

var priceCeiling = regexp.MustCompile(`(?i)(?:under|below|less than|up to|max(?:imum)?)\s*\$?\s*([\d,]+)`)

func (c *LocalCatalog) Search(ctx context.Context, query string) ([]statex.Product, error) {
	params := contractx.SearchParams{Query: query}
	if m := priceCeiling.FindStringSubmatch(query); m != nil {
		if v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64); err == nil {
			params.MaxPrice = v
		}
	}
	return c.SearchStructured(ctx, params, 5)
}

func (c *LocalCatalog) SearchStructured(_ context.Context, params contractx.SearchParams, limit int) ([]statex.Product, error) {
	if limit <= 0 {
		limit = 10
	}
	text := strings.TrimSpace(strings.Join(append([]string{params.Query, params.Brand, params.Model}, params.Features...), " "))
	query := embed(text)

	type hit struct {
		product statex.Product
		score   float64
	}
	hits := make([]hit, 0, len(c.products))
	for i, p := range c.products {
		if !matches(p, params) {
			continue
		}
		p.Score = dot(query, c.vectors[i])
		hits = append(hits, hit{product: p, score: p.Score})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	if len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]statex.Product, len(hits))
	for i, h := range hits {
		out[i] = h.product
	}
	return out, nil
}

func matches(p statex.Product, params contractx.SearchParams) bool {
	if params.Brand != "" && !containsFold(p.Brand, params.Brand) {
		return false
	}
	if params.Model != "" && !containsFold(p.Model, params.Model) && !containsFold(p.Name, params.Model) {
		return false
	}
	if params.MinPrice > 0 && p.Price < params.MinPrice {
		return false
	}
	if params.MaxPrice > 0 && p.Price > params.MaxPrice {
		return false
	}
	return true
}

func (c *LocalCatalog) find(watchID string) (statex.Product, bool) {
	for _, p := range c.products {
		if p.ID == watchID {
			return p, true
		}
	}
	return statex.Product{}, false
}

func (c *LocalCatalog) AddToCart(_ context.Context, userID, watchID string, quantity int) (contractx.Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.find(watchID)
	if !ok {
		return contractx.Outcome{Error: fmt.Sprintf("watch %s not found", watchID)}, nil
	}
	if quantity <= 0 {
		quantity = 1
	}
	cart := c.carts[userID]
	if cart == nil {
		cart = make(map[string]int)
		c.carts[userID] = cart
	}
	cart[watchID] += quantity
	return contractx.Outcome{OK: true, Message: fmt.Sprintf("Added %d x %s to your cart.", quantity, p.Name)}, nil
}

func (c *LocalCatalog) UpdateCartQuantity(_ context.Context, userID, watchID string, quantity int) (contractx.Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cart := c.carts[userID]
	if _, ok := cart[watchID]; !ok {
		return contractx.Outcome{Error: "item is not in your cart"}, nil
	}
	if quantity <= 0 {
		delete(cart, watchID)
		return contractx.Outcome{OK: true, Message: "Item removed from your cart."}, nil
	}
	cart[watchID] = quantity
	return contractx.Outcome{OK: true, Message: fmt.Sprintf("Quantity updated to %d.", quantity)}, nil
}

func (c *LocalCatalog) ClearCart(_ context.Context, userID string) (contractx.Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.carts, userID)
	return contractx.Outcome{OK: true, Message: "Your cart is now empty."}, nil
}

func (c *LocalCatalog) AddToWishlist(_ context.Context, userID, watchID string) (contractx.Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.find(watchID)
	if !ok {
		return contractx.Outcome{Error: fmt.Sprintf("watch %s not found", watchID)}, nil
	}
	for _, id := range c.wishlists[userID] {
		if id == watchID {
			return contractx.Outcome{OK: true, Message: p.Name + " is already on your wishlist."}, nil
		}
	}
	c.wishlists[userID] = append(c.wishlists[userID], watchID)
	return contractx.Outcome{OK: true, Message: p.Name + " added to your wishlist."}, nil
}

func (c *LocalCatalog) ClearWishlist(_ context.Context, userID string) (contractx.Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.wishlists, userID)
	return contractx.Outcome{OK: true, Message: "Your wishlist is now empty."}, nil
}

func (c *LocalCatalog) MoveWishlistToCart(_ context.Context, userID string) (contractx.Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	items := c.wishlists[userID]
	if len(items) == 0 {
		return contractx.Outcome{Error: "your wishlist is empty"}, nil
	}
	cart := c.carts[userID]
	if cart == nil {
		cart = make(map[string]int)
		c.carts[userID] = cart
	}
	for _, id := range items {
		cart[id]++
	}
	delete(c.wishlists, userID)
	return contractx.Outcome{OK: true, Message: fmt.Sprintf("Moved %d item(s) to your cart.", len(items))}, nil
}

func (c *LocalCatalog) CreateOrderFromCart(_ context.Context, userID string) (contractx.Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cart := c.carts[userID]
	if len(cart) == 0 {
		return contractx.Outcome{Error: "your cart is empty"}, nil
	}
	var total float64
	for id, qty := range cart {
		if p, ok := c.find(id); ok {
			total += p.Price * float64(qty)
		}
	}
	order := contractx.Order{
		ID:        "ORD-" + strings.ToUpper(uuid.NewString()[:8]),
		Status:    "pending",
		Total:     math.Round(total*100) / 100,
		CreatedAt: c.now(),
	}
	c.orders[userID] = append(c.orders[userID], order)
	delete(c.carts, userID)
	return contractx.Outcome{OK: true, Message: fmt.Sprintf("Order %s placed, total $%.2f.", order.ID, order.Total)}, nil
}

func (c *LocalCatalog) ListOrders(_ context.Context, userID string) ([]contractx.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]contractx.Order(nil), c.orders[userID]...), nil
}

func (c *LocalCatalog) UpdateAddress(_ context.Context, userID, address string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	address = strings.TrimSpace(address)
	if address == "" {
		return false, nil
	}
	c.addresses[userID] = address
	return true, nil
}

// CartSize reports the number of units in userID's cart.
func (c *LocalCatalog) CartSize(userID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, qty := range c.carts[userID] {
		n += qty
	}
	return n
}

func documentText(p statex.Product) string {
	return strings.Join(append([]string{p.Name, p.Brand, p.Model, p.Description, p.Category}, p.Features...), " ")
}

// embed maps text to a unit vector of alphanumeric rune frequencies.
func embed(text string) []float64 {
	v := make([]float64, embeddingDims)
	for _, r := range strings.ToLower(text) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			v[int(r)%embeddingDims]++
		}
	}
	var norm float64
	for _, x := range v {
		norm += x * x
	}
	if norm == 0 {
		return v
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] /= norm
	}
	return v
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(strings.TrimSpace(sub)))
}
