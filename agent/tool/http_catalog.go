package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Chative-Support-Orchestrator/agent/contract"
	statex "github.com/tanpawarit/Chative-Support-Orchestrator/agent/state"
)

const maxCatalogResponseBytes = 4 << 20

type HTTPCatalogConfig struct {
	URL        string        `envconfig:"URL" split_words:"true" default:"http://localhost:3002/api"`
	ServiceKey string        `envconfig:"SERVICE_KEY" split_words:"true"`
	Timeout    time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

// HTTPCatalog is the storefront API client. Account calls authenticate with the backend service key.
type HTTPCatalog struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
}

var _ contractx.Catalog = (*HTTPCatalog)(nil)

func NewHTTPCatalog(cfg HTTPCatalogConfig, client *http.Client) (*HTTPCatalog, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("catalog url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid catalog url: %w", err)
	}
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPCatalog{
		baseURL:    baseURL,
		serviceKey: strings.TrimSpace(cfg.ServiceKey),
		httpClient: client,
	}, nil
}

type wireProduct struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Brand       json.RawMessage `json:"brand"`
	Model       string          `json:"model"`
	Category    json.RawMessage `json:"category"`
	Price       float64         `json:"price"`
	Description string          `json:"description"`
	Features    json.RawMessage `json:"features"`
}

type productsResponse struct {
	Products []wireProduct `json:"products"`
}

func (c *HTTPCatalog) Search(ctx context.Context, query string) ([]statex.Product, error) {
	var out productsResponse
	if err := c.do(ctx, http.MethodPost, "/products/search", nil, map[string]any{"query": query}, &out); err != nil {
		return nil, err
	}
	return toProducts(out.Products), nil
}

func (c *HTTPCatalog) SearchStructured(ctx context.Context, params contractx.SearchParams, limit int) ([]statex.Product, error) {
	if limit <= 0 {
		limit = 10
	}
	var out productsResponse
	body := map[string]any{"params": params, "limit": limit}
	if err := c.do(ctx, http.MethodPost, "/products/search-structured", nil, body, &out); err != nil {
		return nil, err
	}
	return toProducts(out.Products), nil
}

func (c *HTTPCatalog) AddToCart(ctx context.Context, userID, watchID string, quantity int) (contractx.Outcome, error) {
	return c.outcome(ctx, http.MethodPost, "/cart/add", map[string]any{"userId": userID, "watchId": watchID, "quantity": quantity})
}

func (c *HTTPCatalog) UpdateCartQuantity(ctx context.Context, userID, watchID string, quantity int) (contractx.Outcome, error) {
	return c.outcome(ctx, http.MethodPatch, "/cart/update", map[string]any{"userId": userID, "watchId": watchID, "quantity": quantity})
}

func (c *HTTPCatalog) ClearCart(ctx context.Context, userID string) (contractx.Outcome, error) {
	return c.outcome(ctx, http.MethodDelete, "/cart/clear", map[string]any{"userId": userID})
}

func (c *HTTPCatalog) AddToWishlist(ctx context.Context, userID, watchID string) (contractx.Outcome, error) {
	return c.outcome(ctx, http.MethodPost, "/wishlist", map[string]any{"userId": userID, "watchId": watchID})
}

func (c *HTTPCatalog) ClearWishlist(ctx context.Context, userID string) (contractx.Outcome, error) {
	return c.outcome(ctx, http.MethodDelete, "/wishlist/clear", map[string]any{"userId": userID})
}

func (c *HTTPCatalog) MoveWishlistToCart(ctx context.Context, userID string) (contractx.Outcome, error) {
	return c.outcome(ctx, http.MethodPost, "/wishlist/move-to-cart", map[string]any{"userId": userID})
}

func (c *HTTPCatalog) CreateOrderFromCart(ctx context.Context, userID string) (contractx.Outcome, error) {
	return c.outcome(ctx, http.MethodPost, "/orders/create", map[string]any{"userId": userID})
}

func (c *HTTPCatalog) ListOrders(ctx context.Context, userID string) ([]contractx.Order, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/orders", url.Values{"userId": {userID}}, nil, &raw); err != nil {
		return nil, err
	}

	var orders []contractx.Order
	if err := json.Unmarshal(raw, &orders); err == nil {
		return orders, nil
	}
	var wrapped struct {
		Orders []contractx.Order `json:"orders"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}
	return wrapped.Orders, nil
}

func (c *HTTPCatalog) UpdateAddress(ctx context.Context, userID, address string) (bool, error) {
	out, err := c.outcome(ctx, http.MethodPatch, "/user/address", map[string]any{"userId": userID, "address": address})
	if err != nil {
		return false, err
	}
	return out.OK, nil
}

// outcome maps 4xx replies carrying an error body to an unsuccessful Outcome rather than an error.
func (c *HTTPCatalog) outcome(ctx context.Context, method, path string, body any) (contractx.Outcome, error) {
	var out contractx.Outcome
	err := c.do(ctx, method, path, nil, body, &out)
	var se *statusError
	if errors.As(err, &se) && se.code >= 400 && se.code < 500 {
		var reply contractx.Outcome
		if json.Unmarshal(se.body, &reply) == nil && (reply.Error != "" || reply.Message != "") {
			reply.OK = false
			return reply, nil
		}
	}
	if err != nil {
		return contractx.Outcome{}, err
	}
	return out, nil
}

type statusError struct {
	code int
	body []byte
}

func (e *statusError) Error() string {
	return fmt.Sprintf("catalog http status=%d body=%s", e.code, string(e.body))
}

func (c *HTTPCatalog) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal catalog request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build catalog request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.serviceKey != "" {
		req.Header.Set("X-Backend-Service-Key", c.serviceKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute catalog request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxCatalogResponseBytes))
	if err != nil {
		return fmt.Errorf("read catalog response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &statusError{code: resp.StatusCode, body: raw}
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode catalog response: %w", err)
	}
	return nil
}

func toProducts(in []wireProduct) []statex.Product {
	out := make([]statex.Product, 0, len(in))
	for _, w := range in {
		out = append(out, statex.Product{
			ID:          w.ID,
			Name:        w.Name,
			Brand:       nameOf(w.Brand),
			Model:       w.Model,
			Category:    nameOf(w.Category),
			Price:       w.Price,
			Description: w.Description,
			Features:    featureList(w.Features),
		})
	}
	return out
}

// nameOf accepts either "Rolex" or {"name":"Rolex"}.
func nameOf(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var obj struct {
		Name string `json:"name"`
	}
	if json.Unmarshal(raw, &obj) == nil {
		return obj.Name
	}
	return ""
}

// featureList accepts a string list or a spec object, rendered as sorted "key: value" pairs.
func featureList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if json.Unmarshal(raw, &list) == nil {
		return list
	}
	var obj map[string]any
	if json.Unmarshal(raw, &obj) != nil {
		return nil
	}
	out := make([]string, 0, len(obj))
	for k, v := range obj {
		out = append(out, fmt.Sprintf("%s: %v", k, v))
	}
	sort.Strings(out)
	return out
}
