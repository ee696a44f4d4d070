package orchestratornode

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Support-Orchestrator/agent/contract"
	promptx "github.com/tanpawarit/Chative-Support-Orchestrator/agent/prompt"
	"github.com/tanpawarit/Chative-Support-Orchestrator/agent/recovery"
	statex "github.com/tanpawarit/Chative-Support-Orchestrator/agent/state"
)

const (
	retrievalLimit     = 10
	groundedListLength = 3
	retrievalHitScore  = 0.9
)

// Intents that never need the catalog unless a consultation produced a query.
var noRetrievalIntents = map[string]struct{}{
	contractx.IntentGeneralChat:    {},
	contractx.IntentOrderTracking:  {},
	contractx.IntentAccountSupport: {},
	contractx.IntentCartManagement: {},
}

type knowledgeReply struct {
	Brand    string   `json:"brand"`
	Model    string   `json:"model"`
	MinPrice float64  `json:"min_price"`
	MaxPrice float64  `json:"max_price"`
	Features []string `json:"features"`
	Intent   string   `json:"intent"`
	Query    string   `json:"query"`
}

// Retrieve searches the catalog for the current message and builds a grounded product answer.
func Retrieve(ctx context.Context, in *GraphState, d *Deps) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrValidation, ErrNoSession)
	}
	sess := in.Session

	if in.SearchQuery == "" {
		if _, skip := noRetrievalIntents[sess.Intent]; skip {
			return in, nil
		}
	}
	if sess.Dialog.Active() || d.Catalog == nil {
		return in, nil
	}

	in.AgentType = contractx.AgentTypeKnowledge
	in.RetrievalAttempted = true
	params := d.searchParams(ctx, in)

	products, err := d.search(ctx, params)
	if err != nil {
		log.Warn().Err(err).Str("session_id", in.SessionID).Msg("catalog search failed")
	}

	sess.RetrievedProducts = products
	sess.RetrievalScore = 0
	if len(products) == 0 {
		return in, nil
	}

	sess.RetrievalScore = retrievalHitScore
	top := products[0]
	sess.Entities = sess.Entities.Merge(statex.Entities{
		WatchModel: top.Model,
		Brand:      top.Brand,
		Category:   top.Category,
	})
	in.Grounded = groundedAnswer(in.Response, products)
	return in, nil
}

func (d *Deps) searchParams(ctx context.Context, in *GraphState) contractx.SearchParams {
	query := in.Text
	if in.SearchQuery != "" {
		query = in.SearchQuery
	}
	params := contractx.SearchParams{Query: query}

	raw, err := d.ask(ctx, in, contractx.AgentTypeKnowledge, promptx.Knowledge, map[string]any{
		"entities":     toJSON(in.Session.Entities),
		"search_query": in.SearchQuery,
		"message":      in.Text,
	})
	if err != nil {
		log.Warn().Err(err).Str("session_id", in.SessionID).Msg("knowledge extraction failed, searching raw text")
		return params
	}
	reply, err := recovery.Decode[knowledgeReply](raw)
	if err != nil {
		log.Warn().Err(err).Str("session_id", in.SessionID).Msg("knowledge reply unparseable, searching raw text")
		return params
	}

	if q := strings.TrimSpace(reply.Query); q != "" && in.SearchQuery == "" {
		params.Query = q
	}
	params.Brand = strings.TrimSpace(reply.Brand)
	params.Model = strings.TrimSpace(reply.Model)
	params.MinPrice = max(reply.MinPrice, 0)
	params.MaxPrice = max(reply.MaxPrice, 0)
	params.Features = reply.Features
	params.Intent = reply.Intent
	return params
}

// search prefers structured filters and falls back to a plain text query.
func (d *Deps) search(ctx context.Context, params contractx.SearchParams) ([]statex.Product, error) {
	if hasFilters(params) {
		products, err := d.Catalog.SearchStructured(ctx, params, retrievalLimit)
		if err == nil && len(products) > 0 {
			return products, nil
		}
		if err != nil {
			log.Warn().Err(err).Msg("structured search failed, retrying as text")
		}
	}
	return d.Catalog.Search(ctx, params.Query)
}

func hasFilters(p contractx.SearchParams) bool {
	return p.Brand != "" || p.Model != "" || p.MinPrice > 0 || p.MaxPrice > 0
}

func groundedAnswer(lead string, products []statex.Product) string {
	var b strings.Builder
	if lead = strings.TrimSpace(lead); lead != "" {
		b.WriteString(lead)
		b.WriteString("\n\n")
	}
	b.WriteString("Here are some watches that match:\n")
	for i, p := range products {
		if i == groundedListLength {
			break
		}
		fmt.Fprintf(&b, "- %s ($%.2f)", p.Name, p.Price)
		if p.Description != "" {
			fmt.Fprintf(&b, ": %s", p.Description)
		}
		b.WriteString("\n")
	}
	b.WriteString("Would you like more details on any of these?")
	return b.String()
}

func formatProducts(products []statex.Product) string {
	if len(products) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for _, p := range products {
		fmt.Fprintf(&b, "- id=%s %s (%s) $%.2f\n", p.ID, p.Name, p.Brand, p.Price)
	}
	return strings.TrimRight(b.String(), "\n")
}
