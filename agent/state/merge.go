package state

import "strings"

// Preferences are the consultation slots.
type Preferences struct {
	Style    string   `json:"style,omitempty"`
	Budget   string   `json:"budget,omitempty"`
	Features []string `json:"features,omitempty"`
	Brand    string   `json:"brand,omitempty"`
}

// Merge is additive: empty values never overwrite a filled slot.
func (p Preferences) Merge(update Preferences) Preferences {
	p.Style = pickString(p.Style, update.Style)
	p.Budget = pickString(p.Budget, update.Budget)
	p.Brand = pickString(p.Brand, update.Brand)
	p.Features = mergeStrings(p.Features, update.Features)
	return p
}

func (p Preferences) Empty() bool {
	return p.Style == "" && p.Budget == "" && p.Brand == "" && len(p.Features) == 0
}

// RefundInfo are the refund validation slots. Pointer fields are unknown while nil.
type RefundInfo struct {
	OrderID           string `json:"order_id,omitempty"`
	PurchaseDate      string `json:"purchase_date,omitempty"`
	DaysSincePurchase *int   `json:"days_since_purchase,omitempty"`
	Reason            string `json:"reason,omitempty"`
	Condition         string `json:"condition,omitempty"`
	HasPackaging      *bool  `json:"has_packaging,omitempty"`
	IsCustom          *bool  `json:"is_custom,omitempty"`
	CanShipInsured    *bool  `json:"can_ship_insured,omitempty"`
}

// Merge is additive. An explicit false or 0 is information and does overwrite.
func (r RefundInfo) Merge(update RefundInfo) RefundInfo {
	r.OrderID = pickString(r.OrderID, update.OrderID)
	r.PurchaseDate = pickString(r.PurchaseDate, update.PurchaseDate)
	r.Reason = pickString(r.Reason, normalizeToken(update.Reason))
	r.Condition = pickString(r.Condition, normalizeToken(update.Condition))
	if update.DaysSincePurchase != nil {
		r.DaysSincePurchase = update.DaysSincePurchase
	}
	if update.HasPackaging != nil {
		r.HasPackaging = update.HasPackaging
	}
	if update.IsCustom != nil {
		r.IsCustom = update.IsCustom
	}
	if update.CanShipInsured != nil {
		r.CanShipInsured = update.CanShipInsured
	}
	return r
}

func pickString(cur, next string) string {
	next = strings.TrimSpace(next)
	if next == "" {
		return cur
	}
	return next
}

func mergeStrings(cur, next []string) []string {
	if len(next) == 0 {
		return cur
	}
	seen := make(map[string]struct{}, len(cur)+len(next))
	out := make([]string, 0, len(cur)+len(next))
	for _, v := range append(append([]string(nil), cur...), next...) {
		v = strings.TrimSpace(v)
		key := strings.ToLower(v)
		if v == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	if len(out) == 0 {
		return cur
	}
	return out
}

func normalizeToken(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}
