package orderview

import (
	"github.com/shopspring/decimal"

	"github.com/alekpr/dksh-e-market-api/internal/model"
)

// ViewScope says which slice of the order a view covers.
const (
	ScopeFull  = "full"
	ScopeStore = "store"
)

// Degraded-fallback reasons surfaced on an EffectiveView.
const (
	FallbackNoStoreOrder = "no store order matches the caller's store"
)

// EffectiveView is the caller-scoped slice of an order: the status, items
// and totals the caller is entitled to see and act on. It is derived fresh
// on every projection and never mutated in place.
type EffectiveView struct {
	OrderID      string            `json:"orderId"`
	OrderNumber  string            `json:"orderNumber"`
	Scope        string            `json:"scope"`
	StoreID      string            `json:"storeId,omitempty"`
	Status       string            `json:"status"`
	Items        []model.OrderItem `json:"items"`
	Subtotal     decimal.Decimal   `json:"subtotal"`
	ShippingCost decimal.Decimal   `json:"shippingCost"`
	Tax          decimal.Decimal   `json:"tax"`
	Discount     decimal.Decimal   `json:"discount"`
	Total        decimal.Decimal   `json:"total"`
	Notes        string            `json:"notes,omitempty"`

	// Degraded marks a fallback projection: the caller asked for a store
	// slice but no matching sub-order exists, so they got the full view.
	// The UI must warn rather than present this as a clean result.
	Degraded       bool   `json:"degraded,omitempty"`
	DegradedReason string `json:"degradedReason,omitempty"`
}

// Project derives the caller's effective view of an order. Pure: it never
// mutates the aggregate and every item it returns is a copy.
//
// Admins (and callers without a store scope) see the order verbatim. A
// merchant sees their sub-order's status and totals with items enriched
// from the parent's flat item list; if their store has no sub-order at all,
// they get the full view flagged as degraded rather than an error, since an
// inconsistent aggregate should not block the screen.
func Project(order *model.OrderAggregate, caller CallerIdentity) EffectiveView {
	if order == nil {
		return EffectiveView{Scope: ScopeFull}
	}

	if !caller.StoreScoped() {
		return fullView(order)
	}

	sub := order.StoreOrderFor(caller.StoreID)
	if sub == nil {
		view := fullView(order)
		view.Degraded = true
		view.DegradedReason = FallbackNoStoreOrder
		return view
	}

	totals := sub.Totals
	if totals.IsZero() {
		// Lean sub-order: the backend left totals unpopulated.
		totals = order.Totals
	}

	return EffectiveView{
		OrderID:      order.ID,
		OrderNumber:  order.OrderNumber,
		Scope:        ScopeStore,
		StoreID:      caller.StoreID,
		Status:       sub.Status,
		Items:        enrichItems(sub.Items, order.Items),
		Subtotal:     totals.Subtotal,
		ShippingCost: totals.ShippingCost,
		Tax:          totals.Tax,
		Discount:     totals.Discount,
		Total:        totals.Total,
		Notes:        sub.Notes,
	}
}

func fullView(order *model.OrderAggregate) EffectiveView {
	items := make([]model.OrderItem, len(order.Items))
	for i, it := range order.Items {
		items[i] = flagIncomplete(it.Clone())
	}
	return EffectiveView{
		OrderID:      order.ID,
		OrderNumber:  order.OrderNumber,
		Scope:        ScopeFull,
		Status:       order.Status,
		Items:        items,
		Subtotal:     order.Totals.Subtotal,
		ShippingCost: order.Totals.ShippingCost,
		Tax:          order.Totals.Tax,
		Discount:     order.Totals.Discount,
		Total:        order.Totals.Total,
		Notes:        order.Notes,
	}
}

// enrichItems merges a sub-order's possibly-lean items with the parent
// order's flat item list, matching on the (product, variant) pair. The
// parent is the source of truth for descriptive metadata (variant snapshot,
// embedded product document); the sub-order is the source of truth for
// commercial terms (quantity, unit price). Sub-order items with no parent
// match pass through unmodified.
func enrichItems(subItems, parentItems []model.OrderItem) []model.OrderItem {
	out := make([]model.OrderItem, len(subItems))
	for i, lean := range subItems {
		out[i] = flagIncomplete(enrichItem(lean, parentItems))
	}
	return out
}

func enrichItem(lean model.OrderItem, parentItems []model.OrderItem) model.OrderItem {
	for _, parent := range parentItems {
		if !parent.Matches(lean) {
			continue
		}
		merged := parent.Clone()
		if lean.Quantity > 0 {
			merged.Quantity = lean.Quantity
		}
		if !lean.UnitPrice.IsZero() {
			merged.UnitPrice = lean.UnitPrice
		}
		if lean.VariantInfo != nil {
			// The lean item already carried its own snapshot; keep it.
			merged.VariantInfo = lean.Clone().VariantInfo
		}
		return merged
	}
	return lean.Clone()
}

// flagIncomplete marks an item that references a variant but lost its
// denormalized snapshot. Such items render in a degraded row instead of
// being dropped.
func flagIncomplete(it model.OrderItem) model.OrderItem {
	it.Incomplete = !it.Variant.IsZero() && it.VariantInfo == nil
	return it
}
