package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// VariantInfo is the denormalized snapshot of a product variant captured at
// order time: the package configuration, attribute selection, and price the
// customer actually paid, independent of later catalog edits.
type VariantInfo struct {
	PackageType     string            `json:"packageType,omitempty"`
	PackageUnit     string            `json:"packageUnit,omitempty"`
	PackageQuantity int               `json:"packageQuantity,omitempty"`
	Attributes      map[string]string `json:"attributes,omitempty"`
	Price           decimal.Decimal   `json:"price"`
}

func (v *VariantInfo) clone() *VariantInfo {
	if v == nil {
		return nil
	}
	cp := *v
	if v.Attributes != nil {
		cp.Attributes = make(map[string]string, len(v.Attributes))
		for k, val := range v.Attributes {
			cp.Attributes[k] = val
		}
	}
	return &cp
}

// OrderItem is a single order line. Product and Variant arrive either as
// bare IDs or embedded documents depending on how much the backend populated
// the aggregate; VariantInfo may be absent on lean store-order items.
type OrderItem struct {
	Product     Ref             `json:"product"`
	Variant     Ref             `json:"variant,omitempty"`
	VariantInfo *VariantInfo    `json:"variantInfo,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`

	// Incomplete marks an item whose variant reference has no denormalized
	// snapshot. Set during projection; such items are surfaced, not dropped.
	Incomplete bool `json:"incomplete,omitempty"`
}

// Clone returns a deep copy of the item.
func (it OrderItem) Clone() OrderItem {
	cp := it
	cp.VariantInfo = it.VariantInfo.clone()
	return cp
}

// Matches reports whether two items reference the same (product, variant)
// pair. A zero variant on both sides still matches: plain products have no
// variant at all.
func (it OrderItem) Matches(other OrderItem) bool {
	return it.Product.ID == other.Product.ID && it.Variant.ID == other.Variant.ID
}

// Totals groups the monetary summary of an order or sub-order.
type Totals struct {
	Subtotal     decimal.Decimal `json:"subtotal"`
	ShippingCost decimal.Decimal `json:"shippingCost"`
	Tax          decimal.Decimal `json:"tax"`
	Discount     decimal.Decimal `json:"discount"`
	Total        decimal.Decimal `json:"total"`
}

// IsZero reports whether every monetary field is zero, which on a lean
// sub-order means the backend did not populate totals at all.
func (t Totals) IsZero() bool {
	return t.Subtotal.IsZero() && t.ShippingCost.IsZero() &&
		t.Tax.IsZero() && t.Discount.IsZero() && t.Total.IsZero()
}

// StoreOrder is the sub-order owned by one participating store. Its status
// runs an independent lifecycle from the parent order's status; its items
// may be lean (identifiers only) and need enrichment from the parent's flat
// item list.
type StoreOrder struct {
	Store  Ref         `json:"store"`
	Status string      `json:"status"`
	Items  []OrderItem `json:"items,omitempty"`
	Totals Totals      `json:"totals"`
	Notes  string      `json:"notes,omitempty"`
}

// Clone returns a deep copy of the sub-order.
func (so StoreOrder) Clone() StoreOrder {
	cp := so
	if so.Items != nil {
		cp.Items = make([]OrderItem, len(so.Items))
		for i, it := range so.Items {
			cp.Items[i] = it.Clone()
		}
	}
	return cp
}

// Address is the shipping destination snapshot carried on the order.
type Address struct {
	Name        string `json:"name,omitempty"`
	Phone       string `json:"phone,omitempty"`
	AddressLine string `json:"addressLine,omitempty"`
	City        string `json:"city,omitempty"`
	Province    string `json:"province,omitempty"`
	PostalCode  string `json:"postalCode,omitempty"`
}

// OrderAggregate is the authoritative order record: one customer checkout
// spanning one or more stores. Items is the union of all store-scoped items;
// each item normally references exactly one StoreOrder via its
// (product, variant) pair, but orphan items with no matching sub-order are
// tolerated.
type OrderAggregate struct {
	ID              string          `json:"_id"`
	OrderNumber     string          `json:"orderNumber"`
	CreatedAt       time.Time       `json:"createdAt"`
	Status          string          `json:"status"`
	PaymentStatus   string          `json:"paymentStatus,omitempty"`
	Totals          Totals          `json:"totals"`
	Items           []OrderItem     `json:"items"`
	StoreOrders     []StoreOrder    `json:"storeOrders,omitempty"`
	Customer        Ref             `json:"customer,omitempty"`
	ShippingAddress Address         `json:"shippingAddress,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	MerchantNotes   string          `json:"merchantNotes,omitempty"`
	AssignedTo      Ref             `json:"assignedTo,omitempty"`
}

// Clone returns a deep copy sharing no mutable structure with the receiver.
// The reconciliation engine relies on this for snapshot/rollback and for
// replacing the current value without aliasing the previous one.
func (o *OrderAggregate) Clone() *OrderAggregate {
	if o == nil {
		return nil
	}
	cp := *o
	if o.Items != nil {
		cp.Items = make([]OrderItem, len(o.Items))
		for i, it := range o.Items {
			cp.Items[i] = it.Clone()
		}
	}
	if o.StoreOrders != nil {
		cp.StoreOrders = make([]StoreOrder, len(o.StoreOrders))
		for i, so := range o.StoreOrders {
			cp.StoreOrders[i] = so.Clone()
		}
	}
	return &cp
}

// StoreOrderFor returns the sub-order belonging to the given store, or nil.
func (o *OrderAggregate) StoreOrderFor(storeID string) *StoreOrder {
	if o == nil || storeID == "" {
		return nil
	}
	for i := range o.StoreOrders {
		if o.StoreOrders[i].Store.Is(storeID) {
			return &o.StoreOrders[i]
		}
	}
	return nil
}

// StoreIDs returns the IDs of every store participating in the order.
func (o *OrderAggregate) StoreIDs() []string {
	if o == nil {
		return nil
	}
	ids := make([]string, 0, len(o.StoreOrders))
	for i := range o.StoreOrders {
		if id := o.StoreOrders[i].Store.ID; id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
