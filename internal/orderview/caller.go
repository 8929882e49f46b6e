package orderview

import "github.com/alekpr/dksh-e-market-api/internal/enum"

// CallerIdentity is the explicit identity every core function receives.
// Nothing in this package reads ambient auth state; the HTTP layer builds
// one of these from the request's claims and passes it down.
type CallerIdentity struct {
	Role    string
	StoreID string
}

// Admin returns an admin identity.
func Admin() CallerIdentity {
	return CallerIdentity{Role: enum.RoleAdmin}
}

// Merchant returns a merchant identity scoped to one store.
func Merchant(storeID string) CallerIdentity {
	return CallerIdentity{Role: enum.RoleMerchant, StoreID: storeID}
}

// IsAdmin reports whether the caller holds the admin role.
func (c CallerIdentity) IsAdmin() bool {
	return c.Role == enum.RoleAdmin
}

// StoreScoped reports whether the caller sees a store-scoped slice of an
// order: a merchant with a store ID. A merchant without a store ID falls
// back to the full view like an admin.
func (c CallerIdentity) StoreScoped() bool {
	return c.Role == enum.RoleMerchant && c.StoreID != ""
}

// CanAct reports whether the caller's role may request transitions at all.
// Unknown roles get a read-only view.
func (c CallerIdentity) CanAct() bool {
	return c.Role == enum.RoleAdmin || c.Role == enum.RoleMerchant
}
