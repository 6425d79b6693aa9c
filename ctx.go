package auth

import (
	"context"
)

var claimsCtxKey = &contextKey{"claims"}

type contextKey struct {
	name string
}

// WithClaimsContext attaches gateway token claims to ctx. Lifecycle events
// recorded under ctx carry the token id and subject.
func WithClaimsContext(ctx context.Context, claims *WalletClaims) context.Context {
	return context.WithValue(ctx, claimsCtxKey, claims)
}

// ClaimsFromContext returns the claims set by WithClaimsContext.
func ClaimsFromContext(ctx context.Context) (*WalletClaims, bool) {
	if ctx == nil {
		return nil, false
	}
	raw, ok := ctx.Value(claimsCtxKey).(*WalletClaims)
	return raw, ok && raw != nil
}
