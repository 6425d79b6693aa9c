package auth

import (
	"context"

	"github.com/goliatone/go-router"

	"github.com/goliatone/go-ledger-auth/middleware/jwtware"
)

// TokenListener runs after a gateway token validates.
type TokenListener = jwtware.ValidationListener[*WalletClaims]

// ClaimsContextEnricher stores validated claims in the request context.
func ClaimsContextEnricher(c context.Context, claims *WalletClaims) context.Context {
	return WithClaimsContext(c, claims)
}

// NewTokenMiddleware guards routes with gateway bearer tokens. Handlers read
// the claims with ClaimsFromContext.
func NewTokenMiddleware(tokens *TokenService, onError func(router.Context, error) error, listeners ...TokenListener) router.MiddlewareFunc {
	return jwtware.New(jwtware.Config[*WalletClaims]{
		TokenValidator:      tokens,
		ErrorHandler:        onError,
		ContextEnricher:     ClaimsContextEnricher,
		ValidationListeners: listeners,
	})
}
