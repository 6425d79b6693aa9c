// Package jwtware extracts and validates bearer tokens on go-router
// requests. It is generic over the claims type so it does not depend on the
// package issuing the tokens.
package jwtware

import (
	"context"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
)

var (
	defaultTokenLookup = "header:" + router.HeaderAuthorization

	ErrJWTMissingOrMalformed = goerrors.New("missing or malformed JWT", goerrors.CategoryAuth).
					WithTextCode("TOKEN_MISSING").
					WithCode(goerrors.CodeUnauthorized)
)

// TokenValidator validates a raw token into claims of type C.
type TokenValidator[C any] interface {
	Validate(tokenString string) (C, error)
}

// ValidatorFunc adapts a function to TokenValidator.
type ValidatorFunc[C any] func(tokenString string) (C, error)

func (f ValidatorFunc[C]) Validate(tokenString string) (C, error) {
	return f(tokenString)
}

// ValidationListener runs after a token validates and may still reject it.
type ValidationListener[C any] func(ctx router.Context, claims C) error

type Config[C any] struct {
	Filter         func(router.Context) bool
	SuccessHandler router.HandlerFunc
	ErrorHandler   func(router.Context, error) error
	ContextKey     string
	// TokenLookup is a comma separated list of source:name pairs, e.g.
	// "header:Authorization,query:token". Sources: header, query, param, cookie.
	TokenLookup    string
	AuthScheme     string
	TokenValidator TokenValidator[C]

	// ContextEnricher propagates claims to the request's standard context.
	ContextEnricher     func(c context.Context, claims C) context.Context
	ValidationListeners []ValidationListener[C]
}

// New returns a middleware that rejects requests without a valid token and
// stores the claims under ContextKey.
func New[C any](config Config[C]) router.MiddlewareFunc {
	cfg := GetDefaultConfig(config)
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if cfg.Filter != nil && cfg.Filter(ctx) {
				return hf(ctx)
			}

			claims, err := Authenticate(ctx, cfg)
			if err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			ctx.Locals(cfg.ContextKey, claims)
			if cfg.ContextEnricher != nil {
				ctx.SetContext(cfg.ContextEnricher(ctx.Context(), claims))
			}
			if cfg.SuccessHandler != nil {
				if err := cfg.SuccessHandler(ctx); err != nil {
					return err
				}
			}
			return hf(ctx)
		}
	}
}

// Authenticate extracts the token, validates it and runs the listeners.
func Authenticate[C any](ctx router.Context, cfg Config[C]) (C, error) {
	var zero C
	if cfg.TokenValidator == nil {
		return zero, goerrors.New("token validator is required", goerrors.CategoryInternal)
	}

	raw, err := ExtractRawTokenFromContext(ctx, GetExtractors(cfg.lookup(), cfg.scheme()))
	if err != nil {
		return zero, err
	}

	claims, err := cfg.TokenValidator.Validate(raw)
	if err != nil {
		return zero, err
	}

	for _, listener := range cfg.ValidationListeners {
		if listener == nil {
			continue
		}
		if err := listener(ctx, claims); err != nil {
			return zero, err
		}
	}
	return claims, nil
}

// GetDefaultConfig fills unset fields. It panics without a validator.
func GetDefaultConfig[C any](cfg Config[C]) Config[C] {
	if cfg.TokenValidator == nil {
		panic("AUTH: JWT middleware configuration: TokenValidator is required.")
	}
	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(c router.Context, err error) error {
			if goerrors.Is(err, ErrJWTMissingOrMalformed) {
				return c.Status(router.StatusBadRequest).SendString(ErrJWTMissingOrMalformed.Message)
			}
			return c.Status(router.StatusUnauthorized).SendString("Invalid or expired token")
		}
	}
	if cfg.ContextKey == "" {
		cfg.ContextKey = "wallet_claims"
	}
	cfg.TokenLookup = cfg.lookup()
	cfg.AuthScheme = cfg.scheme()
	return cfg
}

func (cfg Config[C]) lookup() string {
	if cfg.TokenLookup == "" {
		return defaultTokenLookup
	}
	return cfg.TokenLookup
}

func (cfg Config[C]) scheme() string {
	if cfg.AuthScheme == "" {
		return "Bearer"
	}
	return cfg.AuthScheme
}

// ExtractRawTokenFromContext returns the first token any extractor finds.
func ExtractRawTokenFromContext(ctx router.Context, extractors []JWTExtractor) (string, error) {
	err := error(ErrJWTMissingOrMalformed)
	for _, extractor := range extractors {
		raw, xerr := extractor(ctx)
		if raw != "" && xerr == nil {
			return raw, nil
		}
		err = xerr
	}
	return "", err
}

type JWTExtractor func(c router.Context) (string, error)

// GetExtractors parses tokenLookup into extractors.
func GetExtractors(tokenLookup, authScheme string) []JWTExtractor {
	extractors := make([]JWTExtractor, 0)
	for _, rootPart := range strings.Split(tokenLookup, ",") {
		source, name, ok := strings.Cut(strings.TrimSpace(rootPart), ":")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		switch strings.TrimSpace(source) {
		case "header":
			extractors = append(extractors, jwtFromHeader(name, authScheme))
		case "query":
			extractors = append(extractors, jwtFromQuery(name))
		case "param":
			extractors = append(extractors, jwtFromParam(name))
		case "cookie":
			extractors = append(extractors, jwtFromCookie(name))
		}
	}
	return extractors
}

func jwtFromHeader(header, authScheme string) JWTExtractor {
	authScheme = strings.TrimSpace(authScheme)
	return func(c router.Context) (string, error) {
		a := c.GetString(header, "")
		l := len(authScheme)
		if l > 0 && len(a) > l+1 && strings.EqualFold(a[:l], authScheme) && a[l] == ' ' {
			return strings.TrimSpace(a[l:]), nil
		}
		return "", ErrJWTMissingOrMalformed
	}
}

func jwtFromQuery(param string) JWTExtractor {
	return func(c router.Context) (string, error) {
		if token := c.Query(param, ""); token != "" {
			return token, nil
		}
		return "", ErrJWTMissingOrMalformed
	}
}

func jwtFromParam(param string) JWTExtractor {
	return func(c router.Context) (string, error) {
		if token := c.Param(param); token != "" {
			return token, nil
		}
		return "", ErrJWTMissingOrMalformed
	}
}

func jwtFromCookie(name string) JWTExtractor {
	return func(c router.Context) (string, error) {
		if token := c.Cookies(name); token != "" {
			return token, nil
		}
		return "", ErrJWTMissingOrMalformed
	}
}
