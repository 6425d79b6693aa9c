package auth

import (
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const (
	TextCodeTokenExpired   = "TOKEN_EXPIRED"
	TextCodeTokenMalformed = "TOKEN_MALFORMED"
)

// WalletClaims are embedded in gateway tokens.
type WalletClaims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
	Address  string `json:"address"`
}

// TokenService issues and validates the bearer tokens handed out by the
// gateway after a settled login or registration.
type TokenService struct {
	signingKey []byte
	ttl        time.Duration
	issuer     string
	audience   jwt.ClaimStrings
	now        func() time.Time
	logger     Logger
}

// TokenOption customizes a TokenService.
type TokenOption func(*TokenService)

// WithTokenIssuer sets the iss claim checked on validation.
func WithTokenIssuer(issuer string) TokenOption {
	return func(ts *TokenService) {
		ts.issuer = issuer
	}
}

// WithTokenAudience sets the aud claim checked on validation.
func WithTokenAudience(audience ...string) TokenOption {
	return func(ts *TokenService) {
		ts.audience = append(jwt.ClaimStrings(nil), audience...)
	}
}

// WithTokenClock injects a custom clock.
func WithTokenClock(clock func() time.Time) TokenOption {
	return func(ts *TokenService) {
		if clock != nil {
			ts.now = clock
		}
	}
}

// WithTokenLogger sets the logger.
func WithTokenLogger(logger Logger) TokenOption {
	return func(ts *TokenService) {
		if logger != nil {
			ts.logger = logger
		}
	}
}

// NewTokenService signs HS256 tokens valid for ttl.
func NewTokenService(signingKey []byte, ttl time.Duration, opts ...TokenOption) *TokenService {
	ts := &TokenService{
		signingKey: signingKey,
		ttl:        ttl,
		now:        time.Now,
		logger:     defLogger{name: "auth.token"},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ts)
		}
	}
	return ts
}

// Generate issues a token for a settled wallet.
func (ts *TokenService) Generate(wallet *Wallet) (string, error) {
	if wallet == nil {
		return "", walletRequiredError("")
	}
	now := ts.now()
	claims := &WalletClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    ts.issuer,
			Subject:   wallet.Address,
			Audience:  ts.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.ttl)),
		},
		Username: wallet.Username,
		Address:  wallet.Address,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign JWT")
	}
	return signed, nil
}

// Validate parses tokenString and returns its claims.
func (ts *TokenService) Validate(tokenString string) (*WalletClaims, error) {
	parserOptions := []jwt.ParserOption{
		jwt.WithTimeFunc(ts.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &WalletClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.New("token expired", errors.CategoryAuth).
				WithTextCode(TextCodeTokenExpired).
				WithCode(errors.CodeUnauthorized)
		}
		return nil, errors.Wrap(err, errors.CategoryAuth, "malformed token").
			WithTextCode(TextCodeTokenMalformed).
			WithCode(errors.CodeUnauthorized)
	}

	claims, ok := token.Claims.(*WalletClaims)
	if !ok || !token.Valid {
		return nil, errors.New("unable to decode token claims", errors.CategoryAuth).
			WithTextCode(TextCodeTokenMalformed).
			WithCode(errors.CodeUnauthorized)
	}
	if missing := ts.missingAudience(claims.Audience); missing != "" {
		return nil, errors.New("token audience mismatch", errors.CategoryAuth).
			WithTextCode(TextCodeTokenMalformed).
			WithCode(errors.CodeUnauthorized).
			WithMetadata(map[string]any{"audience": missing})
	}
	return claims, nil
}

// missingAudience returns the first configured audience absent from aud.
func (ts *TokenService) missingAudience(aud jwt.ClaimStrings) string {
	for _, want := range ts.audience {
		if !slices.Contains(aud, want) {
			return want
		}
	}
	return ""
}
