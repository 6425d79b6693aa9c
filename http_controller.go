package auth

import (
	"net/http"
	"time"

	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"

	"github.com/goliatone/go-ledger-auth/middleware/jwtware"
)

// RouteRegistrar captures the router methods used by the gateway.
type RouteRegistrar interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Post(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Delete(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

// GatewayConfig configures the gateway controller.
type GatewayConfig struct {
	// SessionKeyTTL is used when a session key request has no ttl.
	SessionKeyTTL time.Duration
	// Debug dumps request payloads through the logger.
	Debug bool
}

// GatewayController exposes a WalletProvider over HTTP. Login and register
// answer with a bearer token that the session key routes require.
type GatewayController struct {
	provider *WalletProvider
	tokens   *TokenService
	config   GatewayConfig
	logger   Logger
}

// GatewayOption customizes the controller.
type GatewayOption func(*GatewayController)

// WithGatewayLogger sets the logger.
func WithGatewayLogger(logger Logger) GatewayOption {
	return func(c *GatewayController) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewGatewayController wires provider and tokens into HTTP handlers.
func NewGatewayController(provider *WalletProvider, tokens *TokenService, cfg GatewayConfig, opts ...GatewayOption) *GatewayController {
	if cfg.SessionKeyTTL <= 0 {
		cfg.SessionKeyTTL = 72 * time.Hour
	}
	c := &GatewayController{
		provider: provider,
		tokens:   tokens,
		config:   cfg,
		logger:   defLogger{name: "auth.gateway"},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// RegisterRoutes registers the wallet routes on group.
func (c *GatewayController) RegisterRoutes(group RouteRegistrar) {
	group.Post("/login", c.Login)
	group.Post("/register", c.Register)
	group.Post("/logout", c.Logout, c.RequireToken())
	group.Get("/stage", c.Stage)
	group.Get("/me", c.Me, c.RequireToken())
	group.Post("/session-keys", c.AddSessionKey)
	group.Delete("/session-keys/:key", c.RemoveSessionKey)
}

// GatewayResponse is the JSON body of every wallet route.
type GatewayResponse struct {
	ProviderResult
	Stage Stage  `json:"stage"`
	Token string `json:"token,omitempty"`
}

// SessionKeyRequest is the body of POST /session-keys.
type SessionKeyRequest struct {
	Password  string   `json:"password"`
	TTL       string   `json:"ttl,omitempty"`
	Whitelist []string `json:"whitelist,omitempty"`
}

// RemoveSessionKeyRequest is the body of DELETE /session-keys/:key.
type RemoveSessionKeyRequest struct {
	Password string `json:"password"`
}

// Login handles POST /login.
func (c *GatewayController) Login(ctx router.Context) error {
	payload := new(PasswordLogin)
	if err := ctx.Bind(payload); err != nil {
		return c.badRequest(ctx, err)
	}
	c.debug("login", payload.Username)

	result := c.provider.Login(ctx.Context(), payload.Username, payload.Password)
	return c.respondWithToken(ctx, result)
}

// Register handles POST /register.
func (c *GatewayController) Register(ctx router.Context) error {
	payload := new(PasswordRegistration)
	if err := ctx.Bind(payload); err != nil {
		return c.badRequest(ctx, err)
	}
	c.debug("register", payload.Username)

	result := c.provider.Register(ctx.Context(), *payload)
	return c.respondWithToken(ctx, result)
}

// Logout handles POST /logout behind RequireToken. It always succeeds.
func (c *GatewayController) Logout(ctx router.Context) error {
	result := c.provider.Logout()
	return ctx.JSON(http.StatusOK, GatewayResponse{ProviderResult: result, Stage: c.provider.Stage()})
}

// Stage handles GET /stage.
func (c *GatewayController) Stage(ctx router.Context) error {
	return ctx.JSON(http.StatusOK, GatewayResponse{
		ProviderResult: ProviderResult{Success: true, Wallet: publicWallet(c.provider.Wallet())},
		Stage:          c.provider.Stage(),
	})
}

// AddSessionKey handles POST /session-keys. The response carries the
// private key once; it is not kept by the gateway.
func (c *GatewayController) AddSessionKey(ctx router.Context) error {
	claims, err := c.authorize(ctx)
	if err != nil {
		return c.unauthorized(ctx, err)
	}
	payload := new(SessionKeyRequest)
	if err := ctx.Bind(payload); err != nil {
		return c.badRequest(ctx, err)
	}

	ttl := c.config.SessionKeyTTL
	if payload.TTL != "" {
		parsed, perr := time.ParseDuration(payload.TTL)
		if perr != nil {
			return c.badRequest(ctx, validationError("invalid session key ttl", map[string]any{"ttl": payload.TTL}))
		}
		ttl = parsed
	}

	reqCtx := WithClaimsContext(ctx.Context(), claims)
	result := c.provider.AddSessionKey(reqCtx, payload.Password, ttl, payload.Whitelist...)
	return c.respond(ctx, result)
}

// RemoveSessionKey handles DELETE /session-keys/:key.
func (c *GatewayController) RemoveSessionKey(ctx router.Context) error {
	claims, err := c.authorize(ctx)
	if err != nil {
		return c.unauthorized(ctx, err)
	}
	payload := new(RemoveSessionKeyRequest)
	if err := ctx.Bind(payload); err != nil {
		return c.badRequest(ctx, err)
	}

	reqCtx := WithClaimsContext(ctx.Context(), claims)
	result := c.provider.RemoveSessionKey(reqCtx, payload.Password, ctx.Param("key"))
	if result.Success {
		result.Wallet = publicWallet(result.Wallet)
	}
	return c.respond(ctx, result)
}

// RequireToken guards a route with the gateway bearer token.
func (c *GatewayController) RequireToken() router.MiddlewareFunc {
	return NewTokenMiddleware(c.tokens, c.unauthorized, c.connectedWallet)
}

// Me handles GET /me behind RequireToken.
func (c *GatewayController) Me(ctx router.Context) error {
	claims, ok := ClaimsFromContext(ctx.Context())
	if !ok {
		return c.unauthorized(ctx, walletRequiredError(""))
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"username":   claims.Username,
		"address":    claims.Address,
		"token_id":   claims.ID,
		"expires_at": claims.ExpiresAt,
		"stage":      c.provider.Stage(),
		"wallet":     publicWallet(c.provider.Wallet()),
	})
}

// authorize checks the bearer token against the connected wallet.
func (c *GatewayController) authorize(ctx router.Context) (*WalletClaims, error) {
	return jwtware.Authenticate(ctx, jwtware.Config[*WalletClaims]{
		TokenValidator:      c.tokens,
		ValidationListeners: []TokenListener{c.connectedWallet},
	})
}

func (c *GatewayController) connectedWallet(_ router.Context, claims *WalletClaims) error {
	wallet := c.provider.Wallet()
	if wallet == nil || wallet.Address != claims.Address {
		return walletRequiredError("")
	}
	return nil
}

func (c *GatewayController) respondWithToken(ctx router.Context, result ProviderResult) error {
	resp := GatewayResponse{ProviderResult: result, Stage: c.provider.Stage()}
	if result.Success {
		token, err := c.tokens.Generate(result.Wallet)
		if err != nil {
			c.logger.Error("failed to issue gateway token", "error", err)
			return ctx.JSON(http.StatusInternalServerError, GatewayResponse{
				ProviderResult: errorResult(err),
				Stage:          resp.Stage,
			})
		}
		resp.Token = token
		resp.Wallet = publicWallet(result.Wallet)
	}
	return ctx.JSON(statusFor(result), resp)
}

func (c *GatewayController) respond(ctx router.Context, result ProviderResult) error {
	return ctx.JSON(statusFor(result), GatewayResponse{ProviderResult: result, Stage: c.provider.Stage()})
}

func (c *GatewayController) badRequest(ctx router.Context, err error) error {
	return ctx.JSON(http.StatusBadRequest, GatewayResponse{
		ProviderResult: errorResult(err),
		Stage:          c.provider.Stage(),
	})
}

func (c *GatewayController) unauthorized(ctx router.Context, err error) error {
	c.logger.Warn("rejected gateway request", "error", ErrorMessage(err))
	return ctx.JSON(http.StatusUnauthorized, GatewayResponse{
		ProviderResult: ProviderResult{Success: false, Error: "authentication required"},
		Stage:          c.provider.Stage(),
	})
}

func (c *GatewayController) debug(route, username string) {
	if !c.config.Debug {
		return
	}
	c.logger.Debug("gateway request", "route", route, "payload", print.MaybePrettyJSON(map[string]string{
		"username": username,
	}))
}

func statusFor(result ProviderResult) int {
	if result.Success {
		return http.StatusOK
	}
	switch ErrorKind(result.Kind) {
	case KindValidation:
		return http.StatusBadRequest
	case KindInProgress:
		return http.StatusConflict
	case KindSettlementFailure:
		return http.StatusUnprocessableEntity
	case KindSettlementTimeout:
		return http.StatusGatewayTimeout
	case KindNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// publicWallet strips the session private key.
func publicWallet(w *Wallet) *Wallet {
	if w == nil || w.SessionKey == nil {
		return w
	}
	out := w.Clone()
	key := out.SessionKey.Public()
	out.SessionKey = &key
	return out
}
