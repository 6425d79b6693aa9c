package node

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	auth "github.com/goliatone/go-ledger-auth"
	"github.com/goliatone/go-ledger-auth/ledger"
	"github.com/goliatone/go-ledger-auth/submitter"
)

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.transport.HTTP = client
		}
	}
}

// WithTimeout bounds each request to the node, indexer and invite service.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.transport.SetTimeout(d)
	}
}

// WithRateLimit throttles requests to rps. Requests wait for a slot; they
// are never retried.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		c.transport.SetRateLimit(rps, burst)
	}
}

// WithIndexerURL sets the indexer base URL. Defaults to the node URL.
func WithIndexerURL(u string) Option {
	return func(c *Client) {
		c.indexerURL = trimBase(u)
	}
}

// WithInviteURL sets the invite service base URL. Defaults to the node URL.
func WithInviteURL(u string) Option {
	return func(c *Client) {
		c.inviteURL = trimBase(u)
	}
}

// Client implements submitter.NodeService, auth.AccountIndexer and
// auth.InviteService.
type Client struct {
	baseURL    string
	indexerURL string
	inviteURL  string
	transport  *Transport
}

var (
	_ submitter.NodeService = (*Client)(nil)
	_ auth.AccountIndexer   = (*Client)(nil)
	_ auth.InviteService    = (*Client)(nil)
)

// New returns a client for the node at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:   trimBase(baseURL),
		transport: NewTransport(nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.indexerURL == "" {
		c.indexerURL = c.baseURL
	}
	if c.inviteURL == "" {
		c.inviteURL = c.baseURL
	}
	return c
}

// Transport exposes the underlying transport.
func (c *Client) Transport() *Transport {
	return c.transport
}

// SendBlobTx posts the blob transaction and returns its hash.
func (c *Client) SendBlobTx(ctx context.Context, tx ledger.BlobTransaction) (ledger.TxHash, error) {
	var hash string
	if err := c.transport.Do(ctx, http.MethodPost, c.baseURL+"/v1/tx/send/blob", FromBlobTransaction(tx), &hash); err != nil {
		return "", err
	}
	return ledger.TxHash(hash), nil
}

// SendProofTx posts the proof transaction and returns its hash.
func (c *Client) SendProofTx(ctx context.Context, tx ledger.ProofTransaction) (ledger.TxHash, error) {
	var hash string
	if err := c.transport.Do(ctx, http.MethodPost, c.baseURL+"/v1/tx/send/proof", FromProofTransaction(tx), &hash); err != nil {
		return "", err
	}
	return ledger.TxHash(hash), nil
}

// AccountInfo reads the account salt and nonce from the indexer.
func (c *Client) AccountInfo(ctx context.Context, identity ledger.Identity) (auth.AccountInfo, error) {
	endpoint := c.indexerURL + "/v1/indexer/contract/" +
		url.PathEscape(identity.ContractName()) + "/account/" +
		url.PathEscape(identity.Username())

	var info auth.AccountInfo
	if err := c.transport.Do(ctx, http.MethodGet, endpoint, nil, &info); err != nil {
		return auth.AccountInfo{}, err
	}
	return info, nil
}

type consumeInviteRequest struct {
	Code   string `json:"code"`
	Wallet string `json:"wallet"`
}

// ConsumeInvite exchanges an invite code for the blob authorizing the
// registration of identity.
func (c *Client) ConsumeInvite(ctx context.Context, code string, identity ledger.Identity) (ledger.Blob, error) {
	var blob WireBlob
	req := consumeInviteRequest{Code: code, Wallet: identity.Username()}
	if err := c.transport.Do(ctx, http.MethodPost, c.inviteURL+"/api/consume_invite", req, &blob); err != nil {
		return ledger.Blob{}, err
	}
	return blob.Blob()
}

// FetchContractConfig reads the wallet contract name from GET /api/config.
func FetchContractConfig(ctx context.Context, baseURL string, client *http.Client) (ledger.ContractConfig, error) {
	var cfg ledger.ContractConfig
	if err := NewTransport(client).Do(ctx, http.MethodGet, trimBase(baseURL)+"/api/config", nil, &cfg); err != nil {
		return ledger.ContractConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return ledger.ContractConfig{}, goerrors.Wrap(err, goerrors.CategoryInternal, "invalid remote contract config")
	}
	return cfg, nil
}

func trimBase(u string) string {
	return strings.TrimRight(strings.TrimSpace(u), "/")
}
