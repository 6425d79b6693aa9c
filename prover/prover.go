// Package prover is the HTTP client for the external secret-verification
// prover. The prover builds the secret-check blob, proves it and supplies
// the transaction that registers its contract on the ledger.
package prover

import (
	"context"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/goliatone/go-ledger-auth/ledger"
	"github.com/goliatone/go-ledger-auth/node"
	"github.com/goliatone/go-ledger-auth/submitter"
)

// Option customizes a RemoteProver.
type Option func(*RemoteProver)

// WithTransport shares an existing transport, including its rate limit.
func WithTransport(t *node.Transport) Option {
	return func(p *RemoteProver) {
		if t != nil {
			p.transport = t
		}
	}
}

// RemoteProver implements submitter.Prover over HTTP.
type RemoteProver struct {
	baseURL   string
	transport *node.Transport
}

var _ submitter.Prover = (*RemoteProver)(nil)

// New returns a prover client for baseURL.
func New(baseURL string, opts ...Option) *RemoteProver {
	p := &RemoteProver{
		baseURL:   strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		transport: node.NewTransport(nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

type secretBlobRequest struct {
	Identity string `json:"identity"`
	Secret   string `json:"secret"`
}

type proofRequest struct {
	Identity   string `json:"identity"`
	Secret     string `json:"secret"`
	BlobTxHash string `json:"blob_tx_hash"`
	BlobIndex  int    `json:"blob_index"`
	BlobCount  int    `json:"blob_count"`
}

// BuildSecretBlob asks the prover for the secret-check blob of identity.
func (p *RemoteProver) BuildSecretBlob(ctx context.Context, identity ledger.Identity, secret []byte) (ledger.Blob, error) {
	var out node.WireBlob
	req := secretBlobRequest{
		Identity: identity.String(),
		Secret:   hex.EncodeToString(secret),
	}
	if err := p.transport.Do(ctx, http.MethodPost, p.baseURL+"/v1/secret_blob", req, &out); err != nil {
		return ledger.Blob{}, err
	}
	return out.Blob()
}

// BuildProofTransaction asks the prover to prove the secret-check blob of an
// accepted blob transaction.
func (p *RemoteProver) BuildProofTransaction(ctx context.Context, r submitter.ProofRequest) (ledger.ProofTransaction, error) {
	var out node.WireProofTransaction
	req := proofRequest{
		Identity:   r.Identity.String(),
		Secret:     hex.EncodeToString(r.Secret),
		BlobTxHash: r.BlobTxHash.String(),
		BlobIndex:  r.BlobIndex,
		BlobCount:  r.BlobCount,
	}
	if err := p.transport.Do(ctx, http.MethodPost, p.baseURL+"/v1/proof_tx", req, &out); err != nil {
		return ledger.ProofTransaction{}, err
	}
	return out.ProofTransaction(), nil
}

// RegisterContract fetches the registration transaction and sends it to the
// node. The node accepts a repeated registration, so calling it twice is
// harmless.
func (p *RemoteProver) RegisterContract(ctx context.Context, svc submitter.NodeService) error {
	var wire node.WireBlobTransaction
	if err := p.transport.Do(ctx, http.MethodGet, p.baseURL+"/v1/register_contract", nil, &wire); err != nil {
		return err
	}
	tx, err := wire.BlobTransaction()
	if err != nil {
		return err
	}
	_, err = svc.SendBlobTx(ctx, tx)
	return err
}
