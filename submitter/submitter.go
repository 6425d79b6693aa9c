// Package submitter sends the two transactions of an authenticated action:
// the blob transaction carrying the intent, then the proof transaction built
// by the external prover for it.
package submitter

import (
	"context"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-ledger-auth/ledger"
)

// NodeService is the ledger node RPC surface. Neither call retries.
type NodeService interface {
	SendBlobTx(ctx context.Context, tx ledger.BlobTransaction) (ledger.TxHash, error)
	SendProofTx(ctx context.Context, tx ledger.ProofTransaction) (ledger.TxHash, error)
}

// ProofRequest identifies the secret-check blob a proof must cover.
type ProofRequest struct {
	Identity   ledger.Identity
	Secret     []byte
	BlobTxHash ledger.TxHash
	BlobIndex  int
	BlobCount  int
}

// Prover is the external secret-verification collaborator.
type Prover interface {
	BuildSecretBlob(ctx context.Context, identity ledger.Identity, secret []byte) (ledger.Blob, error)
	BuildProofTransaction(ctx context.Context, req ProofRequest) (ledger.ProofTransaction, error)
	// RegisterContract is idempotent and must run before the first use.
	RegisterContract(ctx context.Context, node NodeService) error
}

// Result holds the hashes of both submitted transactions.
type Result struct {
	BlobTxHash  ledger.TxHash
	ProofTxHash ledger.TxHash
}

// SubmitOption customizes a single submission.
type SubmitOption func(*submitOptions)

type submitOptions struct {
	onIntent []func(ledger.TxHash)
	onProof  []func(ledger.TxHash)
}

// WithIntentHook runs after the blob transaction is accepted and before the
// proof is requested.
func WithIntentHook(fn func(ledger.TxHash)) SubmitOption {
	return func(o *submitOptions) {
		if fn != nil {
			o.onIntent = append(o.onIntent, fn)
		}
	}
}

// WithProofHook runs after the proof transaction is accepted.
func WithProofHook(fn func(ledger.TxHash)) SubmitOption {
	return func(o *submitOptions) {
		if fn != nil {
			o.onProof = append(o.onProof, fn)
		}
	}
}

// Submitter holds no transaction state; it only remembers whether the
// prover contract was registered.
type Submitter struct {
	node   NodeService
	prover Prover

	registerMu sync.Mutex
	registered bool
}

// New returns a Submitter for node and prover.
func New(node NodeService, prover Prover) *Submitter {
	return &Submitter{
		node:   node,
		prover: prover,
	}
}

// SecretBlob builds the secret-check blob, registering the prover contract
// on first use.
func (s *Submitter) SecretBlob(ctx context.Context, identity ledger.Identity, secret []byte) (ledger.Blob, error) {
	if s.prover == nil {
		return ledger.Blob{}, goerrors.New("prover is required", goerrors.CategoryInternal)
	}
	if err := s.ensureRegistered(ctx); err != nil {
		return ledger.Blob{}, err
	}

	blob, err := s.prover.BuildSecretBlob(ctx, identity, secret)
	if err != nil {
		return ledger.Blob{}, ledger.NetworkError(err, "failed to build secret blob", map[string]any{
			"identity": identity.String(),
		})
	}
	return blob, nil
}

// SubmitAuthTransaction sends the intent, asks the prover for the proof of
// the blob at index 0 and sends it. Any failure aborts the operation; a
// transaction already sent cannot be withdrawn.
func (s *Submitter) SubmitAuthTransaction(ctx context.Context, identity ledger.Identity, blobs []ledger.Blob, secret []byte, opts ...SubmitOption) (Result, error) {
	options := &submitOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}

	if s.prover == nil {
		return Result{}, goerrors.New("prover is required", goerrors.CategoryInternal)
	}
	if err := s.ensureRegistered(ctx); err != nil {
		return Result{}, err
	}

	blobTxHash, err := s.SubmitBlobTransaction(ctx, identity, blobs)
	if err != nil {
		return Result{}, err
	}
	for _, fn := range options.onIntent {
		fn(blobTxHash)
	}

	proofTx, err := s.prover.BuildProofTransaction(ctx, ProofRequest{
		Identity:   identity,
		Secret:     secret,
		BlobTxHash: blobTxHash,
		BlobIndex:  0,
		BlobCount:  len(blobs),
	})
	if err != nil {
		return Result{BlobTxHash: blobTxHash}, ledger.NetworkError(err, "failed to build proof transaction", map[string]any{
			"identity":     identity.String(),
			"blob_tx_hash": blobTxHash.String(),
		})
	}

	proofTxHash, err := s.node.SendProofTx(ctx, proofTx)
	if err != nil {
		return Result{BlobTxHash: blobTxHash}, ledger.NetworkError(err, "failed to send proof transaction", map[string]any{
			"identity":     identity.String(),
			"blob_tx_hash": blobTxHash.String(),
		})
	}
	for _, fn := range options.onProof {
		fn(proofTxHash)
	}

	return Result{BlobTxHash: blobTxHash, ProofTxHash: proofTxHash}, nil
}

// SubmitBlobTransaction sends the intent only. Session key transactions use
// it directly since the secp256k1 blob is checked natively.
func (s *Submitter) SubmitBlobTransaction(ctx context.Context, identity ledger.Identity, blobs []ledger.Blob) (ledger.TxHash, error) {
	if len(blobs) == 0 {
		return "", goerrors.New("blob transaction requires at least one blob", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}

	tx := ledger.BlobTransaction{
		Identity: identity,
		Blobs:    append([]ledger.Blob(nil), blobs...),
	}

	hash, err := s.node.SendBlobTx(ctx, tx)
	if err != nil {
		return "", ledger.NetworkError(err, "failed to send blob transaction", map[string]any{
			"identity":   identity.String(),
			"blob_count": len(blobs),
		})
	}
	return hash, nil
}

func (s *Submitter) ensureRegistered(ctx context.Context) error {
	s.registerMu.Lock()
	defer s.registerMu.Unlock()

	if s.registered {
		return nil
	}
	if err := s.prover.RegisterContract(ctx, s.node); err != nil {
		return ledger.NetworkError(err, "failed to register prover contract", nil)
	}
	s.registered = true
	return nil
}
