package submitter_test

import (
	"context"

	"github.com/goliatone/go-ledger-auth/ledger"
	"github.com/goliatone/go-ledger-auth/submitter"
	"github.com/stretchr/testify/mock"
)

// MockNode implements submitter.NodeService
type MockNode struct {
	mock.Mock
}

func (m *MockNode) SendBlobTx(ctx context.Context, tx ledger.BlobTransaction) (ledger.TxHash, error) {
	args := m.Called(ctx, tx)
	return args.Get(0).(ledger.TxHash), args.Error(1)
}

func (m *MockNode) SendProofTx(ctx context.Context, tx ledger.ProofTransaction) (ledger.TxHash, error) {
	args := m.Called(ctx, tx)
	return args.Get(0).(ledger.TxHash), args.Error(1)
}

// MockProver implements submitter.Prover
type MockProver struct {
	mock.Mock
}

func (m *MockProver) BuildSecretBlob(ctx context.Context, identity ledger.Identity, secret []byte) (ledger.Blob, error) {
	args := m.Called(ctx, identity, secret)
	return args.Get(0).(ledger.Blob), args.Error(1)
}

func (m *MockProver) BuildProofTransaction(ctx context.Context, req submitter.ProofRequest) (ledger.ProofTransaction, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(ledger.ProofTransaction), args.Error(1)
}

func (m *MockProver) RegisterContract(ctx context.Context, node submitter.NodeService) error {
	args := m.Called(ctx, node)
	return args.Error(0)
}
