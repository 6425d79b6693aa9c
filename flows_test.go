package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	auth "github.com/goliatone/go-ledger-auth"
	"github.com/goliatone/go-ledger-auth/codec"
	"github.com/goliatone/go-ledger-auth/ledger"
	"github.com/goliatone/go-ledger-auth/sessionkey"
	"github.com/goliatone/go-ledger-auth/submitter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func captureBlobTx(call *mock.Call) *ledger.BlobTransaction {
	var captured ledger.BlobTransaction
	call.Run(func(args mock.Arguments) {
		captured = args.Get(1).(ledger.BlobTransaction)
	})
	return &captured
}

func decodeAction(t *testing.T, blob ledger.Blob) codec.WalletAction {
	t.Helper()
	action, err := codec.DecodeAction(blob.Data)
	require.NoError(t, err)
	return action
}

func TestLoginReturnsWallet(t *testing.T) {
	h := newHarness(t)
	tx := captureBlobTx(h.expectProvedTx("login-hash").Once())
	h.events.push("Identity verified for bob@wallet")

	wallet, err := h.machine.Login(context.Background(), "bob", "password123")

	require.NoError(t, err)
	assert.Equal(t, "bob", wallet.Username)
	assert.Equal(t, "bob@wallet", wallet.Address)
	assert.Equal(t, auth.StageSettled, h.machine.Stage())
	assert.Equal(t, wallet, h.machine.Wallet())

	require.Len(t, tx.Blobs, 2)
	assert.Equal(t, ledger.Identity("bob@wallet"), tx.Identity)
	assert.Equal(t, "check_secret", tx.Blobs[0].ContractName)
	assert.Equal(t, ledger.WalletContract, tx.Blobs[1].ContractName)
	verify, ok := decodeAction(t, tx.Blobs[1]).(codec.VerifyIdentity)
	require.True(t, ok)
	assert.Equal(t, "bob@wallet", verify.Account)
	assert.Equal(t, uint64(testNow.UnixMilli()), verify.Nonce.Uint64())

	h.prover.AssertCalled(t, "BuildSecretBlob", mock.Anything, ledger.Identity("bob@wallet"), []byte("password123"))
	h.prover.AssertCalled(t, "BuildProofTransaction", mock.Anything, mock.MatchedBy(func(req submitter.ProofRequest) bool {
		return req.BlobTxHash == "login-hash" && req.BlobIndex == 0 && req.BlobCount == 2
	}))
}

func TestLoginUsesIndexerSalt(t *testing.T) {
	indexer := &MockIndexer{}
	indexer.On("AccountInfo", mock.Anything, ledger.Identity("bob@wallet")).
		Return(auth.AccountInfo{Salt: "a1b2", Nonce: 3}, nil)
	h := newHarness(t, auth.WithAccountIndexer(indexer))
	h.expectProvedTx("login-hash").Once()
	h.events.push("identity verified")

	wallet, err := h.machine.Login(context.Background(), "bob", "password123")

	require.NoError(t, err)
	assert.Equal(t, "a1b2", wallet.Salt)
	h.prover.AssertCalled(t, "BuildSecretBlob", mock.Anything, mock.Anything, []byte("password123a1b2"))
}

func TestLoginIndexerFailureIsNetworkError(t *testing.T) {
	indexer := &MockIndexer{}
	indexer.On("AccountInfo", mock.Anything, mock.Anything).
		Return(auth.AccountInfo{}, errors.New("connection refused"))
	h := newHarness(t, auth.WithAccountIndexer(indexer))

	_, err := h.machine.Login(context.Background(), "bob", "password123")

	require.Error(t, err)
	assert.Equal(t, auth.KindNetwork, auth.KindOf(err))
	assert.Equal(t, auth.StageError, h.machine.Stage())
	h.node.AssertNotCalled(t, "SendBlobTx", mock.Anything, mock.Anything)
}

func TestLoginEmptyFieldsFailValidation(t *testing.T) {
	h := newHarness(t)

	_, err := h.machine.Login(context.Background(), "bob", "")

	require.Error(t, err)
	assert.True(t, auth.IsValidationError(err))
	assert.Equal(t, "Please fill in all fields", auth.ErrorMessage(err))
	assert.Equal(t, []auth.LifecycleEventType{auth.LifecycleSubmitted, auth.LifecycleFailed}, h.sink.types())
}

func TestLoginSettlementFailureSurfacesEventText(t *testing.T) {
	h := newHarness(t)
	h.expectProvedTx("login-hash").Once()
	h.events.push("Error: insufficient funds")

	provider := auth.NewWalletProvider(h.machine)
	result := provider.Login(context.Background(), "bob", "password123")

	assert.False(t, result.Success)
	assert.Equal(t, "Error: insufficient funds", result.Error)
	assert.Equal(t, string(auth.KindSettlementFailure), result.Kind)
	assert.Nil(t, result.Wallet)
	assert.Equal(t, auth.StageError, h.machine.Stage())
	assert.Nil(t, h.machine.Wallet())
}

func TestLoginSettlementTimeout(t *testing.T) {
	h := newHarness(t, auth.WithTimeouts(auth.Timeouts{Login: 20 * time.Millisecond}))
	h.expectProvedTx("login-hash").Once()

	_, err := h.machine.Login(context.Background(), "bob", "password123")

	require.Error(t, err)
	assert.Equal(t, auth.KindSettlementTimeout, auth.KindOf(err))
	assert.Equal(t, auth.StageError, h.machine.Stage())
}

func TestLoginBlobFailureIsNetworkError(t *testing.T) {
	h := newHarness(t)
	h.prover.On("RegisterContract", mock.Anything, mock.Anything).Return(nil)
	h.prover.On("BuildSecretBlob", mock.Anything, mock.Anything, mock.Anything).
		Return(ledger.Blob{ContractName: "check_secret"}, nil)
	h.node.On("SendBlobTx", mock.Anything, mock.Anything).
		Return(ledger.TxHash(""), errors.New("503 service unavailable"))

	_, err := h.machine.Login(context.Background(), "bob", "password123")

	require.Error(t, err)
	assert.Equal(t, auth.KindNetwork, auth.KindOf(err))
	assert.Equal(t, auth.StageError, h.machine.Stage())
	h.prover.AssertNotCalled(t, "BuildProofTransaction", mock.Anything, mock.Anything)
}

func TestRegisterShortPasswordMakesNoNetworkCalls(t *testing.T) {
	h := newHarness(t)

	_, err := h.machine.Register(context.Background(), auth.PasswordRegistration{
		Username:        "bob",
		Password:        "short",
		ConfirmPassword: "short",
	})

	require.Error(t, err)
	assert.Equal(t, auth.KindValidation, auth.KindOf(err))
	assert.Equal(t, "Password must be at least 8 characters long", auth.ErrorMessage(err))
	assert.Equal(t, auth.StageError, h.machine.Stage())
	h.prover.AssertNotCalled(t, "BuildSecretBlob", mock.Anything, mock.Anything, mock.Anything)
	h.prover.AssertNotCalled(t, "RegisterContract", mock.Anything, mock.Anything)
	h.node.AssertNotCalled(t, "SendBlobTx", mock.Anything, mock.Anything)
	assert.Zero(t, h.events.dials)
}

func TestRegisterPasswordMismatch(t *testing.T) {
	h := newHarness(t)

	_, err := h.machine.Register(context.Background(), auth.PasswordRegistration{
		Username:        "bob",
		Password:        "password123",
		ConfirmPassword: "password124",
	})

	require.Error(t, err)
	assert.Equal(t, "Passwords do not match", auth.ErrorMessage(err))
}

func TestRegisterRejectsUsernameWithAt(t *testing.T) {
	h := newHarness(t)

	_, err := h.machine.Register(context.Background(), auth.PasswordRegistration{
		Username:        "bob@evil",
		Password:        "password123",
		ConfirmPassword: "password123",
	})

	require.Error(t, err)
	assert.Equal(t, auth.KindValidation, auth.KindOf(err))
	h.node.AssertNotCalled(t, "SendBlobTx", mock.Anything, mock.Anything)
}

func TestRegisterCommitsPasswordHash(t *testing.T) {
	h := newHarness(t)
	tx := captureBlobTx(h.expectProvedTx("register-hash").Once())
	h.events.push("Successfully registered identity for bob@wallet")

	wallet, err := h.machine.Register(context.Background(), auth.PasswordRegistration{
		Username:        "bob",
		Password:        "password123",
		ConfirmPassword: "password123",
	})

	require.NoError(t, err)
	assert.Equal(t, "bob@wallet", wallet.Address)
	require.Len(t, wallet.Salt, 32)

	require.Len(t, tx.Blobs, 2)
	register, ok := decodeAction(t, tx.Blobs[1]).(codec.RegisterIdentity)
	require.True(t, ok)
	secret := []byte("password123" + wallet.Salt)
	assert.Equal(t, codec.PasswordAuth{Hash: auth.PasswordHash("bob@wallet", secret)}, register.AuthMethod)
	h.prover.AssertCalled(t, "BuildSecretBlob", mock.Anything, mock.Anything, secret)
}

func TestRegisterSettlementTimeout(t *testing.T) {
	h := newHarness(t, auth.WithTimeouts(auth.Timeouts{Register: 20 * time.Millisecond}))
	h.expectProvedTx("register-hash").Once()

	wallet, err := h.machine.Register(context.Background(), auth.PasswordRegistration{
		Username:        "bob",
		Password:        "password123",
		ConfirmPassword: "password123",
	})

	require.Error(t, err)
	assert.Equal(t, auth.KindSettlementTimeout, auth.KindOf(err))
	assert.Nil(t, wallet)
	assert.Equal(t, auth.StageError, h.machine.Stage())
	assert.Nil(t, h.machine.Wallet())
}

func TestRegisterProofSubmissionFailureIsNetworkError(t *testing.T) {
	h := newHarness(t)
	h.prover.On("RegisterContract", mock.Anything, mock.Anything).Return(nil).Maybe()
	h.prover.On("BuildSecretBlob", mock.Anything, mock.Anything, mock.Anything).
		Return(ledger.Blob{ContractName: "check_secret", Data: []byte{0x01}}, nil)
	h.prover.On("BuildProofTransaction", mock.Anything, mock.Anything).
		Return(ledger.ProofTransaction{ContractName: "check_secret", Proof: []byte{0x02}}, nil)
	h.node.On("SendBlobTx", mock.Anything, mock.Anything).Return(ledger.TxHash("register-hash"), nil).Once()
	h.node.On("SendProofTx", mock.Anything, mock.Anything).
		Return(ledger.TxHash(""), errors.New("proof rejected by node"))
	h.events.push("Successfully registered identity for bob@wallet")

	wallet, err := h.machine.Register(context.Background(), auth.PasswordRegistration{
		Username:        "bob",
		Password:        "password123",
		ConfirmPassword: "password123",
	})

	require.Error(t, err)
	assert.Equal(t, auth.KindNetwork, auth.KindOf(err))
	assert.Nil(t, wallet)
	assert.Equal(t, auth.StageError, h.machine.Stage())
	assert.Nil(t, h.machine.Wallet())
	h.node.AssertNumberOfCalls(t, "SendProofTx", 1)
	assert.Zero(t, h.events.dials)
}

func TestRegisterWithInviteAndSessionKey(t *testing.T) {
	invites := &MockInvites{}
	inviteBlob := ledger.Blob{ContractName: "invite", Data: []byte("signed")}
	invites.On("ConsumeInvite", mock.Anything, "WELCOME", ledger.Identity("bob@wallet")).Return(inviteBlob, nil)

	h := newHarness(t, auth.WithInviteService(invites))
	tx := captureBlobTx(h.expectProvedTx("register-hash").Once())
	h.events.push("Successfully registered identity for bob@wallet")

	wallet, err := h.machine.Register(context.Background(), auth.PasswordRegistration{
		Username:        "bob",
		Password:        "password123",
		ConfirmPassword: "password123",
		InviteCode:      "WELCOME",
	}, auth.WithNewSessionKey(time.Hour, "transfer"))

	require.NoError(t, err)
	require.NotNil(t, wallet.SessionKey)
	assert.Equal(t, testNow.Add(time.Hour).UnixMilli(), wallet.SessionKey.Expiration)
	assert.Equal(t, []string{"transfer"}, wallet.SessionKey.Whitelist)

	require.Len(t, tx.Blobs, 4)
	assert.Equal(t, inviteBlob, tx.Blobs[2])
	add, ok := decodeAction(t, tx.Blobs[3]).(codec.AddSessionKey)
	require.True(t, ok)
	assert.Equal(t, wallet.SessionKey.PublicKey, add.Key)
	assert.Equal(t, []string{"transfer"}, add.Whitelist)
	invites.AssertExpectations(t)
}

func TestRegisterRequiresInviteCodeWhenConfigured(t *testing.T) {
	h := newHarness(t, auth.WithInviteService(&MockInvites{}))

	_, err := h.machine.Register(context.Background(), auth.PasswordRegistration{
		Username:        "bob",
		Password:        "password123",
		ConfirmPassword: "password123",
	})

	require.Error(t, err)
	assert.Equal(t, auth.KindValidation, auth.KindOf(err))
	h.node.AssertNotCalled(t, "SendBlobTx", mock.Anything, mock.Anything)
}

func TestAuthenticateDispatchesCredentials(t *testing.T) {
	h := newHarness(t)
	h.expectProvedTx("login-hash").Once()
	h.events.push("identity verified")

	wallet, err := h.machine.Authenticate(context.Background(), auth.PasswordLogin{Username: "bob", Password: "password123"})

	require.NoError(t, err)
	assert.Equal(t, "bob", wallet.Username)
	assert.Equal(t, auth.ProviderPassword, auth.PasswordLogin{}.Provider())
}

func TestAddSessionKeyRequiresConnectedWallet(t *testing.T) {
	h := newHarness(t)

	_, err := h.machine.AddSessionKey(context.Background(), "password123", time.Hour)

	require.Error(t, err)
	assert.Equal(t, auth.KindValidation, auth.KindOf(err))
	assert.Equal(t, auth.StageError, h.machine.Stage())
}

func TestAddSessionKeyAfterLogin(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	tx := captureBlobTx(h.expectProvedTx("add-key-hash").Once())
	h.events.push("Session key added for bob@wallet")

	wallet, err := h.machine.AddSessionKey(context.Background(), "password123", 72*time.Hour)

	require.NoError(t, err)
	require.NotNil(t, wallet.SessionKey)
	assert.NotEmpty(t, wallet.SessionKey.PrivateKey)
	assert.Equal(t, testNow.Add(72*time.Hour).UnixMilli(), wallet.SessionKey.Expiration)
	assert.Equal(t, auth.StageSettled, h.machine.Stage())

	require.Len(t, tx.Blobs, 2)
	add, ok := decodeAction(t, tx.Blobs[1]).(codec.AddSessionKey)
	require.True(t, ok)
	assert.Equal(t, wallet.SessionKey.PublicKey, add.Key)
	assert.Equal(t, uint64(wallet.SessionKey.Expiration), add.Expiration.Uint64())
}

func TestRemoveSessionKeyClearsMatchingKey(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	h.expectProvedTx("add-key-hash").Once()
	h.events.push("session key added")
	withKey, err := h.machine.AddSessionKey(context.Background(), "password123", time.Hour)
	require.NoError(t, err)

	tx := captureBlobTx(h.expectProvedTx("remove-key-hash").Once())
	h.events.push("Session key removed")
	wallet, err := h.machine.RemoveSessionKey(context.Background(), "password123", withKey.SessionKey.PublicKey)

	require.NoError(t, err)
	assert.Nil(t, wallet.SessionKey)
	remove, ok := decodeAction(t, tx.Blobs[1]).(codec.RemoveSessionKey)
	require.True(t, ok)
	assert.Equal(t, withKey.SessionKey.PublicKey, remove.Key)
}

func TestSendWithSessionKeySettlesOnIntent(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	keys := sessionkey.NewManager()
	key, err := keys.GenerateSessionKey(testNow.Add(time.Hour), nil)
	require.NoError(t, err)

	extra := ledger.Blob{ContractName: "token", Data: []byte("transfer")}
	call := h.node.On("SendBlobTx", mock.Anything, mock.Anything).Return(ledger.TxHash("sk-hash"), nil).Once()
	tx := captureBlobTx(call)

	hash, err := h.machine.SendWithSessionKey(context.Background(), key, extra)

	require.NoError(t, err)
	assert.Equal(t, ledger.TxHash("sk-hash"), hash)
	assert.Equal(t, auth.StageSettled, h.machine.Stage())
	require.Len(t, tx.Blobs, 3)
	assert.Equal(t, ledger.Secp256k1Contract, tx.Blobs[0].ContractName)
	use, ok := decodeAction(t, tx.Blobs[1]).(codec.UseSessionKey)
	require.True(t, ok)
	assert.Equal(t, key.PublicKey, use.Key)
	assert.Equal(t, extra, tx.Blobs[2])
	h.node.AssertNumberOfCalls(t, "SendProofTx", 1)
}

func TestSendWithSessionKeyRequiresPrivateKey(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	_, err := h.machine.SendWithSessionKey(context.Background(), sessionkey.SessionKey{PublicKey: "02ab"})

	require.Error(t, err)
	assert.Equal(t, auth.KindValidation, auth.KindOf(err))
	assert.Equal(t, auth.StageError, h.machine.Stage())
	assert.Nil(t, h.machine.Wallet())
}
