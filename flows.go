package auth

import (
	"context"
	"encoding/hex"
	"io"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/holiman/uint256"

	"github.com/goliatone/go-ledger-auth/codec"
	"github.com/goliatone/go-ledger-auth/ledger"
	"github.com/goliatone/go-ledger-auth/sessionkey"
	"github.com/goliatone/go-ledger-auth/settlement"
	"github.com/goliatone/go-ledger-auth/submitter"
)

const saltSize = 16

// FlowOption customizes a single login or registration.
type FlowOption func(*flowOptions)

type flowOptions struct {
	sessionKeyTTL time.Duration
	whitelist     []string
}

// WithNewSessionKey registers a fresh session key in the same transaction.
// The key expires ttl after the invocation starts.
func WithNewSessionKey(ttl time.Duration, whitelist ...string) FlowOption {
	return func(o *flowOptions) {
		o.sessionKeyTTL = ttl
		o.whitelist = append([]string(nil), whitelist...)
	}
}

func buildFlowOptions(opts ...FlowOption) flowOptions {
	var options flowOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return options
}

// Authenticate dispatches on the credentials type.
func (m *Machine) Authenticate(ctx context.Context, creds Credentials, opts ...FlowOption) (*Wallet, error) {
	switch c := creds.(type) {
	case PasswordLogin:
		return m.Login(ctx, c.Username, c.Password, opts...)
	case *PasswordLogin:
		return m.Login(ctx, c.Username, c.Password, opts...)
	case PasswordRegistration:
		return m.Register(ctx, c, opts...)
	case *PasswordRegistration:
		return m.Register(ctx, *c, opts...)
	default:
		return nil, validationError("unsupported credentials", map[string]any{"credentials": creds})
	}
}

// Login proves knowledge of the password for an existing account and waits
// for the ledger to confirm the identity.
func (m *Machine) Login(ctx context.Context, username, password string, opts ...FlowOption) (*Wallet, error) {
	inv, err := m.begin(ctx, OperationLogin, username)
	if err != nil {
		return nil, err
	}

	if err := (PasswordLogin{Username: username, Password: password}).Validate(); err != nil {
		return nil, m.fail(ctx, inv, err)
	}
	identity, err := ledger.NewIdentity(username, m.config)
	if err != nil {
		return nil, m.fail(ctx, inv, err)
	}
	inv.identity = identity

	salt, err := m.lookupSalt(ctx, identity)
	if err != nil {
		return nil, m.fail(ctx, inv, err)
	}
	secret := deriveSecret(password, salt)

	secretBlob, err := m.submitter.SecretBlob(ctx, identity, secret)
	if err != nil {
		return nil, m.fail(ctx, inv, err)
	}
	verifyBlob, err := codec.NewActionBlob(identity.ContractName(), codec.VerifyIdentity{
		Account: identity.String(),
		Nonce:   *uint256.NewInt(m.keys.NextNonce(identity)),
	})
	if err != nil {
		return nil, m.fail(ctx, inv, err)
	}

	wallet := newWallet(identity, salt)
	blobs, err := m.withSessionKey(identity, []ledger.Blob{secretBlob, verifyBlob}, wallet, buildFlowOptions(opts...))
	if err != nil {
		return nil, m.fail(ctx, inv, err)
	}

	return m.prove(ctx, inv, blobs, secret, wallet, settlement.LoginMatcher(), m.timeouts.Login)
}

// Register creates the account on-chain. Validation runs before any
// network call.
func (m *Machine) Register(ctx context.Context, creds PasswordRegistration, opts ...FlowOption) (*Wallet, error) {
	inv, err := m.begin(ctx, OperationRegister, creds.Username)
	if err != nil {
		return nil, err
	}

	if err := creds.Validate(); err != nil {
		return nil, m.fail(ctx, inv, err)
	}
	if m.invites != nil && creds.InviteCode == "" {
		return nil, m.fail(ctx, inv, validationError(msgInviteRequired, nil))
	}
	identity, err := ledger.NewIdentity(creds.Username, m.config)
	if err != nil {
		return nil, m.fail(ctx, inv, err)
	}
	inv.identity = identity

	salt, err := m.newSalt()
	if err != nil {
		return nil, m.fail(ctx, inv, err)
	}
	secret := deriveSecret(creds.Password, salt)

	secretBlob, err := m.submitter.SecretBlob(ctx, identity, secret)
	if err != nil {
		return nil, m.fail(ctx, inv, err)
	}
	registerBlob, err := codec.NewActionBlob(identity.ContractName(), codec.RegisterIdentity{
		Account:    identity.String(),
		Nonce:      *uint256.NewInt(m.keys.NextNonce(identity)),
		AuthMethod: codec.PasswordAuth{Hash: PasswordHash(identity, secret)},
	})
	if err != nil {
		return nil, m.fail(ctx, inv, err)
	}

	blobs := []ledger.Blob{secretBlob, registerBlob}
	if m.invites != nil {
		inviteBlob, err := m.invites.ConsumeInvite(ctx, creds.InviteCode, identity)
		if err != nil {
			return nil, m.fail(ctx, inv, ledger.NetworkError(err, "failed to consume invite", map[string]any{
				"identity": identity.String(),
			}))
		}
		blobs = append(blobs, inviteBlob)
	}

	wallet := newWallet(identity, salt)
	blobs, err = m.withSessionKey(identity, blobs, wallet, buildFlowOptions(opts...))
	if err != nil {
		return nil, m.fail(ctx, inv, err)
	}

	return m.prove(ctx, inv, blobs, secret, wallet, settlement.RegisterMatcher(), m.timeouts.Register)
}

// AddSessionKey registers a new session key for the connected wallet.
func (m *Machine) AddSessionKey(ctx context.Context, password string, ttl time.Duration, whitelist ...string) (*Wallet, error) {
	inv, identity, err := m.beginConnected(ctx, OperationAddSessionKey, password)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		return nil, m.fail(ctx, inv, validationError("session key ttl must be positive", map[string]any{"ttl": ttl}))
	}

	secret, secretBlob, err := m.connectedSecret(ctx, inv, identity, password)
	if err != nil {
		return nil, m.fail(ctx, inv, err)
	}

	wallet := inv.base.Clone()
	blobs, err := m.withSessionKey(identity, []ledger.Blob{secretBlob}, wallet, flowOptions{
		sessionKeyTTL: ttl,
		whitelist:     whitelist,
	})
	if err != nil {
		return nil, m.fail(ctx, inv, err)
	}

	return m.prove(ctx, inv, blobs, secret, wallet, settlement.SessionKeyAddedMatcher(), m.timeouts.SessionKey)
}

// RemoveSessionKey revokes publicKey for the connected wallet.
func (m *Machine) RemoveSessionKey(ctx context.Context, password, publicKey string) (*Wallet, error) {
	inv, identity, err := m.beginConnected(ctx, OperationRemoveSessionKey, password)
	if err != nil {
		return nil, err
	}
	if publicKey == "" {
		return nil, m.fail(ctx, inv, validationError(msgFillAllFields, nil))
	}

	secret, secretBlob, err := m.connectedSecret(ctx, inv, identity, password)
	if err != nil {
		return nil, m.fail(ctx, inv, err)
	}
	removeBlob, err := codec.NewActionBlob(identity.ContractName(), codec.RemoveSessionKey{
		Account: identity.String(),
		Key:     publicKey,
	})
	if err != nil {
		return nil, m.fail(ctx, inv, err)
	}

	wallet := inv.base.Clone()
	if wallet.SessionKey != nil && wallet.SessionKey.PublicKey == publicKey {
		wallet.SessionKey = nil
	}

	return m.prove(ctx, inv, []ledger.Blob{secretBlob, removeBlob}, secret, wallet,
		settlement.SessionKeyRemovedMatcher(), m.timeouts.SessionKey)
}

// SendWithSessionKey submits blobs authorized by key on behalf of the
// connected wallet. The operation settles once the node accepts the intent;
// key expiration is the caller's concern.
func (m *Machine) SendWithSessionKey(ctx context.Context, key sessionkey.SessionKey, blobs ...ledger.Blob) (ledger.TxHash, error) {
	inv, err := m.begin(ctx, OperationSendWithSessionKey, "")
	if err != nil {
		return "", err
	}
	if inv.base == nil {
		return "", m.fail(ctx, inv, walletRequiredError(inv.op))
	}
	inv.username = inv.base.Username
	identity, err := inv.base.Identity()
	if err != nil {
		return "", m.fail(ctx, inv, err)
	}
	inv.identity = identity
	if key.PrivateKey == "" {
		return "", m.fail(ctx, inv, validationError("session key private key is required", nil))
	}

	keyBlobs, err := m.keys.BuildUseSessionKeyBlobs(identity, key.PrivateKey)
	if err != nil {
		return "", m.fail(ctx, inv, err)
	}

	hash, err := m.submitter.SubmitBlobTransaction(ctx, identity, append(keyBlobs, blobs...))
	if err != nil {
		return "", m.fail(ctx, inv, err)
	}
	m.markBlobSent(ctx, inv, inv.base, hash)
	if _, err := m.settle(ctx, inv, inv.base); err != nil {
		return "", err
	}
	return hash, nil
}

func (m *Machine) beginConnected(ctx context.Context, op Operation, password string) (*invocation, ledger.Identity, error) {
	inv, err := m.begin(ctx, op, "")
	if err != nil {
		return nil, "", err
	}
	if inv.base == nil {
		return nil, "", m.fail(ctx, inv, walletRequiredError(op))
	}
	inv.username = inv.base.Username
	if err := validateFilled(password); err != nil {
		return nil, "", m.fail(ctx, inv, wrapValidation(err))
	}
	identity, err := inv.base.Identity()
	if err != nil {
		return nil, "", m.fail(ctx, inv, err)
	}
	inv.identity = identity
	return inv, identity, nil
}

func (m *Machine) connectedSecret(ctx context.Context, inv *invocation, identity ledger.Identity, password string) ([]byte, ledger.Blob, error) {
	salt := inv.base.Salt
	if salt == "" {
		var err error
		if salt, err = m.lookupSalt(ctx, identity); err != nil {
			return nil, ledger.Blob{}, err
		}
	}
	secret := deriveSecret(password, salt)
	blob, err := m.submitter.SecretBlob(ctx, identity, secret)
	if err != nil {
		return nil, ledger.Blob{}, err
	}
	return secret, blob, nil
}

// withSessionKey appends an AddSessionKey blob when requested and stores the
// generated key on wallet.
func (m *Machine) withSessionKey(identity ledger.Identity, blobs []ledger.Blob, wallet *Wallet, options flowOptions) ([]ledger.Blob, error) {
	if options.sessionKeyTTL <= 0 {
		return blobs, nil
	}
	key, err := m.keys.GenerateSessionKey(m.now().Add(options.sessionKeyTTL), options.whitelist)
	if err != nil {
		return nil, err
	}
	blob, err := codec.NewActionBlob(identity.ContractName(), codec.AddSessionKey{
		Account:    identity.String(),
		Key:        key.PublicKey,
		Expiration: *uint256.NewInt(uint64(key.Expiration)),
		Whitelist:  key.Whitelist,
	})
	if err != nil {
		return nil, err
	}
	wallet.SessionKey = &key
	return append(blobs, blob), nil
}

// prove runs blob tx, proof tx, then waits for the settlement event.
func (m *Machine) prove(ctx context.Context, inv *invocation, blobs []ledger.Blob, secret []byte, wallet *Wallet, matcher settlement.Matcher, timeout time.Duration) (*Wallet, error) {
	identity := inv.identity
	if m.watcher == nil {
		return nil, m.fail(ctx, inv, goerrors.New("settlement watcher is required", goerrors.CategoryInternal).
			WithTextCode(ledger.TextCodeConfigNotInitialized))
	}

	_, err := m.submitter.SubmitAuthTransaction(ctx, identity, blobs, secret,
		submitter.WithIntentHook(func(hash ledger.TxHash) {
			m.markBlobSent(ctx, inv, wallet, hash)
		}),
		submitter.WithProofHook(func(hash ledger.TxHash) {
			m.markProofSent(ctx, inv, hash)
		}),
	)
	if err != nil {
		return nil, m.fail(ctx, inv, err)
	}

	if _, err := m.watcher.AwaitOutcome(ctx, identity, matcher, timeout); err != nil {
		return nil, m.fail(ctx, inv, err)
	}

	return m.settle(ctx, inv, wallet)
}

func (m *Machine) lookupSalt(ctx context.Context, identity ledger.Identity) (string, error) {
	if m.indexer == nil {
		return "", nil
	}
	info, err := m.indexer.AccountInfo(ctx, identity)
	if err != nil {
		return "", ledger.NetworkError(err, "failed to fetch account info", map[string]any{
			"identity": identity.String(),
		})
	}
	return info.Salt, nil
}

func (m *Machine) newSalt() (string, error) {
	buf := make([]byte, saltSize)
	if _, err := io.ReadFull(m.rand, buf); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate salt").
			WithTextCode(sessionkey.TextCodeKeyGeneration).
			WithCode(goerrors.CodeInternal)
	}
	return hex.EncodeToString(buf), nil
}
