package codec

import (
	"github.com/goliatone/go-ledger-auth/ledger"
	"github.com/holiman/uint256"
)

// ActionTag is the enum discriminant written before every wallet action.
type ActionTag uint8

const (
	TagRegisterIdentity ActionTag = iota
	TagVerifyIdentity
	TagAddSessionKey
	TagRemoveSessionKey
	TagUseSessionKey
)

func (t ActionTag) String() string {
	switch t {
	case TagRegisterIdentity:
		return "RegisterIdentity"
	case TagVerifyIdentity:
		return "VerifyIdentity"
	case TagAddSessionKey:
		return "AddSessionKey"
	case TagRemoveSessionKey:
		return "RemoveSessionKey"
	case TagUseSessionKey:
		return "UseSessionKey"
	default:
		return "Unknown"
	}
}

// WalletAction is the closed set of identity contract actions.
type WalletAction interface {
	Tag() ActionTag
	encode(w *writer) error
}

// AuthMethod is the closed set of registration auth methods.
type AuthMethod interface {
	authMethodTag() uint8
	encode(w *writer) error
}

const authMethodPassword uint8 = 0

// PasswordAuth registers a password-derived hash.
type PasswordAuth struct {
	Hash string
}

func (PasswordAuth) authMethodTag() uint8 { return authMethodPassword }

func (a PasswordAuth) encode(w *writer) error {
	w.u8(authMethodPassword)
	return w.str("auth_method.hash", a.Hash)
}

type RegisterIdentity struct {
	Account    string
	Nonce      uint256.Int
	AuthMethod AuthMethod
}

func (RegisterIdentity) Tag() ActionTag { return TagRegisterIdentity }

func (a RegisterIdentity) encode(w *writer) error {
	if err := w.str("account", a.Account); err != nil {
		return err
	}
	if err := w.u128("nonce", &a.Nonce); err != nil {
		return err
	}
	if a.AuthMethod == nil {
		return schemaViolation("auth method is required", map[string]any{"field": "auth_method"})
	}
	return a.AuthMethod.encode(w)
}

type VerifyIdentity struct {
	Account string
	Nonce   uint256.Int
}

func (VerifyIdentity) Tag() ActionTag { return TagVerifyIdentity }

func (a VerifyIdentity) encode(w *writer) error {
	if err := w.str("account", a.Account); err != nil {
		return err
	}
	return w.u128("nonce", &a.Nonce)
}

type AddSessionKey struct {
	Account    string
	Key        string
	Expiration uint256.Int
	Whitelist  []string
}

func (AddSessionKey) Tag() ActionTag { return TagAddSessionKey }

func (a AddSessionKey) encode(w *writer) error {
	if err := w.str("account", a.Account); err != nil {
		return err
	}
	if err := w.str("key", a.Key); err != nil {
		return err
	}
	if err := w.u128("expiration", &a.Expiration); err != nil {
		return err
	}
	return w.strs("whitelist", a.Whitelist)
}

type RemoveSessionKey struct {
	Account string
	Key     string
}

func (RemoveSessionKey) Tag() ActionTag { return TagRemoveSessionKey }

func (a RemoveSessionKey) encode(w *writer) error {
	if err := w.str("account", a.Account); err != nil {
		return err
	}
	return w.str("key", a.Key)
}

type UseSessionKey struct {
	Account string
	Key     string
	Nonce   uint256.Int
}

func (UseSessionKey) Tag() ActionTag { return TagUseSessionKey }

func (a UseSessionKey) encode(w *writer) error {
	if err := w.str("account", a.Account); err != nil {
		return err
	}
	if err := w.str("key", a.Key); err != nil {
		return err
	}
	return w.u128("nonce", &a.Nonce)
}

// EncodeAction writes the discriminant followed by the variant fields.
func EncodeAction(action WalletAction) ([]byte, error) {
	if action == nil {
		return nil, schemaViolation("action is required", nil)
	}
	w := &writer{}
	w.u8(uint8(action.Tag()))
	if err := action.encode(w); err != nil {
		return nil, err
	}
	return w.bytes(), nil
}

// DecodeAction is the inverse of EncodeAction. The whole input must be
// consumed. An empty whitelist decodes as nil.
func DecodeAction(data []byte) (WalletAction, error) {
	r := &reader{data: data}
	tag, err := r.u8("tag")
	if err != nil {
		return nil, err
	}

	var action WalletAction
	switch ActionTag(tag) {
	case TagRegisterIdentity:
		action, err = decodeRegisterIdentity(r)
	case TagVerifyIdentity:
		action, err = decodeVerifyIdentity(r)
	case TagAddSessionKey:
		action, err = decodeAddSessionKey(r)
	case TagRemoveSessionKey:
		action, err = decodeRemoveSessionKey(r)
	case TagUseSessionKey:
		action, err = decodeUseSessionKey(r)
	default:
		return nil, schemaViolation("unknown wallet action tag", map[string]any{"tag": tag})
	}
	if err != nil {
		return nil, err
	}
	if err := r.done(); err != nil {
		return nil, err
	}
	return action, nil
}

// NewActionBlob encodes action as a blob addressed to contractName.
func NewActionBlob(contractName string, action WalletAction) (ledger.Blob, error) {
	data, err := EncodeAction(action)
	if err != nil {
		return ledger.Blob{}, err
	}
	return ledger.Blob{ContractName: contractName, Data: data}, nil
}

func decodeRegisterIdentity(r *reader) (WalletAction, error) {
	var a RegisterIdentity
	var err error
	if a.Account, err = r.str("account"); err != nil {
		return nil, err
	}
	if a.Nonce, err = r.u128("nonce"); err != nil {
		return nil, err
	}
	if a.AuthMethod, err = decodeAuthMethod(r); err != nil {
		return nil, err
	}
	return a, nil
}

func decodeAuthMethod(r *reader) (AuthMethod, error) {
	tag, err := r.u8("auth_method")
	if err != nil {
		return nil, err
	}
	switch tag {
	case authMethodPassword:
		hash, err := r.str("auth_method.hash")
		if err != nil {
			return nil, err
		}
		return PasswordAuth{Hash: hash}, nil
	default:
		return nil, schemaViolation("unknown auth method tag", map[string]any{"tag": tag})
	}
}

func decodeVerifyIdentity(r *reader) (WalletAction, error) {
	var a VerifyIdentity
	var err error
	if a.Account, err = r.str("account"); err != nil {
		return nil, err
	}
	if a.Nonce, err = r.u128("nonce"); err != nil {
		return nil, err
	}
	return a, nil
}

func decodeAddSessionKey(r *reader) (WalletAction, error) {
	var a AddSessionKey
	var err error
	if a.Account, err = r.str("account"); err != nil {
		return nil, err
	}
	if a.Key, err = r.str("key"); err != nil {
		return nil, err
	}
	if a.Expiration, err = r.u128("expiration"); err != nil {
		return nil, err
	}
	if a.Whitelist, err = r.strs("whitelist"); err != nil {
		return nil, err
	}
	return a, nil
}

func decodeRemoveSessionKey(r *reader) (WalletAction, error) {
	var a RemoveSessionKey
	var err error
	if a.Account, err = r.str("account"); err != nil {
		return nil, err
	}
	if a.Key, err = r.str("key"); err != nil {
		return nil, err
	}
	return a, nil
}

func decodeUseSessionKey(r *reader) (WalletAction, error) {
	var a UseSessionKey
	var err error
	if a.Account, err = r.str("account"); err != nil {
		return nil, err
	}
	if a.Key, err = r.str("key"); err != nil {
		return nil, err
	}
	if a.Nonce, err = r.u128("nonce"); err != nil {
		return nil, err
	}
	return a, nil
}
