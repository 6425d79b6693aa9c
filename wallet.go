package auth

import (
	"encoding/hex"
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/minio/sha256-simd"

	"github.com/goliatone/go-ledger-auth/ledger"
	"github.com/goliatone/go-ledger-auth/sessionkey"
)

// MinPasswordLength is enforced on registration only.
const MinPasswordLength = 8

const (
	msgFillAllFields    = "Please fill in all fields"
	msgPasswordMismatch = "Passwords do not match"
	msgPasswordTooShort = "Password must be at least 8 characters long"
	msgInviteRequired   = "Invite code is required"
)

// Wallet is the client-side view of a connected account.
type Wallet struct {
	Username   string                 `json:"username"`
	Address    string                 `json:"address"`
	Salt       string                 `json:"salt,omitempty"`
	SessionKey *sessionkey.SessionKey `json:"session_key,omitempty"`
}

func newWallet(identity ledger.Identity, salt string) *Wallet {
	return &Wallet{
		Username: identity.Username(),
		Address:  identity.String(),
		Salt:     salt,
	}
}

// Identity parses the wallet address back into an identity.
func (w *Wallet) Identity() (ledger.Identity, error) {
	if w == nil {
		return "", walletRequiredError("")
	}
	return ledger.ParseIdentity(w.Address)
}

// Clone returns a deep copy.
func (w *Wallet) Clone() *Wallet {
	if w == nil {
		return nil
	}
	out := *w
	if w.SessionKey != nil {
		key := *w.SessionKey
		if w.SessionKey.Whitelist != nil {
			key.Whitelist = append([]string(nil), w.SessionKey.Whitelist...)
		}
		out.SessionKey = &key
	}
	return &out
}

// ProviderType names an authentication provider.
type ProviderType string

// ProviderPassword is the only provider implemented.
const ProviderPassword ProviderType = "password"

// Credentials is the closed set of inputs accepted by Machine.Authenticate.
type Credentials interface {
	Provider() ProviderType
	credentials()
}

// PasswordLogin authenticates an existing account.
type PasswordLogin struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Provider implements Credentials.
func (PasswordLogin) Provider() ProviderType { return ProviderPassword }
func (PasswordLogin) credentials()           {}

// Validate checks that every field is present.
func (c PasswordLogin) Validate() error {
	return wrapValidation(validateFilled(c.Username, c.Password))
}

// PasswordRegistration creates a new account.
type PasswordRegistration struct {
	Username        string `json:"username"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	InviteCode      string `json:"invite_code,omitempty"`
}

// Provider implements Credentials.
func (PasswordRegistration) Provider() ProviderType { return ProviderPassword }
func (PasswordRegistration) credentials()           {}

// Validate checks fields in order: presence, confirmation, length.
func (c PasswordRegistration) Validate() error {
	if err := validateFilled(c.Username, c.Password, c.ConfirmPassword); err != nil {
		return wrapValidation(err)
	}
	if err := validation.Validate(c.ConfirmPassword,
		validation.By(ValidateStringEquals(c.Password)),
	); err != nil {
		return wrapValidation(errors.New(msgPasswordMismatch))
	}
	return wrapValidation(validation.Validate(c.Password,
		validation.Length(MinPasswordLength, 0).Error(msgPasswordTooShort),
	))
}

// ValidateStringEquals builds a rule that passes when the value equals str.
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

func validateFilled(values ...string) error {
	for _, v := range values {
		if err := validation.Validate(v, validation.Required.Error(msgFillAllFields)); err != nil {
			return err
		}
	}
	return nil
}

func wrapValidation(err error) error {
	if err == nil {
		return nil
	}
	return validationError(err.Error(), nil)
}

// deriveSecret concatenates the password with the account salt.
func deriveSecret(password, salt string) []byte {
	return []byte(password + salt)
}

// PasswordHash is the value committed on-chain at registration:
// hex(sha256(identity ":" secret)).
func PasswordHash(identity ledger.Identity, secret []byte) string {
	h := sha256.New()
	h.Write([]byte(identity.String()))
	h.Write([]byte(":"))
	h.Write(secret)
	return hex.EncodeToString(h.Sum(nil))
}
