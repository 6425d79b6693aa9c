package repository

import (
	"context"
	"encoding/json"
	"time"

	goerrors "github.com/goliatone/go-errors"
	bunrepo "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	auth "github.com/goliatone/go-ledger-auth"
	"github.com/goliatone/go-ledger-auth/sessionkey"
)

const TextCodeWalletNotFound = "WALLET_NOT_FOUND"

// WalletModel is the Bun model for a stored wallet. The session private key
// is only ever written sealed.
type WalletModel struct {
	bun.BaseModel `bun:"table:wallets"`

	ID                uuid.UUID `bun:"id,pk,type:uuid"`
	Username          string    `bun:"username,notnull,unique"`
	Address           string    `bun:"address,notnull"`
	Salt              string    `bun:"salt"`
	SessionPublicKey  string    `bun:"session_public_key"`
	SessionSealedKey  string    `bun:"session_sealed_key"`
	SessionExpiration int64     `bun:"session_expiration"`
	SessionWhitelist  string    `bun:"session_whitelist"`
	CreatedAt         time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt         time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// WalletRepository persists wallets between CLI invocations. The auth core
// never calls it. Rows are addressed by username.
type WalletRepository struct {
	bunrepo.Repository[*WalletModel]
	db  bun.IDB
	now func() time.Time
}

// NewWalletRepository creates a new repository.
func NewWalletRepository(db bun.IDB) *WalletRepository {
	return &WalletRepository{
		Repository: bunrepo.NewRepository[*WalletModel](db, bunrepo.ModelHandlers[*WalletModel]{
			NewRecord: func() *WalletModel { return &WalletModel{} },
			GetID: func(m *WalletModel) uuid.UUID {
				if m == nil {
					return uuid.Nil
				}
				return m.ID
			},
			SetID: func(m *WalletModel, id uuid.UUID) {
				if m != nil {
					m.ID = id
				}
			},
			GetIdentifier: func() string { return "username" },
		}),
		db:  db,
		now: time.Now,
	}
}

// Save upserts wallet by username, sealing the session private key with
// passphrase.
func (r *WalletRepository) Save(ctx context.Context, wallet *auth.Wallet, passphrase string) error {
	if wallet == nil || wallet.Username == "" {
		return goerrors.New("wallet with username is required", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}

	model, err := r.fromWallet(wallet, passphrase)
	if err != nil {
		return err
	}

	err = r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing, err := r.GetByIdentifierTx(ctx, tx, wallet.Username)
		if err != nil {
			if !bunrepo.IsRecordNotFound(err) {
				return err
			}
			_, err = r.CreateTx(ctx, tx, model)
			return err
		}

		model.ID = existing.ID
		model.CreatedAt = existing.CreatedAt
		_, err = r.UpdateTx(ctx, tx, model,
			bunrepo.UpdateSetColumn("address", model.Address),
			bunrepo.UpdateSetColumn("salt", model.Salt),
			bunrepo.UpdateSetColumn("session_public_key", model.SessionPublicKey),
			bunrepo.UpdateSetColumn("session_sealed_key", model.SessionSealedKey),
			bunrepo.UpdateSetColumn("session_expiration", model.SessionExpiration),
			bunrepo.UpdateSetColumn("session_whitelist", model.SessionWhitelist),
			bunrepo.UpdateSetColumn("updated_at", model.UpdatedAt),
		)
		return err
	})
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to save wallet").
			WithMetadata(map[string]any{"username": wallet.Username})
	}
	return nil
}

// Load reads the wallet for username and unseals its session key.
func (r *WalletRepository) Load(ctx context.Context, username, passphrase string) (*auth.Wallet, error) {
	model, err := r.find(ctx, username)
	if err != nil {
		return nil, err
	}
	return r.toWallet(model, passphrase)
}

// List returns the stored usernames in order.
func (r *WalletRepository) List(ctx context.Context) ([]string, error) {
	models, _, err := r.Repository.List(ctx,
		bunrepo.OrderBy("username ASC"),
		bunrepo.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Limit(0)
		}),
	)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list wallets")
	}
	usernames := make([]string, 0, len(models))
	for _, m := range models {
		usernames = append(usernames, m.Username)
	}
	return usernames, nil
}

// Delete removes the wallet for username.
func (r *WalletRepository) Delete(ctx context.Context, username string) error {
	model, err := r.find(ctx, username)
	if err != nil {
		return err
	}
	if err := r.Repository.Delete(ctx, model); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete wallet").
			WithMetadata(map[string]any{"username": username})
	}
	return nil
}

func (r *WalletRepository) find(ctx context.Context, username string) (*WalletModel, error) {
	model, err := r.GetByIdentifier(ctx, username)
	if err != nil {
		if bunrepo.IsRecordNotFound(err) {
			return nil, notFound(username)
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load wallet").
			WithMetadata(map[string]any{"username": username})
	}
	return model, nil
}

// IsNotFound reports whether err is a missing wallet.
func IsNotFound(err error) bool {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode == TextCodeWalletNotFound
	}
	return false
}

func notFound(username string) error {
	return goerrors.New("wallet not found", goerrors.CategoryNotFound).
		WithTextCode(TextCodeWalletNotFound).
		WithCode(goerrors.CodeNotFound).
		WithMetadata(map[string]any{"username": username})
}

func (r *WalletRepository) fromWallet(w *auth.Wallet, passphrase string) (*WalletModel, error) {
	now := r.now().UTC()
	model := &WalletModel{
		Username:  w.Username,
		Address:   w.Address,
		Salt:      w.Salt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if w.SessionKey == nil {
		return model, nil
	}

	sealed, err := seal(passphrase, []byte(w.SessionKey.PrivateKey))
	if err != nil {
		return nil, err
	}
	whitelist, err := json.Marshal(w.SessionKey.Whitelist)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode whitelist")
	}

	model.SessionPublicKey = w.SessionKey.PublicKey
	model.SessionSealedKey = sealed
	model.SessionExpiration = w.SessionKey.Expiration
	model.SessionWhitelist = string(whitelist)
	return model, nil
}

func (r *WalletRepository) toWallet(m *WalletModel, passphrase string) (*auth.Wallet, error) {
	w := &auth.Wallet{
		Username: m.Username,
		Address:  m.Address,
		Salt:     m.Salt,
	}
	if m.SessionSealedKey == "" {
		return w, nil
	}

	priv, err := open(passphrase, m.SessionSealedKey)
	if err != nil {
		return nil, err
	}
	defer zeroBytes(priv)

	var whitelist []string
	if m.SessionWhitelist != "" {
		if err := json.Unmarshal([]byte(m.SessionWhitelist), &whitelist); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to decode whitelist")
		}
	}

	w.SessionKey = &sessionkey.SessionKey{
		PublicKey:  m.SessionPublicKey,
		PrivateKey: string(priv),
		Expiration: m.SessionExpiration,
		Whitelist:  whitelist,
	}
	return w, nil
}
