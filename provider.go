package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-ledger-auth/ledger"
	"github.com/goliatone/go-ledger-auth/sessionkey"
)

// ProviderResult is the flattened outcome returned to UI callers.
type ProviderResult struct {
	Success bool    `json:"success"`
	Error   string  `json:"error,omitempty"`
	Kind    string  `json:"kind,omitempty"`
	Wallet  *Wallet `json:"wallet,omitempty"`
	TxHash  string  `json:"tx_hash,omitempty"`
}

// WalletProvider wraps a Machine and never returns Go errors.
type WalletProvider struct {
	machine *Machine
}

// NewWalletProvider returns a provider backed by machine.
func NewWalletProvider(machine *Machine) *WalletProvider {
	return &WalletProvider{machine: machine}
}

// Type names the provider.
func (p *WalletProvider) Type() ProviderType {
	return ProviderPassword
}

// Machine exposes the underlying machine.
func (p *WalletProvider) Machine() *Machine {
	return p.machine
}

func (p *WalletProvider) Login(ctx context.Context, username, password string, opts ...FlowOption) ProviderResult {
	return walletResult(p.machine.Login(ctx, username, password, opts...))
}

func (p *WalletProvider) Register(ctx context.Context, creds PasswordRegistration, opts ...FlowOption) ProviderResult {
	return walletResult(p.machine.Register(ctx, creds, opts...))
}

func (p *WalletProvider) Authenticate(ctx context.Context, creds Credentials, opts ...FlowOption) ProviderResult {
	return walletResult(p.machine.Authenticate(ctx, creds, opts...))
}

func (p *WalletProvider) AddSessionKey(ctx context.Context, password string, ttl time.Duration, whitelist ...string) ProviderResult {
	return walletResult(p.machine.AddSessionKey(ctx, password, ttl, whitelist...))
}

func (p *WalletProvider) RemoveSessionKey(ctx context.Context, password, publicKey string) ProviderResult {
	return walletResult(p.machine.RemoveSessionKey(ctx, password, publicKey))
}

func (p *WalletProvider) SendWithSessionKey(ctx context.Context, key sessionkey.SessionKey, blobs ...ledger.Blob) ProviderResult {
	hash, err := p.machine.SendWithSessionKey(ctx, key, blobs...)
	if err != nil {
		return errorResult(err)
	}
	return ProviderResult{Success: true, TxHash: hash.String(), Wallet: p.machine.Wallet()}
}

// Logout always succeeds.
func (p *WalletProvider) Logout() ProviderResult {
	p.machine.Logout()
	return ProviderResult{Success: true}
}

func (p *WalletProvider) Stage() Stage {
	return p.machine.Stage()
}

func (p *WalletProvider) Wallet() *Wallet {
	return p.machine.Wallet()
}

func walletResult(wallet *Wallet, err error) ProviderResult {
	if err != nil {
		return errorResult(err)
	}
	return ProviderResult{Success: true, Wallet: wallet}
}

func errorResult(err error) ProviderResult {
	return ProviderResult{
		Success: false,
		Error:   ErrorMessage(err),
		Kind:    string(KindOf(err)),
	}
}
