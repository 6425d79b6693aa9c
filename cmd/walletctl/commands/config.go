package commands

import (
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"gopkg.in/yaml.v3"

	auth "github.com/goliatone/go-ledger-auth"
	"github.com/goliatone/go-ledger-auth/ledger"
)

// Config is the walletctl configuration file.
type Config struct {
	NodeURL      string `yaml:"node_url"`
	IndexerURL   string `yaml:"indexer_url"`
	EventsURL    string `yaml:"events_url"`
	ProverURL    string `yaml:"prover_url"`
	ConfigURL    string `yaml:"config_url"`
	InviteURL    string `yaml:"invite_url"`
	StorePath    string `yaml:"store_path"`
	ContractName string `yaml:"contract_name"`

	LoginTimeout    time.Duration `yaml:"login_timeout"`
	RegisterTimeout time.Duration `yaml:"register_timeout"`
	SessionTimeout  time.Duration `yaml:"session_timeout"`
	SessionKeyTTL   time.Duration `yaml:"session_key_ttl"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`

	NodeRPS   float64 `yaml:"node_rps"`
	NodeBurst int     `yaml:"node_burst"`

	Gateway GatewayConfig `yaml:"gateway"`
}

type GatewayConfig struct {
	Addr        string        `yaml:"addr"`
	MetricsAddr string        `yaml:"metrics_addr"`
	SigningKey  string        `yaml:"signing_key"`
	TokenTTL    time.Duration `yaml:"token_ttl"`
	Debug       bool          `yaml:"debug"`
}

// DefaultConfig returns the values used when neither the file nor a flag
// sets them.
func DefaultConfig() Config {
	t := auth.DefaultTimeouts()
	return Config{
		NodeURL:         "http://localhost:4321",
		EventsURL:       "ws://localhost:8081/ws",
		ProverURL:       "http://localhost:4000",
		StorePath:       "walletctl.db",
		ContractName:    ledger.WalletContract,
		LoginTimeout:    t.Login,
		RegisterTimeout: t.Register,
		SessionTimeout:  t.SessionKey,
		SessionKeyTTL:   72 * time.Hour,
		RequestTimeout:  15 * time.Second,
		NodeBurst:       1,
		Gateway: GatewayConfig{
			Addr:        ":8572",
			MetricsAddr: ":9572",
			TokenTTL:    24 * time.Hour,
		},
	}
}

// LoadConfig reads path over the defaults. An empty path returns the
// defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to read config file").
			WithMetadata(map[string]any{"path": path})
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return cfg, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse config file").
			WithMetadata(map[string]any{"path": path})
	}
	Merge(&cfg, parsed)
	return cfg, nil
}

// Merge copies every non-zero value of src into dst.
func Merge(dst *Config, src Config) {
	setString(&dst.NodeURL, src.NodeURL)
	setString(&dst.IndexerURL, src.IndexerURL)
	setString(&dst.EventsURL, src.EventsURL)
	setString(&dst.ProverURL, src.ProverURL)
	setString(&dst.ConfigURL, src.ConfigURL)
	setString(&dst.InviteURL, src.InviteURL)
	setString(&dst.StorePath, src.StorePath)
	setString(&dst.ContractName, src.ContractName)

	setDuration(&dst.LoginTimeout, src.LoginTimeout)
	setDuration(&dst.RegisterTimeout, src.RegisterTimeout)
	setDuration(&dst.SessionTimeout, src.SessionTimeout)
	setDuration(&dst.SessionKeyTTL, src.SessionKeyTTL)
	setDuration(&dst.RequestTimeout, src.RequestTimeout)

	if src.NodeRPS != 0 {
		dst.NodeRPS = src.NodeRPS
	}
	if src.NodeBurst != 0 {
		dst.NodeBurst = src.NodeBurst
	}

	setString(&dst.Gateway.Addr, src.Gateway.Addr)
	setString(&dst.Gateway.MetricsAddr, src.Gateway.MetricsAddr)
	setString(&dst.Gateway.SigningKey, src.Gateway.SigningKey)
	setDuration(&dst.Gateway.TokenTTL, src.Gateway.TokenTTL)
	if src.Gateway.Debug {
		dst.Gateway.Debug = true
	}
}

// Validate checks the fields every command needs.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.NodeURL, validation.Required, is.URL),
		validation.Field(&c.EventsURL, validation.Required),
		validation.Field(&c.ProverURL, validation.Required, is.URL),
		validation.Field(&c.StorePath, validation.Required),
		validation.Field(&c.LoginTimeout, validation.Required),
		validation.Field(&c.RegisterTimeout, validation.Required),
		validation.Field(&c.SessionTimeout, validation.Required),
		validation.Field(&c.RequestTimeout, validation.Required),
	)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid walletctl config")
	}
	if c.ConfigURL == "" {
		return (ledger.ContractConfig{ContractName: c.ContractName}).Validate()
	}
	return nil
}

// Timeouts maps the configured waits onto the machine timeouts.
func (c Config) Timeouts() auth.Timeouts {
	return auth.Timeouts{
		Login:      c.LoginTimeout,
		Register:   c.RegisterTimeout,
		SessionKey: c.SessionTimeout,
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}
