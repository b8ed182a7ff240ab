// Package config defines the configuration for the forecast daemon and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by FORECASTD_* environment
// variables.
type Config struct {
	Feed     FeedConfig     `toml:"feed"`
	Chain    ChainConfig    `toml:"chain"`
	Wallet   WalletConfig   `toml:"wallet"`
	Workflow WorkflowConfig `toml:"workflow"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mail     MailConfig     `toml:"mail"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// FeedConfig holds the forecast CSV feed parameters.
type FeedConfig struct {
	URL            string   `toml:"url"`
	WarmupRows     int      `toml:"warmup_rows"`
	WindowRows     int      `toml:"window_rows"`
	DateColumn     string   `toml:"date_column"`
	ActualColumn   string   `toml:"actual_column"`
	PredictColumn  string   `toml:"predict_column"`
	MAColumn       string   `toml:"moving_average_column"`
	ScenarioPrefix string   `toml:"scenario_prefix"`
	Timeout        duration `toml:"timeout"`
}

// ChainConfig holds the RPC endpoint and deployed contract addresses. The
// daemon refuses to start against a node whose chain ID differs from ChainID.
type ChainConfig struct {
	RPCURL          string `toml:"rpc_url"`
	ChainID         int64  `toml:"chain_id"`
	ContractAddress string `toml:"contract_address"`
	TokenAddress    string `toml:"token_address"`
	TokenDecimals   int32  `toml:"token_decimals"`
	NFTAddress      string `toml:"nft_address"`
	ExplorerURL     string `toml:"explorer_url"`
	IPFSGateway     string `toml:"ipfs_gateway"`
}

// WalletConfig holds the signing key. When PrivateKey is empty the daemon
// runs read-only: queries work, paid actions report "no wallet session".
type WalletConfig struct {
	PrivateKey string `toml:"private_key"`
}

// WorkflowConfig holds paid-action workflow parameters.
type WorkflowConfig struct {
	// StepTimeout bounds each approve/execute confirmation wait so a hung
	// transaction cannot leave the busy guard held forever.
	StepTimeout duration `toml:"step_timeout"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// NotifyConfig holds operator notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// MailConfig holds the feedback mail-relay parameters (an EmailJS-compatible
// HTTP endpoint).
type MailConfig struct {
	Endpoint   string `toml:"endpoint"`
	ServiceID  string `toml:"service_id"`
	TemplateID string `toml:"template_id"`
	PublicKey  string `toml:"public_key"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with the production deployment values
// (Polygon mainnet, the kaikasekai contracts and data feed).
func Defaults() Config {
	return Config{
		Feed: FeedConfig{
			URL:            "https://raw.githubusercontent.com/kaikasekai/kaikasekai/main/data.csv",
			WarmupRows:     30,
			WindowRows:     30,
			DateColumn:     "date",
			ActualColumn:   "BTC",
			PredictColumn:  "predict",
			MAColumn:       "moving_average",
			ScenarioPrefix: "p_",
			Timeout:        duration{30 * time.Second},
		},
		Chain: ChainConfig{
			RPCURL:          "https://polygon-rpc.com",
			ChainID:         137,
			ContractAddress: "0x1b453Ed4252Ea0e64CaB49E918fbcfC62d7fAf20",
			TokenAddress:    "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359",
			TokenDecimals:   6,
			NFTAddress:      "0x0878C09FFE2e702c1A7987B38C63C42E2062b803",
			ExplorerURL:     "https://polygonscan.com",
			IPFSGateway:     "https://ipfs.io/ipfs/",
		},
		Workflow: WorkflowConfig{
			StepTimeout: duration{5 * time.Minute},
		},
		Server: ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"http://localhost:5173"},
		},
		Notify: NotifyConfig{
			Events: []string{"action_success", "action_failed"},
		},
		Mail: MailConfig{
			Endpoint: "https://api.emailjs.com/api/v1.0/email/send",
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve":    true,
	"accuracy": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, accuracy)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Feed
	if c.Feed.URL == "" {
		errs = append(errs, "feed: url must not be empty")
	}
	if c.Feed.WarmupRows < 0 {
		errs = append(errs, "feed: warmup_rows must be >= 0")
	}
	if c.Feed.WindowRows < 1 {
		errs = append(errs, "feed: window_rows must be >= 1")
	}
	if c.Feed.DateColumn == "" || c.Feed.ActualColumn == "" || c.Feed.PredictColumn == "" {
		errs = append(errs, "feed: date_column, actual_column and predict_column must not be empty")
	}

	// Chain — only needed for serve mode; accuracy mode never dials.
	if strings.ToLower(c.Mode) == "serve" {
		if c.Chain.RPCURL == "" {
			errs = append(errs, "chain: rpc_url must not be empty")
		}
		if c.Chain.ChainID <= 0 {
			errs = append(errs, "chain: chain_id must be positive")
		}
		for _, a := range []struct{ name, val string }{
			{"contract_address", c.Chain.ContractAddress},
			{"token_address", c.Chain.TokenAddress},
		} {
			if !common.IsHexAddress(a.val) {
				errs = append(errs, fmt.Sprintf("chain: %s %q is not a valid address", a.name, a.val))
			}
		}
		if c.Chain.NFTAddress != "" && !common.IsHexAddress(c.Chain.NFTAddress) {
			errs = append(errs, fmt.Sprintf("chain: nft_address %q is not a valid address", c.Chain.NFTAddress))
		}
		if c.Chain.TokenDecimals < 0 || c.Chain.TokenDecimals > 18 {
			errs = append(errs, fmt.Sprintf("chain: token_decimals must be 0-18, got %d", c.Chain.TokenDecimals))
		}
	}

	// Workflow
	if c.Workflow.StepTimeout.Duration <= 0 {
		errs = append(errs, "workflow: step_timeout must be positive")
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	// Notify — Telegram credentials must be set together, or not at all.
	tt := c.Notify.TelegramToken != ""
	tc := c.Notify.TelegramChatID != ""
	if tt != tc {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	// Mail — all fields must be set together, or all empty.
	ms := c.Mail.ServiceID != ""
	mt := c.Mail.TemplateID != ""
	mk := c.Mail.PublicKey != ""
	if ms || mt || mk {
		if !(ms && mt && mk) {
			errs = append(errs, "mail: service_id, template_id and public_key must all be set together")
		}
		if c.Mail.Endpoint == "" {
			errs = append(errs, "mail: endpoint must not be empty when mail is configured")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
