package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies FORECASTD_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known FORECASTD_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject the wallet key and other secrets at deploy time
// without touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Feed ──
	setStr(&cfg.Feed.URL, "FORECASTD_FEED_URL")
	setInt(&cfg.Feed.WarmupRows, "FORECASTD_FEED_WARMUP_ROWS")
	setInt(&cfg.Feed.WindowRows, "FORECASTD_FEED_WINDOW_ROWS")
	setStr(&cfg.Feed.ScenarioPrefix, "FORECASTD_FEED_SCENARIO_PREFIX")
	setDuration(&cfg.Feed.Timeout, "FORECASTD_FEED_TIMEOUT")

	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "FORECASTD_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "FORECASTD_CHAIN_ID")
	setStr(&cfg.Chain.ContractAddress, "FORECASTD_CHAIN_CONTRACT_ADDRESS")
	setStr(&cfg.Chain.TokenAddress, "FORECASTD_CHAIN_TOKEN_ADDRESS")
	setStr(&cfg.Chain.NFTAddress, "FORECASTD_CHAIN_NFT_ADDRESS")
	setStr(&cfg.Chain.ExplorerURL, "FORECASTD_CHAIN_EXPLORER_URL")
	setStr(&cfg.Chain.IPFSGateway, "FORECASTD_CHAIN_IPFS_GATEWAY")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "FORECASTD_WALLET_PRIVATE_KEY")

	// ── Workflow ──
	setDuration(&cfg.Workflow.StepTimeout, "FORECASTD_WORKFLOW_STEP_TIMEOUT")

	// ── Server ──
	setInt(&cfg.Server.Port, "FORECASTD_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "FORECASTD_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "FORECASTD_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "FORECASTD_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "FORECASTD_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "FORECASTD_NOTIFY_EVENTS")

	// ── Mail ──
	setStr(&cfg.Mail.Endpoint, "FORECASTD_MAIL_ENDPOINT")
	setStr(&cfg.Mail.ServiceID, "FORECASTD_MAIL_SERVICE_ID")
	setStr(&cfg.Mail.TemplateID, "FORECASTD_MAIL_TEMPLATE_ID")
	setStr(&cfg.Mail.PublicKey, "FORECASTD_MAIL_PUBLIC_KEY")

	// ── Top-level ──
	setStr(&cfg.Mode, "FORECASTD_MODE")
	setStr(&cfg.LogLevel, "FORECASTD_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
