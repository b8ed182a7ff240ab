package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "banana"
	cfg.Server.Port = 0
	cfg.Chain.ContractAddress = "nope"
	cfg.Notify.TelegramToken = "token-without-chat-id"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown mode "banana"`)
	assert.Contains(t, err.Error(), "port must be 1-65535")
	assert.Contains(t, err.Error(), "not a valid address")
	assert.Contains(t, err.Error(), "telegram_token and telegram_chat_id must be set together")
}

func TestValidateAccuracyModeSkipsChain(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "accuracy"
	cfg.Chain.RPCURL = ""
	cfg.Chain.ContractAddress = ""

	require.NoError(t, cfg.Validate())
}

func TestValidateMailAllOrNone(t *testing.T) {
	cfg := Defaults()
	cfg.Mail.ServiceID = "svc"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mail: service_id, template_id and public_key must all be set together")

	cfg.Mail.TemplateID = "tpl"
	cfg.Mail.PublicKey = "key"
	require.NoError(t, cfg.Validate())
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "accuracy"
log_level = "debug"

[feed]
warmup_rows = 10
timeout = "45s"

[server]
port = 9999
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "accuracy", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 10, cfg.Feed.WarmupRows)
	assert.Equal(t, 45*time.Second, cfg.Feed.Timeout.Duration)
	assert.Equal(t, 9999, cfg.Server.Port)

	// Untouched sections keep their defaults.
	assert.Equal(t, int64(137), cfg.Chain.ChainID)
	assert.Equal(t, 30, cfg.Feed.WindowRows)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FORECASTD_CHAIN_RPC_URL", "https://rpc.example")
	t.Setenv("FORECASTD_WALLET_PRIVATE_KEY", "0xabc")
	t.Setenv("FORECASTD_SERVER_PORT", "7070")
	t.Setenv("FORECASTD_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("FORECASTD_WORKFLOW_STEP_TIMEOUT", "90s")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	assert.Equal(t, "https://rpc.example", cfg.Chain.RPCURL)
	assert.Equal(t, "0xabc", cfg.Wallet.PrivateKey)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 90*time.Second, cfg.Workflow.StepTimeout.Duration)
}

func TestEnvOverrideIgnoresGarbage(t *testing.T) {
	t.Setenv("FORECASTD_SERVER_PORT", "not-a-number")

	cfg := Defaults()
	applyEnvOverrides(&cfg)
	assert.Equal(t, 8080, cfg.Server.Port)
}
