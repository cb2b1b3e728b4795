package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCarriesTestnetParameters(t *testing.T) {
	cfg := Default()

	assert.Equal(t, int64(50312), cfg.Chain.ChainID)
	assert.Equal(t, "https://dream-rpc.somnia.network", cfg.Chain.RPCURL)
	assert.Equal(t, "0.1", cfg.Payment.PricePerBundle)
	assert.Equal(t, 30, cfg.Payment.MessagesPerBundle)
	assert.Equal(t, "STT", cfg.Payment.TokenSymbol)
	assert.Equal(t, 18, cfg.Payment.TokenDecimals)
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9090"
payment:
  messages_per_bundle: 50
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 50, cfg.Payment.MessagesPerBundle)
	// Untouched fields keep their defaults.
	assert.Equal(t, int64(50312), cfg.Chain.ChainID)
	assert.Equal(t, "0.1", cfg.Payment.PricePerBundle)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig("/does/not/exist.yaml")
	assert.Error(t, err)
}

func TestLoadConfigRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}
