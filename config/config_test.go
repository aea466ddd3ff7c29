package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleConfig = `
RPCAddress = "127.0.0.1:9090"
DataDir = "/tmp/launchpad"
RPCAuthToken = "secret"

[campaign]
Owner = "0x0100000000000000000000000000000000000000"
Token = "0x0200000000000000000000000000000000000000"
FeeRecipient = "0x0400000000000000000000000000000000000000"
TokenRate = "1000"
LiquidityRate = "800"
RaiseMin = "1"
RaiseMax = "10"
Softcap = "50"
Hardcap = "100"
LiquidityPercent = 60
StartTime = 100
EndTime = 1000
Mode = "public"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9090", cfg.RPCAddress)
	require.Equal(t, "/metrics", cfg.MetricsPath)
	require.Equal(t, "/tmp/launchpad", cfg.DataDir)
	require.NoError(t, cfg.Validate())
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeConfig(t, sampleConfig+"\nBogus = true\n"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown keys")
}

func TestSaleConfigConversion(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	saleCfg, err := cfg.Campaign.SaleConfig()
	require.NoError(t, err)
	require.Equal(t, byte(0x01), saleCfg.Owner[0])
	require.Equal(t, byte(0x02), saleCfg.Token[0])
	require.Equal(t, "1000", saleCfg.TokenRate.Dec())
	require.Equal(t, "100", saleCfg.Hardcap.Dec())
	require.Equal(t, uint8(60), saleCfg.LiquidityPercent)
	require.Equal(t, int64(1000), saleCfg.EndTime)
}

func TestSaleConfigRejectsBadAddress(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	cfg.Campaign.Owner = "not-an-address"
	_, err = cfg.Campaign.SaleConfig()
	require.Error(t, err)
	require.Contains(t, err.Error(), "Owner")
}

func TestSaleConfigRejectsBadAmount(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	cfg.Campaign.Hardcap = "12x"
	_, err = cfg.Campaign.SaleConfig()
	require.Error(t, err)
	require.Contains(t, err.Error(), "Hardcap")
}

func TestValidateRejectsBadAddressAndPath(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	cfg.RPCAddress = "no-port"
	require.Error(t, cfg.Validate())

	cfg.RPCAddress = ":8545"
	cfg.MetricsPath = "metrics"
	require.Error(t, cfg.Validate())
}
