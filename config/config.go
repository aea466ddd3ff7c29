package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"launchpad/native/sale"
)

// Config carries the service settings and the campaign parameters the
// launchpad daemon runs with.
type Config struct {
	RPCAddress   string `toml:"RPCAddress"`
	MetricsPath  string `toml:"MetricsPath"`
	DataDir      string `toml:"DataDir"`
	Env          string `toml:"Env"`
	RPCAuthToken string `toml:"RPCAuthToken"`

	Campaign Campaign `toml:"campaign"`
}

// Campaign mirrors sale.CampaignConfig in TOML-friendly form: addresses as
// 0x-hex strings and amounts as decimal strings.
type Campaign struct {
	Owner        string `toml:"Owner"`
	Token        string `toml:"Token"`
	Campaign     string `toml:"Campaign"`
	FeeRecipient string `toml:"FeeRecipient"`

	TokenRate          string `toml:"TokenRate"`
	LiquidityRate      string `toml:"LiquidityRate"`
	DecimalsAdjustment uint8  `toml:"DecimalsAdjustment"`

	RaiseMin string `toml:"RaiseMin"`
	RaiseMax string `toml:"RaiseMax"`
	Softcap  string `toml:"Softcap"`
	Hardcap  string `toml:"Hardcap"`

	LiquidityPercent uint8 `toml:"LiquidityPercent"`
	FeePercent       uint8 `toml:"FeePercent"`

	StartTime        int64  `toml:"StartTime"`
	EndTime          int64  `toml:"EndTime"`
	Mode             string `toml:"Mode"`
	PublicUnlockTime int64  `toml:"PublicUnlockTime"`
	LockDelaySeconds int64  `toml:"LockDelaySeconds"`
}

// Load reads the configuration from the given path and applies service-level
// defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown keys: %v", path, undecoded)
	}
	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8545"
	}
	if strings.TrimSpace(cfg.MetricsPath) == "" {
		cfg.MetricsPath = "/metrics"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./launchpad-data"
	}
	if strings.TrimSpace(cfg.Campaign.Mode) == "" {
		cfg.Campaign.Mode = "public"
	}
}

// SaleConfig converts the TOML campaign block into the engine's
// configuration, validating it along the way.
func (c *Campaign) SaleConfig() (*sale.CampaignConfig, error) {
	cfg := &sale.CampaignConfig{
		DecimalsAdjustment: c.DecimalsAdjustment,
		LiquidityPercent:   c.LiquidityPercent,
		StartTime:          c.StartTime,
		EndTime:            c.EndTime,
		PublicUnlockTime:   c.PublicUnlockTime,
		LockDelay:          c.LockDelaySeconds,
	}
	var err error
	if cfg.Owner, err = parseAddress(c.Owner, "Owner", true); err != nil {
		return nil, err
	}
	if cfg.Token, err = parseAddress(c.Token, "Token", true); err != nil {
		return nil, err
	}
	if cfg.Campaign, err = parseAddress(c.Campaign, "Campaign", false); err != nil {
		return nil, err
	}
	if cfg.FeeRecipient, err = parseAddress(c.FeeRecipient, "FeeRecipient", false); err != nil {
		return nil, err
	}
	amounts := []struct {
		dst   **uint256.Int
		src   string
		field string
	}{
		{&cfg.TokenRate, c.TokenRate, "TokenRate"},
		{&cfg.LiquidityRate, c.LiquidityRate, "LiquidityRate"},
		{&cfg.RaiseMin, c.RaiseMin, "RaiseMin"},
		{&cfg.RaiseMax, c.RaiseMax, "RaiseMax"},
		{&cfg.Softcap, c.Softcap, "Softcap"},
		{&cfg.Hardcap, c.Hardcap, "Hardcap"},
	}
	for _, amount := range amounts {
		value, err := parseAmount(amount.src, amount.field)
		if err != nil {
			return nil, err
		}
		*amount.dst = value
	}
	if cfg.Mode, err = sale.ParseSaleMode(c.Mode); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseAddress(raw, field string, required bool) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		if required {
			return addr, fmt.Errorf("campaign.%s is required", field)
		}
		return addr, nil
	}
	if !ethcommon.IsHexAddress(trimmed) {
		return addr, fmt.Errorf("campaign.%s is not a hex address: %q", field, raw)
	}
	copy(addr[:], ethcommon.HexToAddress(trimmed).Bytes())
	return addr, nil
}

func parseAmount(raw, field string) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return uint256.NewInt(0), nil
	}
	value, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return nil, fmt.Errorf("campaign.%s is not a decimal amount: %q", field, raw)
	}
	return value, nil
}
