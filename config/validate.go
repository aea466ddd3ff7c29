package config

import (
	"fmt"
	"net"
	"strings"
)

// Validate checks the service-level settings. Campaign parameters are
// validated separately when converted via Campaign.SaleConfig.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RPCAddress) == "" {
		return fmt.Errorf("RPCAddress must not be empty")
	}
	if _, _, err := net.SplitHostPort(c.RPCAddress); err != nil {
		return fmt.Errorf("RPCAddress %q: %w", c.RPCAddress, err)
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("DataDir must not be empty")
	}
	if !strings.HasPrefix(c.MetricsPath, "/") {
		return fmt.Errorf("MetricsPath %q must begin with /", c.MetricsPath)
	}
	return nil
}
