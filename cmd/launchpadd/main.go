package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"launchpad/config"
	"launchpad/core/events"
	"launchpad/native/bank"
	"launchpad/native/sale"
	"launchpad/observability/logging"
	"launchpad/observability/metrics"
	"launchpad/rpc"
	"launchpad/storage"
)

const rpcTokenEnv = "LAUNCHPAD_RPC_TOKEN"

// slogEmitter forwards campaign events to the structured logger.
type slogEmitter struct {
	logger *slog.Logger
}

func (e *slogEmitter) Emit(event events.Event) {
	if event == nil {
		return
	}
	e.logger.Info("campaign event", "type", event.EventType())
}

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("LAUNCHPAD_ENV"))
	logger := logging.Setup("launchpadd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		fatal(logger, "failed to load config", err)
	}
	if err := cfg.Validate(); err != nil {
		fatal(logger, "invalid config", err)
	}
	if env == "" {
		env = cfg.Env
	}

	authToken := strings.TrimSpace(os.Getenv(rpcTokenEnv))
	if authToken == "" {
		authToken = cfg.RPCAuthToken
	}
	if authToken == "" {
		logger.Warn("no RPC auth token configured, mutating methods will be rejected")
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		fatal(logger, "failed to open database", err)
	}
	defer db.Close()

	engine := sale.NewEngine(sale.NewLedger(db))
	engine.SetEmitter(&slogEmitter{logger: logger})

	campaign, err := engine.Config()
	switch {
	case err == nil:
		logger.Info("campaign already configured",
			"campaign", fmt.Sprintf("0x%x", campaign.Campaign),
			"hardcap", campaign.Hardcap.Dec())
	case errors.Is(err, sale.ErrNotConfigured):
		saleCfg, convErr := cfg.Campaign.SaleConfig()
		if convErr != nil {
			fatal(logger, "invalid campaign parameters", convErr)
		}
		if convErr := engine.Configure(saleCfg); convErr != nil {
			fatal(logger, "failed to configure campaign", convErr)
		}
		if campaign, err = engine.Config(); err != nil {
			fatal(logger, "failed to reload campaign", err)
		}
		logger.Info("campaign configured",
			"campaign", fmt.Sprintf("0x%x", campaign.Campaign),
			"mode", campaign.Mode.String(),
			"hardcap", campaign.Hardcap.Dec())
	default:
		fatal(logger, "failed to load campaign", err)
	}

	base := bank.NewLedger("BASE")
	tokens := bank.NewLedger("SALE")
	pool := bank.NewPool(poolAddress(), campaign.Campaign, base, tokens)

	engine.SetBaseGateway(base)
	engine.SetTokenGateway(tokens)
	engine.SetLiquidityGateway(pool)
	engine.SetFeeOracle(&bank.StaticFeeOracle{
		Recipient: campaign.FeeRecipient,
		Percent:   cfg.Campaign.FeePercent,
	})

	server := rpc.NewServer(engine, metrics.Sale(), authToken)
	logger.Info("starting RPC server", "address", cfg.RPCAddress, "env", env)
	if err := server.Start(cfg.RPCAddress, cfg.MetricsPath); err != nil {
		fatal(logger, "RPC server stopped", err)
	}
}

func poolAddress() [20]byte {
	digest := ethcrypto.Keccak256([]byte("launchpad/liquidity-pool"))
	var addr [20]byte
	copy(addr[:], digest[12:])
	return addr
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
