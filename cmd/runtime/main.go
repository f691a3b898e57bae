package main

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	container "github.com/thehyperflames/dicontainer-go"
	"github.com/thehyperflames/yellowstone"

	"github.com/hxuan190/ledger-orchestrator/internal/adapters/blockchain"
	"github.com/hxuan190/ledger-orchestrator/internal/config"
	"github.com/hxuan190/ledger-orchestrator/internal/http"
	"github.com/hxuan190/ledger-orchestrator/internal/orchestrator"
)

func main() {
	// load env; a missing .env falls back to the process environment
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Error().Err(err).Msg("failed to load env")
		return
	}

	level, err := zerolog.ParseLevel(strings.ToLower(os.Getenv("LOG_LEVEL")))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// di container config
	conf := container.NewConf(
		&config.GeneralConfig{},
		&config.RPCConfig{},
		&config.WalletConfig{},
		&config.CoSignerConfig{},
		&config.NetworkConfig{},
		&config.LUTConfig{},
		&yellowstone.Config{},
	)

	// di container
	dic, err := container.New(
		// config
		conf,

		// services
		&yellowstone.Service{},
		&blockchain.BlockhashCacheService{},
		&orchestrator.Service{},

		&http.HTTPService{},
	)
	if err != nil {
		log.Error().Err(err).Msg("failed to create di container")
		return
	}

	// Run blocks until SIGINT/SIGTERM
	if err := dic.Run(); err != nil {
		log.Error().Err(err).Msg("failed to run di container")
		return
	}

	// Run doesn't call Stop(), we must do it manually
	log.Info().Msg("Shutting down services...")
	if err := dic.Stop(); err != nil {
		log.Error().Err(err).Msg("error during shutdown")
	}
	log.Info().Msg("Shutdown complete")
}
