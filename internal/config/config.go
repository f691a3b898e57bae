package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/andrew-solarstorm/go-packages/common"
)

type ServerEnv = string

var (
	DevEnv  ServerEnv = "dev"
	ProdEnv ServerEnv = "prod"
)

const (
	GENERAL_CONFIG_KEY  = "general-config"
	RPC_CONFIG_KEY      = "rpc-config"
	WALLET_CONFIG_KEY   = "wallet-config"
	COSIGNER_CONFIG_KEY = "cosigner-config"
	NETWORK_CONFIG_KEY  = "network-config"
)

type GeneralConfig struct {
	HTTPPort string
	HTTPHost string
	Env      string
	LogLevel string

	// OperatorToken guards the private and admin routes. Empty leaves them open.
	OperatorToken string
	RateLimit     float64
	RateBurst     int
}

func (gc *GeneralConfig) Key() string {
	return GENERAL_CONFIG_KEY
}

func (gc *GeneralConfig) Load() error {
	gc.HTTPPort = common.GetEnvOrDefault("HTTP_PORT", "8080")
	gc.HTTPHost = common.GetEnvOrDefault("HTTP_HOST", "localhost")
	gc.Env = strings.ToLower(common.GetEnvOrDefault("ENV", DevEnv))
	if gc.Env == "production" {
		gc.Env = ProdEnv
	}
	gc.LogLevel = common.GetEnvOrDefault("LOG_LEVEL", "INFO")
	gc.OperatorToken = common.GetEnvOrDefault("OPERATOR_TOKEN", "")

	var err error
	if gc.RateLimit, err = strconv.ParseFloat(common.GetEnvOrDefault("RATE_LIMIT_RPS", "10"), 64); err != nil {
		return fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err)
	}
	if gc.RateBurst, err = strconv.Atoi(common.GetEnvOrDefault("RATE_LIMIT_BURST", "20")); err != nil {
		return fmt.Errorf("invalid RATE_LIMIT_BURST: %w", err)
	}
	return gc.Validate()
}

func (gc *GeneralConfig) Validate() error {
	if gc.HTTPPort == "" || gc.HTTPHost == "" || gc.Env == "" {
		return errors.New("invalid server config")
	}
	if gc.Env != DevEnv && gc.Env != ProdEnv {
		return errors.New("ENV must be dev or prod")
	}
	if gc.RateLimit <= 0 || gc.RateBurst < 1 {
		return errors.New("rate limit must be positive")
	}
	return nil
}
