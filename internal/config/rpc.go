package config

import (
	"errors"
	"os"
	"time"

	"github.com/andrew-solarstorm/go-packages/common"
)

type RPCConfig struct {
	RPCUrl string
	// Timeout bounds every single ledger call.
	Timeout time.Duration
	// ConfirmPollInterval is the delay between signature status polls.
	ConfirmPollInterval time.Duration
}

func (r *RPCConfig) Key() string {
	return RPC_CONFIG_KEY
}

func (r *RPCConfig) Load() error {
	r.RPCUrl = os.Getenv("RPC_URL")
	r.Timeout = time.Duration(common.GetEnvOrDefaultInt("RPC_TIMEOUT_MS", 15000)) * time.Millisecond
	r.ConfirmPollInterval = time.Duration(common.GetEnvOrDefaultInt("CONFIRM_POLL_INTERVAL_MS", 1000)) * time.Millisecond
	return r.Validate()
}

func (r *RPCConfig) Validate() error {
	if r.RPCUrl == "" {
		return errors.New("invalid rpc config")
	}
	if r.Timeout <= 0 || r.ConfirmPollInterval <= 0 {
		return errors.New("rpc timeouts must be positive")
	}
	return nil
}
