package config

import (
	"errors"
	"time"

	"github.com/andrew-solarstorm/go-packages/common"
)

const LUT_CONFIG_KEY = "lut-config"

type LUTConfig struct {
	// DBPath is the bolt file holding signer -> table handles.
	// Default: "./data/lookup-tables.db"
	DBPath string

	// ActivationRetries bounds how often a freshly created table is re-read
	// before it is reported as not active.
	ActivationRetries int

	// ActivationDelay is the wait between those re-reads.
	ActivationDelay time.Duration
}

func (c *LUTConfig) Key() string {
	return LUT_CONFIG_KEY
}

func (c *LUTConfig) Load() error {
	c.DBPath = common.GetEnvOrDefault("LUT_DB_PATH", "./data/lookup-tables.db")
	c.ActivationRetries = common.GetEnvOrDefaultInt("LUT_ACTIVATION_RETRIES", 5)
	c.ActivationDelay = time.Duration(common.GetEnvOrDefaultInt("LUT_ACTIVATION_DELAY_MS", 800)) * time.Millisecond
	return c.Validate()
}

func (c *LUTConfig) Validate() error {
	if c.DBPath == "" {
		return errors.New("LUT_DB_PATH is required")
	}
	if c.ActivationRetries < 1 {
		return errors.New("LUT_ACTIVATION_RETRIES must be at least 1")
	}
	return nil
}
