package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/andrew-solarstorm/go-packages/common"
)

type CoSignerConfig struct {
	// BaseURL may be empty; co-signed operations are then rejected.
	BaseURL string
	Timeout time.Duration
	// RequestsPerSecond throttles outgoing co-sign requests.
	RequestsPerSecond int
}

func (c *CoSignerConfig) Key() string {
	return COSIGNER_CONFIG_KEY
}

func (c *CoSignerConfig) Load() error {
	c.BaseURL = strings.TrimRight(os.Getenv("COSIGNER_URL"), "/")
	c.Timeout = time.Duration(common.GetEnvOrDefaultInt("COSIGNER_TIMEOUT_MS", 30000)) * time.Millisecond
	c.RequestsPerSecond = common.GetEnvOrDefaultInt("COSIGNER_RPS", 5)
	return c.Validate()
}

func (c *CoSignerConfig) Validate() error {
	if c.Timeout <= 0 || c.RequestsPerSecond <= 0 {
		return errors.New("invalid co-signer limits")
	}
	return nil
}
