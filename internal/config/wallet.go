package config

import (
	"fmt"
	"os"

	"github.com/gagliardetto/solana-go"
)

type WalletConfig struct {
	PrivateKey  string
	KeypairPath string

	key *solana.PrivateKey
}

func (w *WalletConfig) Key() string {
	return WALLET_CONFIG_KEY
}

func (w *WalletConfig) Load() error {
	w.PrivateKey = os.Getenv("WALLET_PRIVATE_KEY")
	w.KeypairPath = os.Getenv("WALLET_KEYPAIR_PATH")

	switch {
	case w.PrivateKey != "":
		k, err := solana.PrivateKeyFromBase58(w.PrivateKey)
		if err != nil {
			return fmt.Errorf("invalid WALLET_PRIVATE_KEY: %w", err)
		}
		w.key = &k
	case w.KeypairPath != "":
		k, err := solana.PrivateKeyFromSolanaKeygenFile(w.KeypairPath)
		if err != nil {
			return fmt.Errorf("invalid WALLET_KEYPAIR_PATH: %w", err)
		}
		w.key = &k
	}
	return w.Validate()
}

func (w *WalletConfig) Validate() error {
	return nil
}

// Signer returns the configured wallet key, or nil when none is configured.
func (w *WalletConfig) Signer() *solana.PrivateKey {
	return w.key
}
