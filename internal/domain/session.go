package domain

import (
	"github.com/gagliardetto/solana-go"
)

// Session is the connected signer. Key is nil for read-only sessions.
type Session struct {
	Key *solana.PrivateKey
}

func (s *Session) Connected() bool {
	return s != nil && s.Key != nil
}

func (s *Session) PublicKey() solana.PublicKey {
	if !s.Connected() {
		return solana.PublicKey{}
	}
	return s.Key.PublicKey()
}
