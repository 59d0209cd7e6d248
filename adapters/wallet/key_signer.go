package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/credgate/internal/eth"
)

// KeySigner signs nonces with a local secp256k1 key, the way a wallet's
// personal_sign would.
type KeySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewKeySigner wraps an existing private key
func NewKeySigner(key *ecdsa.PrivateKey) *KeySigner {
	return &KeySigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}
}

// NewKeySignerFromHex parses a hex private key, with or without 0x
func NewKeySignerFromHex(hexKey string) (*KeySigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return NewKeySigner(key), nil
}

// Address returns the checksummed address of the key
func (s *KeySigner) Address() string {
	return s.address.Hex()
}

// SignNonce refuses to sign for any identity other than its own address
func (s *KeySigner) SignNonce(ctx context.Context, identity string, nonce string) (string, error) {
	if !eth.SameAddress(identity, s.address.Hex()) {
		return "", fmt.Errorf("key for %s cannot sign as %s", s.address.Hex(), identity)
	}
	return eth.SignText(s.key, nonce)
}

// SignText signs arbitrary text, e.g. the hash of an issued file
func (s *KeySigner) SignText(text string) (string, error) {
	return eth.SignText(s.key, text)
}
