// Package eth wraps the go-ethereum primitives used for wallet authentication:
// EIP-191 personal messages and address handling.
package eth

import (
	"crypto/ecdsa"
	"fmt"
	"regexp"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/credgate/core"
)

var addressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// IsAddress reports whether s is a 0x-prefixed 20-byte hex address.
func IsAddress(s string) bool {
	return addressPattern.MatchString(s)
}

// NormalizeAddress returns the EIP-55 checksummed form of s.
func NormalizeAddress(s string) (string, error) {
	if !IsAddress(s) {
		return "", core.ErrInvalidAddress
	}
	return common.HexToAddress(s).Hex(), nil
}

// SameAddress compares two addresses ignoring checksum casing.
func SameAddress(a, b string) bool {
	return IsAddress(a) && IsAddress(b) && common.HexToAddress(a) == common.HexToAddress(b)
}

// SignText produces a personal_sign signature over text, with v in {27, 28}.
func SignText(key *ecdsa.PrivateKey, text string) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash([]byte(text)), key)
	if err != nil {
		return "", fmt.Errorf("failed to sign message: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

// RecoverText returns the address that produced a personal_sign signature.
func RecoverText(text, signature string) (common.Address, error) {
	raw, err := hexutil.Decode(signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to decode signature: %w", core.ErrInvalidSignature)
	}
	if len(raw) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes: %w", crypto.SignatureLength, core.ErrInvalidSignature)
	}

	sig := make([]byte, len(raw))
	copy(sig, raw)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	if sig[crypto.RecoveryIDOffset] > 1 {
		return common.Address{}, fmt.Errorf("invalid recovery id: %w", core.ErrInvalidSignature)
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(text)), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", core.ErrInvalidSignature)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifyText checks that signature over text was made by address.
func VerifyText(text, signature, address string) error {
	if !IsAddress(address) {
		return core.ErrInvalidAddress
	}
	recovered, err := RecoverText(text, signature)
	if err != nil {
		return err
	}
	if recovered != common.HexToAddress(address) {
		return core.ErrInvalidSignature
	}
	return nil
}

// Keccak256Hex hashes data and returns the 0x-prefixed digest.
func Keccak256Hex(data []byte) string {
	return crypto.Keccak256Hash(data).Hex()
}
