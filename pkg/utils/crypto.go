package utils

import (
	"crypto/ecdsa"
	"math/big"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

var hashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

var (
	secp256k1N     = crypto.S256().Params().N
	secp256k1HalfN = new(big.Int).Rsh(secp256k1N, 1)
)

// GenerateID returns a random identifier for events and alerts.
func GenerateID() string {
	return uuid.NewString()
}

// IsValidAddress checks if a string is a valid hex address
func IsValidAddress(address string) bool {
	return common.IsHexAddress(address)
}

// IsValidHash checks for a 0x-prefixed 32-byte hex string.
func IsValidHash(h string) bool {
	return hashPattern.MatchString(h)
}

// NormalizeAddress normalizes an address to lowercase with 0x prefix
func NormalizeAddress(address string) string {
	if !strings.HasPrefix(address, "0x") {
		address = "0x" + address
	}
	return strings.ToLower(address)
}

// TemplateID derives the identifier of a named template: keccak256 of the
// UTF-8 name bytes.
func TemplateID(name string) common.Hash {
	return crypto.Keccak256Hash([]byte(name))
}

// CanonicalSignature returns sig with s in the lower half of the curve
// order and v in {27, 28}. Every encoding that recovers the same signer for
// the same message maps to the same bytes. Signatures of the wrong length
// are returned unchanged.
func CanonicalSignature(sig []byte) []byte {
	out := append([]byte(nil), sig...)
	if len(out) != crypto.SignatureLength {
		return out
	}
	v := out[crypto.RecoveryIDOffset]
	if v >= 27 {
		v -= 27
	}
	s := new(big.Int).SetBytes(out[32:64])
	if s.Cmp(secp256k1HalfN) > 0 {
		s.Sub(secp256k1N, s)
		s.FillBytes(out[32:64])
		v ^= 1
	}
	out[crypto.RecoveryIDOffset] = v + 27
	return out
}

// SignatureHash is the key under which a signature is tracked for
// revocation. It hashes the canonical encoding.
func SignatureHash(sig []byte) common.Hash {
	return crypto.Keccak256Hash(CanonicalSignature(sig))
}

// SignMessageHash produces a 65-byte personal-message signature over hash
// with v in {27, 28}.
func SignMessageHash(key *ecdsa.PrivateKey, hash common.Hash) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(hash.Bytes()), key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// RecoverMessageSigner recovers the signer of a personal-message signature
// over hash. Both {0,1} and {27,28} recovery ids are accepted; high-s
// signatures are not.
func RecoverMessageSigner(hash common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, NewAppError(ErrCodeSignatureInvalid, "Invalid signature length")
	}
	normalized := make([]byte, len(sig))
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}
	r := new(big.Int).SetBytes(normalized[:32])
	s := new(big.Int).SetBytes(normalized[32:64])
	if !crypto.ValidateSignatureValues(normalized[crypto.RecoveryIDOffset], r, s, true) {
		return common.Address{}, NewAppError(ErrCodeSignatureInvalid, "Invalid signature values")
	}
	pub, err := crypto.SigToPub(accounts.TextHash(hash.Bytes()), normalized)
	if err != nil {
		return common.Address{}, NewAppError(ErrCodeSignatureInvalid, "Signature recovery failed", err.Error())
	}
	return crypto.PubkeyToAddress(*pub), nil
}
