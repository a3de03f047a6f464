package crypto

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
)

// PrivateKey wraps a 32-byte secp256k1 scalar.
type PrivateKey []byte

// PublicKey wraps a 33-byte compressed secp256k1 point.
type PublicKey []byte

// GenerateKeyPair generates a new secp256k1 key pair.
func GenerateKeyPair() (PrivateKey, PublicKey, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, nil, err
	}
	return PrivateKey(priv.Serialize()), PublicKey(priv.PubKey().SerializeCompressed()), nil
}

// Hex returns the hex-encoded compressed public key.
func (pub PublicKey) Hex() string {
	return hex.EncodeToString(pub)
}

// Key parses pub into a curve point.
func (pub PublicKey) Key() (*btcec.PublicKey, error) {
	return btcec.ParsePubKey(pub)
}

// Hex returns the hex-encoded private key.
func (priv PrivateKey) Hex() string {
	return hex.EncodeToString(priv)
}

// Key returns priv as a btcec key.
func (priv PrivateKey) Key() *btcec.PrivateKey {
	k, _ := btcec.PrivKeyFromBytes(priv)
	return k
}

// Public derives the compressed public key from the private key.
func (priv PrivateKey) Public() PublicKey {
	return PublicKey(priv.Key().PubKey().SerializeCompressed())
}

// Derive returns the child key for path: SHA-256(priv || path) reduced
// onto the curve order. The same master and path always give the same key.
func (priv PrivateKey) Derive(path []byte) *btcec.PrivateKey {
	k, _ := btcec.PrivKeyFromBytes(HashBytes(append(append([]byte{}, priv...), path...)))
	return k
}

// PubKeyFromHex decodes a hex-encoded compressed public key.
func PubKeyFromHex(s string) (PublicKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid pubkey hex: %w", err)
	}
	if len(b) != btcec.PubKeyBytesLenCompressed {
		return nil, fmt.Errorf("pubkey must be %d bytes, got %d", btcec.PubKeyBytesLenCompressed, len(b))
	}
	if _, err := btcec.ParsePubKey(b); err != nil {
		return nil, fmt.Errorf("invalid pubkey: %w", err)
	}
	return PublicKey(b), nil
}

// PrivKeyFromHex decodes a hex-encoded private key.
func PrivKeyFromHex(s string) (PrivateKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid privkey hex: %w", err)
	}
	if len(b) != btcec.PrivKeyBytesLen {
		return nil, fmt.Errorf("privkey must be %d bytes, got %d", btcec.PrivKeyBytesLen, len(b))
	}
	return PrivateKey(b), nil
}
