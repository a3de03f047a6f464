package crypto

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// SignHash produces a BIP-340 signature over a 32-byte hash.
func SignHash(priv *btcec.PrivateKey, hash []byte) ([]byte, error) {
	sig, err := schnorr.Sign(priv, hash)
	if err != nil {
		return nil, err
	}
	return sig.Serialize(), nil
}

// VerifyHash checks a BIP-340 signature. A trailing sighash type byte is
// ignored.
func VerifyHash(pub *btcec.PublicKey, hash, sig []byte) error {
	if len(sig) == schnorr.SignatureSize+1 {
		sig = sig[:schnorr.SignatureSize]
	}
	parsed, err := schnorr.ParseSignature(sig)
	if err != nil {
		return fmt.Errorf("invalid signature: %w", err)
	}
	if !parsed.Verify(hash, pub) {
		return errors.New("signature verification failed")
	}
	return nil
}
