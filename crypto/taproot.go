package crypto

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// NetParams returns the chain parameters for a network name.
func NetParams(network string) (*chaincfg.Params, error) {
	switch network {
	case "", "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet", "testnet3":
		return &chaincfg.TestNet3Params, nil
	case "signet":
		return &chaincfg.SigNetParams, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, fmt.Errorf("unknown network %q", network)
	}
}

// TweakedKey is the BIP-86 output key for a key-path-only taproot output.
func TweakedKey(internal *btcec.PublicKey) *btcec.PublicKey {
	return txscript.ComputeTaprootKeyNoScript(internal)
}

// TaprootAddress encodes the key-path-only taproot address of internal.
func TaprootAddress(internal *btcec.PublicKey, params *chaincfg.Params) (*btcutil.AddressTaproot, error) {
	return btcutil.NewAddressTaproot(schnorr.SerializePubKey(TweakedKey(internal)), params)
}

// TaprootScript returns the witness program script paying to internal.
func TaprootScript(internal *btcec.PublicKey) ([]byte, error) {
	return txscript.PayToTaprootScript(TweakedKey(internal))
}
