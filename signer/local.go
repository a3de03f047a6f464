// Package signer signs pool inputs of partially signed transactions with
// keys derived from a locally held master key.
package signer

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	log "github.com/sirupsen/logrus"
	"github.com/tolelom/cookiepool/core"
	"github.com/tolelom/cookiepool/crypto"
)

// Local signs with a master key held in process memory.
type Local struct {
	master crypto.PrivateKey
}

// NewLocal creates a signer for master.
func NewLocal(master crypto.PrivateKey) *Local {
	return &Local{master: master}
}

// PoolKey returns the untweaked public key for derivation.
func (s *Local) PoolKey(ctx context.Context, derivation []byte) (*btcec.PublicKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.master.Derive(derivation).PubKey(), nil
}

// Sign adds a taproot key-spend signature to every input of the hex PSBT
// that spends one of consumed, and returns the updated PSBT as hex.
// Inputs not owned by the pool must already carry their witness utxo.
func (s *Local) Sign(ctx context.Context, txHex string, consumed []core.Utxo, derivation []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	raw, err := hex.DecodeString(txHex)
	if err != nil {
		return "", fmt.Errorf("decode psbt hex: %w", err)
	}
	packet, err := psbt.NewFromRawBytes(bytes.NewReader(raw), false)
	if err != nil {
		return "", fmt.Errorf("parse psbt: %w", err)
	}

	key := s.master.Derive(derivation)
	internal := key.PubKey()
	pkScript, err := crypto.TaprootScript(internal)
	if err != nil {
		return "", err
	}

	owned := make(map[wire.OutPoint]core.Utxo, len(consumed))
	for _, u := range consumed {
		op, err := u.WireOutPoint()
		if err != nil {
			return "", err
		}
		owned[op] = u
	}

	tx := packet.UnsignedTx
	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	var poolInputs []int
	for i, in := range tx.TxIn {
		pin := &packet.Inputs[i]
		if u, ok := owned[in.PreviousOutPoint]; ok {
			pin.WitnessUtxo = wire.NewTxOut(int64(u.Sats), pkScript)
			pin.TaprootInternalKey = schnorr.SerializePubKey(internal)
			poolInputs = append(poolInputs, i)
			delete(owned, in.PreviousOutPoint)
		}
		if pin.WitnessUtxo == nil {
			return "", fmt.Errorf("input %d (%s): missing witness utxo", i, in.PreviousOutPoint)
		}
		fetcher.AddPrevOut(in.PreviousOutPoint, pin.WitnessUtxo)
	}
	if len(owned) != 0 {
		return "", fmt.Errorf("%d consumed pool outpoint(s) not spent by the transaction", len(owned))
	}

	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	tweaked := crypto.TweakedKey(internal)
	for _, i := range poolInputs {
		sig, err := txscript.RawTxInTaprootSignature(tx, sigHashes, i,
			packet.Inputs[i].WitnessUtxo.Value, pkScript, nil, txscript.SigHashDefault, key)
		if err != nil {
			return "", fmt.Errorf("sign input %d: %w", i, err)
		}
		hash, err := txscript.CalcTaprootSignatureHash(sigHashes, txscript.SigHashDefault, tx, i, fetcher)
		if err != nil {
			return "", fmt.Errorf("sighash input %d: %w", i, err)
		}
		if err := crypto.VerifyHash(tweaked, hash, sig); err != nil {
			return "", fmt.Errorf("input %d: %w", i, err)
		}
		packet.Inputs[i].TaprootKeySpendSig = sig
	}

	var buf bytes.Buffer
	if err := packet.Serialize(&buf); err != nil {
		return "", fmt.Errorf("serialize psbt: %w", err)
	}
	log.WithFields(log.Fields{"component": "signer", "txid": tx.TxHash(), "inputs": len(poolInputs)}).
		Debug("signed pool inputs")
	return hex.EncodeToString(buf.Bytes()), nil
}
