// Package wallet stores the pool master key encrypted on disk.
package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tolelom/cookiepool/crypto"
	"golang.org/x/crypto/pbkdf2"
)

const kdfRounds = 210_000

// ErrWrongPassword is returned when the keystore cannot be decrypted.
var ErrWrongPassword = errors.New("wrong password or corrupted keystore")

type keystoreFile struct {
	PubKey     string `json:"pub_key"`
	Rounds     int    `json:"kdf_rounds"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	CipherText string `json:"cipher_text"`
}

// SaveKey encrypts priv with password and writes it to path.
// Key derivation: PBKDF2-SHA256 over the password with a random salt.
func SaveKey(path, password string, priv crypto.PrivateKey) error {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return err
	}
	gcm, err := newGCM(password, salt, kdfRounds)
	if err != nil {
		return err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return err
	}
	pub := priv.Public().Hex()
	ks := keystoreFile{
		PubKey:     pub,
		Rounds:     kdfRounds,
		Salt:       hex.EncodeToString(salt),
		Nonce:      hex.EncodeToString(nonce),
		CipherText: hex.EncodeToString(gcm.Seal(nil, nonce, priv, []byte(pub))),
	}
	data, err := json.MarshalIndent(ks, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// LoadKey decrypts the keystore at path using password. The public key
// recorded next to the ciphertext is authenticated and must match.
func LoadKey(path, password string) (crypto.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ks keystoreFile
	if err := json.Unmarshal(data, &ks); err != nil {
		return nil, fmt.Errorf("keystore %s: %w", path, err)
	}
	salt, err := hex.DecodeString(ks.Salt)
	if err != nil {
		return nil, fmt.Errorf("keystore salt: %w", err)
	}
	nonce, err := hex.DecodeString(ks.Nonce)
	if err != nil {
		return nil, fmt.Errorf("keystore nonce: %w", err)
	}
	cipherText, err := hex.DecodeString(ks.CipherText)
	if err != nil {
		return nil, fmt.Errorf("keystore cipher text: %w", err)
	}
	rounds := ks.Rounds
	if rounds == 0 {
		rounds = kdfRounds
	}

	gcm, err := newGCM(password, salt, rounds)
	if err != nil {
		return nil, err
	}
	privBytes, err := gcm.Open(nil, nonce, cipherText, []byte(ks.PubKey))
	if err != nil {
		return nil, ErrWrongPassword
	}
	priv := crypto.PrivateKey(privBytes)
	if priv.Public().Hex() != ks.PubKey {
		return nil, fmt.Errorf("keystore %s: public key mismatch", path)
	}
	return priv, nil
}

func newGCM(password string, salt []byte, rounds int) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, rounds, 32, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
