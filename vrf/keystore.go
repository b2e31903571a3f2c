package vrf

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"os"

	atomiqcrypto "github.com/atomiq/atomiq/crypto"
	"golang.org/x/crypto/pbkdf2"
)

// keystoreFile is the on-disk encrypted export format, grounded on the
// teacher's validator keystore (wallet/keystore.go): PBKDF2-SHA256 key
// derivation, AES-GCM sealing. This is a side channel for operators who
// want to back the signer identity up off the live KV store; the running
// engine always loads its keypair from storage's "vrf:keypair" row, never
// from an exported file.
type keystoreFile struct {
	PublicKey  string `json:"public_key"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	CipherText string `json:"cipher_text"`
}

// ExportEncrypted writes the Engine's seed to path, encrypted under
// password.
func (e *Engine) ExportEncrypted(path, password string) error {
	e.mu.RLock()
	seed := e.seed
	pub := e.pub
	e.mu.RUnlock()

	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return err
	}
	key := deriveKey(password, salt)

	block, err := aes.NewCipher(key)
	if err != nil {
		return err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return err
	}
	cipherText := gcm.Seal(nil, nonce, seed[:], nil)

	ks := keystoreFile{
		PublicKey:  pub.Hex(),
		Salt:       hex.EncodeToString(salt),
		Nonce:      hex.EncodeToString(nonce),
		CipherText: hex.EncodeToString(cipherText),
	}
	data, err := json.MarshalIndent(ks, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// ImportEncrypted decrypts a keystore file written by ExportEncrypted and
// returns the recovered seed, without touching any live Engine or store.
func ImportEncrypted(path, password string) (atomiqcrypto.Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return atomiqcrypto.Seed{}, err
	}
	var ks keystoreFile
	if err := json.Unmarshal(data, &ks); err != nil {
		return atomiqcrypto.Seed{}, err
	}
	salt, err := hex.DecodeString(ks.Salt)
	if err != nil {
		return atomiqcrypto.Seed{}, err
	}
	nonce, err := hex.DecodeString(ks.Nonce)
	if err != nil {
		return atomiqcrypto.Seed{}, err
	}
	cipherText, err := hex.DecodeString(ks.CipherText)
	if err != nil {
		return atomiqcrypto.Seed{}, err
	}

	key := deriveKey(password, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return atomiqcrypto.Seed{}, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return atomiqcrypto.Seed{}, err
	}
	seedBytes, err := gcm.Open(nil, nonce, cipherText, nil)
	if err != nil {
		return atomiqcrypto.Seed{}, errors.New("vrf: wrong password or corrupted keystore")
	}
	return atomiqcrypto.SeedFromBytes(seedBytes)
}

func deriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, 210_000, 32, sha256.New)
}
