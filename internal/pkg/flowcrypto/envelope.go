package flowcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

var (
	ErrNoPrivateKey = errors.New("no private key configured")
	ErrDecrypt      = errors.New("failed to decrypt flow payload")
)

// EncryptedRequest is the body posted by the platform to the flow endpoint.
type EncryptedRequest struct {
	EncryptedFlowData string `json:"encrypted_flow_data"`
	EncryptedAESKey   string `json:"encrypted_aes_key"`
	EncryptedIV       string `json:"initial_vector"`
}

// Envelope decrypts flow requests and encrypts responses. It holds the
// business RSA private keys in recency order so decrypts keep working
// through a key rotation window.
type Envelope struct {
	keys []*rsa.PrivateKey
}

// New builds an envelope from one or more private keys, most recent first.
func New(keys ...*rsa.PrivateKey) (*Envelope, error) {
	var usable []*rsa.PrivateKey
	for _, k := range keys {
		if k != nil {
			usable = append(usable, k)
		}
	}
	if len(usable) == 0 {
		return nil, ErrNoPrivateKey
	}
	return &Envelope{keys: usable}, nil
}

// NewFromFiles loads PEM private keys from paths, most recent first. Empty
// paths are skipped.
func NewFromFiles(paths ...string) (*Envelope, error) {
	var keys []*rsa.PrivateKey
	for _, p := range paths {
		if p == "" {
			continue
		}
		k, err := LoadPrivateKey(p)
		if err != nil {
			return nil, fmt.Errorf("loading flow key %s: %w", p, err)
		}
		keys = append(keys, k)
	}
	return New(keys...)
}

// LoadPrivateKey reads a PKCS#1 or PKCS#8 PEM-encoded RSA private key.
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("PEM block is not an RSA private key")
	}
	return key, nil
}

// PublicKeyPEM returns the PEM encoding of the current public key, suitable
// for the platform's business-encryption upload endpoint.
func (e *Envelope) PublicKeyPEM() (string, error) {
	der, err := x509.MarshalPKIXPublicKey(&e.keys[0].PublicKey)
	if err != nil {
		return "", err
	}
	out := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	return string(out), nil
}

// Decrypt opens an encrypted flow request. It RSA-OAEP-unwraps the AES key
// with each private key in recency order, then AES-GCM-decrypts the payload.
// It returns the clear payload plus the AES key and IV needed to encrypt the
// response.
func (e *Envelope) Decrypt(req EncryptedRequest) (clear, aesKey, iv []byte, err error) {
	wrappedKey, err := base64.StdEncoding.DecodeString(req.EncryptedAESKey)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: bad aes key encoding", ErrDecrypt)
	}
	iv, err = base64.StdEncoding.DecodeString(req.EncryptedIV)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: bad iv encoding", ErrDecrypt)
	}
	data, err := base64.StdEncoding.DecodeString(req.EncryptedFlowData)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: bad payload encoding", ErrDecrypt)
	}

	for _, key := range e.keys {
		aesKey, err = rsa.DecryptOAEP(sha256.New(), rand.Reader, key, wrappedKey, nil)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: no key could unwrap the aes key", ErrDecrypt)
	}

	clear, err = gcmOpen(aesKey, iv, data)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return clear, aesKey, iv, nil
}

// EncryptResponse seals a response payload with the request's AES key and the
// bitwise complement of the request IV, returning the base64 body expected by
// the platform.
func EncryptResponse(payload, aesKey, requestIV []byte) (string, error) {
	sealed, err := gcmSeal(aesKey, FlipIV(requestIV), payload)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// FlipIV returns the bitwise inversion of every byte of iv.
func FlipIV(iv []byte) []byte {
	flipped := make([]byte, len(iv))
	for i, b := range iv {
		flipped[i] = ^b
	}
	return flipped
}

func gcmOpen(key, iv, data []byte) ([]byte, error) {
	aead, err := newGCM(key, len(iv))
	if err != nil {
		return nil, err
	}
	return aead.Open(nil, iv, data, nil)
}

func gcmSeal(key, iv, data []byte) ([]byte, error) {
	aead, err := newGCM(key, len(iv))
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, iv, data, nil), nil
}

func newGCM(key []byte, nonceSize int) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if nonceSize <= 0 {
		return nil, errors.New("empty iv")
	}
	return cipher.NewGCMWithNonceSize(block, nonceSize)
}
