package flowcrypto

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"testing"
)

func encryptRequest(t *testing.T, pub *rsa.PublicKey, payload []byte) (EncryptedRequest, []byte, []byte) {
	t.Helper()

	aesKey := make([]byte, 16)
	iv := make([]byte, 16)
	if _, err := rand.Read(aesKey); err != nil {
		t.Fatal(err)
	}
	if _, err := rand.Read(iv); err != nil {
		t.Fatal(err)
	}

	sealed, err := gcmSeal(aesKey, iv, payload)
	if err != nil {
		t.Fatal(err)
	}
	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, aesKey, nil)
	if err != nil {
		t.Fatal(err)
	}

	return EncryptedRequest{
		EncryptedFlowData: base64.StdEncoding.EncodeToString(sealed),
		EncryptedAESKey:   base64.StdEncoding.EncodeToString(wrapped),
		EncryptedIV:       base64.StdEncoding.EncodeToString(iv),
	}, aesKey, iv
}

func TestDecryptRoundTrip(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	env, err := New(key)
	if err != nil {
		t.Fatal(err)
	}

	payload := []byte(`{"version":"3.0","action":"ping"}`)
	req, wantKey, wantIV := encryptRequest(t, &key.PublicKey, payload)

	clear, aesKey, iv, err := env.Decrypt(req)
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}
	if !bytes.Equal(clear, payload) {
		t.Errorf("payload mismatch: got %s", clear)
	}
	if !bytes.Equal(aesKey, wantKey) || !bytes.Equal(iv, wantIV) {
		t.Error("returned key material does not match the request's")
	}
}

func TestEncryptResponseUsesFlippedIV(t *testing.T) {
	key, _ := rsa.GenerateKey(rand.Reader, 2048)
	env, _ := New(key)

	req, _, _ := encryptRequest(t, &key.PublicKey, []byte(`{"action":"ping"}`))
	_, aesKey, iv, err := env.Decrypt(req)
	if err != nil {
		t.Fatal(err)
	}

	response := []byte(`{"data":{"status":"active"}}`)
	body, err := EncryptResponse(response, aesKey, iv)
	if err != nil {
		t.Fatal(err)
	}

	sealed, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		t.Fatal(err)
	}

	// The platform decrypts with the complemented IV.
	clear, err := gcmOpen(aesKey, FlipIV(iv), sealed)
	if err != nil {
		t.Fatalf("platform-side decrypt failed: %v", err)
	}
	if !bytes.Equal(clear, response) {
		t.Errorf("response mismatch: got %s", clear)
	}

	// And nothing decrypts under the original IV.
	if _, err := gcmOpen(aesKey, iv, sealed); err == nil {
		t.Error("response must not decrypt under the request IV")
	}
}

func TestFlipIV(t *testing.T) {
	iv := []byte{0x00, 0xFF, 0xA5}
	got := FlipIV(iv)
	want := []byte{0xFF, 0x00, 0x5A}
	if !bytes.Equal(got, want) {
		t.Errorf("FlipIV = %x, want %x", got, want)
	}
	if !bytes.Equal(FlipIV(got), iv) {
		t.Error("FlipIV is not an involution")
	}
}

func TestDecryptTriesKeysInRecencyOrder(t *testing.T) {
	oldKey, _ := rsa.GenerateKey(rand.Reader, 2048)
	newKey, _ := rsa.GenerateKey(rand.Reader, 2048)
	env, err := New(newKey, oldKey)
	if err != nil {
		t.Fatal(err)
	}

	// A request still encrypted against the rotated-out key must decrypt.
	payload := []byte(`{"action":"init"}`)
	req, _, _ := encryptRequest(t, &oldKey.PublicKey, payload)

	clear, _, _, err := env.Decrypt(req)
	if err != nil {
		t.Fatalf("decrypt with old key failed: %v", err)
	}
	if !bytes.Equal(clear, payload) {
		t.Errorf("payload mismatch: got %s", clear)
	}
}

func TestDecryptRejectsUnknownKey(t *testing.T) {
	ours, _ := rsa.GenerateKey(rand.Reader, 2048)
	theirs, _ := rsa.GenerateKey(rand.Reader, 2048)
	env, _ := New(ours)

	req, _, _ := encryptRequest(t, &theirs.PublicKey, []byte("{}"))
	if _, _, _, err := env.Decrypt(req); err == nil {
		t.Error("expected decrypt failure for foreign key")
	}
}
