package crypto

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func sampleCreds() CredentialSet {
	return CredentialSet{
		"binance": {APIKey: "key-1", APISecret: "secret-1"},
		"okx":     {APIKey: "key-2", APISecret: "secret-2", Passphrase: "phrase"},
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	blob, err := EncryptCredentials(sampleCreds(), "hunter2")
	if err != nil {
		t.Fatalf("EncryptCredentials: %v", err)
	}

	got, err := DecryptCredentials(blob, "hunter2")
	if err != nil {
		t.Fatalf("DecryptCredentials: %v", err)
	}
	if got["binance"].APIKey != "key-1" || got["okx"].Passphrase != "phrase" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestDecryptWrongPassword(t *testing.T) {
	blob, err := EncryptCredentials(sampleCreds(), "hunter2")
	if err != nil {
		t.Fatalf("EncryptCredentials: %v", err)
	}

	if _, err := DecryptCredentials(blob, "hunter3"); err == nil {
		t.Fatal("expected failure with wrong password")
	} else if !strings.Contains(err.Error(), "wrong password") {
		t.Fatalf("err = %v, want wrong-password hint", err)
	}
}

func TestEncryptEmptyPassword(t *testing.T) {
	if _, err := EncryptCredentials(sampleCreds(), ""); err == nil {
		t.Fatal("expected error for empty password")
	}
}

func TestEncryptEmptyCredentialSet(t *testing.T) {
	if _, err := EncryptCredentials(CredentialSet{}, "hunter2"); err == nil {
		t.Fatal("expected error for empty credential set")
	}
}

func TestDecryptDetectsTampering(t *testing.T) {
	blob, err := EncryptCredentials(sampleCreds(), "hunter2")
	if err != nil {
		t.Fatalf("EncryptCredentials: %v", err)
	}

	var stored struct {
		Version    int    `json:"version"`
		Salt       string `json:"salt"`
		Nonce      string `json:"nonce"`
		Ciphertext string `json:"ciphertext"`
	}
	if err := json.Unmarshal(blob, &stored); err != nil {
		t.Fatal(err)
	}
	ct, err := base64.StdEncoding.DecodeString(stored.Ciphertext)
	if err != nil {
		t.Fatal(err)
	}
	ct[0] ^= 0xff
	stored.Ciphertext = base64.StdEncoding.EncodeToString(ct)
	tampered, err := json.Marshal(stored)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := DecryptCredentials(tampered, "hunter2"); err == nil {
		t.Fatal("GCM must reject a flipped ciphertext byte")
	}
}

func TestDecryptUnsupportedVersion(t *testing.T) {
	blob := []byte(`{"version": 99, "salt": "", "nonce": "", "ciphertext": ""}`)
	if _, err := DecryptCredentials(blob, "hunter2"); err == nil || !strings.Contains(err.Error(), "unsupported version") {
		t.Fatalf("err = %v, want unsupported version", err)
	}
}

func TestLoadCredentials(t *testing.T) {
	blob, err := EncryptCredentials(sampleCreds(), "hunter2")
	if err != nil {
		t.Fatalf("EncryptCredentials: %v", err)
	}
	path := filepath.Join(t.TempDir(), "creds.enc.json")
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := LoadCredentials(path, "hunter2")
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d credentials, want 2", len(got))
	}

	if _, err := LoadCredentials(filepath.Join(t.TempDir(), "missing.json"), "hunter2"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
