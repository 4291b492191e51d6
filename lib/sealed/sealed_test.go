// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newKeypair(t *testing.T) *Keypair {
	t.Helper()
	keypair, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	t.Cleanup(func() { keypair.Close() })
	return keypair
}

func TestGenerateKeypair(t *testing.T) {
	keypair := newKeypair(t)
	if !strings.HasPrefix(keypair.PrivateKey.String(), "AGE-SECRET-KEY-1") {
		t.Error("private key lacks AGE-SECRET-KEY-1 prefix")
	}
	if !strings.HasPrefix(keypair.PublicKey, "age1") {
		t.Errorf("PublicKey = %q, want age1 prefix", keypair.PublicKey)
	}
	recipient, err := Recipient(keypair.PrivateKey)
	if err != nil {
		t.Fatalf("Recipient: %v", err)
	}
	if recipient != keypair.PublicKey {
		t.Errorf("Recipient = %q, want %q", recipient, keypair.PublicKey)
	}
}

func TestSealOpen(t *testing.T) {
	keypair := newKeypair(t)
	plaintext := []byte("signing keys at rest")

	tests := []struct {
		name string
		seal func([]byte, []string) ([]byte, error)
	}{
		{"binary", Seal},
		{"armored", SealArmored},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ciphertext, err := tt.seal(plaintext, []string{keypair.PublicKey})
			if err != nil {
				t.Fatalf("seal: %v", err)
			}
			if bytes.Contains(ciphertext, plaintext) {
				t.Fatal("ciphertext contains plaintext")
			}
			opened, err := Open(ciphertext, keypair.PrivateKey)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer opened.Close()
			if !opened.Equal(plaintext) {
				t.Errorf("Open = %q, want %q", opened.String(), plaintext)
			}
		})
	}
}

func TestArmoredIsText(t *testing.T) {
	keypair := newKeypair(t)
	ciphertext, err := SealArmored([]byte("x"), []string{keypair.PublicKey})
	if err != nil {
		t.Fatalf("SealArmored: %v", err)
	}
	if !strings.HasPrefix(string(ciphertext), "-----BEGIN AGE ENCRYPTED FILE-----") {
		t.Errorf("armored output starts %q", ciphertext[:20])
	}
}

func TestOpenWrongKey(t *testing.T) {
	owner := newKeypair(t)
	stranger := newKeypair(t)
	ciphertext, err := Seal([]byte("private"), []string{owner.PublicKey})
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := Open(ciphertext, stranger.PrivateKey); err == nil {
		t.Error("Open with the wrong identity succeeded")
	}
}

func TestSealErrors(t *testing.T) {
	if _, err := Seal([]byte("x"), nil); !errors.Is(err, ErrNoRecipients) {
		t.Errorf("Seal(no recipients) error = %v, want ErrNoRecipients", err)
	}
	if _, err := Seal([]byte("x"), []string{"age1notakey"}); err == nil {
		t.Error("Seal(invalid recipient) succeeded")
	}
	if err := ParsePublicKey("nope"); err == nil {
		t.Error("ParsePublicKey(nope) succeeded")
	}
}

func TestIdentityFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "identity")

	created, isNew, err := LoadOrCreateIdentity(path)
	if err != nil {
		t.Fatalf("LoadOrCreateIdentity: %v", err)
	}
	defer created.Close()
	if !isNew {
		t.Error("first call did not create an identity")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if mode := info.Mode().Perm(); mode != 0o600 {
		t.Errorf("identity mode = %o, want 600", mode)
	}

	loaded, isNew, err := LoadOrCreateIdentity(path)
	if err != nil {
		t.Fatalf("second LoadOrCreateIdentity: %v", err)
	}
	defer loaded.Close()
	if isNew {
		t.Error("second call created a new identity")
	}
	if loaded.PublicKey != created.PublicKey {
		t.Errorf("loaded PublicKey = %q, want %q", loaded.PublicKey, created.PublicKey)
	}
}
