// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"filippo.io/age"
	"filippo.io/age/armor"

	"github.com/bureau-foundation/nexus/lib/secret"
)

// ErrNoRecipients is returned by Seal when no recipient key is given.
var ErrNoRecipients = errors.New("sealed: at least one recipient is required")

// Keypair is an age x25519 identity and its public recipient string.
type Keypair struct {
	// PrivateKey is the AGE-SECRET-KEY-1... string. Never log it.
	PrivateKey *secret.Buffer

	// PublicKey is the age1... recipient string.
	PublicKey string
}

// Close releases the private key. Idempotent.
func (k *Keypair) Close() error {
	if k.PrivateKey != nil {
		return k.PrivateKey.Close()
	}
	return nil
}

// GenerateKeypair creates a fresh identity. The caller must Close it.
func GenerateKeypair() (*Keypair, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("sealed: generating identity: %w", err)
	}
	privateKey, err := secret.NewFromBytes([]byte(identity.String()))
	if err != nil {
		return nil, fmt.Errorf("sealed: protecting identity: %w", err)
	}
	return &Keypair{
		PrivateKey: privateKey,
		PublicKey:  identity.Recipient().String(),
	}, nil
}

// Recipient derives the public recipient string from a private key.
func Recipient(privateKey *secret.Buffer) (string, error) {
	identity, err := age.ParseX25519Identity(privateKey.String())
	if err != nil {
		return "", fmt.Errorf("sealed: invalid identity: %w", err)
	}
	return identity.Recipient().String(), nil
}

// Seal encrypts plaintext to every recipient in the binary age format.
func Seal(plaintext []byte, recipientKeys []string) ([]byte, error) {
	var ciphertext bytes.Buffer
	if err := seal(&ciphertext, plaintext, recipientKeys); err != nil {
		return nil, err
	}
	return ciphertext.Bytes(), nil
}

// SealArmored is Seal with ASCII armor.
func SealArmored(plaintext []byte, recipientKeys []string) ([]byte, error) {
	var ciphertext bytes.Buffer
	armored := armor.NewWriter(&ciphertext)
	if err := seal(armored, plaintext, recipientKeys); err != nil {
		return nil, err
	}
	if err := armored.Close(); err != nil {
		return nil, fmt.Errorf("sealed: closing armor: %w", err)
	}
	return ciphertext.Bytes(), nil
}

func seal(destination io.Writer, plaintext []byte, recipientKeys []string) error {
	if len(recipientKeys) == 0 {
		return ErrNoRecipients
	}
	recipients := make([]age.Recipient, 0, len(recipientKeys))
	for _, key := range recipientKeys {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return fmt.Errorf("sealed: parsing recipient %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}

	writer, err := age.Encrypt(destination, recipients...)
	if err != nil {
		return fmt.Errorf("sealed: creating encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return fmt.Errorf("sealed: writing plaintext: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("sealed: finalizing: %w", err)
	}
	return nil
}

// Open decrypts binary or armored ciphertext with privateKey, which is
// borrowed and not closed. The caller must Close the result.
func Open(ciphertext []byte, privateKey *secret.Buffer) (*secret.Buffer, error) {
	identity, err := age.ParseX25519Identity(privateKey.String())
	if err != nil {
		return nil, fmt.Errorf("sealed: invalid identity: %w", err)
	}

	source := bufio.NewReader(bytes.NewReader(ciphertext))
	var input io.Reader = source
	if start, _ := source.Peek(len(armor.Header)); string(start) == armor.Header {
		input = armor.NewReader(source)
	}

	reader, err := age.Decrypt(input, identity)
	if err != nil {
		return nil, fmt.Errorf("sealed: decrypting: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		secret.Zero(plaintext)
		return nil, fmt.Errorf("sealed: reading plaintext: %w", err)
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("sealed: empty plaintext")
	}
	return secret.NewFromBytes(plaintext)
}

// ParsePublicKey validates an age1... recipient string.
func ParsePublicKey(publicKey string) error {
	if _, err := age.ParseX25519Recipient(publicKey); err != nil {
		return fmt.Errorf("sealed: invalid public key: %w", err)
	}
	return nil
}
