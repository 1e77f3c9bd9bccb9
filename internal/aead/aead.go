/*
Copyright (C) 2024  Carl-Philip Hänsch

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU General Public License for more details.

    You should have received a copy of the GNU General Public License
    along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package aead derives a master key from a password and wraps
// AES-256-GCM so every on-disk byte except filenames can be sealed
// under it. Output is nonce(12) ‖ ciphertext‖tag, one fresh random
// nonce per call.
package aead

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"

	"github.com/wpdas/chaindb/internal/chainerr"
)

const (
	KeySize   = 32
	NonceSize = 12
)

// Cipher seals and opens plaintext under a key derived from a password.
type Cipher struct {
	key   [KeySize]byte
	gcm   cipher.AEAD
}

// New derives a 256-bit key from password via SHA-256 and builds the
// AES-256-GCM instance. It never fails: any password, including the
// empty string, produces a valid (if useless) key.
func New(password string) *Cipher {
	key := sha256.Sum256([]byte(password))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		// AES-256 key size is fixed and always valid here.
		panic(err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		panic(err)
	}
	return &Cipher{key: key, gcm: gcm}
}

// Encrypt seals plaintext with a fresh random nonce and returns
// nonce ‖ ciphertext‖tag.
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, chainerr.Wrap(chainerr.EncryptionError, "failed to read random nonce", err)
	}
	out := make([]byte, 0, NonceSize+len(plaintext)+c.gcm.Overhead())
	out = append(out, nonce...)
	out = c.gcm.Seal(out, nonce, plaintext, nil)
	return out, nil
}

// Decrypt splits the leading nonce and authenticates+decrypts the
// remainder. Any failure, including a too-short input, is reported as
// DecryptionError.
func (c *Cipher) Decrypt(data []byte) ([]byte, error) {
	if len(data) < NonceSize {
		return nil, chainerr.New(chainerr.DecryptionError, "invalid length")
	}
	nonce, ciphertext := data[:NonceSize], data[NonceSize:]
	plaintext, err := c.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, chainerr.Wrap(chainerr.DecryptionError, "authentication failed", err)
	}
	return plaintext, nil
}
