// Copyright (C) 2025 vaultsync contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package crypto implements the vault's primitive operations: RSA-4096-OAEP,
// AES-256-CBC, Argon2id key derivation, CSPRNG, and the symmetric sync-key
// derivation used by J-PAKE pairing.
package crypto

import "crypto/rsa"

// Argon2Params fixes the cost parameters every client in a sync group must
// agree on, since the wrapped private key is only decryptable by a KEK
// derived with the same parameters.
type Argon2Params struct {
	Parallelism uint8
	Iterations  uint32
	MemoryKiB   uint32
}

// DefaultArgon2Params matches spec: parallelism 1, 256 iterations, 512 MiB.
var DefaultArgon2Params = Argon2Params{
	Parallelism: 1,
	Iterations:  256,
	MemoryKiB:   512 * 1024,
}

// KeyMaterial is the per-vault cryptographic state created once at vault
// creation. The salt and encrypted blobs are regenerated on a passphrase
// change; the plaintext keys themselves persist across that rewrap.
type KeyMaterial struct {
	Salt                  []byte
	PrivateKey            *rsa.PrivateKey
	PublicKey             *rsa.PublicKey
	SymmetricKey          []byte
	EncryptedPrivateKey   string
	EncryptedSymmetricKey string
}

// Provider is the primitive operation surface, kept as an interface (rather
// than a concrete struct) so a WebCrypto-backed implementation can be
// swapped in on other build targets without touching callers.
type Provider interface {
	// CreateKeys derives a KEK from password over a fresh random salt,
	// generates an RSA-4096 keypair and an AES-256 symmetric key, and
	// returns the full KeyMaterial with the private key PBE-wrapped and
	// the symmetric key RSA-OAEP-wrapped under the new public key.
	CreateKeys(password string) (*KeyMaterial, error)

	// DeriveKEK derives the Argon2id KEK for an existing salt, e.g. to
	// unlock a previously persisted vault.
	DeriveKEK(password string, salt []byte) ([]byte, error)

	// WrapPrivateKey PBE-wraps an existing RSA private key under kek,
	// used to re-wrap the same keypair under a new KEK on passphrase
	// change without regenerating the keypair itself.
	WrapPrivateKey(priv *rsa.PrivateKey, kek []byte) (string, error)

	// UnwrapPrivateKey recovers the RSA private key from its PBE-AES256
	// encrypted form under kek.
	UnwrapPrivateKey(encrypted string, kek []byte) (*rsa.PrivateKey, error)

	// UnwrapSymmetricKey recovers the AES-256 session key via RSA-OAEP.
	UnwrapSymmetricKey(encrypted string, priv *rsa.PrivateKey) ([]byte, error)

	// Encrypt performs RSA-OAEP encryption, returning base64 ciphertext.
	Encrypt(pub *rsa.PublicKey, plaintext []byte) (string, error)

	// Decrypt is the RSA-OAEP inverse of Encrypt.
	Decrypt(priv *rsa.PrivateKey, ciphertext string) ([]byte, error)

	// EncryptSymmetric performs AES-256-CBC encryption with a random IV,
	// returning "base64(iv):base64(ciphertext)".
	EncryptSymmetric(key, plaintext []byte) (string, error)

	// DecryptSymmetric is the AES-256-CBC inverse of EncryptSymmetric.
	DecryptSymmetric(key []byte, ciphertext string) ([]byte, error)

	// CreateSyncKey derives a 32-byte base64 sync key from a J-PAKE shared
	// secret, using the same Argon2id parameters as CreateKeys.
	CreateSyncKey(sharedSecret, salt []byte) (string, error)

	// RandomBytes returns n cryptographically random bytes.
	RandomBytes(n int) ([]byte, error)
}
