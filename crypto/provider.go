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

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"

	"github.com/vaultsync/vaultsync/internal/logger"
	"github.com/vaultsync/vaultsync/internal/metrics"
	"github.com/vaultsync/vaultsync/vaulterr"
)

const (
	rsaKeyBits  = 4096
	saltBytes   = 16
	kekBytes    = 64
	syncKeyLen  = 32
	aesKeySize  = 32 // first 32 bytes of the 64-byte KEK
	pemBlockKey = "RSA PRIVATE KEY"
)

// nativeProvider is the default Provider, backed entirely by the Go
// standard library plus golang.org/x/crypto/argon2.
type nativeProvider struct {
	params Argon2Params
}

// NewProvider returns the default crypto.Provider using spec-mandated
// Argon2id cost parameters.
func NewProvider() Provider {
	return &nativeProvider{params: DefaultArgon2Params}
}

// NewProviderWithParams allows overriding Argon2 cost, used in tests to
// keep derivation fast.
func NewProviderWithParams(params Argon2Params) Provider {
	return &nativeProvider{params: params}
}

func (p *nativeProvider) deriveKEKBytes(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, p.params.Iterations, p.params.MemoryKiB, p.params.Parallelism, kekBytes)
}

func (p *nativeProvider) DeriveKEK(password string, salt []byte) ([]byte, error) {
	start := time.Now()
	kek := p.deriveKEKBytes(password, salt)
	metrics.KeyDerivations.WithLabelValues("passphrase_unlock").Inc()
	metrics.KeyDerivationDuration.WithLabelValues("passphrase_unlock").Observe(time.Since(start).Seconds())
	return kek, nil
}

func (p *nativeProvider) CreateKeys(password string) (*KeyMaterial, error) {
	salt, err := p.RandomBytes(saltBytes)
	if err != nil {
		return nil, vaulterr.New(vaulterr.KindCrypto, "failed to generate salt", err)
	}

	start := time.Now()
	kek := p.deriveKEKBytes(password, salt)
	metrics.KeyDerivations.WithLabelValues("passphrase_unlock").Inc()
	metrics.KeyDerivationDuration.WithLabelValues("passphrase_unlock").Observe(time.Since(start).Seconds())

	priv, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, vaulterr.New(vaulterr.KindCrypto, "failed to generate RSA keypair", err)
	}

	encryptedPriv, err := p.WrapPrivateKey(priv, kek)
	if err != nil {
		return nil, err
	}

	symKey, err := p.RandomBytes(aesKeySize)
	if err != nil {
		return nil, vaulterr.New(vaulterr.KindCrypto, "failed to generate symmetric key", err)
	}

	encryptedSymKey, err := p.Encrypt(&priv.PublicKey, symKey)
	if err != nil {
		return nil, err
	}

	logger.Debug("vault keys created", logger.String("component", "crypto"))

	return &KeyMaterial{
		Salt:                  salt,
		PrivateKey:            priv,
		PublicKey:             &priv.PublicKey,
		SymmetricKey:          symKey,
		EncryptedPrivateKey:   encryptedPriv,
		EncryptedSymmetricKey: encryptedSymKey,
	}, nil
}

// WrapPrivateKey implements the spec's "PBE-AES256" wrap using the
// provider's own AES-256-CBC rather than the deprecated
// x509.EncryptPEMBlock: marshal to PKCS8, PEM-encode, AES-256-CBC encrypt
// under the first 32 bytes of the KEK.
func (p *nativeProvider) WrapPrivateKey(priv *rsa.PrivateKey, kek []byte) (string, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		metrics.AsymmetricOps.WithLabelValues("wrap_private_key", "error").Inc()
		return "", vaulterr.New(vaulterr.KindCrypto, "failed to marshal private key", err)
	}
	block := &pem.Block{Type: pemBlockKey, Bytes: der}
	plaintext := pem.EncodeToMemory(block)

	wrapped, err := p.EncryptSymmetric(kekAESKey(kek), plaintext)
	if err != nil {
		metrics.AsymmetricOps.WithLabelValues("wrap_private_key", "error").Inc()
		return "", err
	}
	metrics.AsymmetricOps.WithLabelValues("wrap_private_key", "ok").Inc()
	return wrapped, nil
}

func (p *nativeProvider) UnwrapPrivateKey(encrypted string, kek []byte) (*rsa.PrivateKey, error) {
	plaintext, err := p.DecryptSymmetric(kekAESKey(kek), encrypted)
	if err != nil {
		metrics.AsymmetricOps.WithLabelValues("unwrap_private_key", "error").Inc()
		return nil, vaulterr.New(vaulterr.KindAuthentication, "failed to unwrap private key, wrong passphrase?", err)
	}

	block, _ := pem.Decode(plaintext)
	if block == nil {
		metrics.AsymmetricOps.WithLabelValues("unwrap_private_key", "error").Inc()
		return nil, vaulterr.New(vaulterr.KindCrypto, "malformed private key PEM", nil)
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		metrics.AsymmetricOps.WithLabelValues("unwrap_private_key", "error").Inc()
		return nil, vaulterr.New(vaulterr.KindCrypto, "failed to parse private key", err)
	}
	priv, ok := key.(*rsa.PrivateKey)
	if !ok {
		metrics.AsymmetricOps.WithLabelValues("unwrap_private_key", "error").Inc()
		return nil, vaulterr.New(vaulterr.KindCrypto, "private key is not RSA", nil)
	}
	metrics.AsymmetricOps.WithLabelValues("unwrap_private_key", "ok").Inc()
	return priv, nil
}

func (p *nativeProvider) UnwrapSymmetricKey(encrypted string, priv *rsa.PrivateKey) ([]byte, error) {
	return p.Decrypt(priv, encrypted)
}

func (p *nativeProvider) Encrypt(pub *rsa.PublicKey, plaintext []byte) (string, error) {
	ciphertext, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, plaintext, nil)
	if err != nil {
		metrics.AsymmetricOps.WithLabelValues("encrypt", "error").Inc()
		return "", vaulterr.New(vaulterr.KindCrypto, "RSA-OAEP encryption failed", err)
	}
	metrics.AsymmetricOps.WithLabelValues("encrypt", "ok").Inc()
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (p *nativeProvider) Decrypt(priv *rsa.PrivateKey, ciphertext string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		metrics.AsymmetricOps.WithLabelValues("decrypt", "error").Inc()
		return nil, vaulterr.New(vaulterr.KindCrypto, "invalid base64 ciphertext", err)
	}
	plaintext, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, raw, nil)
	if err != nil {
		metrics.AsymmetricOps.WithLabelValues("decrypt", "error").Inc()
		return nil, vaulterr.New(vaulterr.KindCrypto, "RSA-OAEP decryption failed", err)
	}
	metrics.AsymmetricOps.WithLabelValues("decrypt", "ok").Inc()
	return plaintext, nil
}

func (p *nativeProvider) EncryptSymmetric(key, plaintext []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		metrics.SymmetricOps.WithLabelValues("encrypt", "error").Inc()
		return "", vaulterr.New(vaulterr.KindCrypto, "failed to create AES cipher", err)
	}

	padded := pkcs7Pad(plaintext, block.BlockSize())

	iv, err := p.RandomBytes(block.BlockSize())
	if err != nil {
		metrics.SymmetricOps.WithLabelValues("encrypt", "error").Inc()
		return "", vaulterr.New(vaulterr.KindCrypto, "failed to generate IV", err)
	}

	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	metrics.SymmetricOps.WithLabelValues("encrypt", "ok").Inc()
	return base64.StdEncoding.EncodeToString(iv) + ":" + base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (p *nativeProvider) DecryptSymmetric(key []byte, ciphertext string) ([]byte, error) {
	parts := strings.SplitN(ciphertext, ":", 2)
	if len(parts) != 2 {
		metrics.SymmetricOps.WithLabelValues("decrypt", "error").Inc()
		return nil, vaulterr.New(vaulterr.KindCrypto, "malformed ciphertext, expected iv:ciphertext", nil)
	}

	iv, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		metrics.SymmetricOps.WithLabelValues("decrypt", "error").Inc()
		return nil, vaulterr.New(vaulterr.KindCrypto, "invalid base64 IV", err)
	}
	raw, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		metrics.SymmetricOps.WithLabelValues("decrypt", "error").Inc()
		return nil, vaulterr.New(vaulterr.KindCrypto, "invalid base64 ciphertext", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		metrics.SymmetricOps.WithLabelValues("decrypt", "error").Inc()
		return nil, vaulterr.New(vaulterr.KindCrypto, "failed to create AES cipher", err)
	}
	if len(raw) == 0 || len(raw)%block.BlockSize() != 0 {
		metrics.SymmetricOps.WithLabelValues("decrypt", "error").Inc()
		return nil, vaulterr.New(vaulterr.KindCrypto, "ciphertext is not a multiple of the block size", nil)
	}

	plaintext := make([]byte, len(raw))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, raw)

	unpadded, err := pkcs7Unpad(plaintext, block.BlockSize())
	if err != nil {
		metrics.SymmetricOps.WithLabelValues("decrypt", "error").Inc()
		return nil, vaulterr.New(vaulterr.KindCrypto, "invalid padding, wrong key?", err)
	}

	metrics.SymmetricOps.WithLabelValues("decrypt", "ok").Inc()
	return unpadded, nil
}

func (p *nativeProvider) CreateSyncKey(sharedSecret, salt []byte) (string, error) {
	start := time.Now()
	key := argon2.IDKey(sharedSecret, salt, p.params.Iterations, p.params.MemoryKiB, p.params.Parallelism, syncKeyLen)
	metrics.KeyDerivations.WithLabelValues("sync_key").Inc()
	metrics.KeyDerivationDuration.WithLabelValues("sync_key").Observe(time.Since(start).Seconds())
	return base64.StdEncoding.EncodeToString(key), nil
}

func (p *nativeProvider) RandomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, vaulterr.New(vaulterr.KindCrypto, "failed to read random bytes", err)
	}
	return buf, nil
}

// kekAESKey takes the first 32 bytes of a 64-byte Argon2id KEK to use as an
// AES-256 key.
func kekAESKey(kek []byte) []byte {
	if len(kek) < aesKeySize {
		return kek
	}
	return kek[:aesKeySize]
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padding := make([]byte, padLen)
	for i := range padding {
		padding[i] = byte(padLen)
	}
	return append(append([]byte{}, data...), padding...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, vaulterr.New(vaulterr.KindCrypto, "empty plaintext", nil)
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, vaulterr.New(vaulterr.KindCrypto, "invalid PKCS7 padding length", nil)
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, vaulterr.New(vaulterr.KindCrypto, "invalid PKCS7 padding bytes", nil)
		}
	}
	return data[:len(data)-padLen], nil
}
