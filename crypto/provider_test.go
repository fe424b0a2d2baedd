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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testParams trades the spec's 512 MiB / 256 iteration cost for a fast
// derivation so the suite doesn't spend seconds per test case.
var testParams = Argon2Params{Parallelism: 1, Iterations: 1, MemoryKiB: 8 * 1024}

func newTestProvider() Provider {
	return NewProviderWithParams(testParams)
}

func TestCreateKeysRoundTrip(t *testing.T) {
	p := newTestProvider()

	km, err := p.CreateKeys("correct horse battery staple")
	require.NoError(t, err)
	assert.Len(t, km.Salt, saltBytes)
	assert.NotEmpty(t, km.EncryptedPrivateKey)
	assert.NotEmpty(t, km.EncryptedSymmetricKey)

	kek, err := p.DeriveKEK("correct horse battery staple", km.Salt)
	require.NoError(t, err)

	priv, err := p.UnwrapPrivateKey(km.EncryptedPrivateKey, kek)
	require.NoError(t, err)
	assert.Equal(t, km.PrivateKey.D, priv.D)

	symKey, err := p.UnwrapSymmetricKey(km.EncryptedSymmetricKey, priv)
	require.NoError(t, err)
	assert.Equal(t, km.SymmetricKey, symKey)
}

func TestUnwrapPrivateKeyWrongPassphrase(t *testing.T) {
	p := newTestProvider()

	km, err := p.CreateKeys("right passphrase")
	require.NoError(t, err)

	wrongKEK, err := p.DeriveKEK("wrong passphrase", km.Salt)
	require.NoError(t, err)

	_, err = p.UnwrapPrivateKey(km.EncryptedPrivateKey, wrongKEK)
	assert.Error(t, err)
}

func TestRSAEncryptDecrypt(t *testing.T) {
	p := newTestProvider()
	km, err := p.CreateKeys("passphrase")
	require.NoError(t, err)

	plaintext := []byte("vault symmetric key material")
	ciphertext, err := p.Encrypt(km.PublicKey, plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, []byte(ciphertext))

	decrypted, err := p.Decrypt(km.PrivateKey, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestSymmetricEncryptDecrypt(t *testing.T) {
	p := newTestProvider()
	key, err := p.RandomBytes(aesKeySize)
	require.NoError(t, err)

	plaintext := []byte("hello, vault")
	ciphertext, err := p.EncryptSymmetric(key, plaintext)
	require.NoError(t, err)
	assert.Contains(t, ciphertext, ":")

	decrypted, err := p.DecryptSymmetric(key, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestSymmetricDecryptWrongKey(t *testing.T) {
	p := newTestProvider()
	key1, err := p.RandomBytes(aesKeySize)
	require.NoError(t, err)
	key2, err := p.RandomBytes(aesKeySize)
	require.NoError(t, err)

	ciphertext, err := p.EncryptSymmetric(key1, []byte("secret entry"))
	require.NoError(t, err)

	_, err = p.DecryptSymmetric(key2, ciphertext)
	assert.Error(t, err)
}

func TestCreateSyncKeyDeterministic(t *testing.T) {
	p := newTestProvider()
	shared := []byte("shared secret from jpake")
	salt := []byte("peer-device-id-0")

	k1, err := p.CreateSyncKey(shared, salt)
	require.NoError(t, err)
	k2, err := p.CreateSyncKey(shared, salt)
	require.NoError(t, err)
	assert.Equal(t, k1, k2)

	k3, err := p.CreateSyncKey(shared, []byte("different-salt-00"))
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3)
}

func TestRandomBytesLength(t *testing.T) {
	p := newTestProvider()
	b, err := p.RandomBytes(16)
	require.NoError(t, err)
	assert.Len(t, b, 16)
}
