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

package jpake

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runExchange(t *testing.T, alice, bob *Session) ([]byte, []byte) {
	t.Helper()

	aliceP1, err := alice.CreatePass1()
	require.NoError(t, err)
	bobP1, err := bob.CreatePass1()
	require.NoError(t, err)

	require.NoError(t, alice.ReceivePass1(bobP1))
	require.NoError(t, bob.ReceivePass1(aliceP1))

	aliceP2, err := alice.CreatePass2()
	require.NoError(t, err)
	bobP2, err := bob.CreatePass2()
	require.NoError(t, err)

	errA := alice.ReceivePass2(bobP2)
	errB := bob.ReceivePass2(aliceP2)

	if errA != nil || errB != nil {
		return nil, nil
	}

	aliceSecret, err := alice.SharedSecret()
	require.NoError(t, err)
	bobSecret, err := bob.SharedSecret()
	require.NoError(t, err)

	return aliceSecret, bobSecret
}

func TestSameOTPConverges(t *testing.T) {
	alice, err := NewSession("alice-device", "bob-device", "123456")
	require.NoError(t, err)
	bob, err := NewSession("bob-device", "alice-device", "123456")
	require.NoError(t, err)

	aliceSecret, bobSecret := runExchange(t, alice, bob)
	require.NotNil(t, aliceSecret)
	require.NotNil(t, bobSecret)
	assert.Equal(t, aliceSecret, bobSecret)
	assert.Len(t, aliceSecret, 32)

	assert.Equal(t, Pass3Sent, alice.State())
	alice.MarkKeyDerived()
	assert.Equal(t, KeyDerived, alice.State())
}

func TestMismatchedOTPDiverges(t *testing.T) {
	alice, err := NewSession("alice-device", "bob-device", "123456")
	require.NoError(t, err)
	bob, err := NewSession("bob-device", "alice-device", "654321")
	require.NoError(t, err)

	aliceP1, err := alice.CreatePass1()
	require.NoError(t, err)
	bobP1, err := bob.CreatePass1()
	require.NoError(t, err)
	require.NoError(t, alice.ReceivePass1(bobP1))
	require.NoError(t, bob.ReceivePass1(aliceP1))

	aliceP2, err := alice.CreatePass2()
	require.NoError(t, err)
	bobP2, err := bob.CreatePass2()
	require.NoError(t, err)

	// With different s, A is computed over the same GA but a different
	// exponent ratio, so the ZKP itself still verifies (it only proves
	// knowledge of x2s for whichever s was used) but the derived K differs.
	require.NoError(t, alice.ReceivePass2(bobP2))
	require.NoError(t, bob.ReceivePass2(aliceP2))

	aliceSecret, err := alice.SharedSecret()
	require.NoError(t, err)
	bobSecret, err := bob.SharedSecret()
	require.NoError(t, err)

	assert.NotEqual(t, aliceSecret, bobSecret)
}

func TestEqualUserIDRejected(t *testing.T) {
	_, err := NewSession("same-device", "same-device", "123456")
	assert.Error(t, err)
}

func TestReceivePass1RejectsEqualUserID(t *testing.T) {
	alice, err := NewSession("alice-device", "bob-device", "123456")
	require.NoError(t, err)
	_, err = alice.CreatePass1()
	require.NoError(t, err)

	err = alice.ReceivePass1(&Pass1Bundle{UserID: "alice-device"})
	assert.Error(t, err)
}

func TestDeriveSNeverZero(t *testing.T) {
	for _, pw := range []string{"", "0", "123456", "password", "a very long one time password string"} {
		s, err := deriveS(pw)
		require.NoError(t, err)
		assert.NotEqual(t, 0, s.Sign())
	}
}

func TestSchnorrProofEncodingLength(t *testing.T) {
	x, err := randScalar()
	require.NoError(t, err)
	pub := scalarBaseMult(x)

	proof, err := createSchnorrProof(basePoint(), x, pub, "device-a")
	require.NoError(t, err)
	require.Len(t, proof, 67)
	assert.Equal(t, byte(0x21), proof[0])
	assert.Equal(t, byte(0x20), proof[34])

	ok, err := verifySchnorrProof(basePoint(), pub, proof, "device-a")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPointCompressDecompressRoundTrip(t *testing.T) {
	x, err := randScalar()
	require.NoError(t, err)
	pt := scalarBaseMult(x)

	compressed := compressPoint(pt)
	assert.Len(t, compressed, 33)

	decompressed, ok := decompressPoint(compressed)
	require.True(t, ok)
	assert.Equal(t, pt.X, decompressed.X)
	assert.Equal(t, pt.Y, decompressed.Y)
}
