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
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"math/big"

	"github.com/vaultsync/vaultsync/vaulterr"
)

// proofVTag and proofRTag are the fixed single-byte length prefixes for the
// two fields of a Schnorr proof. Interop with any peer implementing the
// same RFC 8235-style proof requires byte-exact agreement here; do not
// change this encoding.
const (
	proofVTag  = 0x21 // 33, compressed point length
	proofRTag  = 0x20 // 32, scalar length
	proofTotal = 1 + 33 + 1 + 32
)

// createChallenge computes c = SHA256(len||encode(X) || len||encode(V) ||
// len||userId || ...len||otherInfo) mod n, using single-byte length
// prefixes as spec requires (every prefixed value must be <=255 bytes,
// which a 33-byte compressed point and a device userId always are).
func createChallenge(x, v point, userID string, otherInfo ...[]byte) (*big.Int, error) {
	h := sha256.New()

	if err := writeLengthPrefixed(h, compressPoint(x)); err != nil {
		return nil, err
	}
	if err := writeLengthPrefixed(h, compressPoint(v)); err != nil {
		return nil, err
	}
	if err := writeLengthPrefixed(h, []byte(userID)); err != nil {
		return nil, err
	}
	for _, info := range otherInfo {
		if err := writeLengthPrefixed(h, info); err != nil {
			return nil, err
		}
	}

	digest := h.Sum(nil)
	c := new(big.Int).SetBytes(digest)
	return c.Mod(c, curve.N), nil
}

func writeLengthPrefixed(h interface{ Write([]byte) (int, error) }, data []byte) error {
	if len(data) > 255 {
		return vaulterr.New(vaulterr.KindCrypto, fmt.Sprintf("schnorr challenge input exceeds 255 bytes (%d)", len(data)), nil)
	}
	if _, err := h.Write([]byte{byte(len(data))}); err != nil {
		return err
	}
	_, err := h.Write(data)
	return err
}

// createSchnorrProof proves knowledge of x such that publicPoint =
// x*generator, binding the proof to userID (and any extra fields, e.g. a
// second generator in the pass-2 proof over GA).
func createSchnorrProof(generator point, x *big.Int, publicPoint point, userID string, otherInfo ...[]byte) ([]byte, error) {
	v, err := randScalar()
	if err != nil {
		return nil, err
	}

	vPoint := scalarMult(generator, v)

	c, err := createChallenge(publicPoint, vPoint, userID, otherInfo...)
	if err != nil {
		return nil, err
	}

	// r = v - x*c mod n
	r := new(big.Int).Mul(x, c)
	r.Sub(v, r)
	r.Mod(r, curve.N)

	proof := make([]byte, proofTotal)
	proof[0] = proofVTag
	copy(proof[1:34], compressPoint(vPoint))
	proof[34] = proofRTag
	rBytes := r.Bytes()
	copy(proof[35+(32-len(rBytes)):], rBytes)

	return proof, nil
}

// verifySchnorrProof checks V == r*generator + c*publicPoint in affine
// coordinates.
func verifySchnorrProof(generator point, publicPoint point, proof []byte, userID string, otherInfo ...[]byte) (bool, error) {
	if len(proof) != proofTotal || proof[0] != proofVTag || proof[34] != proofRTag {
		return false, vaulterr.New(vaulterr.KindCrypto, "malformed schnorr proof encoding", nil)
	}

	vPoint, ok := decompressPoint(proof[1:34])
	if !ok {
		return false, vaulterr.New(vaulterr.KindCrypto, "schnorr proof V is not a valid curve point", nil)
	}
	if !isOnCurve(publicPoint) {
		return false, vaulterr.New(vaulterr.KindCrypto, "schnorr proof public point is not on curve", nil)
	}

	r := new(big.Int).SetBytes(proof[35:67])

	c, err := createChallenge(publicPoint, vPoint, userID, otherInfo...)
	if err != nil {
		return false, err
	}

	rG := scalarMult(generator, r)
	cX := scalarMult(publicPoint, c)
	rhs := pointAdd(rG, cX)

	return pointEqual(vPoint, rhs), nil
}

// randScalar returns a uniformly random scalar in [1, n-1].
func randScalar() (*big.Int, error) {
	for {
		k, err := rand.Int(rand.Reader, curve.N)
		if err != nil {
			return nil, vaulterr.New(vaulterr.KindCrypto, "failed to generate random scalar", err)
		}
		if k.Sign() != 0 {
			return k, nil
		}
	}
}
