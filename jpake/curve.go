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

// Package jpake implements three-pass J-PAKE over secp256k1 with Schnorr
// non-interactive zero-knowledge proofs, per RFC 8235.
package jpake

import (
	"crypto/elliptic"
	"math/big"

	secp256k1 "github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// curve is secp256k1, expressed through crypto/elliptic's generic
// CurveParams Weierstrass arithmetic rather than a Jacobian-coordinate
// implementation, so every group operation (Add, ScalarMult,
// ScalarBaseMult, IsOnCurve) is the stdlib's well-tested generic code
// applied to secp256k1's own domain parameters. Point compression and
// decompression instead go through github.com/decred/dcrd/dcrec/secp256k1,
// whose ParsePubKey already implements the curve-specific square root and
// on-curve validation a hand-rolled decompressPoint would otherwise need.
var curve = newSecp256k1()

func newSecp256k1() *elliptic.CurveParams {
	p := new(big.Int)
	p.SetString("FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFEFFFFFC2F", 16)

	n := new(big.Int)
	n.SetString("FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFEBAAEDCE6AF48A03BBFD25E8CD0364141", 16)

	gx := new(big.Int)
	gx.SetString("79BE667EF9DCBBAC55A06295CE870B07029BFCDB2DCE28D959F2815B16F81798", 16)

	gy := new(big.Int)
	gy.SetString("483ADA7726A3C4655DA4FBFC0E1108A8FD17B448A68554199C47D08FFB10D4B8", 16)

	return &elliptic.CurveParams{
		P:       p,
		N:       n,
		B:       big.NewInt(7),
		Gx:      gx,
		Gy:      gy,
		BitSize: 256,
		Name:    "secp256k1",
	}
}

// point is an affine curve point. The point at infinity is represented by
// X == nil.
type point struct {
	X, Y *big.Int
}

func (pt point) isInfinity() bool {
	return pt.X == nil
}

var infinity = point{}

func pointAdd(a, b point) point {
	if a.isInfinity() {
		return b
	}
	if b.isInfinity() {
		return a
	}
	x, y := curve.Add(a.X, a.Y, b.X, b.Y)
	if x.Sign() == 0 && y.Sign() == 0 {
		return infinity
	}
	return point{X: x, Y: y}
}

func scalarMult(pt point, k *big.Int) point {
	if pt.isInfinity() || k.Sign() == 0 {
		return infinity
	}
	kBytes := k.Mod(new(big.Int).Set(k), curve.N).Bytes()
	x, y := curve.ScalarMult(pt.X, pt.Y, kBytes)
	if x.Sign() == 0 && y.Sign() == 0 {
		return infinity
	}
	return point{X: x, Y: y}
}

func scalarBaseMult(k *big.Int) point {
	kBytes := new(big.Int).Mod(k, curve.N).Bytes()
	x, y := curve.ScalarBaseMult(kBytes)
	return point{X: x, Y: y}
}

func pointNeg(pt point) point {
	if pt.isInfinity() {
		return infinity
	}
	y := new(big.Int).Sub(curve.P, pt.Y)
	y.Mod(y, curve.P)
	return point{X: new(big.Int).Set(pt.X), Y: y}
}

func pointSub(a, b point) point {
	return pointAdd(a, pointNeg(b))
}

func isOnCurve(pt point) bool {
	if pt.isInfinity() {
		return true
	}
	return curve.IsOnCurve(pt.X, pt.Y)
}

func pointEqual(a, b point) bool {
	if a.isInfinity() || b.isInfinity() {
		return a.isInfinity() == b.isInfinity()
	}
	return a.X.Cmp(b.X) == 0 && a.Y.Cmp(b.Y) == 0
}

// bigTo32 renders b as a big-endian, zero-padded 32-byte array, the fixed
// width secp256k1.FieldVal.SetBytes requires.
func bigTo32(b *big.Int) [32]byte {
	var out [32]byte
	raw := b.Bytes()
	copy(out[32-len(raw):], raw)
	return out
}

// compressPoint encodes an affine point into the standard 33-byte SEC1
// compressed form via the decred secp256k1 library, rather than hand-rolling
// the parity-byte-plus-X encoding.
func compressPoint(pt point) []byte {
	xb, yb := bigTo32(pt.X), bigTo32(pt.Y)
	var fx, fy secp256k1.FieldVal
	fx.SetBytes(&xb)
	fy.SetBytes(&yb)
	return secp256k1.NewPublicKey(&fx, &fy).SerializeCompressed()
}

// decompressPoint is the inverse of compressPoint. ParsePubKey performs
// the y^2 = x^3+7 square root and on-curve check internally; a fast,
// well-tested alternative to deriving the modular square root by hand.
func decompressPoint(data []byte) (point, bool) {
	pub, err := secp256k1.ParsePubKey(data)
	if err != nil {
		return infinity, false
	}
	uncompressed := pub.SerializeUncompressed()
	if len(uncompressed) != 65 {
		return infinity, false
	}
	pt := point{
		X: new(big.Int).SetBytes(uncompressed[1:33]),
		Y: new(big.Int).SetBytes(uncompressed[33:65]),
	}
	if !isOnCurve(pt) {
		return infinity, false
	}
	return pt, true
}
