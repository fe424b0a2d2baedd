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
	"crypto/sha256"
	"math/big"

	"github.com/vaultsync/vaultsync/internal/metrics"
	"github.com/vaultsync/vaultsync/vaulterr"
)

// State is a JPakeSession's position in the three-pass protocol.
type State int

const (
	Init State = iota
	Pass1Sent
	Pass2Sent
	Pass3Sent
	KeyDerived
)

// Pass1Bundle is broadcast by each side at the start of the exchange.
type Pass1Bundle struct {
	UserID  string
	G1      []byte
	G2      []byte
	ProofG1 []byte
	ProofG2 []byte
}

// Pass2Bundle carries a side's contribution A, proven over the shared base
// GA computed from both sides' pass-1 points.
type Pass2Bundle struct {
	UserID string
	A      []byte
	Proof  []byte
}

// Session runs one side of a J-PAKE exchange authenticated by a one-time
// password shared out of band.
type Session struct {
	userID     string
	peerUserID string

	s *big.Int // password-derived scalar

	x1, x2   *big.Int
	g1, g2   point
	peerG1   point
	peerG2   point
	haveP1   bool

	x2s *big.Int
	ga  point
	a   point

	peerA point

	sharedSecret []byte
	state        State
}

// NewSession derives s from the shared one-time password and returns a
// fresh Session in the Init state.
func NewSession(userID, peerUserID, password string) (*Session, error) {
	if userID == peerUserID {
		return nil, vaulterr.New(vaulterr.KindCrypto, "local and peer userId must differ", nil)
	}

	s, err := deriveS(password)
	if err != nil {
		return nil, err
	}

	return &Session{
		userID:     userID,
		peerUserID: peerUserID,
		s:          s,
		state:      Init,
	}, nil
}

// deriveS computes s = SHA256(password) mod n, retried with a counter tweak
// if the result is 0 mod n.
func deriveS(password string) (*big.Int, error) {
	for tweak := 0; tweak < 256; tweak++ {
		h := sha256.New()
		h.Write([]byte(password))
		if tweak > 0 {
			h.Write([]byte{byte(tweak)})
		}
		digest := h.Sum(nil)

		s := new(big.Int).SetBytes(digest)
		s.Mod(s, curve.N)
		if s.Sign() != 0 {
			return s, nil
		}
	}
	return nil, vaulterr.New(vaulterr.KindCrypto, "failed to derive nonzero s from password", nil)
}

// CreatePass1 generates x1, x2 and the pass-1 bundle to broadcast.
func (sess *Session) CreatePass1() (*Pass1Bundle, error) {
	if sess.state != Init {
		return nil, vaulterr.NewSync(vaulterr.SubKindWrongState, "CreatePass1 called outside Init state", nil)
	}

	x1, err := randScalar()
	if err != nil {
		return nil, err
	}
	x2, err := randScalar()
	if err != nil {
		return nil, err
	}

	g1 := scalarBaseMult(x1)
	g2 := scalarBaseMult(x2)

	proofG1, err := createSchnorrProof(basePoint(), x1, g1, sess.userID)
	if err != nil {
		return nil, err
	}
	proofG2, err := createSchnorrProof(basePoint(), x2, g2, sess.userID)
	if err != nil {
		return nil, err
	}

	sess.x1, sess.x2 = x1, x2
	sess.g1, sess.g2 = g1, g2
	sess.state = Pass1Sent

	return &Pass1Bundle{
		UserID:  sess.userID,
		G1:      compressPoint(g1),
		G2:      compressPoint(g2),
		ProofG1: proofG1,
		ProofG2: proofG2,
	}, nil
}

// ReceivePass1 validates and records the peer's pass-1 bundle.
func (sess *Session) ReceivePass1(peer *Pass1Bundle) error {
	if sess.state != Pass1Sent {
		metrics.PairingAttempts.WithLabelValues("peer", "wrong_state").Inc()
		return vaulterr.NewSync(vaulterr.SubKindWrongState, "ReceivePass1 called before own pass-1 sent", nil)
	}
	if peer.UserID == sess.userID {
		metrics.PairingAttempts.WithLabelValues("peer", "equal_user_id").Inc()
		return vaulterr.New(vaulterr.KindCrypto, "peer userId equals local userId", nil)
	}

	g1, ok := decompressPoint(peer.G1)
	if !ok || !isOnCurve(g1) {
		return vaulterr.New(vaulterr.KindCrypto, "peer G1 is not a valid curve point", nil)
	}
	g2, ok := decompressPoint(peer.G2)
	if !ok || !isOnCurve(g2) {
		return vaulterr.New(vaulterr.KindCrypto, "peer G2 is not a valid curve point", nil)
	}

	validG1, err := verifySchnorrProof(basePoint(), g1, peer.ProofG1, peer.UserID)
	if err != nil {
		return err
	}
	if !validG1 {
		metrics.SchnorrProofFailures.Inc()
		return vaulterr.New(vaulterr.KindCrypto, "peer G1 schnorr proof failed", nil)
	}

	validG2, err := verifySchnorrProof(basePoint(), g2, peer.ProofG2, peer.UserID)
	if err != nil {
		return err
	}
	if !validG2 {
		metrics.SchnorrProofFailures.Inc()
		return vaulterr.New(vaulterr.KindCrypto, "peer G2 schnorr proof failed", nil)
	}

	sess.peerG1, sess.peerG2 = g1, g2
	sess.haveP1 = true
	return nil
}

// CreatePass2 computes GA, x2s and this side's contribution A, with a
// Schnorr proof bound to GA as the base point.
func (sess *Session) CreatePass2() (*Pass2Bundle, error) {
	if sess.state != Pass1Sent || !sess.haveP1 {
		return nil, vaulterr.NewSync(vaulterr.SubKindWrongState, "CreatePass2 requires both sides' pass-1 data", nil)
	}

	// GA = own G1 + peer G1 + peer G2: the product of all four pass-1
	// points excluding this side's own G2, per RFC 8235 / Hao-Ryan J-PAKE.
	ga := pointAdd(pointAdd(sess.g1, sess.peerG1), sess.peerG2)
	if ga.isInfinity() {
		return nil, vaulterr.New(vaulterr.KindCrypto, "GA is the point at infinity", nil)
	}

	x2s := new(big.Int).Mul(sess.x2, sess.s)
	x2s.Mod(x2s, curve.N)
	if x2s.Sign() == 0 {
		return nil, vaulterr.New(vaulterr.KindCrypto, "s is congruent to 0 mod n", nil)
	}

	a := scalarMult(ga, x2s)

	proof, err := createSchnorrProof(ga, x2s, a, sess.userID)
	if err != nil {
		return nil, err
	}

	sess.x2s = x2s
	sess.ga = ga
	sess.a = a
	sess.state = Pass2Sent

	return &Pass2Bundle{
		UserID: sess.userID,
		A:      compressPoint(a),
		Proof:  proof,
	}, nil
}

// ReceivePass2 validates the peer's contribution and derives the raw
// shared secret.
func (sess *Session) ReceivePass2(peer *Pass2Bundle) error {
	if sess.state != Pass2Sent {
		return vaulterr.NewSync(vaulterr.SubKindWrongState, "ReceivePass2 called before own pass-2 sent", nil)
	}
	if peer.UserID == sess.userID {
		return vaulterr.New(vaulterr.KindCrypto, "peer userId equals local userId", nil)
	}

	peerA, ok := decompressPoint(peer.A)
	if !ok || !isOnCurve(peerA) {
		return vaulterr.New(vaulterr.KindCrypto, "peer A is not a valid curve point", nil)
	}

	// The peer computed their own GA symmetrically: their G1 plus both of
	// this side's pass-1 points.
	peerGA := pointAdd(pointAdd(sess.peerG1, sess.g1), sess.g2)

	valid, err := verifySchnorrProof(peerGA, peerA, peer.Proof, peer.UserID)
	if err != nil {
		return err
	}
	if !valid {
		metrics.SchnorrProofFailures.Inc()
		return vaulterr.New(vaulterr.KindCrypto, "peer pass-2 schnorr proof failed", nil)
	}

	// K = (peer.A - peer.G2 * x2s) * x2
	sub := pointSub(peerA, scalarMult(sess.peerG2, sess.x2s))
	k := scalarMult(sub, sess.x2)
	if k.isInfinity() {
		return vaulterr.New(vaulterr.KindCrypto, "derived shared key is the point at infinity", nil)
	}

	h := sha256.Sum256(k.X.Bytes())
	sess.peerA = peerA
	sess.sharedSecret = h[:]
	sess.state = Pass3Sent

	return nil
}

// SharedSecret returns the raw 32-byte shared secret once ReceivePass2 has
// completed successfully.
func (sess *Session) SharedSecret() ([]byte, error) {
	if sess.state != Pass3Sent && sess.state != KeyDerived {
		return nil, vaulterr.NewSync(vaulterr.SubKindWrongState, "shared secret not yet derived", nil)
	}
	return sess.sharedSecret, nil
}

// MarkKeyDerived transitions the session to its terminal state once the
// caller has stretched the shared secret into a sync key.
func (sess *Session) MarkKeyDerived() {
	sess.state = KeyDerived
}

// State returns the session's current protocol state.
func (sess *Session) State() State {
	return sess.state
}

func basePoint() point {
	return point{X: curve.Gx, Y: curve.Gy}
}
