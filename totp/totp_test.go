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

package totp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKnownVector(t *testing.T) {
	gen := NewGenerator()

	code, err := gen.Generate(Params{
		Secret:    "TESTSECRET",
		Period:    30,
		Digits:    6,
		Algorithm: SHA1,
	}, 0)
	require.NoError(t, err)

	assert.Equal(t, "810290", code.OTP)
	assert.Equal(t, int64(0), code.ValidFrom)
	assert.Equal(t, int64(30000), code.ValidTill)
}

func TestGenerateWindowBoundaries(t *testing.T) {
	gen := NewGenerator()

	params := Params{Secret: "TESTSECRET", Period: 30, Digits: 6, Algorithm: SHA1}

	first, err := gen.Generate(params, 29999)
	require.NoError(t, err)
	second, err := gen.Generate(params, 30000)
	require.NoError(t, err)

	assert.Equal(t, int64(0), first.ValidFrom)
	assert.Equal(t, int64(30000), second.ValidFrom)
	assert.NotEqual(t, first.OTP, second.OTP)
}

func TestGenerateDefaultsDigits(t *testing.T) {
	gen := NewGenerator()
	code, err := gen.Generate(Params{Secret: "TESTSECRET", Period: 30, Algorithm: SHA1}, 0)
	require.NoError(t, err)
	assert.Len(t, code.OTP, 6)
}

func TestGenerateInvalidSecret(t *testing.T) {
	gen := NewGenerator()
	_, err := gen.Generate(Params{Secret: "not valid base32!!", Period: 30, Digits: 6}, 0)
	assert.Error(t, err)
}

func TestGenerateZeroPeriod(t *testing.T) {
	gen := NewGenerator()
	_, err := gen.Generate(Params{Secret: "TESTSECRET", Period: 0, Digits: 6}, 0)
	assert.Error(t, err)
}

func TestGenerateSHA256Algorithm(t *testing.T) {
	gen := NewGenerator()
	code, err := gen.Generate(Params{
		Secret:    "TESTSECRET",
		Period:    30,
		Digits:    6,
		Algorithm: SHA256,
	}, 0)
	require.NoError(t, err)
	assert.Len(t, code.OTP, 6)
}
