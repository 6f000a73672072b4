// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package encode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBase58RoundTrip(t *testing.T) {
	in := []byte{0, 1, 2, 0xFF, 0x80, 42}
	s := Base58Encode(in)
	out, err := Base58Decode(s)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestBase58DecodeRejectsInvalidCharacter(t *testing.T) {
	// '0' and 'O' are not in the base58 alphabet.
	_, err := Base58Decode("0O0O")
	require.ErrorIs(t, err, ErrInvalidCharacter)
}

func TestBase58DecodeExact(t *testing.T) {
	in := make([]byte, 32)
	in[0] = 7
	s := Base58Encode(in)

	out, err := Base58DecodeExact(s, 32)
	require.NoError(t, err)
	require.Equal(t, in, out)

	_, err = Base58DecodeExact(s, 16)
	require.ErrorIs(t, err, ErrInvalidLength)
}

func TestHexRoundTrip(t *testing.T) {
	in := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	require.Equal(t, "deadbeef", HexEncode(in))

	out, err := HexDecode("deadbeef")
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestHexDecodeErrors(t *testing.T) {
	_, err := HexDecode("abc")
	require.ErrorIs(t, err, ErrInvalidLength)

	_, err = HexDecode("zz")
	require.ErrorIs(t, err, ErrInvalidCharacter)
}
