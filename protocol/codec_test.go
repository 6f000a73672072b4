// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/execore/crypto"
)

func TestTransactionEncodeDecodeRoundTrip(t *testing.T) {
	tx := signedTransaction(t, 3,
		UploadProgram{ID: NewProgramAccount([32]byte{9}), Bytecode: []byte("wasm-bytes")},
		CallProgram{ID: NewProgramAccount([32]byte{9}), Input: ProgramInput{
			Arguments: []string{"run", "--fast"},
			Stdin:     []byte("input"),
		}},
	)

	raw := tx.Encode()
	require.Equal(t, tx.Size(), len(raw), "Size must agree with the canonical encoding")

	decoded, err := DecodeTransaction(raw)
	require.NoError(t, err)
	require.Equal(t, tx, decoded)
	require.NoError(t, decoded.Validate())
}

func TestBlockEncodeDecodeRoundTrip(t *testing.T) {
	tx := signedTransaction(t, 1)
	pub, priv, err := crypto.GenerateKey()
	require.NoError(t, err)

	b := Block{
		Previous:        Digest{1},
		Height:          7,
		Timestamp:       1234,
		StateMerkleRoot: Digest{2},
		Transactions:    []Transaction{tx},
		Signer:          NewUserAccount(pub),
	}
	b.ID = MakeBlockID(b)
	b.Signature = crypto.Sign(priv, b.ID[:])

	raw := b.Encode()
	require.Equal(t, b.Size(), len(raw))

	decoded, err := DecodeBlock(raw)
	require.NoError(t, err)
	require.Equal(t, b, decoded)
	require.NoError(t, decoded.Validate())
}

func TestDecodeBlockRejectsTruncation(t *testing.T) {
	tx := signedTransaction(t, 1)
	pub, priv, err := crypto.GenerateKey()
	require.NoError(t, err)

	b := Block{
		Previous:     Digest{1},
		Height:       1,
		Timestamp:    1,
		Transactions: []Transaction{tx},
		Signer:       NewUserAccount(pub),
	}
	b.ID = MakeBlockID(b)
	b.Signature = crypto.Sign(priv, b.ID[:])
	raw := b.Encode()

	for _, n := range []int{0, 10, len(raw) / 2, len(raw) - 1} {
		_, err := DecodeBlock(raw[:n])
		require.ErrorIs(t, err, ErrMalformedBlock, "truncated at %d", n)
	}
}

func TestDecodeBlockRejectsTrailingGarbage(t *testing.T) {
	pub, priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	b := Block{Height: 1, Timestamp: 1, Signer: NewUserAccount(pub)}
	b.ID = MakeBlockID(b)
	b.Signature = crypto.Sign(priv, b.ID[:])

	raw := append(b.Encode(), 0xFF)
	_, err = DecodeBlock(raw)
	require.ErrorIs(t, err, ErrMalformedBlock)
}

func TestDecodeTransactionRejectsUnknownOperationTag(t *testing.T) {
	tx := signedTransaction(t, 1, UploadProgram{ID: NewProgramAccount([32]byte{9}), Bytecode: []byte("x")})
	raw := tx.Encode()

	// The operation tag byte sits right after id, network_id,
	// resource_limit, payer, payee, nonce, and the operation count.
	tagOffset := 32 + 32 + 8 + AccountSize + AccountSize + 8 + 4
	raw[tagOffset] = 0x7F
	_, err := DecodeTransaction(raw)
	require.ErrorIs(t, err, ErrMalformedTransaction)
}

func TestDecodeTransactionRejectsOversizedVectorPrefix(t *testing.T) {
	tx := signedTransaction(t, 1)
	raw := tx.Encode()

	// Inflate the operation count far beyond the remaining bytes.
	countOffset := 32 + 32 + 8 + AccountSize + AccountSize + 8
	raw[countOffset] = 0xFF
	raw[countOffset+1] = 0xFF
	_, err := DecodeTransaction(raw)
	require.ErrorIs(t, err, ErrMalformedTransaction)
}
