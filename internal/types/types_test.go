package types

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashBase58RoundTrip(t *testing.T) {
	var h Hash
	for i := range h {
		h[i] = byte(i + 1)
	}

	parsed, err := HashFromBase58(h.String())
	require.NoError(t, err)
	assert.Equal(t, h, parsed)
	assert.False(t, parsed.IsZero())

	fromBytes, err := HashFromBytes(h[:])
	require.NoError(t, err)
	assert.Equal(t, h, fromBytes)
}

func TestHashFromBase58Invalid(t *testing.T) {
	_, err := HashFromBase58("0OIl")
	assert.Error(t, err)

	_, err = HashFromBase58("3yZe7d")
	assert.ErrorIs(t, err, ErrInvalidHash)

	_, err = HashFromBytes(make([]byte, 31))
	assert.ErrorIs(t, err, ErrInvalidHash)

	assert.Panics(t, func() { MustHashFromBase58("not-a-hash") })
}

func TestZeroHash(t *testing.T) {
	var h Hash
	assert.True(t, h.IsZero())
	assert.Equal(t, "11111111111111111111111111111111", h.String())
}

func TestHashText(t *testing.T) {
	h, err := HashFromBytes(bytes.Repeat([]byte{7}, HashSize))
	require.NoError(t, err)

	text, err := h.MarshalText()
	require.NoError(t, err)

	var decoded Hash
	require.NoError(t, decoded.UnmarshalText(text))
	assert.Equal(t, h, decoded)

	assert.Error(t, decoded.UnmarshalText([]byte("abc")))
}

func TestParseCommitment(t *testing.T) {
	for _, c := range []Commitment{CommitmentProcessed, CommitmentConfirmed, CommitmentFinalized} {
		parsed, err := ParseCommitment(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, parsed)
	}

	parsed, err := ParseCommitment(" Finalized ")
	require.NoError(t, err)
	assert.Equal(t, CommitmentFinalized, parsed)

	_, err = ParseCommitment("rooted")
	assert.Error(t, err)

	assert.Less(t, CommitmentProcessed, CommitmentConfirmed)
	assert.Less(t, CommitmentConfirmed, CommitmentFinalized)
}

func TestParseTransactionDetails(t *testing.T) {
	for _, s := range []string{"full", "accounts", "signatures", "none", "FULL"} {
		_, err := ParseTransactionDetails(s)
		assert.NoError(t, err, s)
	}
	_, err := ParseTransactionDetails("everything")
	assert.Error(t, err)
}

func TestBlockRecordSameContent(t *testing.T) {
	parent := Slot(9)
	txs := uint64(4)
	a := BlockRecord{Blockhash: Hash{1}, Slot: 10, ParentSlot: &parent, Height: 5, TxCount: &txs}

	b := a
	b.Commitment = CommitmentFinalized
	otherParent := Slot(9)
	b.ParentSlot = &otherParent
	assert.True(t, a.SameContent(b), "commitment and pointer identity are ignored")

	c := a
	c.TxCount = nil
	assert.False(t, a.SameContent(c))

	d := a
	d.Height = 6
	assert.False(t, a.SameContent(d))
}

func TestBlockRecordJSON(t *testing.T) {
	parent := Slot(99)
	record := BlockRecord{
		Blockhash:  Hash{1},
		Slot:       100,
		ParentSlot: &parent,
		Height:     42,
		Commitment: CommitmentConfirmed,
	}

	data, err := json.Marshal(record)
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.Equal(t, record.Blockhash.String(), fields["blockhash"])
	assert.Equal(t, float64(99), fields["parentSlot"])
	assert.Equal(t, float64(42), fields["blockHeight"])
	assert.Equal(t, "confirmed", fields["commitment"])
	assert.NotContains(t, fields, "transactionCount")
}
