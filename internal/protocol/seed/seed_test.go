package seed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommitRevealRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore())

	commitment, err := m.CreateCommitment(ctx, "slot-1")
	require.NoError(t, err)
	assert.Len(t, commitment, 64) // sha256 em hex

	seedHex, err := m.RevealSeed(ctx, "slot-1")
	require.NoError(t, err)

	raw, err := hex.DecodeString(seedHex)
	require.NoError(t, err)
	assert.Len(t, raw, 32)

	// o hash do seed revelado tem que bater com o commitment publicado
	sum := sha256.Sum256(raw)
	assert.Equal(t, commitment, hex.EncodeToString(sum[:]))
	assert.True(t, m.VerifyCommitment(ctx, "slot-1", seedHex))
}

func TestRevealIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore())

	_, err := m.CreateCommitment(ctx, "slot-1")
	require.NoError(t, err)

	first, err := m.RevealSeed(ctx, "slot-1")
	require.NoError(t, err)
	second, err := m.RevealSeed(ctx, "slot-1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDuplicateSlotKeepsOriginal(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore())

	_, err := m.CreateCommitment(ctx, "slot-1")
	require.NoError(t, err)
	seedHex, err := m.RevealSeed(ctx, "slot-1")
	require.NoError(t, err)

	_, err = m.CreateCommitment(ctx, "slot-1")
	assert.ErrorIs(t, err, ErrDuplicateSlot)

	// estado intocado: seed e commitment originais continuam valendo
	after, err := m.RevealSeed(ctx, "slot-1")
	require.NoError(t, err)
	assert.Equal(t, seedHex, after)
	assert.True(t, m.VerifyCommitment(ctx, "slot-1", seedHex))
}

func TestVerifyTamperedSeed(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore())

	_, err := m.CreateCommitment(ctx, "slot-1")
	require.NoError(t, err)
	seedHex, err := m.RevealSeed(ctx, "slot-1")
	require.NoError(t, err)

	tampered := []byte(seedHex)
	if tampered[0] == 'a' {
		tampered[0] = 'b'
	} else {
		tampered[0] = 'a'
	}
	assert.False(t, m.VerifyCommitment(ctx, "slot-1", string(tampered)))
}

func TestVerifyNeverErrors(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore())

	// slot desconhecido e hex inválido são só "false", nunca panic nem erro
	assert.False(t, m.VerifyCommitment(ctx, "ghost", "deadbeef"))

	_, err := m.CreateCommitment(ctx, "slot-1")
	require.NoError(t, err)
	assert.False(t, m.VerifyCommitment(ctx, "slot-1", "not-hex-zz"))
	assert.False(t, m.VerifyCommitment(ctx, "slot-1", ""))
}

func TestRevealUnknownSlot(t *testing.T) {
	m := NewManager(NewMemoryStore())
	_, err := m.RevealSeed(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrUnknownSlot)
}

func TestCreateCommitmentRequiresSlot(t *testing.T) {
	m := NewManager(NewMemoryStore())
	_, err := m.CreateCommitment(context.Background(), "")
	assert.Error(t, err)
}

func TestStoreKeepsSeedBytesVerbatim(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	// seeds são bytes crus de crypto/rand, quase sempre UTF-8 inválido; o
	// store precisa devolver exatamente o que entrou (coluna BYTEA no Postgres)
	raw := []byte{0xff, 0xfe, 0x00, 0x80, 0xc3, 0x28, 0xa0, 0xa1,
		0xf0, 0x28, 0x8c, 0xbc, 0xed, 0xa0, 0x80, 0x92,
		0xff, 0xfe, 0x00, 0x80, 0xc3, 0x28, 0xa0, 0xa1,
		0xf0, 0x28, 0x8c, 0xbc, 0xed, 0xa0, 0x80, 0x92}
	sum := sha256.Sum256(raw)
	require.NoError(t, store.Insert(ctx, Commitment{
		SlotID:     "slot-bin",
		Seed:       raw,
		Commitment: hex.EncodeToString(sum[:]),
	}))

	got, err := store.Get(ctx, "slot-bin")
	require.NoError(t, err)
	assert.Equal(t, raw, got.Seed)

	m := NewManager(store)
	assert.True(t, m.VerifyCommitment(ctx, "slot-bin", hex.EncodeToString(raw)))
}

func TestSeedsAreUniquePerSlot(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore())

	c1, err := m.CreateCommitment(ctx, "slot-1")
	require.NoError(t, err)
	c2, err := m.CreateCommitment(ctx, "slot-2")
	require.NoError(t, err)
	assert.NotEqual(t, c1, c2)
}
