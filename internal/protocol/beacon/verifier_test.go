package beacon

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToInteger(t *testing.T) {
	v, err := ToInteger("0x0f")
	require.NoError(t, err)
	assert.EqualValues(t, 15, v.Int64())

	// sem prefixo também vale
	v, err = ToInteger("ff")
	require.NoError(t, err)
	assert.EqualValues(t, 255, v.Int64())

	// maiúsculas
	v, err = ToInteger("0XAB")
	require.NoError(t, err)
	assert.EqualValues(t, 171, v.Int64())
}

func TestToIntegerFullWidth(t *testing.T) {
	// 64 nibbles = 256 bits, o máximo aceito
	v, err := ToInteger("2e0a3bbff600011a0ae21c92e8d4c99dda94da06284dfe90032bae3f7ebc6339")
	require.NoError(t, err)
	assert.Equal(t, "2e0a3bbff600011a0ae21c92e8d4c99dda94da06284dfe90032bae3f7ebc6339", v.Text(16))
}

func TestToIntegerMalformed(t *testing.T) {
	cases := []string{
		"",
		"0x",
		"xyz",
		"12g4",
		"0x" + "ff" + "2e0a3bbff600011a0ae21c92e8d4c99dda94da06284dfe90032bae3f7ebc6339", // > 64 chars
		"12 34",
		"-ff",
	}
	for _, c := range cases {
		_, err := ToInteger(c)
		assert.ErrorIs(t, err, ErrMalformedRandomness, "input %q", c)
	}
}

func TestAddAndGetRound(t *testing.T) {
	ctx := context.Background()
	v := NewVerifier(NewMemoryStore())

	err := v.AddRound(ctx, 42, "0xff", "", 1708643700)
	require.NoError(t, err)

	r, err := v.GetRound(ctx, 42)
	require.NoError(t, err)
	assert.EqualValues(t, 42, r.Round)
	assert.Equal(t, "0xff", r.Randomness)
	assert.True(t, r.Verified)

	_, err = v.GetRound(ctx, 43)
	assert.ErrorIs(t, err, ErrRoundNotFound)
}

func TestAddRoundRejectsMalformed(t *testing.T) {
	v := NewVerifier(NewMemoryStore())
	err := v.AddRound(context.Background(), 42, "not-hex", "", 0)
	assert.ErrorIs(t, err, ErrMalformedRandomness)
}

func TestAddRoundDefaultsTimestamp(t *testing.T) {
	ctx := context.Background()
	v := NewVerifier(NewMemoryStore())
	require.NoError(t, v.AddRound(ctx, 7, "0xff", "", 0))
	r, err := v.GetRound(ctx, 7)
	require.NoError(t, err)
	assert.NotZero(t, r.Timestamp)
}

func TestLatestRound(t *testing.T) {
	ctx := context.Background()
	v := NewVerifier(NewMemoryStore(KnownRounds()...))

	r, err := v.LatestRound(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 17598, r.Round)
}

func TestVerifyOutcomeKnownRound(t *testing.T) {
	ctx := context.Background()
	v := NewVerifier(NewMemoryStore(KnownRounds()...))

	// round 17598: (v % 6) + 1 = 2
	res, err := v.VerifyOutcome(ctx, 17598, 2, 1, 6)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, 2, res.ActualOutcome)
	assert.NotEmpty(t, res.Explanation)

	res, err = v.VerifyOutcome(ctx, 17598, 3, 1, 6)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, 3, res.ClaimedOutcome)
	assert.Equal(t, 2, res.ActualOutcome)
}

func TestVerifyOutcomeRoundNotFound(t *testing.T) {
	ctx := context.Background()
	v := NewVerifier(NewMemoryStore())

	// round ausente é resultado, não erro: a verificação é uma consulta
	res, err := v.VerifyOutcome(ctx, 999999, 4, 1, 6)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.NotEmpty(t, res.Error)
}

func TestVerifyOutcomeInvalidRange(t *testing.T) {
	v := NewVerifier(NewMemoryStore(KnownRounds()...))
	_, err := v.VerifyOutcome(context.Background(), 17598, 2, 6, 1)
	assert.Error(t, err)
}

func TestMemoryStorePutIsAppendOnly(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Put(ctx, Round{Round: 1, Randomness: "0xaa"}))
	// round já publicado é imutável; segundo Put não sobrescreve
	require.NoError(t, s.Put(ctx, Round{Round: 1, Randomness: "0xbb"}))

	r, err := s.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "0xaa", r.Randomness)
}
