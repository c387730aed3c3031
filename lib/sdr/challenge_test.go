package sdr

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveChallenges(t *testing.T) {
	seed := bytes.Repeat([]byte{7}, 32)

	c, err := DeriveChallenges(seed, 1024, 100)
	require.NoError(t, err)
	require.Len(t, c.Indices, 100)
	require.NoError(t, c.Validate(1024))
	for _, idx := range c.Indices {
		require.Less(t, idx, uint64(1024))
	}

	again, err := DeriveChallenges(seed, 1024, 100)
	require.NoError(t, err)
	require.Equal(t, c, again)

	seed[0] ^= 1
	other, err := DeriveChallenges(seed, 1024, 100)
	require.NoError(t, err)
	require.NotEqual(t, c.Indices, other.Indices)

	b, err := c.Marshal()
	require.NoError(t, err)
	decoded, err := UnmarshalChallenges(b)
	require.NoError(t, err)
	require.Equal(t, c, decoded)
}

func TestGenerateChallengesRejects(t *testing.T) {
	_, err := GenerateChallenges(1024, 0)
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = GenerateChallenges(1024, MaxChallenges+1)
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = GenerateChallenges(1000, 10)
	require.ErrorIs(t, err, ErrInvalidNodeCount)

	_, err = DeriveChallenges([]byte{1, 2, 3}, 1024, 10)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestChallengesValidate(t *testing.T) {
	c := Challenges{Indices: []uint64{0, 1023}}
	require.NoError(t, c.Validate(1024))

	c.Indices = append(c.Indices, 1024)
	err := c.Validate(1024)
	require.ErrorIs(t, err, ErrChallengeOutOfRange)
	require.ErrorIs(t, err, ErrInvalidArgument)

	require.ErrorIs(t, Challenges{}.Validate(1024), ErrInvalidArgument)
}

func TestSetRandSource(t *testing.T) {
	prev := SetRandSource(bytes.NewReader(bytes.Repeat([]byte{0xff}, 64)))
	defer SetRandSource(prev)

	id, err := GenerateReplicaID()
	require.NoError(t, err)
	require.Equal(t, byte(0x3f), id[31])
	require.Equal(t, byte(0xff), id[0])

	c, err := GenerateChallenges(16, 4)
	require.NoError(t, err)
	require.Equal(t, bytes.Repeat([]byte{0xff}, 32), []byte(c.Seed))

	_, err = GenerateReplicaID()
	require.Error(t, err)
}
