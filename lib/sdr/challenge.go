package sdr

import (
	"encoding/binary"
	"encoding/json"

	"github.com/minio/sha256-simd"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-state-types/abi"
)

const MaxChallenges = 1 << 16

// Challenges is the set of nodes a proof must open. Both prove and verify take
// the same value; indices are derived from Seed but only Indices are checked.
type Challenges struct {
	Seed    abi.InteractiveSealRandomness `json:"seed"`
	Indices []uint64                      `json:"indices"`
}

func GenerateChallenges(nodes uint64, count int) (Challenges, error) {
	seed := make([]byte, 32)
	if err := readRand(seed); err != nil {
		return Challenges{}, xerrors.Errorf("reading randomness: %w", err)
	}
	return DeriveChallenges(seed, nodes, count)
}

// DeriveChallenges expands seed into count indices in [0, nodes).
func DeriveChallenges(seed abi.InteractiveSealRandomness, nodes uint64, count int) (Challenges, error) {
	if err := validateNodeCount(nodes); err != nil {
		return Challenges{}, err
	}
	if count < 1 || count > MaxChallenges {
		return Challenges{}, xerrors.Errorf("challenge count %d out of range [1, %d]: %w", count, MaxChallenges, ErrInvalidArgument)
	}
	if len(seed) != 32 {
		return Challenges{}, xerrors.Errorf("challenge seed must be 32 bytes, got %d: %w", len(seed), ErrInvalidArgument)
	}

	c := Challenges{
		Seed:    append(abi.InteractiveSealRandomness(nil), seed...),
		Indices: make([]uint64, count),
	}

	var buf [40]byte
	copy(buf[:32], seed)
	for i := range c.Indices {
		binary.LittleEndian.PutUint64(buf[32:], uint64(i))
		h := sha256.Sum256(buf[:])
		c.Indices[i] = binary.LittleEndian.Uint64(h[:8]) % nodes
	}
	return c, nil
}

// Validate checks every index against the node count.
func (c Challenges) Validate(nodes uint64) error {
	if len(c.Indices) == 0 || len(c.Indices) > MaxChallenges {
		return xerrors.Errorf("%d challenges: %w", len(c.Indices), ErrInvalidArgument)
	}
	for i, idx := range c.Indices {
		if idx >= nodes {
			return xerrors.Errorf("challenge %d is node %d, graph has %d nodes: %w", i, idx, nodes, ErrChallengeOutOfRange)
		}
	}
	return nil
}

func (c Challenges) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

func UnmarshalChallenges(b []byte) (Challenges, error) {
	var c Challenges
	if err := json.Unmarshal(b, &c); err != nil {
		return Challenges{}, opErr("decode challenges", "", ErrMalformedArtifact, err)
	}
	return c, nil
}
