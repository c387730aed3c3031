package sdr

import (
	"encoding/hex"

	"golang.org/x/xerrors"

	"github.com/filecoin-project/sdr-porep/lib/proof"
)

// ReplicaID binds a replica to one sealing run. It is always a valid field element.
type ReplicaID [32]byte

func GenerateReplicaID() (ReplicaID, error) {
	var id ReplicaID
	if err := readRand(id[:]); err != nil {
		return ReplicaID{}, xerrors.Errorf("reading randomness: %w", err)
	}
	id[31] &= 0x3F
	return id, nil
}

func (id ReplicaID) String() string {
	return hex.EncodeToString(id[:])
}

func (id ReplicaID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *ReplicaID) UnmarshalText(b []byte) error {
	var raw [32]byte
	if err := decodeHex32(b, &raw); err != nil {
		return opErr("decode replica id", "", ErrMalformedArtifact, err)
	}
	if !proof.IsValidNode(raw[:]) {
		return opErr("decode replica id", "", ErrMalformedArtifact, xerrors.New("not a field element"))
	}
	*id = raw
	return nil
}

func ParseReplicaID(s string) (ReplicaID, error) {
	var id ReplicaID
	err := id.UnmarshalText([]byte(s))
	return id, err
}
