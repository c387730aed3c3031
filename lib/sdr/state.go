package sdr

import (
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/sdr-porep/lib/paths"
)

type SealState string

const (
	StateUnsealed SealState = "Unsealed"
	StateSealing  SealState = "Sealing"
	StateSealed   SealState = "Sealed"
	StateFailed   SealState = "Failed"
)

// SealRecord is persisted next to the replica and tracks one sealing run.
type SealRecord struct {
	State     SealState  `json:"state"`
	RunID     uuid.UUID  `json:"run_id"`
	Replica   string     `json:"replica,omitempty"`
	ReplicaID ReplicaID  `json:"replica_id"`
	Nodes     uint64     `json:"nodes"`
	Layers    uint32     `json:"layers"`
	Started   time.Time  `json:"started"`
	Finished  *time.Time `json:"finished,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// ReadSealRecord loads the run record of a store directory. A directory
// without one is Unsealed.
func ReadSealRecord(dir string) (SealRecord, error) {
	layout := paths.Layout{Dir: dir}

	b, err := os.ReadFile(layout.State())
	if os.IsNotExist(err) {
		return SealRecord{State: StateUnsealed}, nil
	}
	if err != nil {
		return SealRecord{}, ioErr("read seal state", layout.State(), err)
	}

	var rec SealRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return SealRecord{}, opErr("read seal state", layout.State(), ErrMalformedArtifact, err)
	}
	switch rec.State {
	case StateSealing, StateSealed, StateFailed:
	default:
		return SealRecord{}, opErr("read seal state", layout.State(), ErrMalformedArtifact, xerrors.Errorf("unknown state %q", rec.State))
	}
	return rec, nil
}

func writeSealRecord(dir string, rec SealRecord) error {
	layout := paths.Layout{Dir: dir}

	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return xerrors.Errorf("encoding seal state: %w", err)
	}
	if err := writeFileAtomic(layout.State(), b); err != nil {
		return ioErr("write seal state", layout.State(), err)
	}
	return nil
}

func writeFileAtomic(path string, b []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
