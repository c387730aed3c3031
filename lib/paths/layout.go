package paths

import (
	"path/filepath"
	"strings"

	"github.com/filecoin-project/sdr-porep/lib/proof"
)

const (
	ReplicaExt = ".replica"
	StateFile  = "seal-state.json"
	TauFile    = "tau.json"
	LockFile   = "seal.lock"
)

// Layout names every artifact of one sealing run inside its store directory.
type Layout struct {
	Dir string
}

// ReplicaPath is the replica produced for src inside dir: <dir>/<src stem>.replica
func ReplicaPath(src, dir string) string {
	base := filepath.Base(src)
	return filepath.Join(dir, strings.TrimSuffix(base, filepath.Ext(base))+ReplicaExt)
}

// StoreDir is the store directory a replica lives in.
func StoreDir(replicaPath string) string {
	return filepath.Dir(replicaPath)
}

func (l Layout) State() string { return filepath.Join(l.Dir, StateFile) }
func (l Layout) Tau() string   { return filepath.Join(l.Dir, TauFile) }
func (l Layout) PAux() string  { return filepath.Join(l.Dir, proof.PauxFile) }
func (l Layout) TAux() string  { return filepath.Join(l.Dir, proof.TauxFile) }

func (l Layout) TreeD() string     { return l.store(proof.TreeDID) }
func (l Layout) TreeC() string     { return l.store(proof.TreeCID) }
func (l Layout) TreeRLast() string { return l.store(proof.TreeRLastID) }

func (l Layout) Layer(layer int) string { return l.store(proof.LayerID(layer)) }

func (l Layout) store(id string) string {
	return proof.StoreConfig{Path: l.Dir, ID: id}.DataPath()
}

// RunArtifacts lists the files a sealing run may leave behind, excluding the
// seal state and the replica.
func (l Layout) RunArtifacts(layers int) []string {
	out := []string{l.Tau(), l.PAux(), l.TAux(), l.TreeD(), l.TreeC(), l.TreeRLast()}
	for i := 1; i <= layers; i++ {
		out = append(out, l.Layer(i))
	}
	return out
}
