package proof

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/xerrors"
)

const TauxFile = "t_aux"

const (
	TreeDID     = "tree-d"
	TreeCID     = "tree-c"
	TreeRLastID = "tree-r-last"
)

func LayerID(layer int) string {
	return fmt.Sprintf("layer-%d", layer)
}

type StoreConfig struct {
	// A directory in which data (a merkle tree) can be persisted.
	Path string

	// A unique identifier used to help specify the on-disk store location for this particular data.
	ID string

	// Number of leaves the store covers.
	Size *uint64

	// The number of merkle tree rows above the leaves that are not cached on disk.
	RowsToDiscard uint64
}

type TAuxLabels struct {
	Labels []StoreConfig
}

type TemporaryAux struct {
	Labels      TAuxLabels
	TreeDConfig StoreConfig
	TreeRConfig StoreConfig
	TreeCConfig StoreConfig
}

// NewTemporaryAux lays out the stores of one sealing run in dir.
func NewTemporaryAux(dir string, nodes uint64, layers int, rowsToDiscard uint64) TemporaryAux {
	sc := func(id string, rows uint64) StoreConfig {
		return StoreConfig{Path: dir, ID: id, Size: iptr(nodes), RowsToDiscard: rows}
	}

	taux := TemporaryAux{
		TreeDConfig: sc(TreeDID, 0),
		TreeRConfig: sc(TreeRLastID, rowsToDiscard),
		TreeCConfig: sc(TreeCID, 0),
	}
	for i := 1; i <= layers; i++ {
		taux.Labels.Labels = append(taux.Labels.Labels, sc(LayerID(i), 0))
	}
	return taux
}

func iptr(v uint64) *uint64 {
	return &v
}

// ReadTAux loads the t_aux file of a store directory.
func ReadTAux(dir string) (*TemporaryAux, error) {
	b, err := os.ReadFile(filepath.Join(dir, TauxFile))
	if err != nil {
		return nil, err
	}

	r := bytes.NewReader(b)
	taux, err := DecodeTAux(r)
	if err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, xerrors.Errorf("%d trailing bytes after t_aux", r.Len())
	}
	return taux, nil
}

func WriteTAux(dir string, taux TemporaryAux) error {
	var buf bytes.Buffer
	if err := EncodeTAux(&buf, taux); err != nil {
		return xerrors.Errorf("encoding t_aux: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, TauxFile), buf.Bytes(), 0644); err != nil {
		return xerrors.Errorf("writing t_aux: %w", err)
	}
	return nil
}

// trees lists the tree stores in their serialized order.
func (t *TemporaryAux) trees() []*StoreConfig {
	return []*StoreConfig{&t.TreeDConfig, &t.TreeRConfig, &t.TreeCConfig}
}

// DecodeStoreConfig reads path, id, an optional size and rows to discard.
func DecodeStoreConfig(r io.Reader) (sc StoreConfig, err error) {
	if sc.Path, err = ReadString(r); err != nil {
		return StoreConfig{}, xerrors.Errorf("store path: %w", err)
	}
	if sc.ID, err = ReadString(r); err != nil {
		return StoreConfig{}, xerrors.Errorf("store id: %w", err)
	}

	tag, err := ReadLE[uint8](r)
	if err != nil {
		return StoreConfig{}, xerrors.Errorf("store size tag: %w", err)
	}
	switch tag {
	case 0:
	case 1:
		size, err := ReadLE[uint64](r)
		if err != nil {
			return StoreConfig{}, xerrors.Errorf("store size: %w", err)
		}
		sc.Size = &size
	default:
		return StoreConfig{}, xerrors.Errorf("store size tag %d is not an option tag", tag)
	}

	if sc.RowsToDiscard, err = ReadLE[uint64](r); err != nil {
		return StoreConfig{}, xerrors.Errorf("store rows to discard: %w", err)
	}
	return sc, nil
}

func EncodeStoreConfig(w io.Writer, sc StoreConfig) error {
	if err := WriteString(w, sc.Path); err != nil {
		return err
	}
	if err := WriteString(w, sc.ID); err != nil {
		return err
	}
	if sc.Size == nil {
		if err := WriteLE(w, uint8(0)); err != nil {
			return err
		}
	} else if err := WriteLE(w, uint8(1)); err != nil {
		return err
	} else if err := WriteLE(w, *sc.Size); err != nil {
		return err
	}
	return WriteLE(w, sc.RowsToDiscard)
}

func DecodeTAux(r io.Reader) (*TemporaryAux, error) {
	n, err := ReadLen(r, maxColumnRows)
	if err != nil {
		return nil, xerrors.Errorf("label count: %w", err)
	}

	taux := &TemporaryAux{Labels: TAuxLabels{Labels: make([]StoreConfig, n)}}
	for i := range taux.Labels.Labels {
		if taux.Labels.Labels[i], err = DecodeStoreConfig(r); err != nil {
			return nil, xerrors.Errorf("label store %d: %w", i+1, err)
		}
	}
	for _, sc := range taux.trees() {
		if *sc, err = DecodeStoreConfig(r); err != nil {
			return nil, xerrors.Errorf("tree store: %w", err)
		}
	}
	return taux, nil
}

func EncodeTAux(w io.Writer, taux TemporaryAux) error {
	if err := WriteLE(w, uint64(len(taux.Labels.Labels))); err != nil {
		return err
	}
	for i, sc := range taux.Labels.Labels {
		if err := EncodeStoreConfig(w, sc); err != nil {
			return xerrors.Errorf("label store %d: %w", i+1, err)
		}
	}
	for _, sc := range taux.trees() {
		if err := EncodeStoreConfig(w, *sc); err != nil {
			return xerrors.Errorf("tree store %s: %w", sc.ID, err)
		}
	}
	return nil
}

// DataPath is the file backing the store.
func (sc StoreConfig) DataPath() string {
	return filepath.Join(sc.Path, sc.ID+".dat")
}
