package sdr

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/xerrors"

	"github.com/filecoin-project/sdr-porep/lib/paths"
	"github.com/filecoin-project/sdr-porep/lib/proof"
)

// StoreConfig is the working set of one sealing run.
type StoreConfig struct {
	Path          string `json:"path"`
	ID            string `json:"id"`
	Size          uint64 `json:"size"`
	RowsToDiscard uint64 `json:"rows_to_discard"`
}

type StoreOption func(*StoreConfig)

// WithRowsToDiscard overrides the number of tree-r-last rows left off disk.
func WithRowsToDiscard(rows uint64) StoreOption {
	return func(c *StoreConfig) { c.RowsToDiscard = rows }
}

func GenerateStoreConfig(nodes uint64, dir string, opts ...StoreOption) (StoreConfig, error) {
	if err := validateNodeCount(nodes); err != nil {
		return StoreConfig{}, err
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return StoreConfig{}, opErr("generate store config", dir, ErrDirectoryUnavailable, err)
	}
	if err := paths.PrepareDir(abs, false); err != nil {
		return StoreConfig{}, opErr("generate store config", abs, ErrDirectoryUnavailable, err)
	}
	if err := paths.CheckWritable(abs); err != nil {
		return StoreConfig{}, opErr("generate store config", abs, ErrDirectoryUnavailable, err)
	}

	cfg := StoreConfig{
		Path:          abs,
		ID:            proof.TreeDID,
		Size:          nodes,
		RowsToDiscard: proof.DefaultRowsToDiscard(int64(nodes)),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.validateRows(); err != nil {
		return StoreConfig{}, err
	}
	return cfg, nil
}

func (c StoreConfig) validateRows() error {
	rows := proof.TreeRowCount(int64(c.Size), 2)
	if int(c.RowsToDiscard) > rows-2 {
		return xerrors.Errorf("rows to discard %d exceeds %d for a %d row tree: %w", c.RowsToDiscard, rows-2, rows, ErrInvalidArgument)
	}
	return nil
}

// Validate checks the config against the params it will be used with.
func (c StoreConfig) Validate(p SetupParams) error {
	if c.Path == "" {
		return xerrors.Errorf("store config has no path: %w", ErrGraphConstruction)
	}
	if c.Size != p.Nodes {
		return xerrors.Errorf("store config size: %w", wrapMismatch(ErrGraphConstruction, "nodes", p.Nodes, c.Size))
	}
	return c.validateRows()
}

func (c StoreConfig) Layout() paths.Layout {
	return paths.Layout{Dir: c.Path}
}

func (c StoreConfig) temporaryAux(p SetupParams) proof.TemporaryAux {
	return proof.NewTemporaryAux(c.Path, p.Nodes, int(p.Layers), c.RowsToDiscard)
}

func (c StoreConfig) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

func UnmarshalStoreConfig(b []byte) (StoreConfig, error) {
	var c StoreConfig
	if err := json.Unmarshal(b, &c); err != nil {
		return StoreConfig{}, opErr("decode store config", "", ErrMalformedArtifact, err)
	}
	if err := validateNodeCount(c.Size); err != nil {
		return StoreConfig{}, opErr("decode store config", c.Path, ErrMalformedArtifact, err)
	}
	return c, nil
}

// CountNodes returns the number of nodes held by the data file at path.
func CountNodes(path string) (uint64, error) {
	st, err := os.Stat(path)
	if err != nil {
		return 0, ioErr("count nodes", path, err)
	}
	if st.IsDir() {
		return 0, opErr("count nodes", path, ErrMalformedInput, xerrors.New("is a directory"))
	}

	size := uint64(st.Size())
	if size == 0 || size%NodeSize != 0 {
		return 0, opErr("count nodes", path, ErrMalformedInput,
			xerrors.Errorf("length %d is not a positive multiple of %d", size, NodeSize))
	}
	return size / NodeSize, nil
}

// InitTargetDir creates dir, emptying it first when needClean is set.
func InitTargetDir(dir string, needClean bool) error {
	if err := paths.PrepareDir(dir, needClean); err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return opErr("initialize target dir", dir, ErrPermissionDenied, err)
		}
		return ioErr("initialize target dir", dir, err)
	}
	log.Debugw("target dir ready", "dir", dir, "cleaned", needClean)
	return nil
}
