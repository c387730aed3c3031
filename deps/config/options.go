package config

import (
	"github.com/docker/go-units"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/sdr-porep/lib/paths"
	"github.com/filecoin-project/sdr-porep/lib/sdr"
)

// SealOptions translates the seal section into engine options.
func (c SealConfig) SealOptions(progress sdr.ProgressFunc) []sdr.Option {
	opts := []sdr.Option{sdr.WithReflink(c.Reflink)}
	if c.Workers > 0 {
		opts = append(opts, sdr.WithWorkers(c.Workers))
	}
	if progress != nil {
		opts = append(opts, sdr.WithProgress(progress))
	}
	return opts
}

func (c SealConfig) StoreOptions() []sdr.StoreOption {
	if c.RowsToDiscard < 0 {
		return nil
	}
	return []sdr.StoreOption{sdr.WithRowsToDiscard(uint64(c.RowsToDiscard))}
}

func (c SealConfig) ParamOptions() ([]sdr.ParamOption, error) {
	opts := []sdr.ParamOption{sdr.WithLayers(c.Layers)}
	if c.PoRepID != "" {
		var id sdr.PoRepID
		if err := id.UnmarshalText([]byte(c.PoRepID)); err != nil {
			return nil, xerrors.Errorf("parsing Seal.PoRepID: %w", err)
		}
		opts = append(opts, sdr.WithPoRepID(id))
	}
	return opts, nil
}

// SampleBytes parses SampleSize.
func (c PathsConfig) SampleBytes() (uint64, error) {
	n, err := units.RAMInBytes(c.SampleSize)
	if err != nil {
		return 0, xerrors.Errorf("parsing Paths.SampleSize: %w", err)
	}
	if n <= 0 {
		return 0, xerrors.Errorf("Paths.SampleSize must be positive, got %d", n)
	}
	return uint64(n), nil
}

func (c PathsConfig) Target() (string, error) {
	return paths.Expand(c.TargetDir)
}

// Apply sets the configured subsystem log levels.
func (l Logging) Apply() error {
	for sys, level := range l.SubsystemLevels {
		if err := logging.SetLogLevel(sys, level); err != nil {
			return xerrors.Errorf("setting log level of %s: %w", sys, err)
		}
	}
	return nil
}
