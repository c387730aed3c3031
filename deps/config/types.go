package config

import "runtime"

// PoRepConfig is the configuration shared by the CLI and the shared library.
type PoRepConfig struct {
	Seal    SealConfig
	Prove   ProveConfig
	Paths   PathsConfig
	Logging Logging
}

type SealConfig struct {
	// Number of label layers. One of 2, 3, 4, 8, 11.
	Layers uint32

	// Goroutines used by tree building, encoding and proving. 0 uses every CPU.
	Workers int

	// Rows of tree-r-last above the leaves that are not written to disk and are
	// rebuilt from the replica when proving. Negative picks a size based default.
	// FIL_PROOFS_ROWS_TO_DISCARD is honored when this is not set from the environment.
	RowsToDiscard int

	// Reflink the source file into the replica before encoding when the
	// filesystem supports it.
	Reflink bool

	// Hex encoded 32 byte porep id. Empty derives the id from the graph shape.
	PoRepID string
}

type ProveConfig struct {
	// Number of challenged nodes per proof.
	Challenges int

	// Number of challenge, prove and verify sessions in one run.
	Sessions int
}

type PathsConfig struct {
	// Directory holding the store of a run. ~ is expanded.
	TargetDir string

	// Size of the generated sample file, e.g. "32KiB" or "1MiB".
	SampleSize string

	// Where the timing report of a run is written. Empty disables the report.
	ReportPath string
}

// Logging is the logging system config
type Logging struct {
	// SubsystemLevels specify per-subsystem log levels
	SubsystemLevels map[string]string
}

func DefaultPoRepConfig() *PoRepConfig {
	return &PoRepConfig{
		Seal: SealConfig{
			Layers:        11,
			Workers:       runtime.NumCPU(),
			RowsToDiscard: -1,
			Reflink:       true,
		},
		Prove: ProveConfig{
			Challenges: 10,
			Sessions:   1,
		},
		Paths: PathsConfig{
			TargetDir:  "~/.porep",
			SampleSize: "32KiB",
			ReportPath: "report.json",
		},
		Logging: Logging{
			SubsystemLevels: map[string]string{},
		},
	}
}
