package config

type DocField struct {
	Name    string
	Type    string
	Comment string
}

// Doc mirrors the field comments of types.go for commented config output.
var Doc = map[string][]DocField{
	"PoRepConfig": {
		{Name: "Seal", Type: "SealConfig"},
		{Name: "Prove", Type: "ProveConfig"},
		{Name: "Paths", Type: "PathsConfig"},
		{Name: "Logging", Type: "Logging"},
	},
	"SealConfig": {
		{Name: "Layers", Type: "uint32", Comment: "Number of label layers. One of 2, 3, 4, 8, 11."},
		{Name: "Workers", Type: "int", Comment: "Goroutines used by tree building, encoding and proving. 0 uses every CPU."},
		{Name: "RowsToDiscard", Type: "int", Comment: "Rows of tree-r-last above the leaves that are not written to disk and are\nrebuilt from the replica when proving. Negative picks a size based default.\nFIL_PROOFS_ROWS_TO_DISCARD is honored when this is not set from the environment."},
		{Name: "Reflink", Type: "bool", Comment: "Reflink the source file into the replica before encoding when the\nfilesystem supports it."},
		{Name: "PoRepID", Type: "string", Comment: "Hex encoded 32 byte porep id. Empty derives the id from the graph shape."},
	},
	"ProveConfig": {
		{Name: "Challenges", Type: "int", Comment: "Number of challenged nodes per proof."},
		{Name: "Sessions", Type: "int", Comment: "Number of challenge, prove and verify sessions in one run."},
	},
	"PathsConfig": {
		{Name: "TargetDir", Type: "string", Comment: "Directory holding the store of a run. ~ is expanded."},
		{Name: "SampleSize", Type: "string", Comment: "Size of the generated sample file, e.g. \"32KiB\" or \"1MiB\"."},
		{Name: "ReportPath", Type: "string", Comment: "Where the timing report of a run is written. Empty disables the report."},
	},
	"Logging": {
		{Name: "SubsystemLevels", Type: "map[string]string", Comment: "SubsystemLevels specify per-subsystem log levels"},
	},
}
