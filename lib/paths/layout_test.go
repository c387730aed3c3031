package paths

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReplicaPath(t *testing.T) {
	require.Equal(t, "/out/sample.replica", ReplicaPath("/data/sample.dat", "/out"))
	require.Equal(t, "/out/sample.replica", ReplicaPath("sample", "/out"))
	require.Equal(t, "/out", StoreDir(ReplicaPath("x.bin", "/out")))
}

func TestLayoutArtifacts(t *testing.T) {
	l := Layout{Dir: "/store"}
	require.Equal(t, "/store/layer-2.dat", l.Layer(2))
	require.Equal(t, "/store/tree-r-last.dat", l.TreeRLast())
	require.Len(t, l.RunArtifacts(4), 10)
	require.NotContains(t, l.RunArtifacts(4), l.State())
}

func TestPrepareDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")

	require.NoError(t, PrepareDir(dir, false))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keep"), []byte("x"), 0644))

	require.NoError(t, PrepareDir(dir, false))
	ok, err := FileExists(filepath.Join(dir, "keep"))
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))
	require.NoError(t, PrepareDir(dir, true))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)

	require.NoError(t, CheckWritable(dir))

	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0644))
	require.Error(t, PrepareDir(file, false))
}
