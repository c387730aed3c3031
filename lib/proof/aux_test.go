package proof

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTAuxPersist(t *testing.T) {
	dir := t.TempDir()

	taux := NewTemporaryAux(dir, 1024, 4, 2)
	require.Len(t, taux.Labels.Labels, 4)
	require.Equal(t, "layer-4", taux.Labels.Labels[3].ID)
	require.Equal(t, uint64(2), taux.TreeRConfig.RowsToDiscard)
	require.Equal(t, filepath.Join(dir, "tree-c.dat"), taux.TreeCConfig.DataPath())

	require.NoError(t, WriteTAux(dir, taux))

	got, err := ReadTAux(dir)
	require.NoError(t, err)
	require.Equal(t, taux, *got)

	raw, err := os.ReadFile(filepath.Join(dir, TauxFile))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, TauxFile), append(raw, 0), 0644))

	_, err = ReadTAux(dir)
	require.Error(t, err)
}

func TestPAuxPersist(t *testing.T) {
	dir := t.TempDir()

	commC := PoseidonDomain{1, 2, 3}
	commRLast := PoseidonDomain{4, 5, 6}
	require.NoError(t, WritePAux(dir, commC, commRLast))

	c, r, err := ReadPAux(dir)
	require.NoError(t, err)
	require.Equal(t, commC, c)
	require.Equal(t, commRLast, r)

	require.NoError(t, os.WriteFile(filepath.Join(dir, PauxFile), []byte{1, 2}, 0644))
	_, _, err = ReadPAux(dir)
	require.Error(t, err)
}
