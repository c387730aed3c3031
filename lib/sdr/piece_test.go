package sdr

import (
	"context"
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/snadrus/must"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/sdr-porep/lib/paths"
	"github.com/filecoin-project/sdr-porep/lib/proof"
)

func writeRaw(t *testing.T, dir string, size int) (string, []byte) {
	t.Helper()
	raw := make([]byte, size)
	_, err := rand.Read(raw)
	require.NoError(t, err)
	// make sure at least one node would be rejected without padding
	if size >= NodeSize {
		raw[NodeSize-1] = 0xFF
	}
	path := filepath.Join(dir, "raw.bin")
	require.NoError(t, os.WriteFile(path, raw, 0644))
	return path, raw
}

func TestStagePieceRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	src, raw := writeRaw(t, dir, 3000)

	p := must.One(GenerateSetupParams(128, WithLayers(2)))
	cfg := must.One(GenerateStoreConfig(128, filepath.Join(dir, "store")))
	id := must.One(GenerateReplicaID())

	// raw bytes of the right size are still not field elements
	exact, _ := writeRaw(t, t.TempDir(), 4096)
	_, _, err := Seal(ctx, exact, p, must.One(GenerateStoreConfig(128, filepath.Join(dir, "raw-store"))), id)
	require.ErrorIs(t, err, ErrMalformedInput)

	staged := filepath.Join(dir, "staged.bin")
	info, err := StagePiece(src, staged)
	require.NoError(t, err)
	require.Equal(t, uint64(3000), info.RawSize)
	require.Equal(t, abi.PaddedPieceSize(4096), info.PieceSize)
	require.Equal(t, uint64(128), info.Nodes)

	data, err := os.ReadFile(staged)
	require.NoError(t, err)
	require.Len(t, data, 4096)
	for off := 0; off < len(data); off += NodeSize {
		require.True(t, proof.IsValidNode(data[off:off+NodeSize]), "node %d", off/NodeSize)
	}

	commD, commR, err := Seal(ctx, staged, p, cfg, id, WithWorkers(2))
	require.NoError(t, err)
	require.NotEqual(t, commD, commR)

	unsealed := filepath.Join(dir, "unsealed.bin")
	require.NoError(t, Unseal(ctx, paths.ReplicaPath(staged, cfg.Path), p, id, unsealed))

	out := filepath.Join(dir, "extracted.bin")
	require.NoError(t, ExtractPiece(unsealed, info, out))
	got, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, raw, got)
}

func TestStagePieceSizes(t *testing.T) {
	for _, tc := range []struct {
		raw   int
		piece abi.PaddedPieceSize
	}{
		{1, 128},
		{127, 128},
		{128, 256},
		{254, 256},
		{255, 512},
		{1 << 16, 1 << 17},
	} {
		dir := t.TempDir()
		src, raw := writeRaw(t, dir, tc.raw)
		staged := filepath.Join(dir, "staged.bin")

		info, err := StagePiece(src, staged)
		require.NoError(t, err, "raw %d", tc.raw)
		require.Equal(t, tc.piece, info.PieceSize, "raw %d", tc.raw)

		st, err := os.Stat(staged)
		require.NoError(t, err)
		require.EqualValues(t, tc.piece, st.Size())

		out := filepath.Join(dir, "out.bin")
		require.NoError(t, ExtractPiece(staged, info, out))
		require.Equal(t, raw, must.One(os.ReadFile(out)), "raw %d", tc.raw)
	}
}

func TestStagePieceRejects(t *testing.T) {
	dir := t.TempDir()
	src, _ := writeRaw(t, dir, 500)
	staged := filepath.Join(dir, "staged.bin")

	t.Run("missing source", func(t *testing.T) {
		_, err := StagePiece(filepath.Join(dir, "nope"), staged)
		require.ErrorIs(t, err, ErrIOFailure)
	})

	t.Run("empty source", func(t *testing.T) {
		empty := filepath.Join(dir, "empty")
		require.NoError(t, os.WriteFile(empty, nil, 0644))
		_, err := StagePiece(empty, staged)
		require.ErrorIs(t, err, ErrInvalidArgument)
		require.NoFileExists(t, staged)
	})

	t.Run("in place", func(t *testing.T) {
		_, err := StagePiece(src, src)
		require.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("extract wrong size", func(t *testing.T) {
		info, err := StagePiece(src, staged)
		require.NoError(t, err)

		bad := info
		bad.PieceSize *= 2
		bad.Nodes *= 2
		err = ExtractPiece(staged, bad, filepath.Join(dir, "out"))
		require.ErrorIs(t, err, ErrMalformedInput)
		require.NoFileExists(t, filepath.Join(dir, "out"))

		bad = info
		bad.RawSize = uint64(info.PieceSize)
		err = ExtractPiece(staged, bad, filepath.Join(dir, "out"))
		require.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("piece info codec", func(t *testing.T) {
		info, err := StagePiece(src, staged)
		require.NoError(t, err)
		b, err := info.Marshal()
		require.NoError(t, err)
		got, err := UnmarshalPieceInfo(b)
		require.NoError(t, err)
		require.Equal(t, info, got)

		_, err = UnmarshalPieceInfo([]byte(`{"raw_size":10,"piece_size":100,"nodes":3}`))
		require.ErrorIs(t, err, ErrInvalidArgument)
	})
}
