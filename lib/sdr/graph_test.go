package sdr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGraphParents(t *testing.T) {
	p, err := GenerateSetupParams(256, WithLayers(2))
	require.NoError(t, err)

	g, err := buildGraph(p)
	require.NoError(t, err)

	require.Empty(t, g.BaseParents(0))
	require.Len(t, g.ExpParents(0), DefaultExpansionDegree)

	for i := uint64(1); i < p.Nodes; i++ {
		base := g.BaseParents(i)
		require.Len(t, base, DefaultBaseDegree)
		require.EqualValues(t, i-1, base[0])
		for _, parent := range base {
			require.Less(t, uint64(parent), i, "node %d", i)
		}
		for _, parent := range g.ExpParents(i) {
			require.Less(t, uint64(parent), p.Nodes)
		}
	}
}

func TestGraphDeterministic(t *testing.T) {
	p, err := GenerateSetupParams(128, WithLayers(2))
	require.NoError(t, err)

	a, err := buildGraph(p)
	require.NoError(t, err)
	b, err := buildGraph(p)
	require.NoError(t, err)
	require.Equal(t, a.base, b.base)
	require.Equal(t, a.exp, b.exp)

	cached, err := GraphFor(p)
	require.NoError(t, err)
	again, err := GraphFor(p)
	require.NoError(t, err)
	require.Same(t, cached, again)
	require.Equal(t, a.exp, cached.exp)

	var other PoRepID
	other[0] = 1
	q, err := GenerateSetupParams(128, WithLayers(2), WithPoRepID(other))
	require.NoError(t, err)
	c, err := buildGraph(q)
	require.NoError(t, err)
	require.NotEqual(t, a.exp, c.exp)
}

func TestFeistelPermutes(t *testing.T) {
	var key PoRepID
	for _, domain := range []uint64{16, 100, 1024} {
		f := newFeistel(key, domain)
		seen := make(map[uint64]bool, domain)
		for x := uint64(0); x < domain; x++ {
			y := f.permute(x)
			require.Less(t, y, domain)
			require.False(t, seen[y], "domain %d: %d repeated", domain, y)
			seen[y] = true
		}
	}
}

func TestGraphForRejectsBadParams(t *testing.T) {
	_, err := GraphFor(SetupParams{Nodes: 3, Degree: 6, ExpansionDegree: 8, Layers: 2})
	require.ErrorIs(t, err, ErrInvalidNodeCount)
}
