package ffi

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/sdr-porep/lib/sdr"
)

func open(t *testing.T, sb *SealCalls, h Handle) Envelope {
	t.Helper()

	b, err := sb.Arena().Get(h)
	require.NoError(t, err)
	env, err := DecodeEnvelope(b)
	require.NoError(t, err)
	require.NoError(t, sb.Arena().Release(h))
	return env
}

func mustOK(t *testing.T, sb *SealCalls, h Handle) json.RawMessage {
	t.Helper()

	env := open(t, sb, h)
	require.True(t, env.OK, "%s: %s", env.Kind, env.Error)
	return env.Value
}

func TestSealCallsRoundTrip(t *testing.T) {
	ctx := context.Background()
	sb := NewSealCalls(NewArena(), WithParamOptions(sdr.WithLayers(2)), WithSealOptions(sdr.WithWorkers(2)))
	dir := t.TempDir()
	store := filepath.Join(dir, "store")
	src := filepath.Join(dir, "data.bin")

	mustOK(t, sb, sb.InitTargetDir(store, true))
	mustOK(t, sb, sb.GenerateSampleFile(64*sdr.NodeSize, src))

	var nodes uint64
	require.NoError(t, json.Unmarshal(mustOK(t, sb, sb.CountNodes(src)), &nodes))
	require.EqualValues(t, 64, nodes)

	params := mustOK(t, sb, sb.GenerateSetupParams(nodes))
	cfg := mustOK(t, sb, sb.GenerateStoreConfig(nodes, store))
	id := mustOK(t, sb, sb.GenerateReplicaID())
	challenges := mustOK(t, sb, sb.GenerateChallenges(nodes, 5))

	var comms Commitments
	require.NoError(t, json.Unmarshal(mustOK(t, sb, sb.Seal(ctx, src, params, cfg, id)), &comms))
	require.NotEmpty(t, comms.CommD)
	require.NotEmpty(t, comms.CommR)

	replica, err := ReplicaPath(src, cfg)
	require.NoError(t, err)
	proofPath := filepath.Join(dir, "proof")
	mustOK(t, sb, sb.Prove(ctx, replica, params, id, challenges, proofPath))

	var ok bool
	require.NoError(t, json.Unmarshal(mustOK(t, sb, sb.Verify(ctx, replica, params, id, challenges, proofPath)), &ok))
	require.True(t, ok)

	other := mustOK(t, sb, sb.GenerateReplicaID())
	require.NoError(t, json.Unmarshal(mustOK(t, sb, sb.Verify(ctx, replica, params, other, challenges, proofPath)), &ok))
	require.False(t, ok)

	out := filepath.Join(dir, "unsealed")
	mustOK(t, sb, sb.Unseal(ctx, replica, params, id, out))

	require.Zero(t, sb.Arena().Outstanding())
}

func TestSealCallsErrors(t *testing.T) {
	sb := NewSealCalls(NewArena())

	env := open(t, sb, sb.GenerateSetupParams(0))
	require.False(t, env.OK)
	require.Equal(t, "InvalidArgument", env.Kind)
	require.NotEmpty(t, env.Error)

	env = open(t, sb, sb.CountNodes(filepath.Join(t.TempDir(), "missing")))
	require.Equal(t, "IOFailure", env.Kind)

	env = open(t, sb, sb.Seal(context.Background(), "src", []byte("{"), nil, nil))
	require.Equal(t, "MalformedArtifact", env.Kind)

	env = open(t, sb, sb.GenerateChallenges(1024, 0))
	require.Equal(t, "InvalidArgument", env.Kind)

	require.Zero(t, sb.Arena().Outstanding())
}
