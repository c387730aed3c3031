package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigRoundTrip(t *testing.T) {
	def := DefaultPoRepConfig()

	b, err := ConfigComment(def)
	require.NoError(t, err)
	require.Contains(t, string(b), "# env var: POREP_SEAL_ROWSTODISCARD")
	require.Contains(t, string(b), "[Seal]")
	require.Contains(t, string(b), "  #Layers = 11")

	cfg, err := FromReader(strings.NewReader(string(b)), DefaultPoRepConfig())
	require.NoError(t, err)
	assert.Equal(t, def.Seal, cfg.Seal)
	assert.Equal(t, def.Prove, cfg.Prove)
	assert.Equal(t, def.Paths, cfg.Paths)
}

func TestConfigUpdateKeepsChanges(t *testing.T) {
	cur := DefaultPoRepConfig()
	cur.Seal.Layers = 4
	cur.Paths.SampleSize = "1MiB"

	b, err := ConfigUpdate(cur, DefaultPoRepConfig(), true)
	require.NoError(t, err)
	require.Contains(t, string(b), "\n  Layers = 4")

	cfg, err := FromReader(strings.NewReader(string(b)), DefaultPoRepConfig())
	require.NoError(t, err)
	require.EqualValues(t, 4, cfg.Seal.Layers)
	require.Equal(t, "1MiB", cfg.Paths.SampleSize)
	require.Equal(t, DefaultPoRepConfig().Prove, cfg.Prove)
}

func TestFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := FromFile(path, DefaultPoRepConfig())
	require.NoError(t, err)
	require.Equal(t, DefaultPoRepConfig().Seal, cfg.Seal)

	require.NoError(t, os.WriteFile(path, []byte("[Prove]\nChallenges = 3\n"), 0644))
	cfg, err = FromFile(path, DefaultPoRepConfig())
	require.NoError(t, err)
	require.Equal(t, 3, cfg.Prove.Challenges)

	require.NoError(t, os.WriteFile(path, []byte("[Prove]\nNope = 3\n"), 0644))
	_, err = FromFile(path, DefaultPoRepConfig())
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("POREP_PROVE_SESSIONS", "4")
	t.Setenv(legacyEnvRowsToDiscard, "1")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	require.Equal(t, 4, cfg.Prove.Sessions)
	require.Equal(t, 1, cfg.Seal.RowsToDiscard)

	t.Setenv(envRowsToDiscard, "0")
	cfg, err = LoadFromEnv()
	require.NoError(t, err)
	require.Equal(t, 0, cfg.Seal.RowsToDiscard)

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[Seal]\nLayers = 2\n"), 0644))
	t.Setenv(EnvConfigPath, path)
	cfg, err = LoadFromEnv()
	require.NoError(t, err)
	require.EqualValues(t, 2, cfg.Seal.Layers)
}

func TestOptions(t *testing.T) {
	cfg := DefaultPoRepConfig()

	n, err := cfg.Paths.SampleBytes()
	require.NoError(t, err)
	require.EqualValues(t, 32<<10, n)

	cfg.Paths.SampleSize = "lots"
	_, err = cfg.Paths.SampleBytes()
	require.Error(t, err)

	require.Empty(t, cfg.Seal.StoreOptions())
	cfg.Seal.RowsToDiscard = 0
	require.Len(t, cfg.Seal.StoreOptions(), 1)

	opts, err := cfg.Seal.ParamOptions()
	require.NoError(t, err)
	require.Len(t, opts, 1)

	cfg.Seal.PoRepID = "xyz"
	_, err = cfg.Seal.ParamOptions()
	require.Error(t, err)

	cfg.Seal.PoRepID = strings.Repeat("ab", 32)
	opts, err = cfg.Seal.ParamOptions()
	require.NoError(t, err)
	require.Len(t, opts, 2)

	target, err := cfg.Paths.Target()
	require.NoError(t, err)
	require.True(t, filepath.IsAbs(target))
}
