package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsPassInvariants(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.checkInvariants())
}

func TestLoadWithoutPathUsesDefaults(t *testing.T) {
	t.Setenv("CLIENT", "")
	t.Setenv("RECONSYNC_SERVER", "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Defaults().Addr, cfg.Addr)
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"addr": "0.0.0.0:9000",
		"node_name": "NODE-X",
		"merkle_base": 5,
		"sync_interval_seconds": 7,
		"http_timeout_seconds": 5,
		"log_level": "debug"
	}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Addr)
	assert.Equal(t, 5, cfg.MerkleBase)
	assert.Equal(t, "NODE-X", cfg.NodeName)
}

func TestLoadRejectsInvalidSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"merkle_base": 1}`), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverlayOverridesNodeAndServer(t *testing.T) {
	t.Setenv("CLIENT", "OVERRIDDEN-NODE")
	t.Setenv("RECONSYNC_SERVER", "http://example.invalid:1234")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "OVERRIDDEN-NODE", cfg.NodeName)
	assert.Equal(t, "http://example.invalid:1234", cfg.ServerURL)
}

func TestNormalizedNode(t *testing.T) {
	cfg := Defaults()
	assert.Len(t, cfg.NormalizedNode(), 16)
}
