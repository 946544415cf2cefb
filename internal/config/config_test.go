package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"ATOMKV_TCP_ADDR", "ATOMKV_HTTP_ADDR", "ATOMKV_CAPACITY", "ATOMKV_AOF_PATH"} {
		old, had := os.LookupEnv(k)
		require.NoError(t, os.Unsetenv(k))
		t.Cleanup(func() {
			if had {
				os.Setenv(k, old)
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(nil)
	require.NoError(t, err)
	require.Equal(t, DefaultTCPAddr, cfg.TCPAddr)
	require.Equal(t, DefaultHTTPAddr, cfg.HTTPAddr)
	require.Equal(t, DefaultCapacity, cfg.Capacity)
}

func TestLoadHonorsEnvOverrides(t *testing.T) {
	clearEnv(t)
	require.NoError(t, os.Setenv("ATOMKV_TCP_ADDR", ":7000"))
	require.NoError(t, os.Setenv("ATOMKV_CAPACITY", "42"))

	cfg, err := Load(nil)
	require.NoError(t, err)
	require.Equal(t, ":7000", cfg.TCPAddr)
	require.Equal(t, 42, cfg.Capacity)
}

func TestLoadIgnoresInvalidCapacity(t *testing.T) {
	clearEnv(t)
	require.NoError(t, os.Setenv("ATOMKV_CAPACITY", "not-a-number"))

	cfg, err := Load(nil)
	require.NoError(t, err)
	require.Equal(t, DefaultCapacity, cfg.Capacity)
}
