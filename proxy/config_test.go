package proxy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// An empty path yields the built-in defaults.
func TestLoadConfig_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

// A partial file overlays the defaults; unset keys keep their default
// values.
func TestLoadConfig_PartialOverlay(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "listen: \":3128\"\nmax_object_size: 2048\n")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	want := DefaultConfig()
	want.Listen = ":3128"
	want.MaxObjectSize = 2048
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "listen: [not, a, string\n"))
	require.Error(t, err)

	// Settings the proxy cannot run with are rejected at load time.
	_, err = LoadConfig(writeConfig(t, "max_cache_size: 100\nmax_object_size: 200\n"))
	require.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	require.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.Listen = ""
	require.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.MaxCacheSize = 0
	require.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.MaxObjectSize = -1
	require.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.MaxObjectSize = bad.MaxCacheSize + 1
	require.Error(t, bad.Validate())
}
