package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDirHonorsEnvOverride(t *testing.T) {
	t.Setenv("DBCROSSBAR_CONFIG_DIR", "/tmp/custom-config")
	dir, err := Dir()
	require.NoError(t, err)
	require.Equal(t, "/tmp/custom-config", dir)
}

func TestLoadFromMissingFileIsEmptyConfig(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	require.Empty(t, cfg.Temporary)
}

func TestLoadFromParsesTemporary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dbcrossbar.toml")
	require.NoError(t, os.WriteFile(path, []byte(`temporary = ["gs://bucket/tmp/", "s3://bucket/tmp/"]`), 0o644))
	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	require.Equal(t, []string{"gs://bucket/tmp/", "s3://bucket/tmp/"}, cfg.Temporary)
}

func TestLoadFromRejectsBadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dbcrossbar.toml")
	require.NoError(t, os.WriteFile(path, []byte(`temporary = not-a-list`), 0o644))
	_, err := LoadFrom(path)
	require.ErrorContains(t, err, "parsing")
}

func TestCredentialPrefersRegistrations(t *testing.T) {
	t.Setenv("DBX_TEST_SECRET", "from-env")
	v, ok := Credential("DBX_TEST_SECRET")
	require.True(t, ok)
	require.Equal(t, "from-env", v)

	t.Setenv("DBX_TEST_SECRET2", "from-env")
	RegisterCredential("DBX_TEST_SECRET2", "from-registry")
	v, ok = Credential("DBX_TEST_SECRET2")
	require.True(t, ok)
	require.Equal(t, "from-registry", v)

	_, ok = Credential("DBX_TEST_SECRET_MISSING")
	require.False(t, ok)
}
