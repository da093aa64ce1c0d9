package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const sampleKey = "TEST_KEY12345678987654"

func confPath(t *testing.T) string {
	t.Helper()
	path, err := UserConfPath()
	require.NoError(t, err)
	return path
}

func readRawConf(t *testing.T) map[string]any {
	t.Helper()
	data, err := os.ReadFile(confPath(t))
	require.NoError(t, err)
	conf := map[string]any{}
	require.NoError(t, yaml.Unmarshal(data, &conf))
	return conf
}

func TestSetKeyRoundTrip(t *testing.T) {
	t.Setenv(HomeEnvVar, t.TempDir())

	require.NoError(t, SetKey(sampleKey))

	got, err := GetKey()
	require.NoError(t, err)
	assert.Equal(t, sampleKey, got)
}

func TestSetKeyCreatesConfFile(t *testing.T) {
	t.Setenv(HomeEnvVar, t.TempDir())

	require.NoError(t, SetKey(sampleKey))

	conf := readRawConf(t)
	assert.Len(t, conf, 1)
	assert.Equal(t, sampleKey, conf["cloud_key"])
}

func TestSetKeyPreservesUnrelatedEntries(t *testing.T) {
	home := t.TempDir()
	t.Setenv(HomeEnvVar, home)

	path := filepath.Join(home, "stats", "config.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("stats_enabled: false\n"), 0644))

	require.NoError(t, SetKey(sampleKey))

	conf := readRawConf(t)
	assert.Equal(t, sampleKey, conf["cloud_key"])
	assert.Equal(t, false, conf["stats_enabled"])
}

func TestSetKeyOverwrites(t *testing.T) {
	t.Setenv(HomeEnvVar, t.TempDir())

	require.NoError(t, SetKey(sampleKey))

	second := "SEC_KEY123456789876543"
	require.NoError(t, SetKey(second))

	got, err := GetKey()
	require.NoError(t, err)
	assert.Equal(t, second, got)

	// A single authoritative entry remains.
	assert.Equal(t, second, readRawConf(t)["cloud_key"])
}

func TestSetKeyRejectsMalformed(t *testing.T) {
	t.Setenv(HomeEnvVar, t.TempDir())

	assert.ErrorIs(t, SetKey(""), ErrInvalidKey)
	assert.ErrorIs(t, SetKey("12345"), ErrInvalidKey)

	// Nothing was persisted.
	_, err := GetKey()
	assert.ErrorIs(t, err, ErrNoKey)
	_, statErr := os.Stat(confPath(t))
	assert.True(t, os.IsNotExist(statErr))
}

func TestGetKeyNoConfFile(t *testing.T) {
	t.Setenv(HomeEnvVar, t.TempDir())

	_, err := GetKey()
	assert.ErrorIs(t, err, ErrNoKey)
}

func TestGetKeyMalformedConfFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv(HomeEnvVar, home)

	path := filepath.Join(home, "stats", "config.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("cloud_key: [unclosed\n"), 0644))

	_, err := GetKey()
	assert.ErrorIs(t, err, ErrNoKey)
}

// Duplicate cloud_key entries can only appear through manual edits. yaml.v3
// rejects duplicate mapping keys, so the file is treated as malformed rather
// than resolving to either entry.
func TestGetKeyDuplicateEntries(t *testing.T) {
	home := t.TempDir()
	t.Setenv(HomeEnvVar, home)

	require.NoError(t, SetKey(sampleKey))

	path := confPath(t)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data = append(data, []byte("cloud_key: SEC_KEY12345678987654\n")...)
	require.NoError(t, os.WriteFile(path, data, 0644))

	_, err = GetKey()
	assert.ErrorIs(t, err, ErrNoKey)
}

func TestHomeDirFallsBackToUserHome(t *testing.T) {
	t.Setenv(HomeEnvVar, "")

	original := osUserHomeDir
	defer func() { osUserHomeDir = original }()
	osUserHomeDir = func() (string, error) { return "/home/somebody", nil }

	dir, err := HomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/home/somebody", ".pipetrack"), dir)
}
