package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// For mocking in tests
var osUserHomeDir = os.UserHomeDir

const (
	// HomeEnvVar overrides the pipetrack home directory.
	HomeEnvVar = "PIPETRACK_HOME"

	defaultHomeDir = ".pipetrack"
	confDir        = "stats"
	userConfFile   = "config.yaml"

	cloudKeyName = "cloud_key"

	// Cloud API keys are at least this long; anything shorter is rejected
	// before it ever reaches the conf file.
	minKeyLength = 22
)

// ErrInvalidKey is returned by SetKey for keys that fail validation.
var ErrInvalidKey = errors.New("the API key is invalid, please validate your key")

// ErrNoKey is returned by GetKey when no cloud key is stored.
var ErrNoKey = errors.New("no cloud API key was found")

// HomeDir returns the pipetrack home directory: the PIPETRACK_HOME
// environment variable when set, otherwise ~/.pipetrack.
func HomeDir() (string, error) {
	if dir := os.Getenv(HomeEnvVar); dir != "" {
		return dir, nil
	}
	home, err := osUserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, defaultHomeDir), nil
}

// UserConfPath returns the path of the user configuration file.
func UserConfPath() (string, error) {
	home, err := HomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, confDir, userConfFile), nil
}

// SetKey validates value and persists it as the cloud_key entry of the
// user conf, creating the directory and file when absent. Any unrelated
// entries already present in the file are kept as-is. An existing
// cloud_key is overwritten.
func SetKey(value string) error {
	if len(value) < minKeyLength {
		return ErrInvalidKey
	}

	path, err := UserConfPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("could not create conf directory: %w", err)
	}

	conf := readConf(path)
	conf[cloudKeyName] = value

	data, err := yaml.Marshal(conf)
	if err != nil {
		return fmt.Errorf("could not serialize conf: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("could not write conf file: %w", err)
	}
	return nil
}

// GetKey returns the stored cloud API key. ErrNoKey is returned when the
// conf file is absent, malformed, or holds no cloud_key entry.
func GetKey() (string, error) {
	path, err := UserConfPath()
	if err != nil {
		return "", err
	}
	conf := readConf(path)
	key, ok := conf[cloudKeyName].(string)
	if !ok || key == "" {
		return "", ErrNoKey
	}
	return key, nil
}

// readConf loads the conf file into a generic mapping. A missing or
// malformed file yields an empty mapping: the conf is best-effort state,
// not something a telemetry command should fail on. Note that yaml.v3
// rejects duplicate mapping keys, so a conf with two cloud_key entries
// (manual edit) counts as malformed here.
func readConf(path string) map[string]any {
	conf := map[string]any{}
	data, err := os.ReadFile(path)
	if err != nil {
		return conf
	}
	if err := yaml.Unmarshal(data, &conf); err != nil {
		return map[string]any{}
	}
	return conf
}
