package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetViper() {
	viper.Reset()
}

func TestDefaultIsInvalidWithoutJWTSecret(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "admin_api.jwt.secret")
}

func TestDefaultWithSecretValidates(t *testing.T) {
	cfg := Default()
	cfg.AdminAPI.JWT.Secret = "dev-secret"
	assert.NoError(t, cfg.Validate())
}

func TestValidatePlatformRejectsEmptyBindingDomains(t *testing.T) {
	cfg := Default()
	cfg.AdminAPI.JWT.Secret = "dev-secret"
	cfg.Platform.BindingDomains = nil
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "platform.binding_domains")
}

func TestValidatePlatformRejectsZeroTotalResourceSeed(t *testing.T) {
	cfg := Default()
	cfg.AdminAPI.JWT.Secret = "dev-secret"
	cfg.Platform.Resources = []ResourceSeed{{Path: "sys.cpu.pe", Total: 0}}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "platform.resources[].total")
}

func TestValidateLoggingRejectsUnknownLevel(t *testing.T) {
	cfg := Default()
	cfg.AdminAPI.JWT.Secret = "dev-secret"
	cfg.Logging.Level = "verbose"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging.level")
}

func TestLoadReadsYAMLFileAndOverridesDefaults(t *testing.T) {
	resetViper()
	dir := t.TempDir()
	file := filepath.Join(dir, "bbqued.yaml")
	contents := `
node:
  name: test-node
policy:
  name: greedy
  interval: 5s
admin_api:
  listen: "127.0.0.1:9000"
  jwt:
    secret: "file-secret"
logging:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(file, []byte(contents), 0o644))

	cfg, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, "test-node", cfg.Node.Name)
	assert.Equal(t, "127.0.0.1:9000", cfg.AdminAPI.Listen)
	assert.Equal(t, "file-secret", cfg.AdminAPI.JWT.Secret)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadWithMissingFileFallsBackToDefaultsAndStillValidates(t *testing.T) {
	resetViper()
	dir := t.TempDir()
	_, err := Load(filepath.Join(dir, "does-not-exist.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "admin_api.jwt.secret")
}

func TestLoadHonorsEnvironmentOverride(t *testing.T) {
	resetViper()
	t.Setenv("BBQUED_ADMIN_API_JWT_SECRET", "env-secret")
	t.Setenv("BBQUED_NODE_NAME", "env-node")

	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "env-secret", cfg.AdminAPI.JWT.Secret)
	assert.Equal(t, "env-node", cfg.Node.Name)
}
