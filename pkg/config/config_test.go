package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug
github:
  owner: example
  repo: whitelist
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "example", cfg.GitHub.Owner)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "main", cfg.GitHub.Branch)
	assert.Equal(t, "whitelist.txt", cfg.GitHub.RawPath)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Address = ""
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Publish.DebounceDelay = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Database.Enabled = true
	assert.Error(t, cfg.Validate())
}

func TestGitHubForRealmOverride(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GitHub.Owner = "global-owner"
	cfg.GitHub.Repo = "global-repo"
	cfg.GitHub.Token = "global-token"
	cfg.Realms = map[string]RealmConfig{
		"realm-a": {
			GitHub: GitHubConfig{Repo: "realm-repo", Branch: "release"},
		},
	}

	resolved := cfg.GitHubFor("realm-a")
	assert.Equal(t, "global-owner", resolved.Owner)
	assert.Equal(t, "realm-repo", resolved.Repo)
	assert.Equal(t, "release", resolved.Branch)
	assert.Equal(t, "global-token", resolved.Token)

	unknown := cfg.GitHubFor("realm-b")
	assert.Equal(t, "global-repo", unknown.Repo)
	assert.Equal(t, "main", unknown.Branch)
}

func TestEncodingKeyFor(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, DefaultEncodingKey, cfg.EncodingKeyFor("any"))

	cfg.Encoding.Key = "global-key"
	cfg.Realms = map[string]RealmConfig{
		"realm-a": {EncodingKey: "realm-key"},
	}

	assert.Equal(t, "realm-key", cfg.EncodingKeyFor("realm-a"))
	assert.Equal(t, "global-key", cfg.EncodingKeyFor("realm-b"))
}

func TestDecryptSecretsRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SecretKey = "process-secret"

	encrypted, err := EncryptSecret("gh-token", cfg.SecretKey)
	require.NoError(t, err)
	cfg.GitHub.Token = encrypted

	cfg.DecryptSecrets(zaptest.NewLogger(t).Sugar())
	assert.Equal(t, "gh-token", cfg.GitHub.Token)
}

func TestDecryptSecretsFallsBackToStoredValue(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SecretKey = "wrong-key"
	cfg.GitHub.Token = "enc:not-valid-ciphertext"

	cfg.DecryptSecrets(zaptest.NewLogger(t).Sugar())
	assert.Equal(t, "enc:not-valid-ciphertext", cfg.GitHub.Token)
}

func TestDecryptSecretsLeavesPlaintextAlone(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GitHub.Token = "plain-token"

	cfg.DecryptSecrets(zaptest.NewLogger(t).Sugar())
	assert.Equal(t, "plain-token", cfg.GitHub.Token)
}
