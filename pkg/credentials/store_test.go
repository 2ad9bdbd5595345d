package credentials

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"thoreinstein.com/shipwright/pkg/config"
)

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "credentials.json")
	store := NewFileStore(path)

	v, err := store.Get(ADOToken)
	require.NoError(t, err)
	require.Empty(t, v, "missing secret should be empty, not an error")

	require.NoError(t, store.Set(ADOToken, "pat-1"))
	require.NoError(t, store.Set(GitHubToken, "gh-1"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	v, err = store.Get(ADOToken)
	require.NoError(t, err)
	require.Equal(t, "pat-1", v)

	require.NoError(t, store.Delete(ADOToken))
	v, err = store.Get(ADOToken)
	require.NoError(t, err)
	require.Empty(t, v)

	require.NoError(t, store.Delete(GitHubToken))
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err), "file should be removed once empty")
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewFileStore(path).Get(ADOToken)
	require.Error(t, err)
}

func TestKeychainStore(t *testing.T) {
	keyring.MockInit()

	store := NewKeychainStore("shipwright-test")
	v, err := store.Get(ADOToken)
	require.NoError(t, err)
	require.Empty(t, v)

	require.NoError(t, store.Set(ADOToken, "secret"))
	v, err = store.Get(ADOToken)
	require.NoError(t, err)
	require.Equal(t, "secret", v)

	require.NoError(t, store.Delete(ADOToken))
	require.NoError(t, store.Delete(ADOToken), "deleting twice should not fail")
	require.Equal(t, "keychain", store.Backend())
}

func TestResolveADOToken(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "c.json"))
	require.NoError(t, store.Set(ADOToken, "stored"))

	require.Equal(t, "from-config", ResolveADOToken(&config.ADOConfig{PAT: "from-config"}, store))
	require.Equal(t, "stored", ResolveADOToken(&config.ADOConfig{}, store))
	require.Empty(t, ResolveADOToken(&config.ADOConfig{}, nil))
}

func TestResolveGitHubToken(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "c.json"))
	require.NoError(t, store.Set(GitHubToken, "stored"))

	t.Setenv("GITHUB_TOKEN", "")
	require.Equal(t, "stored", ResolveGitHubToken(&config.GitHubConfig{}, store))
	require.Equal(t, "cfg", ResolveGitHubToken(&config.GitHubConfig{Token: "cfg"}, store))

	t.Setenv("GITHUB_TOKEN", "env")
	require.Equal(t, "env", ResolveGitHubToken(&config.GitHubConfig{Token: "cfg"}, store))
}
