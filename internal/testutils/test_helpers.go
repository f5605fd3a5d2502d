package testutils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// CreateTempFile writes content to filename inside a fresh temp dir and
// returns the path.
func CreateTempFile(t *testing.T, filename, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), filename)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// WriteDotEnv writes vars as a .env file and returns its path.
func WriteDotEnv(t *testing.T, vars map[string]string) string {
	t.Helper()
	var b strings.Builder
	for k, v := range vars {
		b.WriteString(k + "=" + v + "\n")
	}
	return CreateTempFile(t, ".env", b.String())
}

// ClearEnv unsets every variable starting with prefix for the duration of
// the test.
func ClearEnv(t *testing.T, prefix string) {
	t.Helper()
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, prefix) {
			t.Setenv(key, "")
			require.NoError(t, os.Unsetenv(key))
		}
	}
}

// IsolateUserConfig points HOME and XDG_CONFIG_HOME at temp dirs so user
// .env files do not leak into the test.
func IsolateUserConfig(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
}
