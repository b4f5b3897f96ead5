package nats

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectTimeoutDefault(t *testing.T) {
	assert.Equal(t, 5*time.Second, Config{}.connectTimeout())
	assert.Equal(t, time.Second, Config{ConnectTimeout: time.Second}.connectTimeout())
}

func TestTLSConfig(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "ca.pem")
	require.NoError(t, os.WriteFile(garbage, []byte("not a certificate"), 0o600))

	t.Run("missing CA file", func(t *testing.T) {
		_, err := tlsConfig(Config{CAFile: filepath.Join(dir, "absent.pem")})
		assert.Error(t, err)
	})

	t.Run("CA file without certificates", func(t *testing.T) {
		_, err := tlsConfig(Config{CAFile: garbage})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no certificates")
	})

	t.Run("client cert without key", func(t *testing.T) {
		_, err := tlsConfig(Config{CertFile: garbage})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no key file")
	})
}
