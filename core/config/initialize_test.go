package config

import (
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gossh "golang.org/x/crypto/ssh"
)

func TestInitialize(t *testing.T) {
	tempDir := t.TempDir()
	logger := log.New(io.Discard)
	if _, err := Initialize(tempDir, logger); err != nil {
		t.Fatal(err)
	}

	// Check that the config is valid.
	cfg, err := Load(tempDir)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("OpenAppLog", func(t *testing.T) {
		fd, err := cfg.OpenAppLog()
		assert.Nil(t, err)
		fd.Close()
	})

	t.Run("PrivateKeyPem", func(t *testing.T) {
		keyPem, err := cfg.PrivateKeyPem()
		require.Nil(t, err)
		require.NotNil(t, keyPem)

		_, err = gossh.ParsePrivateKey(keyPem)
		assert.Nil(t, err, "host key must parse as an SSH private key")
	})

	t.Run("Reinitialize", func(t *testing.T) {
		before, err := cfg.PrivateKeyPem()
		require.Nil(t, err)

		_, err = Initialize(tempDir, logger)
		require.Nil(t, err)

		after, err := cfg.PrivateKeyPem()
		require.Nil(t, err)
		assert.Equal(t, before, after, "init must never rotate an existing key")
	})
}
