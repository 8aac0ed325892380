package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadValidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ircd.conf")
	contents := `
server-name = irc.example.org
network-name = Test
version = 1.0
created-date = 2020-01-01
motd = Welcome.
insecure-listen-address = :6667
channel-message-queue-length = 50
connection-message-queue-length = 50
user-message-queue-length = 50
server-message-queue-length = 50
ping-time = 2m
dead-time = 4m
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "irc.example.org", cfg.ServerName)
	assert.Equal(t, "Test", cfg.Network)
	assert.Equal(t, 50, cfg.ConnectionMessageQueueLength)
	assert.Equal(t, "", cfg.SecureListenAddress)
}

func TestLoadMissingKeyFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ircd.conf")
	require.NoError(t, os.WriteFile(path, []byte("server-name = irc.example.org\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestDefaultIsUsable(t *testing.T) {
	cfg := Default()
	assert.NotEmpty(t, cfg.ServerName)
	assert.Greater(t, cfg.ConnectionMessageQueueLength, 0)
}
