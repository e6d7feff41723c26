package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stopthephish/phishwatch/internal/enum"
)

func TestInitConfig_NormalizesEncryptionMethod(t *testing.T) {
	t.Setenv("IMAP_HOST", "imap.example.com")
	t.Setenv("IMAP_USER", "user@example.com")
	t.Setenv("ENCRYPTION_METHOD", "SSL")

	cfg, err := InitConfig()

	require.NoError(t, err)
	assert.Equal(t, enum.EncryptionSSL, cfg.IMAPConfig.Encryption)
}

func TestInitConfig_RejectsUnknownEncryptionMethod(t *testing.T) {
	t.Setenv("IMAP_HOST", "imap.example.com")
	t.Setenv("IMAP_USER", "user@example.com")
	t.Setenv("ENCRYPTION_METHOD", "tls")

	_, err := InitConfig()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "encryption method")
}
