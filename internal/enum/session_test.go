package enum

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptionMode_UnmarshalText(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected EncryptionMode
	}{
		{"lowercase ssl", "ssl", EncryptionSSL},
		{"uppercase ssl", "SSL", EncryptionSSL},
		{"mixed case starttls", "StartTLS", EncryptionStartTLS},
		{"none", "none", EncryptionNone},
		{"surrounding whitespace", " ssl ", EncryptionSSL},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var mode EncryptionMode
			err := mode.UnmarshalText([]byte(tc.input))

			require.NoError(t, err)
			assert.Equal(t, tc.expected, mode)
		})
	}
}

func TestEncryptionMode_UnmarshalText_RejectsUnknown(t *testing.T) {
	for _, input := range []string{"tls", "plain", ""} {
		var mode EncryptionMode
		err := mode.UnmarshalText([]byte(input))

		require.Error(t, err)
		assert.Contains(t, err.Error(), "encryption method")
	}
}
