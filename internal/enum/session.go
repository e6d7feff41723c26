package enum

import (
	"fmt"
	"strings"
)

type SessionState string

const (
	SessionDisconnected  SessionState = "disconnected"
	SessionConnecting    SessionState = "connecting"
	SessionAuthenticated SessionState = "authenticated"
	SessionWatching      SessionState = "watching"
	SessionIdling        SessionState = "idling"
	SessionError         SessionState = "error"
)

func (t SessionState) String() string {
	return string(t)
}

type EncryptionMode string

const (
	EncryptionSSL      EncryptionMode = "ssl"
	EncryptionStartTLS EncryptionMode = "starttls"
	EncryptionNone     EncryptionMode = "none"
)

func (t EncryptionMode) String() string {
	return string(t)
}

// UnmarshalText normalizes the configured value and rejects anything that is
// not a known mode, so a typo can never downgrade the connection to plaintext.
func (t *EncryptionMode) UnmarshalText(text []byte) error {
	mode := EncryptionMode(strings.ToLower(strings.TrimSpace(string(text))))
	switch mode {
	case EncryptionSSL, EncryptionStartTLS, EncryptionNone:
		*t = mode
		return nil
	default:
		return fmt.Errorf("unknown encryption method %q, expected ssl, starttls or none", string(text))
	}
}
