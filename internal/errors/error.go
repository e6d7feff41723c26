package errors

import (
	"strings"

	"github.com/pkg/errors"
)

var (
	// auth errors
	ErrAuthRejected = errors.New("authentication rejected by server")
	ErrNoCredential = errors.New("no usable oauth credential")
	ErrTokenRefresh = errors.New("oauth token refresh failed")

	// session errors
	ErrFolderSelect      = errors.New("folder selection failed")
	ErrConnectionTimeout = errors.New("connection timeout")
)

// IsFatal reports whether the error must terminate the process instead of
// triggering a reconnect
func IsFatal(err error) bool {
	return IsAuthError(err) || errors.Is(err, ErrFolderSelect)
}

func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuthRejected) ||
		errors.Is(err, ErrNoCredential) ||
		errors.Is(err, ErrTokenRefresh)
}

// IsConnectionError probes for the network failures IMAP servers and the OS
// surface as plain strings
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection closed") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "i/o timeout") ||
		strings.Contains(errStr, "EOF") ||
		strings.Contains(errStr, "short write")
}
