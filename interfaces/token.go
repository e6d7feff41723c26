package interfaces

import (
	"context"
)

type TokenService interface {
	// GetValidAccessToken returns an access token guaranteed to remain valid
	// past the refresh safety margin, refreshing and persisting first when
	// needed. Returns errors.ErrNoCredential when nothing usable exists.
	GetValidAccessToken(ctx context.Context) (string, error)
	AuthenticateInteractive(ctx context.Context) error
	HasCredential() bool
}
