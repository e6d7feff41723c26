package oauth

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"
	pkgerrors "github.com/pkg/errors"
	"golang.org/x/oauth2"

	"github.com/stopthephish/phishwatch/config"
	"github.com/stopthephish/phishwatch/interfaces"
	"github.com/stopthephish/phishwatch/internal/errors"
	"github.com/stopthephish/phishwatch/internal/logger"
	"github.com/stopthephish/phishwatch/internal/tracing"
	"github.com/stopthephish/phishwatch/internal/utils"
)

// refreshSafetyMargin is how close to expiry a token may get before it is
// refreshed ahead of use.
const refreshSafetyMargin = 60 * time.Second

type tokenService struct {
	cfg   *config.OAuthConfig
	oauth *oauth2.Config
	path  string
	log   logger.Logger

	mu    sync.Mutex
	token *oauth2.Token
}

func NewTokenService(cfg *config.OAuthConfig, tokenPath string, log logger.Logger) interfaces.TokenService {
	s := &tokenService{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       []string{cfg.Scope},
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
			RedirectURL: callbackURL(cfg.CallbackPort),
		},
		path: tokenPath,
		log:  log,
	}
	s.token = s.tokenFromFile()
	return s
}

// tokenFromFile loads the persisted token. Tokens fail closed: any unreadable
// or corrupt file means re-authentication, never a guessed credential.
func (s *tokenService) tokenFromFile() *oauth2.Token {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warnf("Unable to read token file %s: %v", s.path, err)
		}
		return nil
	}

	token := &oauth2.Token{}
	if err := json.Unmarshal(data, token); err != nil {
		s.log.Warnf("Token file %s is corrupt, re-authentication required: %v", s.path, err)
		return nil
	}
	return token
}

// saveToken persists the token with owner-only permissions. Callers hold s.mu.
func (s *tokenService) saveToken(token *oauth2.Token) error {
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return pkgerrors.Wrap(err, "marshal token")
	}
	return utils.WriteFileAtomic(s.path, data, 0o600)
}

func (s *tokenService) HasCredential() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.token != nil && (s.token.RefreshToken != "" || s.usable(s.token))
}

// usable reports whether the access token is still outside the safety margin.
func (s *tokenService) usable(token *oauth2.Token) bool {
	if token.AccessToken == "" {
		return false
	}
	if token.Expiry.IsZero() {
		return true
	}
	return time.Until(token.Expiry) > refreshSafetyMargin
}

func (s *tokenService) GetValidAccessToken(ctx context.Context) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "TokenService.GetValidAccessToken")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token == nil {
		return "", errors.ErrNoCredential
	}

	if s.usable(s.token) {
		return s.token.AccessToken, nil
	}

	if s.token.RefreshToken == "" {
		s.log.Warn("Access token expired and no refresh token available")
		return "", errors.ErrNoCredential
	}

	span.LogKV("event", "token_refresh", "expiry", s.token.Expiry.String())
	s.log.Infof("Access token expires at %s, refreshing", s.token.Expiry.Format(time.RFC3339))

	// A hung token endpoint must not stall the monitor loop
	refreshCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	refreshed, err := s.oauth.TokenSource(refreshCtx, s.token).Token()
	if err != nil {
		tracing.TraceErr(span, err)
		return "", pkgerrors.Wrap(errors.ErrTokenRefresh, err.Error())
	}

	// Some providers omit the refresh token on refresh responses
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = s.token.RefreshToken
	}

	s.token = refreshed
	if err := s.saveToken(refreshed); err != nil {
		tracing.TraceErr(span, err)
		s.log.Errorf("Unable to persist refreshed token: %v", err)
	}

	return refreshed.AccessToken, nil
}
