package oauth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	pkgerrors "github.com/pkg/errors"
	"golang.org/x/oauth2"

	"github.com/stopthephish/phishwatch/internal/tracing"
)

// callbackTimeout bounds how long the interactive flow waits for the user to
// complete authorization in the browser.
const callbackTimeout = 5 * time.Minute

func callbackURL(port int) string {
	return fmt.Sprintf("http://localhost:%d/callback", port)
}

type callbackResult struct {
	code string
	err  error
}

// AuthenticateInteractive runs the authorization-code flow: it prints the
// authorization URL, waits for the provider to redirect to the local callback
// listener, exchanges the code, and persists the resulting token. The
// listener is shut down on success, failure, and timeout alike.
func (s *tokenService) AuthenticateInteractive(ctx context.Context) error {
	span, ctx := tracing.StartTracerSpan(ctx, "TokenService.AuthenticateInteractive")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	state := uuid.New().String()
	authURL := s.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline)
	s.log.Infof("Open the following URL in your browser to authorize mailbox access:")
	s.log.Infof("%s", authURL)

	code, err := s.waitForCallback(ctx, state)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	exchangeCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	token, err := s.oauth.Exchange(exchangeCtx, code)
	if err != nil {
		tracing.TraceErr(span, err)
		return pkgerrors.Wrap(err, "exchange authorization code")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	if err := s.saveToken(token); err != nil {
		tracing.TraceErr(span, err)
		return pkgerrors.Wrap(err, "persist token")
	}

	s.log.Infof("Authorization complete, token stored in %s", s.path)
	return nil
}

// waitForCallback runs a one-shot HTTP listener for the provider redirect.
// A redirect carrying the wrong state is rejected and aborts the flow.
func (s *tokenService) waitForCallback(ctx context.Context, expectedState string) (string, error) {
	span := opentracing.SpanFromContext(ctx)

	results := make(chan callbackResult, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		if query.Get("state") != expectedState {
			http.Error(w, "Invalid state parameter", http.StatusBadRequest)
			select {
			case results <- callbackResult{err: pkgerrors.New("callback received with mismatched state")}:
			default:
			}
			return
		}

		if errMsg := query.Get("error"); errMsg != "" {
			http.Error(w, "Authorization failed: "+errMsg, http.StatusBadRequest)
			select {
			case results <- callbackResult{err: pkgerrors.Errorf("authorization denied: %s", errMsg)}:
			default:
			}
			return
		}

		code := query.Get("code")
		if code == "" {
			http.Error(w, "Missing authorization code", http.StatusBadRequest)
			select {
			case results <- callbackResult{err: pkgerrors.New("callback received without authorization code")}:
			default:
			}
			return
		}

		fmt.Fprint(w, "Authorization complete. You can close this window.")
		select {
		case results <- callbackResult{code: code}:
		default:
		}
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.CallbackPort),
		Handler: mux,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.log.Warnf("Callback listener shutdown error: %v", err)
		}
	}()

	timer := time.NewTimer(callbackTimeout)
	defer timer.Stop()

	select {
	case result := <-results:
		return result.code, result.err
	case err := <-serverErr:
		tracing.TraceErr(span, err)
		return "", pkgerrors.Wrapf(err, "callback listener on port %d", s.cfg.CallbackPort)
	case <-timer.C:
		return "", pkgerrors.New("timed out waiting for authorization callback")
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
