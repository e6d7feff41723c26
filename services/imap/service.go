package imap

import (
	"context"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	pkgerrors "github.com/pkg/errors"

	"github.com/stopthephish/phishwatch/config"
	"github.com/stopthephish/phishwatch/interfaces"
	"github.com/stopthephish/phishwatch/internal/enum"
	"github.com/stopthephish/phishwatch/internal/errors"
	"github.com/stopthephish/phishwatch/internal/logger"
	"github.com/stopthephish/phishwatch/internal/tracing"
)

// MonitorService owns the connection lifecycle: it dials, authenticates,
// selects the watched folder, drains unseen messages, and idles. A session
// that hits a protocol error is logged out and replaced after backoff; it is
// never repaired in place.
type monitorService struct {
	cfg        *config.IMAPConfig
	dialer     interfaces.MailDialer
	tokens     interfaces.TokenService
	ledger     interfaces.ProcessedLedger
	reputation interfaces.ReputationService
	parser     interfaces.ParserService
	classifier interfaces.AIService
	notifier   interfaces.NotifierService
	log        logger.Logger

	interactive bool
	backoff     *backoff.Backoff
	cancel      context.CancelFunc

	statusMutex sync.RWMutex
	status      interfaces.MonitorStatus
}

type MonitorDeps struct {
	Dialer     interfaces.MailDialer
	Tokens     interfaces.TokenService
	Ledger     interfaces.ProcessedLedger
	Reputation interfaces.ReputationService
	Parser     interfaces.ParserService
	Classifier interfaces.AIService
	Notifier   interfaces.NotifierService
}

func NewMonitorService(cfg *config.IMAPConfig, oauthCfg *config.OAuthConfig, deps MonitorDeps, log logger.Logger) interfaces.MonitorService {
	return &monitorService{
		cfg:         cfg,
		dialer:      deps.Dialer,
		tokens:      deps.Tokens,
		ledger:      deps.Ledger,
		reputation:  deps.Reputation,
		parser:      deps.Parser,
		classifier:  deps.Classifier,
		notifier:    deps.Notifier,
		log:         log,
		interactive: oauthCfg.Interactive,
		backoff: &backoff.Backoff{
			Min:    cfg.InitialBackoff,
			Max:    cfg.MaxBackoff,
			Factor: 2,
			Jitter: false,
		},
		status: interfaces.MonitorStatus{
			State:  enum.SessionDisconnected.String(),
			Folder: cfg.Folder,
		},
	}
}

// Run blocks until ctx is cancelled or a fatal error occurs. Transient
// failures reconnect with exponential backoff; the backoff resets once a
// session reaches the watching state again.
func (s *monitorService) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.statusMutex.Lock()
	s.cancel = cancel
	s.statusMutex.Unlock()
	defer cancel()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := s.runSession(ctx)
		if ctx.Err() != nil {
			s.setState(enum.SessionDisconnected, nil)
			return ctx.Err()
		}
		if errors.IsFatal(err) {
			s.setState(enum.SessionError, err)
			return err
		}

		s.setState(enum.SessionError, err)
		wait := s.backoff.Duration()
		s.setBackoff(wait)
		s.log.Warnf("Session failed: %v. Reconnecting in %s", err, wait)

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			s.setState(enum.SessionDisconnected, nil)
			return ctx.Err()
		}
	}
}

func (s *monitorService) Stop() error {
	s.statusMutex.Lock()
	cancel := s.cancel
	s.statusMutex.Unlock()

	if cancel != nil {
		cancel()
	}
	return nil
}

func (s *monitorService) Status() interfaces.MonitorStatus {
	s.statusMutex.RLock()
	defer s.statusMutex.RUnlock()

	return s.status
}

// runSession drives one connection from dial to the error that kills it.
func (s *monitorService) runSession(ctx context.Context) error {
	span, ctx := tracing.StartTracerSpan(ctx, "MonitorService.runSession")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag(tracing.SpanTagFolder, s.cfg.Folder)

	s.setState(enum.SessionConnecting, nil)

	transport, err := s.dial(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	defer func() {
		if err := transport.Logout(); err != nil {
			s.log.Debugf("Logout error: %v", err)
		}
	}()

	s.setState(enum.SessionAuthenticated, nil)

	if err := transport.Select(s.cfg.Folder); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	s.log.Infof("Watching folder %s", s.cfg.Folder)

	now := time.Now()
	s.statusMutex.Lock()
	s.status.ConnectedAt = &now
	s.statusMutex.Unlock()

	err = s.watch(ctx, transport)
	if err != nil && ctx.Err() == nil {
		tracing.TraceErr(span, err)
	}
	return err
}

// dial connects, falling back to the interactive OAuth flow once when the
// stored credential is missing or can no longer be refreshed and the flow is
// enabled.
func (s *monitorService) dial(ctx context.Context) (interfaces.MailTransport, error) {
	transport, err := s.dialer.Dial(ctx)
	if err == nil {
		return transport, nil
	}

	needsAuth := pkgerrors.Is(err, errors.ErrNoCredential) || pkgerrors.Is(err, errors.ErrTokenRefresh)
	if needsAuth && s.cfg.UseOAuth && s.interactive {
		s.log.Infof("No usable credential (%v), starting interactive authorization", err)
		if authErr := s.tokens.AuthenticateInteractive(ctx); authErr != nil {
			return nil, pkgerrors.Wrap(errors.ErrNoCredential, authErr.Error())
		}
		return s.dialer.Dial(ctx)
	}

	return nil, err
}

// watch alternates drain passes with bounded IDLE waits. A NOOP keepalive
// goes out whenever idling has spanned the configured interval.
func (s *monitorService) watch(ctx context.Context, transport interfaces.MailTransport) error {
	s.setState(enum.SessionWatching, nil)
	s.backoff.Reset()
	s.setBackoff(0)

	lastKeepalive := time.Now()

	for {
		if err := s.drain(ctx, transport); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if time.Since(lastKeepalive) >= s.cfg.NoopInterval {
			if err := transport.Noop(); err != nil {
				return pkgerrors.Wrap(err, "keepalive")
			}
			lastKeepalive = time.Now()
		}

		s.setState(enum.SessionIdling, nil)
		newMail, err := transport.Wait(ctx, s.cfg.IdleTimeout)
		if err != nil {
			return pkgerrors.Wrap(err, "idle")
		}
		s.setState(enum.SessionWatching, nil)

		if newMail {
			s.log.Debug("Mailbox update received during idle")
		}
	}
}

func (s *monitorService) setState(state enum.SessionState, err error) {
	s.statusMutex.Lock()
	defer s.statusMutex.Unlock()

	s.status.State = state.String()
	if err != nil {
		s.status.LastError = err.Error()
	}
}

func (s *monitorService) setBackoff(wait time.Duration) {
	s.statusMutex.Lock()
	defer s.statusMutex.Unlock()

	if wait == 0 {
		s.status.CurrentBackoff = ""
	} else {
		s.status.CurrentBackoff = wait.String()
	}
}
