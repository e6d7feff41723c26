package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/opentracing/opentracing-go"
	pkgerrors "github.com/pkg/errors"

	"github.com/stopthephish/phishwatch/config"
	"github.com/stopthephish/phishwatch/interfaces"
	"github.com/stopthephish/phishwatch/internal/enum"
	"github.com/stopthephish/phishwatch/internal/errors"
	"github.com/stopthephish/phishwatch/internal/logger"
	"github.com/stopthephish/phishwatch/internal/tracing"
)

const commandTimeout = 30 * time.Second

type imapDialer struct {
	cfg    *config.IMAPConfig
	tokens interfaces.TokenService
	log    logger.Logger
}

func NewDialer(cfg *config.IMAPConfig, tokens interfaces.TokenService, log logger.Logger) interfaces.MailDialer {
	return &imapDialer{
		cfg:    cfg,
		tokens: tokens,
		log:    log,
	}
}

// Dial establishes and authenticates a fresh connection. Credential
// rejections surface as ErrAuthRejected so the caller can exit instead of
// retrying forever.
func (d *imapDialer) Dial(ctx context.Context) (interfaces.MailTransport, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "imapDialer.Dial")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("server", d.cfg.Host)
	span.SetTag("port", d.cfg.Port)
	span.SetTag("encryption", d.cfg.Encryption.String())

	serverAddr := fmt.Sprintf("%s:%d", d.cfg.Host, d.cfg.Port)

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	var c *client.Client
	var err error

	switch d.cfg.Encryption {
	case enum.EncryptionSSL:
		tlsConfig := &tls.Config{
			ServerName: d.cfg.Host,
		}
		c, err = client.DialWithDialerTLS(dialer, serverAddr, tlsConfig)
	case enum.EncryptionStartTLS:
		c, err = client.DialWithDialer(dialer, serverAddr)
		if err == nil {
			err = c.StartTLS(&tls.Config{ServerName: d.cfg.Host})
		}
	case enum.EncryptionNone:
		c, err = client.DialWithDialer(dialer, serverAddr)
	default:
		return nil, pkgerrors.Errorf("unsupported encryption method %q", d.cfg.Encryption)
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, pkgerrors.Wrapf(err, "failed to connect to %s", serverAddr)
	}

	c.Timeout = commandTimeout

	if err := d.authenticate(ctx, c); err != nil {
		c.Logout() // nolint: errcheck
		tracing.TraceErr(span, err)
		return nil, err
	}

	d.log.Infof("Connected and authenticated to %s as %s", serverAddr, d.cfg.Username)

	return &imapTransport{c: c, log: d.log}, nil
}

func (d *imapDialer) authenticate(ctx context.Context, c *client.Client) error {
	if !d.cfg.UseOAuth {
		if err := c.Login(d.cfg.Username, d.cfg.Password); err != nil {
			return classifyAuthErr(err)
		}
		return nil
	}

	token, err := d.tokens.GetValidAccessToken(ctx)
	if err != nil {
		return err
	}

	if err := c.Authenticate(newXOAUTH2Client(d.cfg.Username, token)); err != nil {
		return classifyAuthErr(err)
	}
	return nil
}

// classifyAuthErr separates a rejected credential from a connection that died
// mid-handshake; only the latter is worth retrying.
func classifyAuthErr(err error) error {
	if errors.IsConnectionError(err) {
		return pkgerrors.Wrap(err, "connection lost during authentication")
	}
	return pkgerrors.Wrap(errors.ErrAuthRejected, err.Error())
}

// imapTransport adapts a go-imap client to the MailTransport contract.
type imapTransport struct {
	c   *client.Client
	log logger.Logger
}

func (t *imapTransport) Select(folder string) error {
	_, err := t.c.Select(folder, false)
	if err != nil {
		if errors.IsConnectionError(err) {
			return pkgerrors.Wrapf(err, "select %s", folder)
		}
		return pkgerrors.Wrap(errors.ErrFolderSelect, err.Error())
	}
	return nil
}

func (t *imapTransport) UnseenUIDs() ([]uint32, error) {
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}

	uids, err := t.c.UidSearch(criteria)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "search unseen")
	}
	return uids, nil
}

func (t *imapTransport) FetchRaw(uid uint32) ([]byte, error) {
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	// Peek keeps the server from setting \Seen; the ledger is the only
	// record of what has been handled
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{section.FetchItem()}

	messages := make(chan *imap.Message, 1)
	if err := t.c.UidFetch(seqSet, items, messages); err != nil {
		return nil, pkgerrors.Wrapf(err, "fetch uid %d", uid)
	}

	msg := <-messages
	if msg == nil {
		return nil, nil
	}

	body := msg.GetBody(section)
	if body == nil {
		return nil, nil
	}

	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "read body of uid %d", uid)
	}
	return raw, nil
}

// Wait runs a single bounded IDLE cycle. It returns true when the server
// pushed a mailbox update before the timeout.
func (t *imapTransport) Wait(ctx context.Context, timeout time.Duration) (bool, error) {
	updates := make(chan client.Update, 16)
	t.c.Updates = updates
	defer func() { t.c.Updates = nil }()

	var stopOnce sync.Once
	stop := make(chan struct{})
	safeStop := func() {
		stopOnce.Do(func() { close(stop) })
	}

	// IDLE manages its own liveness; command timeout would kill it early
	t.c.Timeout = 0
	defer func() { t.c.Timeout = commandTimeout }()

	done := make(chan error, 1)
	go func() {
		done <- t.c.Idle(stop, &client.IdleOptions{})
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	newMail := false
	for {
		select {
		case update := <-updates:
			if _, ok := update.(*client.MailboxUpdate); ok {
				newMail = true
			}
			safeStop()
		case <-timer.C:
			safeStop()
		case <-ctx.Done():
			safeStop()
		case err := <-done:
			return newMail, err
		}
	}
}

func (t *imapTransport) Noop() error {
	return t.c.Noop()
}

func (t *imapTransport) Move(uid uint32, folder string) error {
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	if err := t.c.UidMove(seqSet, folder); err != nil {
		return pkgerrors.Wrapf(err, "move uid %d to %s", uid, folder)
	}
	return nil
}

func (t *imapTransport) Logout() error {
	t.c.Timeout = 5 * time.Second
	return t.c.Logout()
}
