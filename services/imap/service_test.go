package imap

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stopthephish/phishwatch/config"
	"github.com/stopthephish/phishwatch/dto"
	"github.com/stopthephish/phishwatch/interfaces"
	"github.com/stopthephish/phishwatch/internal/enum"
	apperrors "github.com/stopthephish/phishwatch/internal/errors"
	"github.com/stopthephish/phishwatch/internal/logger"
	"github.com/stopthephish/phishwatch/services/ledger"
	"github.com/stopthephish/phishwatch/services/parser"
	"github.com/stopthephish/phishwatch/services/reputation"
)

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

var errConnReset = errors.New("read tcp: connection reset by peer")

type waitStep struct {
	newMail bool
	err     error
}

type fakeTransport struct {
	mu          sync.Mutex
	unseen      []uint32
	raw         map[uint32][]byte
	fetchErr    map[uint32]error
	waits       []waitStep
	waitCalls   int
	searchCalls int
	noopErr     error
	moved       map[uint32]string
	loggedOut   bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		raw:      make(map[uint32][]byte),
		fetchErr: make(map[uint32]error),
		moved:    make(map[uint32]string),
	}
}

func (t *fakeTransport) Select(folder string) error { return nil }

func (t *fakeTransport) UnseenUIDs() ([]uint32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.searchCalls++
	return append([]uint32(nil), t.unseen...), nil
}

func (t *fakeTransport) FetchRaw(uid uint32) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err, ok := t.fetchErr[uid]; ok {
		return nil, err
	}
	return t.raw[uid], nil
}

func (t *fakeTransport) Wait(ctx context.Context, timeout time.Duration) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if t.waitCalls >= len(t.waits) {
		return false, errConnReset
	}
	step := t.waits[t.waitCalls]
	t.waitCalls++
	return step.newMail, step.err
}

func (t *fakeTransport) Noop() error { return t.noopErr }

func (t *fakeTransport) Move(uid uint32, folder string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.moved[uid] = folder
	return nil
}

func (t *fakeTransport) Logout() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.loggedOut = true
	return nil
}

type fakeDialer struct {
	mu        sync.Mutex
	transport interfaces.MailTransport
	err       error
	calls     int
}

func (d *fakeDialer) Dial(ctx context.Context) (interfaces.MailTransport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	return d.transport, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type fakeClassifier struct {
	mu     sync.Mutex
	calls  []uint32
	result *dto.ClassificationResult
	err    error
}

func (c *fakeClassifier) ClassifyEmail(ctx context.Context, email *dto.EmailMessage) (*dto.ClassificationResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, email.UID)
	if c.err != nil {
		return nil, c.err
	}
	if c.result != nil {
		return c.result, nil
	}
	return &dto.ClassificationResult{Classification: enum.VerdictLegitimate, Reason: "looks fine"}, nil
}

func (c *fakeClassifier) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

type notification struct {
	email  *dto.EmailMessage
	result *dto.ClassificationResult
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []notification
	err   error
}

func (n *fakeNotifier) Notify(ctx context.Context, email *dto.EmailMessage, result *dto.ClassificationResult) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notification{email: email, result: result})
	return n.err
}

const rawLegit = "From: friend@neutral.example\r\nTo: me@here.example\r\nSubject: lunch\r\nDate: Mon, 02 Jan 2006 15:04:05 -0700\r\n\r\nStill on for noon?\r\n"

const rawEvil = "From: Attacker <anyone@evil.example>\r\nTo: me@here.example\r\nSubject: urgent wire transfer\r\nDate: Mon, 02 Jan 2006 15:04:05 -0700\r\n\r\nClick https://evil.example/login now.\r\n"

type testEnv struct {
	svc        *monitorService
	dialer     *fakeDialer
	classifier *fakeClassifier
	notifier   *fakeNotifier
	ledger     interfaces.ProcessedLedger
}

func newTestEnv(t *testing.T, transport interfaces.MailTransport, dangerous []string) *testEnv {
	log := getLogger()

	imapCfg := &config.IMAPConfig{
		Host:           "imap.test.example",
		Folder:         "INBOX",
		MoveToFolder:   "Quarantine",
		IdleTimeout:    50 * time.Millisecond,
		NoopInterval:   time.Hour,
		InitialBackoff: 5 * time.Millisecond,
		MaxBackoff:     20 * time.Millisecond,
	}

	dialer := &fakeDialer{transport: transport}
	classifier := &fakeClassifier{}
	notifier := &fakeNotifier{}
	led := ledger.NewLedgerService(filepath.Join(t.TempDir(), "processed_uids.json"), log)

	svc := NewMonitorService(imapCfg, &config.OAuthConfig{}, MonitorDeps{
		Dialer:     dialer,
		Ledger:     led,
		Reputation: reputation.NewReputationService(&config.ReputationConfig{DangerousSenders: dangerous}, log),
		Parser:     parser.NewParserService(log),
		Classifier: classifier,
		Notifier:   notifier,
	}, log).(*monitorService)

	return &testEnv{
		svc:        svc,
		dialer:     dialer,
		classifier: classifier,
		notifier:   notifier,
		ledger:     led,
	}
}

func TestDrain_SkipsAlreadyProcessedUIDs(t *testing.T) {
	transport := newFakeTransport()
	transport.unseen = []uint32{101, 102}
	transport.raw[101] = []byte(rawLegit)
	transport.raw[102] = []byte(rawLegit)

	env := newTestEnv(t, transport, nil)
	require.NoError(t, env.ledger.MarkProcessed(101))

	err := env.svc.drain(context.Background(), transport)

	require.NoError(t, err)
	assert.Equal(t, []uint32{102}, env.classifier.calls)
	assert.True(t, env.ledger.IsProcessed(101))
	assert.True(t, env.ledger.IsProcessed(102))
}

func TestDrain_SecondPassIsNoop(t *testing.T) {
	transport := newFakeTransport()
	transport.unseen = []uint32{7}
	transport.raw[7] = []byte(rawLegit)

	env := newTestEnv(t, transport, nil)

	require.NoError(t, env.svc.drain(context.Background(), transport))
	require.NoError(t, env.svc.drain(context.Background(), transport))

	assert.Equal(t, 1, env.classifier.callCount())
	assert.Len(t, env.notifier.calls, 1)
}

func TestProcessOne_DangerousDomainSkipsClassifier(t *testing.T) {
	transport := newFakeTransport()
	transport.unseen = []uint32{55}
	transport.raw[55] = []byte(rawEvil)

	env := newTestEnv(t, transport, []string{"@evil.example"})

	require.NoError(t, env.svc.drain(context.Background(), transport))

	// The classifier must never see a reputation-resolved message
	assert.Equal(t, 0, env.classifier.callCount())

	require.Len(t, env.notifier.calls, 1)
	assert.Equal(t, enum.VerdictDangerous, env.notifier.calls[0].result.Classification)
	assert.True(t, env.ledger.IsProcessed(55))
	assert.Equal(t, "Quarantine", transport.moved[55])
}

func TestProcessOne_EmptyContentMarkedProcessedAndSkipped(t *testing.T) {
	transport := newFakeTransport()
	transport.unseen = []uint32{9}
	transport.raw[9] = nil

	env := newTestEnv(t, transport, nil)

	require.NoError(t, env.svc.drain(context.Background(), transport))

	assert.Equal(t, 0, env.classifier.callCount())
	assert.Len(t, env.notifier.calls, 0)
	assert.True(t, env.ledger.IsProcessed(9))
}

func TestProcessOne_ClassifierFailureStillMarksAndNotifies(t *testing.T) {
	transport := newFakeTransport()
	transport.unseen = []uint32{12}
	transport.raw[12] = []byte(rawLegit)

	env := newTestEnv(t, transport, nil)
	env.classifier.err = errors.New("model endpoint unavailable")

	require.NoError(t, env.svc.drain(context.Background(), transport))

	require.Len(t, env.notifier.calls, 1)
	assert.Equal(t, enum.VerdictUnknown, env.notifier.calls[0].result.Classification)
	assert.True(t, env.ledger.IsProcessed(12))
}

func TestProcessOne_NotifierFailureStillMarks(t *testing.T) {
	transport := newFakeTransport()
	transport.unseen = []uint32{13}
	transport.raw[13] = []byte(rawLegit)

	env := newTestEnv(t, transport, nil)
	env.notifier.err = errors.New("ntfy unreachable")

	require.NoError(t, env.svc.drain(context.Background(), transport))

	assert.True(t, env.ledger.IsProcessed(13))
}

func TestProcessOne_FetchConnectionErrorPropagates(t *testing.T) {
	transport := newFakeTransport()
	transport.unseen = []uint32{21}
	transport.fetchErr[21] = errConnReset

	env := newTestEnv(t, transport, nil)

	err := env.svc.drain(context.Background(), transport)

	require.Error(t, err)
	assert.False(t, env.ledger.IsProcessed(21))
}

func TestWatch_IdleTimeoutDoesNotReconnect(t *testing.T) {
	transport := newFakeTransport()
	// Three timeout wakes, then the connection dies
	transport.waits = []waitStep{{false, nil}, {false, nil}, {false, nil}}

	env := newTestEnv(t, transport, nil)

	err := env.svc.watch(context.Background(), transport)

	require.Error(t, err)
	// Three scripted timeout wakes before the fatal wait
	assert.Equal(t, 3, transport.waitCalls)
	// One drain after select plus one after every wake
	assert.Equal(t, 4, transport.searchCalls)
	// watch never dials; reconnection is Run's job
	assert.Equal(t, 0, env.dialer.dialCount())
}

func TestWatch_ResetsBackoff(t *testing.T) {
	transport := newFakeTransport()
	env := newTestEnv(t, transport, nil)

	// Simulate a few failed attempts before this session succeeded
	env.svc.backoff.Duration()
	env.svc.backoff.Duration()
	env.svc.backoff.Duration()

	err := env.svc.watch(context.Background(), transport)
	require.Error(t, err)

	// The next failure must start from the initial backoff again
	assert.Equal(t, env.svc.cfg.InitialBackoff, env.svc.backoff.Duration())
}

func TestReconnectBackoff_DoublesAndCaps(t *testing.T) {
	env := newTestEnv(t, newFakeTransport(), nil)
	b := env.svc.backoff

	assert.Equal(t, 5*time.Millisecond, b.Duration())
	assert.Equal(t, 10*time.Millisecond, b.Duration())
	assert.Equal(t, 20*time.Millisecond, b.Duration())
	// Capped at MaxBackoff from here on
	assert.Equal(t, 20*time.Millisecond, b.Duration())
	assert.Equal(t, 20*time.Millisecond, b.Duration())
}

func TestRun_ReconnectsAfterConnectionLoss(t *testing.T) {
	transport := newFakeTransport()
	env := newTestEnv(t, transport, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- env.svc.Run(ctx)
	}()

	// Each session dies on its first Wait, so dial counts grow with retries
	require.Eventually(t, func() bool {
		return env.dialer.dialCount() >= 3
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, env.dialer.dialCount() >= 3)
}

func TestRun_StopUnblocksRun(t *testing.T) {
	transport := newFakeTransport()
	env := newTestEnv(t, transport, nil)

	done := make(chan error, 1)
	go func() {
		done <- env.svc.Run(context.Background())
	}()

	require.Eventually(t, func() bool {
		return env.dialer.dialCount() >= 1
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, env.svc.Stop())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func TestRun_FatalAuthErrorStopsWithoutRetry(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.dialer.err = errors.Wrap(apperrors.ErrAuthRejected, "NO [AUTHENTICATIONFAILED]")
	env.dialer.transport = nil

	err := env.svc.Run(context.Background())

	require.Error(t, err)
	assert.True(t, apperrors.IsFatal(err))
	assert.Equal(t, 1, env.dialer.dialCount())
	assert.Equal(t, enum.SessionError.String(), env.svc.Status().State)
}

func TestRun_NoopFailureTriggersReconnect(t *testing.T) {
	transport := newFakeTransport()
	transport.noopErr = errConnReset
	// Force the keepalive path on the first loop iteration
	env := newTestEnv(t, transport, nil)
	env.svc.cfg.NoopInterval = 0

	err := env.svc.watch(context.Background(), transport)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "keepalive")
}

func TestStatus_ReflectsState(t *testing.T) {
	transport := newFakeTransport()
	transport.unseen = []uint32{31}
	transport.raw[31] = []byte(rawLegit)

	env := newTestEnv(t, transport, nil)
	require.NoError(t, env.svc.drain(context.Background(), transport))

	status := env.svc.Status()
	assert.Equal(t, uint64(1), status.ProcessedTotal)
	assert.Equal(t, "INBOX", status.Folder)
}
