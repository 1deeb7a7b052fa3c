package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/micro-ha/srun-guard/internal/model"
)

// DefaultInterval is the polling period of the original client.
const DefaultInterval = 3 * time.Second

var (
	// ErrBusy is returned when another gateway operation is in flight.
	ErrBusy = errors.New("gateway operation already in flight")
	// ErrStopped is returned after Stop.
	ErrStopped = errors.New("monitor stopped")
)

// ProtocolClient is the gateway protocol surface the monitor drives.
type ProtocolClient interface {
	CheckStatus(ctx context.Context) model.NetworkStatus
	Login(ctx context.Context, creds model.Credentials) model.LoginOutcome
	Logout(ctx context.Context, username string) model.LoginOutcome
}

// CredentialStore is the read side of the operator settings. Snapshot must
// return a consistent view; each operation reads it exactly once.
type CredentialStore interface {
	Snapshot() model.CredentialSnapshot
}

// State is the monitor bookkeeping exposed to callers.
type State struct {
	LastKnownOnline bool      `json:"last_known_online"`
	InFlight        bool      `json:"in_flight"`
	LastPollAt      time.Time `json:"last_poll_at"`
	Running         bool      `json:"running"`
}

// Option customises a Monitor.
type Option func(*Monitor)

func WithInterval(interval time.Duration) Option {
	return func(m *Monitor) {
		if interval > 0 {
			m.interval = interval
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

func WithBroker(broker *Broker) Option {
	return func(m *Monitor) {
		if broker != nil {
			m.broker = broker
		}
	}
}

// Monitor polls the gateway and re-authenticates whenever the client is
// not online. At most one gateway operation runs at a time; ticks that
// arrive while one is running are dropped.
type Monitor struct {
	client   ProtocolClient
	creds    CredentialStore
	logger   *slog.Logger
	broker   *Broker
	interval time.Duration
	now      func() time.Time

	inFlight  atomic.Bool
	running   atomic.Bool
	stopped   atomic.Bool
	refreshCh chan struct{}
	stopCh    chan struct{}
	stopOnce  sync.Once
	loopWG    sync.WaitGroup

	// lifecycleMu orders loopWG.Add in Run against Stop.
	lifecycleMu sync.Mutex

	// Written only by the goroutine holding the in-flight token.
	mu              sync.RWMutex
	status          model.NetworkStatus
	lastPollAt      time.Time
	lastAuthFailure string
	configPrompted  bool
}

func New(client ProtocolClient, creds CredentialStore, logger *slog.Logger, opts ...Option) *Monitor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	m := &Monitor{
		client:    client,
		creds:     creds,
		logger:    logger,
		interval:  DefaultInterval,
		now:       time.Now,
		status:    model.Checking(),
		refreshCh: make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.broker == nil {
		m.broker = NewBroker(0)
	}
	return m
}

// Run polls until ctx is cancelled or Stop is called. The first poll starts
// immediately.
func (m *Monitor) Run(ctx context.Context) {
	m.lifecycleMu.Lock()
	if m.stopped.Load() || !m.running.CompareAndSwap(false, true) {
		m.lifecycleMu.Unlock()
		return
	}
	m.loopWG.Add(1)
	m.lifecycleMu.Unlock()
	defer m.loopWG.Done()
	defer m.running.Store(false)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info("status monitor started", "interval", m.interval)
	m.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("status monitor stopped", "reason", ctx.Err())
			return
		case <-m.stopCh:
			m.logger.Info("status monitor stopped")
			return
		case <-ticker.C:
			m.tick(ctx)
		case <-m.refreshCh:
			m.tick(ctx)
		}
	}
}

// Stop ends the polling loop. It is safe to call more than once. Operations
// already in flight finish on their own timeout and their results are
// discarded.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		m.lifecycleMu.Lock()
		m.stopped.Store(true)
		close(m.stopCh)
		m.lifecycleMu.Unlock()
		m.loopWG.Wait()
		m.broker.Close()
	})
}

// Refresh requests an immediate poll; repeated requests coalesce.
func (m *Monitor) Refresh() {
	select {
	case m.refreshCh <- struct{}{}:
	default:
	}
}

// Subscribe returns a stream of monitor events and its cancel func.
func (m *Monitor) Subscribe() (<-chan model.Event, func()) {
	return m.broker.Subscribe()
}

// Status returns the last published snapshot.
func (m *Monitor) Status() model.NetworkStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Monitor) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return State{
		LastKnownOnline: m.status.IsOnline(),
		InFlight:        m.inFlight.Load(),
		LastPollAt:      m.lastPollAt,
		Running:         m.running.Load(),
	}
}

// PollOnce runs one transition synchronously.
func (m *Monitor) PollOnce(ctx context.Context) error {
	if err := m.acquire(); err != nil {
		return err
	}
	defer m.release()
	m.cycle(ctx)
	return nil
}

// Login authenticates with the stored credentials and refreshes status.
func (m *Monitor) Login(ctx context.Context) (model.LoginOutcome, error) {
	if err := m.acquire(); err != nil {
		return model.LoginOutcome{}, err
	}
	defer m.release()

	snap := m.creds.Snapshot()
	if !snap.Configured || !snap.Complete() {
		return model.Failed(model.KindConfig, "credentials not configured"), nil
	}
	out := m.client.Login(ctx, snap.Credentials)
	if m.stopped.Load() {
		return out, nil
	}
	m.noteOutcome(model.EventLogin, out)
	m.apply(m.client.CheckStatus(ctx))
	return out, nil
}

// Logout ends the session and refreshes status. With auto-login enabled
// the next poll logs in again.
func (m *Monitor) Logout(ctx context.Context) (model.LoginOutcome, error) {
	if err := m.acquire(); err != nil {
		return model.LoginOutcome{}, err
	}
	defer m.release()

	out := m.client.Logout(ctx, m.creds.Snapshot().Username)
	if m.stopped.Load() {
		return out, nil
	}
	m.noteOutcome(model.EventLogout, out)
	m.apply(m.client.CheckStatus(ctx))
	return out, nil
}

func (m *Monitor) acquire() error {
	if m.stopped.Load() {
		return ErrStopped
	}
	if !m.inFlight.CompareAndSwap(false, true) {
		return ErrBusy
	}
	return nil
}

func (m *Monitor) release() {
	m.inFlight.Store(false)
}

// tick launches one cycle off the scheduling goroutine unless one is
// already running.
func (m *Monitor) tick(ctx context.Context) {
	if err := m.acquire(); err != nil {
		m.logger.Debug("poll tick skipped", "reason", err)
		return
	}
	// In-flight calls outlive Stop and are bounded by their own timeouts.
	opCtx := context.WithoutCancel(ctx)
	go func() {
		defer m.release()
		m.cycle(opCtx)
	}()
}

func (m *Monitor) cycle(ctx context.Context) {
	status := m.client.CheckStatus(ctx)
	if m.stopped.Load() {
		return
	}
	wasOnline := m.apply(status)
	if status.IsOnline() || status.State == model.StateChecking {
		return
	}
	m.reconnect(ctx, wasOnline, status)
}

func (m *Monitor) reconnect(ctx context.Context, wasOnline bool, status model.NetworkStatus) {
	snap := m.creds.Snapshot()
	if !snap.Configured || !snap.Complete() {
		m.promptConfig()
		return
	}
	m.clearConfigPrompt()
	if !snap.AutoLogin {
		return
	}
	creds := snap.Credentials

	if wasOnline {
		m.logger.Warn("connection dropped, re-authenticating", "username", creds.Username, "state", status.State)
		m.publish(model.Event{Type: model.EventDropped, Status: &status})
	} else {
		m.logger.Info("still offline, retrying login", "username", creds.Username, "state", status.State)
		m.publish(model.Event{Type: model.EventStillOffline, Status: &status})
	}

	out := m.client.Login(ctx, creds)
	if m.stopped.Load() {
		return
	}
	m.noteOutcome(model.EventLogin, out)

	refreshed := m.client.CheckStatus(ctx)
	if m.stopped.Load() {
		return
	}
	m.apply(refreshed)
}

// apply stores status as the current snapshot, publishes it and reports
// whether the previous snapshot was online.
func (m *Monitor) apply(status model.NetworkStatus) bool {
	status = status.Normalize()
	if status.CheckedAt.IsZero() {
		status.CheckedAt = m.now().UTC()
	}

	m.mu.Lock()
	previous := m.status
	m.status = status
	m.lastPollAt = m.now().UTC()
	m.mu.Unlock()

	if previous.State != status.State {
		m.logger.Info("network state changed", "from", previous.State, "to", status.State, "ip", status.IPAddress)
	}
	m.publish(model.Event{Type: model.EventStatus, Status: &status})
	return previous.IsOnline()
}

// noteOutcome publishes an auth result. A failure notification is only
// repeated when the gateway message changes; transport failures stay
// silent because the next tick retries them.
func (m *Monitor) noteOutcome(kind model.EventType, out model.LoginOutcome) {
	m.publish(model.Event{Type: kind, Outcome: &out})

	m.mu.Lock()
	if out.IsSuccess() {
		m.lastAuthFailure = ""
		m.mu.Unlock()
		return
	}
	notify := out.Kind != model.KindTransport && out.Message != m.lastAuthFailure
	if notify {
		m.lastAuthFailure = out.Message
	}
	m.mu.Unlock()

	if notify {
		m.publish(model.Event{Type: model.EventAuthFailed, Outcome: &out})
	}
}

func (m *Monitor) promptConfig() {
	m.mu.Lock()
	already := m.configPrompted
	m.configPrompted = true
	m.mu.Unlock()
	if already {
		return
	}
	m.logger.Warn("credentials not configured, auto-login disabled until settings are saved")
	m.publish(model.Event{Type: model.EventConfigRequired})
}

func (m *Monitor) clearConfigPrompt() {
	m.mu.Lock()
	m.configPrompted = false
	m.mu.Unlock()
}

func (m *Monitor) publish(ev model.Event) {
	if ev.At.IsZero() {
		ev.At = m.now().UTC()
	}
	m.broker.Publish(ev)
}
