package monitor

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/micro-ha/srun-guard/internal/model"
	"github.com/micro-ha/srun-guard/internal/srun"
)

type staticCreds struct {
	username   string
	password   string
	configured bool
	autoLogin  bool
}

func (s staticCreds) Snapshot() model.CredentialSnapshot {
	return model.CredentialSnapshot{
		Credentials: model.Credentials{Username: s.username, Password: s.password},
		Configured:  s.configured,
		AutoLogin:   s.autoLogin,
	}
}

// rotatingCreds hands out a different account on every Snapshot call.
type rotatingCreds struct {
	mu       sync.Mutex
	accounts []model.Credentials
	calls    int
}

func (r *rotatingCreds) Snapshot() model.CredentialSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	account := r.accounts[r.calls%len(r.accounts)]
	r.calls++
	return model.CredentialSnapshot{Credentials: account, Configured: true, AutoLogin: true}
}

func (r *rotatingCreds) snapshotCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func configured() staticCreds {
	return staticCreds{username: "stu1", password: "pw", configured: true, autoLogin: true}
}

// countingTransport serves scripted status bodies and tracks how many
// exchanges overlap.
type countingTransport struct {
	mu          sync.Mutex
	delay       time.Duration
	statuses    []string
	loginBody   string
	loginForms  []string
	inFlight    int
	maxInFlight int
	statusCalls int
	loginCalls  int
	logoutCalls int
}

func (c *countingTransport) Send(ctx context.Context, req srun.Request) (srun.Response, error) {
	c.mu.Lock()
	c.inFlight++
	if c.inFlight > c.maxInFlight {
		c.maxInFlight = c.inFlight
	}
	var reply string
	switch {
	case req.Method == "GET":
		idx := c.statusCalls
		if idx >= len(c.statuses) {
			idx = len(c.statuses) - 1
		}
		reply = c.statuses[idx]
		c.statusCalls++
	case strings.HasPrefix(string(req.Body), "action=logout"):
		c.logoutCalls++
		reply = "logout_ok"
	default:
		c.loginCalls++
		c.loginForms = append(c.loginForms, string(req.Body))
		reply = c.loginBody
	}
	c.mu.Unlock()

	if c.delay > 0 {
		time.Sleep(c.delay)
	}

	c.mu.Lock()
	c.inFlight--
	c.mu.Unlock()
	return srun.Response{StatusCode: 200, Body: []byte(reply)}, nil
}

func (c *countingTransport) snapshot() (statusCalls, loginCalls, maxInFlight int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusCalls, c.loginCalls, c.maxInFlight
}

func (c *countingTransport) forms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.loginForms...)
}

func newCountingMonitor(t *testing.T, transport *countingTransport, creds CredentialStore, opts ...Option) *Monitor {
	t.Helper()
	client := srun.NewClient(transport, model.EndpointProfile{
		Name:      "test",
		StatusURL: "http://gw.test/cgi-bin/rad_user_info",
		LoginURL:  "http://gw.test/cgi-bin/srun_portal",
	})
	m := New(client, creds, nil, opts...)
	t.Cleanup(m.Stop)
	return m
}

func drain(ch <-chan model.Event) []model.Event {
	var out []model.Event
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func eventTypes(events []model.Event) []model.EventType {
	out := make([]model.EventType, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Type)
	}
	return out
}

func TestInitialStateIsChecking(t *testing.T) {
	m := newCountingMonitor(t, &countingTransport{statuses: []string{"not_online"}}, configured())
	assert.Equal(t, model.StateChecking, m.Status().State)
	assert.False(t, m.State().Running)
}

func TestOnlineToOfflineIssuesOneLoginPerOfflineTick(t *testing.T) {
	transport := &countingTransport{
		statuses:  []string{"stu1,60,10.0.0.5,1024", "not_online"},
		loginBody: "E2532: too many requests",
	}
	m := newCountingMonitor(t, transport, configured())
	events, cancel := m.Subscribe()
	defer cancel()
	ctx := context.Background()

	require.NoError(t, m.PollOnce(ctx))
	_, logins, _ := transport.snapshot()
	assert.Equal(t, 0, logins)
	assert.Equal(t, model.StateOnline, m.Status().State)
	assert.Equal(t, []model.EventType{model.EventStatus}, eventTypes(drain(events)))

	require.NoError(t, m.PollOnce(ctx))
	_, logins, _ = transport.snapshot()
	assert.Equal(t, 1, logins)
	assert.Equal(t, []model.EventType{
		model.EventStatus,
		model.EventDropped,
		model.EventLogin,
		model.EventAuthFailed,
		model.EventStatus,
	}, eventTypes(drain(events)))

	require.NoError(t, m.PollOnce(ctx))
	statusCalls, logins, maxInFlight := transport.snapshot()
	assert.Equal(t, 2, logins)
	assert.Equal(t, 5, statusCalls)
	assert.Equal(t, 1, maxInFlight)
	// same gateway message, so no second auth_failed
	assert.Equal(t, []model.EventType{
		model.EventStatus,
		model.EventStillOffline,
		model.EventLogin,
		model.EventStatus,
	}, eventTypes(drain(events)))
	assert.Equal(t, model.StateOffline, m.Status().State)
}

func TestSuccessfulReconnectRefreshesStatus(t *testing.T) {
	transport := &countingTransport{
		statuses:  []string{"not_online", "stu1,1,10.0.0.5,2048"},
		loginBody: "login_ok",
	}
	m := newCountingMonitor(t, transport, configured())

	require.NoError(t, m.PollOnce(context.Background()))

	status := m.Status()
	assert.Equal(t, model.StateOnline, status.State)
	assert.Equal(t, "10.0.0.5", status.IPAddress)
	assert.True(t, m.State().LastKnownOnline)
	assert.False(t, m.State().LastPollAt.IsZero())
}

func TestUnconfiguredCredentialsPromptOnce(t *testing.T) {
	transport := &countingTransport{statuses: []string{"not_online"}, loginBody: "login_ok"}
	m := newCountingMonitor(t, transport, staticCreds{autoLogin: true})
	events, cancel := m.Subscribe()
	defer cancel()

	require.NoError(t, m.PollOnce(context.Background()))
	require.NoError(t, m.PollOnce(context.Background()))

	_, logins, _ := transport.snapshot()
	assert.Equal(t, 0, logins)

	prompts := 0
	for _, ev := range drain(events) {
		if ev.Type == model.EventConfigRequired {
			prompts++
		}
	}
	assert.Equal(t, 1, prompts)

	out, err := m.Login(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.KindConfig, out.Kind)
}

func TestAutoLoginDisabled(t *testing.T) {
	transport := &countingTransport{statuses: []string{"not_online"}, loginBody: "login_ok"}
	creds := configured()
	creds.autoLogin = false
	m := newCountingMonitor(t, transport, creds)

	require.NoError(t, m.PollOnce(context.Background()))
	_, logins, _ := transport.snapshot()
	assert.Equal(t, 0, logins)
	assert.Equal(t, model.StateOffline, m.Status().State)
}

func TestAuthFailureNotifiedAgainWhenMessageChanges(t *testing.T) {
	transport := &countingTransport{statuses: []string{"not_online"}, loginBody: "E2531"}
	m := newCountingMonitor(t, transport, configured())
	events, cancel := m.Subscribe()
	defer cancel()

	require.NoError(t, m.PollOnce(context.Background()))
	transport.mu.Lock()
	transport.loginBody = "E2553"
	transport.mu.Unlock()
	require.NoError(t, m.PollOnce(context.Background()))

	var codes []string
	for _, ev := range drain(events) {
		if ev.Type == model.EventAuthFailed {
			codes = append(codes, ev.Outcome.Code)
		}
	}
	assert.Equal(t, []string{"E2531", "E2553"}, codes)
}

func TestRunNeverOverlapsOperationsAndDropsTicks(t *testing.T) {
	transport := &countingTransport{
		delay:     15 * time.Millisecond,
		statuses:  []string{"not_online"},
		loginBody: "E2532",
	}
	m := newCountingMonitor(t, transport, configured(), WithInterval(time.Millisecond))

	ctx, cancelRun := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		_, logins, _ := transport.snapshot()
		return logins >= 3
	}, 2*time.Second, 5*time.Millisecond)
	cancelRun()
	<-done

	assert.Eventually(t, func() bool { return !m.State().InFlight }, time.Second, 5*time.Millisecond)

	statusCalls, logins, maxInFlight := transport.snapshot()
	assert.Equal(t, 1, maxInFlight)
	// every offline cycle is status, login, status
	assert.InDelta(t, 2*logins, statusCalls, 2)
}

func TestManualOperationsRejectedWhileBusy(t *testing.T) {
	release := make(chan struct{})
	client := &blockingClient{release: release, started: make(chan struct{}, 1)}
	m := New(client, configured(), nil)
	defer m.Stop()

	go func() { _ = m.PollOnce(context.Background()) }()
	<-client.started

	_, err := m.Login(context.Background())
	assert.ErrorIs(t, err, ErrBusy)
	_, err = m.Logout(context.Background())
	assert.ErrorIs(t, err, ErrBusy)
	assert.ErrorIs(t, m.PollOnce(context.Background()), ErrBusy)
	assert.True(t, m.State().InFlight)

	close(release)
}

func TestStopDiscardsLateResults(t *testing.T) {
	release := make(chan struct{})
	client := &blockingClient{release: release, started: make(chan struct{}, 1)}
	m := New(client, configured(), nil, WithInterval(time.Hour))
	events, _ := m.Subscribe()

	go m.Run(context.Background())
	<-client.started

	m.Stop()
	m.Stop()
	close(release)

	assert.Eventually(t, func() bool { return !m.State().InFlight }, time.Second, 5*time.Millisecond)
	assert.Equal(t, model.StateChecking, m.Status().State)
	assert.Empty(t, drain(events))

	_, err := m.Login(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
	assert.ErrorIs(t, m.PollOnce(context.Background()), ErrStopped)

	client.mu.Lock()
	defer client.mu.Unlock()
	assert.Equal(t, 0, client.logins)
}

func TestManualLoginAndLogout(t *testing.T) {
	transport := &countingTransport{
		statuses:  []string{"stu1,1,10.0.0.5,1"},
		loginBody: "already_online",
	}
	m := newCountingMonitor(t, transport, configured())
	events, cancel := m.Subscribe()
	defer cancel()

	out, err := m.Login(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.ResultAlreadyOnline, out.Result)
	assert.Equal(t, model.StateOnline, m.Status().State)

	out, err = m.Logout(context.Background())
	require.NoError(t, err)
	assert.True(t, out.IsSuccess())

	transport.mu.Lock()
	assert.Equal(t, 1, transport.logoutCalls)
	transport.mu.Unlock()

	assert.Equal(t, []model.EventType{
		model.EventLogin,
		model.EventStatus,
		model.EventLogout,
		model.EventStatus,
	}, eventTypes(drain(events)))
}

func TestRefreshCoalesces(t *testing.T) {
	m := New(&blockingClient{}, configured(), nil)
	m.Refresh()
	m.Refresh()
	assert.Len(t, m.refreshCh, 1)
}

// blockingClient holds CheckStatus until release is closed.
type blockingClient struct {
	mu      sync.Mutex
	release chan struct{}
	started chan struct{}
	logins  int
}

func (b *blockingClient) CheckStatus(ctx context.Context) model.NetworkStatus {
	if b.started != nil {
		select {
		case b.started <- struct{}{}:
		default:
		}
	}
	if b.release != nil {
		<-b.release
	}
	return model.Offline()
}

func (b *blockingClient) Login(ctx context.Context, creds model.Credentials) model.LoginOutcome {
	b.mu.Lock()
	b.logins++
	b.mu.Unlock()
	return model.LoginOutcome{Result: model.ResultSuccess}
}

func (b *blockingClient) Logout(ctx context.Context, username string) model.LoginOutcome {
	return model.LoginOutcome{Result: model.ResultSuccess}
}

func assertLoginAccount(t *testing.T, form string, account model.Credentials) {
	t.Helper()
	assert.Contains(t, form, "username="+srun.URLEncode(srun.EncryptUsername(account.Username)))
	assert.Contains(t, form, "password="+srun.URLEncode(srun.EncryptPassword(account.Password)))
}

func TestReconnectUsesOneCredentialSnapshot(t *testing.T) {
	alice := model.Credentials{Username: "alice", Password: "alice-pw"}
	bob := model.Credentials{Username: "bob", Password: "bob-pw"}
	creds := &rotatingCreds{accounts: []model.Credentials{alice, bob}}
	transport := &countingTransport{statuses: []string{"not_online"}, loginBody: "login_ok"}
	m := newCountingMonitor(t, transport, creds)

	require.NoError(t, m.PollOnce(context.Background()))
	require.NoError(t, m.PollOnce(context.Background()))

	forms := transport.forms()
	require.Len(t, forms, 2)
	assertLoginAccount(t, forms[0], alice)
	assertLoginAccount(t, forms[1], bob)
	assert.Equal(t, 2, creds.snapshotCalls())
}

func TestManualLoginUsesOneCredentialSnapshot(t *testing.T) {
	alice := model.Credentials{Username: "alice", Password: "alice-pw"}
	bob := model.Credentials{Username: "bob", Password: "bob-pw"}
	creds := &rotatingCreds{accounts: []model.Credentials{alice, bob}}
	transport := &countingTransport{statuses: []string{"not_online"}, loginBody: "login_ok"}
	m := newCountingMonitor(t, transport, creds)

	out, err := m.Login(context.Background())
	require.NoError(t, err)
	assert.True(t, out.IsSuccess())

	forms := transport.forms()
	require.Len(t, forms, 1)
	assertLoginAccount(t, forms[0], alice)
	assert.Equal(t, 1, creds.snapshotCalls())
}

func TestStopRacingRunDoesNotHang(t *testing.T) {
	for i := 0; i < 50; i++ {
		transport := &countingTransport{statuses: []string{"stu1,60,10.0.0.5,1024"}}
		m := New(srun.NewClient(transport, model.EndpointProfile{
			Name:      "test",
			StatusURL: "http://gw.test/cgi-bin/rad_user_info",
			LoginURL:  "http://gw.test/cgi-bin/srun_portal",
		}), configured(), nil, WithInterval(time.Millisecond))

		done := make(chan struct{})
		go func() {
			defer close(done)
			m.Run(context.Background())
		}()
		m.Stop()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("Run did not return after Stop")
		}
		assert.False(t, m.State().Running)
	}
}
