package srun

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/micro-ha/srun-guard/internal/model"
)

const formContentType = "application/x-www-form-urlencoded"

// Client speaks the SRUN3K portal protocol against one endpoint profile.
type Client struct {
	transport Transport
	profile   atomic.Pointer[model.EndpointProfile]
	now       func() time.Time
	logger    *slog.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithClock replaces the time source used for JSONP callback ids.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewClient(transport Transport, profile model.EndpointProfile, opts ...Option) *Client {
	if transport == nil {
		transport = NewHTTPTransport()
	}
	c := &Client{
		transport: transport,
		now:       time.Now,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.SetProfile(profile)
	return c
}

// Profile returns a copy of the active profile.
func (c *Client) Profile() model.EndpointProfile {
	return c.snapshot()
}

// SetProfile swaps the active profile. Operations already running keep the
// profile they started with.
func (c *Client) SetProfile(profile model.EndpointProfile) {
	next := profile.Clone().WithDefaults()
	c.profile.Store(&next)
}

func (c *Client) snapshot() model.EndpointProfile {
	return c.profile.Load().Clone()
}

// CheckStatus queries the status endpoint. Transport failures are reported
// as an error state, never as a Go error.
func (c *Client) CheckStatus(ctx context.Context) model.NetworkStatus {
	profile := c.snapshot()
	checkedAt := c.now().UTC()

	resp, err := c.transport.Send(ctx, Request{
		Method:  http.MethodGet,
		URL:     c.statusURL(profile),
		Header:  http.Header{"Accept": []string{"*/*"}},
		Timeout: profile.StatusTimeout,
	})
	if err == nil && resp.StatusCode >= 400 {
		err = fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err != nil {
		terr := &TransportError{Op: string(OpStatus), URL: profile.StatusURL, Err: err}
		c.logger.Warn("status check failed", "profile", profile.Name, "err", terr)
		status := model.Failure(describeTransport(terr))
		status.CheckedAt = checkedAt
		return status
	}

	status := ParseStatus(string(resp.Body)).Normalize()
	status.CheckedAt = checkedAt
	c.logger.Debug("status checked", "profile", profile.Name, "state", status.State, "ip", status.IPAddress)
	return status
}

// Login submits encoded credentials.
func (c *Client) Login(ctx context.Context, creds model.Credentials) model.LoginOutcome {
	profile := c.snapshot()
	if !creds.Complete() {
		return model.Failed(model.KindConfig, ErrConfig.Error())
	}

	form := make(model.Params, 0, 4+len(profile.LoginParams))
	form = append(form,
		model.Param{Key: "action", Value: "login"},
		model.Param{Key: "username", Value: EncryptUsername(creds.Username)},
		model.Param{Key: "password", Value: EncryptPassword(creds.Password)},
		model.Param{Key: "ac_id", Value: profile.ACID},
	)
	form = append(form, profile.LoginParams...)

	out := c.submit(ctx, OpLogin, profile, form)
	c.logOutcome(OpLogin, profile, creds.Username, out)
	return out
}

// Logout ends the session. The username is only sent when the profile asks
// for it.
func (c *Client) Logout(ctx context.Context, username string) model.LoginOutcome {
	profile := c.snapshot()

	form := make(model.Params, 0, 3+len(profile.LogoutParams))
	form = append(form, model.Param{Key: "action", Value: "logout"})
	if profile.LogoutSendsUsername && username != "" {
		form = append(form, model.Param{Key: "username", Value: EncryptUsername(username)})
	}
	form = append(form, model.Param{Key: "ac_id", Value: profile.ACID})
	form = append(form, profile.LogoutParams...)

	out := c.submit(ctx, OpLogout, profile, form)
	c.logOutcome(OpLogout, profile, username, out)
	return out
}

func (c *Client) submit(ctx context.Context, op Operation, profile model.EndpointProfile, form model.Params) model.LoginOutcome {
	resp, err := c.transport.Send(ctx, Request{
		Method:  http.MethodPost,
		URL:     profile.LoginURL,
		Header:  http.Header{"Content-Type": []string{formContentType}},
		Body:    []byte(EncodeForm(form)),
		Timeout: profile.AuthTimeout,
	})
	if err != nil {
		terr := &TransportError{Op: string(op), URL: profile.LoginURL, Err: err}
		return model.Failed(model.KindTransport, describeTransport(terr))
	}
	if resp.StatusCode >= 400 && strings.TrimSpace(string(resp.Body)) == "" {
		return model.Failed(model.KindTransport, fmt.Sprintf("gateway returned status %d", resp.StatusCode))
	}
	return ParseAuth(op, string(resp.Body))
}

func (c *Client) logOutcome(op Operation, profile model.EndpointProfile, username string, out model.LoginOutcome) {
	if out.IsSuccess() {
		c.logger.Info("gateway "+string(op)+" accepted", "profile", profile.Name, "username", username, "result", out.Result)
		return
	}
	c.logger.Warn("gateway "+string(op)+" rejected",
		"profile", profile.Name,
		"username", username,
		"kind", out.Kind,
		"code", out.Code,
		"message", out.Message,
	)
}

// statusURL appends the JSONP callback and cache buster when the profile
// needs them.
func (c *Client) statusURL(profile model.EndpointProfile) string {
	if !profile.StatusUsesJSONPCallback {
		return profile.StatusURL
	}
	stamp := strconv.FormatInt(c.now().UnixMilli(), 10)
	sep := "?"
	if strings.Contains(profile.StatusURL, "?") {
		sep = "&"
	}
	return profile.StatusURL + sep + "callback=jQuery_" + stamp + "&_=" + stamp
}

// EncodeForm renders params as an urlencoded body, keeping their order.
func EncodeForm(params model.Params) string {
	parts := make([]string, 0, len(params))
	for _, p := range params {
		parts = append(parts, URLEncode(p.Key)+"="+URLEncode(p.Value))
	}
	return strings.Join(parts, "&")
}

// OutcomeError maps a failed outcome onto the error taxonomy.
func OutcomeError(out model.LoginOutcome) error {
	if out.IsSuccess() {
		return nil
	}
	switch out.Kind {
	case model.KindConfig:
		return ErrConfig
	case model.KindAuth:
		return fmt.Errorf("%w: %s", ErrAuth, out.Message)
	case model.KindTransport:
		return &TransportError{Op: "gateway", Err: errors.New(out.Message)}
	default:
		return fmt.Errorf("%w: %s", ErrProtocol, out.Message)
	}
}
