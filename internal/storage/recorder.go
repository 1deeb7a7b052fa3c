package storage

import (
	"context"
	"log/slog"
	"time"

	"github.com/micro-ha/srun-guard/internal/model"
)

const (
	recordTimeout = 5 * time.Second
	pruneInterval = time.Minute
)

// Recorder persists monitor events: state transitions into status_history
// and login/logout results into auth_attempts.
type Recorder struct {
	repo      *Repository
	usernames interface{ Username() string }
	logger    *slog.Logger
	maxRows   int
	now       func() time.Time

	lastState model.NetworkState
	lastIP    string
	lastPrune time.Time
}

func NewRecorder(repo *Repository, usernames interface{ Username() string }, maxRows int, logger *slog.Logger) *Recorder {
	return &Recorder{repo: repo, usernames: usernames, maxRows: maxRows, logger: logger, now: time.Now}
}

// Run consumes events until the channel closes or ctx is done.
func (r *Recorder) Run(ctx context.Context, events <-chan model.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			r.Record(ev)
		}
	}
}

// Record persists a single event. Writes use their own timeout so that a
// shutting-down caller still flushes the last transition.
func (r *Recorder) Record(ev model.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	wrote := false
	switch ev.Type {
	case model.EventStatus:
		if ev.Status == nil || !r.transition(*ev.Status) {
			return
		}
		status := *ev.Status
		if status.CheckedAt.IsZero() {
			status.CheckedAt = ev.At
		}
		if err := r.repo.InsertStatus(ctx, status); err != nil {
			r.logger.Warn("failed to record status", "err", err)
			return
		}
		r.lastState = status.State
		r.lastIP = status.IPAddress
		wrote = true
	case model.EventLogin, model.EventLogout:
		if ev.Outcome == nil {
			return
		}
		attempt := model.AuthAttempt{
			Operation:    ev.Type,
			LoginOutcome: *ev.Outcome,
			At:           ev.At,
		}
		if r.usernames != nil {
			attempt.Username = r.usernames.Username()
		}
		if err := r.repo.InsertAuthAttempt(ctx, attempt); err != nil {
			r.logger.Warn("failed to record auth attempt", "err", err)
			return
		}
		wrote = true
	}

	if wrote {
		r.maybePrune(ctx)
	}
}

func (r *Recorder) transition(status model.NetworkStatus) bool {
	return status.State != r.lastState || status.IPAddress != r.lastIP
}

func (r *Recorder) maybePrune(ctx context.Context) {
	now := r.now()
	if r.maxRows <= 0 || now.Sub(r.lastPrune) < pruneInterval {
		return
	}
	r.lastPrune = now
	removed, err := r.repo.Prune(ctx, r.maxRows)
	if err != nil {
		r.logger.Warn("history prune failed", "err", err)
		return
	}
	if removed > 0 {
		r.logger.Info("pruned history rows", "rows", removed)
	}
}
