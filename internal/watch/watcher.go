// Package watch follows the daemon's websocket event stream.
package watch

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/micro-ha/srun-guard/internal/model"
)

const (
	readTimeout = 120 * time.Second
	maxBackoff  = 20 * time.Second
)

type Watcher struct {
	baseURL string
	logger  *slog.Logger
	backoff time.Duration
}

func NewWatcher(baseURL string, logger *slog.Logger) *Watcher {
	return &Watcher{baseURL: strings.TrimSuffix(baseURL, "/"), logger: logger, backoff: time.Second}
}

// Run delivers events to onEvent and reconnects with exponential backoff
// until ctx is done.
func (w *Watcher) Run(ctx context.Context, onEvent func(model.Event)) {
	backoff := w.backoff
	for {
		if ctx.Err() != nil {
			return
		}
		received, err := w.runSession(ctx, onEvent)
		if err != nil && ctx.Err() == nil {
			w.logger.Warn("event stream disconnected", "err", err)
		}
		if received {
			backoff = w.backoff
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}

func (w *Watcher) runSession(ctx context.Context, onEvent func(model.Event)) (bool, error) {
	wsURL, err := toWebsocketURL(w.baseURL + "/api/ws")
	if err != nil {
		return false, err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	received := false
	for {
		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return received, err
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return received, nil
			}
			return received, err
		}
		ev, ok := decodeEvent(msg)
		if !ok {
			continue
		}
		received = true
		onEvent(ev)
	}
}

func decodeEvent(body []byte) (model.Event, bool) {
	var ev model.Event
	if err := json.Unmarshal(body, &ev); err != nil || ev.Type == "" {
		return model.Event{}, false
	}
	return ev, true
}

func toWebsocketURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	return u.String(), nil
}
