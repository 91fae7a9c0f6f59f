package mediaserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsReconnectDelay = 5 * time.Second
	wsReadLimit      = 1 << 20
)

// Notifier subscribes to the media server's WebSocket notification stream.
// Updates are advisory: they prompt an immediate reconcile tick, nothing more.
type Notifier struct {
	baseURL string
	token   string
	logger  *zap.Logger
}

// NewNotifier creates a WebSocket notifier for the media server.
func NewNotifier(baseURL, token string, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{baseURL: strings.TrimRight(baseURL, "/"), token: token, logger: logger}
}

// Subscribe opens the notification stream and returns a channel of state
// updates. The connection is re-dialed on failure until ctx is cancelled;
// the channel is closed when ctx ends.
func (n *Notifier) Subscribe(ctx context.Context) (<-chan StateUpdate, error) {
	wsURL, err := n.websocketURL()
	if err != nil {
		return nil, err
	}

	out := make(chan StateUpdate, 64)
	go func() {
		defer close(out)
		for {
			if ctx.Err() != nil {
				return
			}
			if err := n.readLoop(ctx, wsURL, out); err != nil && ctx.Err() == nil {
				n.logger.Warn("notification stream disconnected", zap.Error(err))
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(wsReconnectDelay):
			}
		}
	}()
	return out, nil
}

func (n *Notifier) readLoop(ctx context.Context, wsURL string, out chan<- StateUpdate) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	conn.SetReadLimit(wsReadLimit)

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	n.logger.Info("notification stream connected")
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var update StateUpdate
		if err := json.Unmarshal(msg, &update); err != nil {
			n.logger.Debug("skipping malformed notification", zap.Error(err))
			continue
		}
		select {
		case out <- update:
		default:
			// consumer is behind; updates only trigger polls, dropping is safe
		}
	}
}

func (n *Notifier) websocketURL() (string, error) {
	u, err := url.Parse(n.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/api/v1/notifications"
	q := u.Query()
	q.Set("token", n.token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
