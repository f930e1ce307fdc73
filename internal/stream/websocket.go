package stream

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/redalert-desktop/redalert/internal/gateway"
)

// WebSocketTransport reads alert messages from a WebSocket relay
type WebSocketTransport struct {
	dialer  websocket.Dialer
	headers http.Header
	logger  *zap.Logger
}

// NewWebSocketTransport creates a WebSocket transport sending headers on the
// handshake.
func NewWebSocketTransport(headers map[string]string, logger *zap.Logger) *WebSocketTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := http.Header{}
	for k, v := range headers {
		h.Set(k, v)
	}
	return &WebSocketTransport{
		dialer: websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			Proxy:            http.ProxyFromEnvironment,
		},
		headers: h,
		logger:  logger,
	}
}

// websocketURL maps http(s) URLs onto ws(s)
func websocketURL(url string) string {
	switch {
	case strings.HasPrefix(url, "https://"):
		return "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		return "ws://" + strings.TrimPrefix(url, "http://")
	default:
		return url
	}
}

// Stream implements Transport
func (t *WebSocketTransport) Stream(ctx context.Context, url string, onOpen func(), onMessage func([]byte)) error {
	wsURL := websocketURL(url)

	conn, resp, err := t.dialer.DialContext(ctx, wsURL, t.headers)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			return &gateway.UpstreamHTTPError{URL: wsURL, Status: resp.StatusCode}
		}
		return &gateway.TransportError{URL: wsURL, Err: err}
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second),
			)
			_ = conn.Close()
		case <-stop:
		}
	}()

	onOpen()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return ErrStreamEnded
			}
			return &gateway.TransportError{URL: wsURL, Err: err}
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		onMessage(data)
	}
}
