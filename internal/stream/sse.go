package stream

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/redalert-desktop/redalert/internal/gateway"
)

const maxEventSize = 1 << 20

// SSETransport reads a text/event-stream response
type SSETransport struct {
	http   *resty.Client
	logger *zap.Logger
}

// NewSSETransport creates an SSE transport sending headers on connect.
// The client has no overall timeout; the connection is meant to stay open.
func NewSSETransport(headers map[string]string, logger *zap.Logger) *SSETransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := resty.New().
		SetHeaders(headers).
		SetHeader("Accept", "text/event-stream").
		SetHeader("Cache-Control", "no-cache").
		SetLogger(logger.Sugar())

	return &SSETransport{http: client, logger: logger}
}

// Stream implements Transport
func (t *SSETransport) Stream(ctx context.Context, url string, onOpen func(), onMessage func([]byte)) error {
	resp, err := t.http.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(url)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return &gateway.TransportError{URL: url, Err: err}
	}

	body := resp.RawBody()
	defer body.Close()

	if !resp.IsSuccess() {
		return &gateway.UpstreamHTTPError{URL: url, Status: resp.StatusCode()}
	}

	onOpen()

	err = readEvents(body, onMessage)
	if ctx.Err() != nil {
		return nil
	}
	if err != nil {
		return &gateway.TransportError{URL: url, Err: err}
	}
	return ErrStreamEnded
}

// readEvents splits an event stream into event bodies. Multi-line data
// fields are joined with newlines; comments and other fields are skipped.
// It returns nil at EOF.
func readEvents(r io.Reader, onMessage func([]byte)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)

	var data bytes.Buffer
	hasData := false

	flush := func() {
		if hasData {
			onMessage(append([]byte(nil), data.Bytes()...))
		}
		data.Reset()
		hasData = false
	}

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			flush()
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, found := strings.Cut(line, ":")
		if found {
			value = strings.TrimPrefix(value, " ")
		}
		if field != "data" {
			continue
		}
		if hasData {
			data.WriteByte('\n')
		}
		data.WriteString(value)
		hasData = true
	}

	if err := scanner.Err(); err != nil {
		return err
	}
	flush()
	return nil
}
