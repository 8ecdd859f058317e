package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// FeedURL derives the websocket feed address from the REST API base URL
func FeedURL(apiBaseURL string) (string, error) {
	u, err := url.Parse(strings.TrimRight(apiBaseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid api url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported api url scheme %q", u.Scheme)
	}
	u.Path += "/orders/feed"
	return u.String(), nil
}

// FeedWorker subscribes to the order service push feed and turns every event into
// a Signal. The connection is re-established with exponential backoff.
type FeedWorker struct {
	url      string
	header   http.Header
	onSignal SignalHandler
	logger   *slog.Logger

	ReadTimeout      time.Duration
	HandshakeTimeout time.Duration
	Backoff          func(retry int) time.Duration
}

// NewFeedWorker creates a worker for the feed at url
func NewFeedWorker(url string, header http.Header, onSignal SignalHandler, logger *slog.Logger) *FeedWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &FeedWorker{
		url:              url,
		header:           header,
		onSignal:         onSignal,
		logger:           logger,
		ReadTimeout:      90 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		Backoff:          CalculateBackoff,
	}
}

// Run connects and reads until ctx is cancelled
func (w *FeedWorker) Run(ctx context.Context) error {
	retry := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		conn, err := w.connect(ctx)
		if err != nil {
			delay := w.Backoff(retry)
			w.logger.Warn("order feed connection failed",
				slog.String("url", w.url), slog.Any("err", err),
				slog.Int("retry", retry), slog.Duration("delay", delay))
			retry++

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
				continue
			}
		}

		retry = 0
		w.logger.Info("order feed connected", slog.String("url", w.url))
		w.process(ctx, conn)
	}
}

func (w *FeedWorker) connect(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: w.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, w.url, w.header)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (w *FeedWorker) process(ctx context.Context, conn *websocket.Conn) {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()
	defer conn.Close()

	extend := func() {
		if w.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(w.ReadTimeout))
		}
	}
	conn.SetPingHandler(func(data string) error {
		extend()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	for {
		extend()
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				w.logger.Warn("order feed read failed", slog.Any("err", err))
			}
			return
		}

		var s Signal
		if err := json.Unmarshal(msg, &s); err != nil || s.OrderID == "" {
			w.logger.Debug("ignoring malformed feed event", slog.String("payload", string(msg)))
			continue
		}
		w.onSignal(ctx, s)
	}
}
