package bilichat

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	heartbeatInterval   = 30 * time.Second
	backoffShort        = 10 * time.Second
	backoffLong         = 300 * time.Second
	backoffThreshold    = 20
	maxAttempts         = 30
	stabilityResetAfter = 30 * time.Minute
	eventBufferSize     = 100
	wssURL              = "wss://broadcastlv.chat.bilibili.com/sub"
)

// dialWebsocket and sleepFn are package-level so tests can substitute a
// fake dialer and a non-blocking clock.
var dialWebsocket = func(ctx context.Context, url string, header http.Header) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	return dialer.DialContext(ctx, url, header)
}

var sleepFn = func(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var fetchDanmuInfoFn = FetchDanmuInfo

var nowFn = time.Now

// newHeartbeatTicker is package-level so tests can substitute a channel
// that fires on demand instead of waiting out the real 30s interval.
var newHeartbeatTicker = func() (<-chan time.Time, func()) {
	t := time.NewTicker(heartbeatInterval)
	return t.C, t.Stop
}

// SessionConfig configures a streaming Session.
type SessionConfig struct {
	RoomID     uint32
	Token      SessionToken
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Session manages a single room's websocket connection, transparently
// reconnecting with backoff until its context is canceled or the retry
// ceiling is reached.
type Session struct {
	cfg    SessionConfig
	events chan ServerEvent

	wsMu sync.Mutex
	ws   *websocket.Conn
}

// NewSession returns a Session for cfg. Run must be called to start
// streaming.
func NewSession(cfg SessionConfig) *Session {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Session{
		cfg:    cfg,
		events: make(chan ServerEvent, eventBufferSize),
	}
}

// Events returns the channel of decoded server events. It is closed when
// Run returns.
func (s *Session) Events() <-chan ServerEvent {
	return s.events
}

// Run drives the connect/heartbeat/receive/backoff state machine until ctx
// is canceled or the reconnect ceiling (30 attempts) is reached, in which
// case it returns an *ExhaustedRetries error. The events channel is closed
// on return.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.events)

	var attempts uint32
	for {
		started := nowFn()
		err := s.connectOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}

		if nowFn().Sub(started) >= stabilityResetAfter {
			attempts = 0
		}
		attempts++

		s.cfg.Logger.Warn("session disconnected, reconnecting",
			"room", s.cfg.RoomID, "error", err, "attempt", attempts)

		if attempts >= maxAttempts {
			return &ExhaustedRetries{Attempts: attempts}
		}

		delay := backoffShort
		if attempts > backoffThreshold {
			delay = backoffLong
		}
		if err := sleepFn(ctx, delay); err != nil {
			return nil
		}
	}
}

// connectOnce fetches fresh DanmuInfo, dials, logs in, and runs the
// heartbeat and receive loops concurrently until either fails.
func (s *Session) connectOnce(ctx context.Context) error {
	info, err := fetchDanmuInfoFn(ctx, s.cfg.HTTPClient, s.cfg.RoomID)
	if err != nil {
		return fmt.Errorf("fetch danmu info: %w", err)
	}

	header := http.Header{}
	header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	if s.cfg.Token.SessData != "" {
		header.Set("Cookie", fmt.Sprintf("SESSDATA=%s", s.cfg.Token.SessData))
	}

	ws, _, err := dialWebsocket(ctx, wssURL, header)
	if err != nil {
		return &TransportError{Err: err}
	}
	defer ws.Close()

	s.wsMu.Lock()
	s.ws = ws
	s.wsMu.Unlock()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() { errCh <- s.heartbeatLoop(connCtx, ws, info.Token) }()
	go func() { errCh <- s.receiveLoop(connCtx, ws) }()

	err = <-errCh
	cancel()
	<-errCh
	return err
}

func (s *Session) heartbeatLoop(ctx context.Context, ws *websocket.Conn, key string) error {
	uid, err := parseUID(s.cfg.Token.UID)
	if err != nil {
		uid = 0
	}
	login := LoginMessage{Login: WsLogin{RoomID: s.cfg.RoomID, UID: uid, Key: key}}
	if err := s.send(ws, login); err != nil {
		return fmt.Errorf("send login: %w", err)
	}

	tickC, stop := newHeartbeatTicker()
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tickC:
			if err := s.send(ws, HeartbeatMessage{}); err != nil {
				return fmt.Errorf("send heartbeat: %w", err)
			}
		}
	}
}

func (s *Session) receiveLoop(ctx context.Context, ws *websocket.Conn) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		_, data, err := ws.ReadMessage()
		if err != nil {
			return &TransportError{Err: err}
		}

		result, err := Decode(data)
		if err != nil {
			return fmt.Errorf("decode message: %w", err)
		}
		for _, soft := range result.SoftErrors {
			s.cfg.Logger.Warn("soft decode error", "room", s.cfg.RoomID, "error", soft)
		}
		for _, ev := range result.Events {
			select {
			case s.events <- ev:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (s *Session) send(ws *websocket.Conn, m ClientMessage) error {
	frame, err := Encode(m)
	if err != nil {
		return err
	}
	s.wsMu.Lock()
	defer s.wsMu.Unlock()
	return ws.WriteMessage(websocket.BinaryMessage, frame)
}

func parseUID(s string) (uint32, error) {
	var v uint64
	_, err := fmt.Sscanf(s, "%d", &v)
	return uint32(v), err
}
