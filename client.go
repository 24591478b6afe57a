package bilichat

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const defaultTokenPath = "./token"

// Client ties together authentication (cached token or QR login) and a
// single room's streaming Session.
type Client struct {
	config  clientConfig
	store   *TokenStore
	session *Session
	done    chan error
}

// NewClient creates a Client from opts. RoomID is required before Start.
func NewClient(opts ...Option) *Client {
	cfg := clientConfig{
		tokenPath: defaultTokenPath,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.httpClient == nil {
		cfg.httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	return &Client{
		config: cfg,
		store:  NewTokenStore(cfg.tokenPath),
		done:   make(chan error, 1),
	}
}

// Authenticate loads a cached SessionToken, or falls back to the QR login
// flow and persists the result for next time.
func (c *Client) Authenticate(ctx context.Context) (SessionToken, error) {
	tok, jar, err := c.store.Load("bilibili.com")
	if err == nil {
		c.config.httpClient.Jar = jar
		return tok, nil
	}
	c.config.logger.Info("no cached token, starting QR login", "error", err)

	login := NewQRLogin(WithQRLoginHTTPClient(c.config.httpClient), WithQRLoginLogger(c.config.logger))
	qr, err := login.Generate(ctx)
	if err != nil {
		return SessionToken{}, fmt.Errorf("generate qr code: %w", err)
	}

	if term, rerr := qr.RenderTerminal(); rerr == nil {
		fmt.Println(term)
	}
	if werr := qr.WriteSVG("qr.svg"); werr != nil {
		c.config.logger.Warn("failed to write qr.svg", "error", werr)
	}

	tok, rawCookies, err := login.PollLogin(ctx, qr)
	if err != nil {
		return SessionToken{}, fmt.Errorf("poll qr login: %w", err)
	}
	if err := c.store.Save(rawCookies); err != nil {
		c.config.logger.Warn("failed to persist token", "error", err)
	}

	jar, err = buildJar("bilibili.com", rawCookies)
	if err != nil {
		return SessionToken{}, fmt.Errorf("build cookie jar from qr login: %w", err)
	}
	c.config.httpClient.Jar = jar

	return tok, nil
}

// Start authenticates, then begins streaming roomID in a background
// goroutine, returning the event channel immediately.
func (c *Client) Start(ctx context.Context) (<-chan ServerEvent, error) {
	if c.config.roomID == 0 {
		return nil, fmt.Errorf("no room configured; use WithRoomID")
	}

	tok, err := c.Authenticate(ctx)
	if err != nil {
		return nil, err
	}

	c.session = NewSession(SessionConfig{
		RoomID:     c.config.roomID,
		Token:      tok,
		HTTPClient: c.config.httpClient,
		Logger:     c.config.logger,
	})

	go func() {
		c.done <- c.session.Run(ctx)
	}()

	return c.session.Events(), nil
}

// Wait blocks until the streaming session terminates and returns its
// terminal error, which is nil on clean context cancellation and
// *ExhaustedRetries when the reconnect ceiling was reached.
func (c *Client) Wait() error {
	return <-c.done
}
