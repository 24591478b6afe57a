package bilichat

import (
	"log/slog"
	"net/http"
)

// Option configures a Client.
type Option func(*clientConfig)

type clientConfig struct {
	roomID     uint32
	tokenPath  string
	httpClient *http.Client
	logger     *slog.Logger
}

// WithRoomID sets the room the client streams from.
func WithRoomID(roomID uint32) Option {
	return func(c *clientConfig) { c.roomID = roomID }
}

// WithTokenPath overrides the default "./token" cookie cache location.
func WithTokenPath(path string) Option {
	return func(c *clientConfig) { c.tokenPath = path }
}

// WithHTTPClient overrides the default HTTP client used for API calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *clientConfig) { c.httpClient = hc }
}

// WithLogger overrides the default slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *clientConfig) { c.logger = logger }
}
