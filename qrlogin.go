package bilichat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	qrcode "github.com/skip2/go-qrcode"
)

var (
	qrGenerateURL = "https://passport.bilibili.com/x/passport-login/web/qrcode/generate"
	qrPollURL     = "https://passport.bilibili.com/x/passport-login/web/qrcode/poll"
)

// QRCode is an unconfirmed login request: a URL the app must scan and the
// opaque key used to poll for confirmation.
type QRCode struct {
	URL string
	Key string

	matrix *qrcode.QRCode
}

type qrGenerateEnvelope struct {
	Code int `json:"code"`
	Data struct {
		URL       string `json:"url"`
		QRCodeKey string `json:"qrcode_key"`
	} `json:"data"`
}

type qrPollEnvelope struct {
	Code int `json:"code"`
	Data struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"data"`
}

// QRLogin drives the scan-to-login flow: generate a code, render it, poll
// until the user confirms on their phone.
type QRLogin struct {
	httpClient   *http.Client
	logger       *slog.Logger
	pollInterval time.Duration
}

// QRLoginOption configures a QRLogin.
type QRLoginOption func(*QRLogin)

// WithQRLoginHTTPClient overrides the http.Client used for the generate and
// poll requests.
func WithQRLoginHTTPClient(hc *http.Client) QRLoginOption {
	return func(q *QRLogin) { q.httpClient = hc }
}

// WithQRLoginLogger overrides the logger used to report poll progress.
func WithQRLoginLogger(logger *slog.Logger) QRLoginOption {
	return func(q *QRLogin) { q.logger = logger }
}

// WithPollInterval overrides the 1-second default between poll attempts.
func WithPollInterval(d time.Duration) QRLoginOption {
	return func(q *QRLogin) { q.pollInterval = d }
}

// NewQRLogin returns a QRLogin ready to generate and poll codes.
func NewQRLogin(opts ...QRLoginOption) *QRLogin {
	q := &QRLogin{
		httpClient:   http.DefaultClient,
		logger:       slog.Default(),
		pollInterval: time.Second,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Generate requests a fresh QR code from the login endpoint.
func (q *QRLogin) Generate(ctx context.Context) (*QRCode, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, qrGenerateURL+"?source=main-fe-header", nil)
	if err != nil {
		return nil, fmt.Errorf("build qrcode/generate request: %w", err)
	}
	setBrowserHeaders(req)

	resp, err := q.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	var env qrGenerateEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode qrcode/generate response: %w", err)
	}
	if env.Code != 0 {
		return nil, &AuthError{Reason: fmt.Sprintf("qrcode/generate returned code %d", env.Code)}
	}

	matrix, err := qrcode.New(env.Data.URL, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("render qr matrix: %w", err)
	}

	return &QRCode{URL: env.Data.URL, Key: env.Data.QRCodeKey, matrix: matrix}, nil
}

// PollLogin polls qr once per pollInterval until the user confirms, the
// code expires, or ctx is canceled. On success it returns the extracted
// SessionToken along with the raw Set-Cookie lines for persistence.
func (q *QRLogin) PollLogin(ctx context.Context, qr *QRCode) (SessionToken, []string, error) {
	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return SessionToken{}, nil, ctx.Err()
		case <-ticker.C:
			tok, rawCookies, done, err := q.pollOnce(ctx, qr)
			if err != nil {
				return SessionToken{}, nil, err
			}
			if done {
				return tok, rawCookies, nil
			}
		}
	}
}

func (q *QRLogin) pollOnce(ctx context.Context, qr *QRCode) (SessionToken, []string, bool, error) {
	u, err := url.Parse(qrPollURL)
	if err != nil {
		return SessionToken{}, nil, false, fmt.Errorf("parse qrcode/poll url: %w", err)
	}
	v := u.Query()
	v.Set("qrcode_key", qr.Key)
	v.Set("source", "main-fe-header")
	u.RawQuery = v.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return SessionToken{}, nil, false, fmt.Errorf("build qrcode/poll request: %w", err)
	}
	setBrowserHeaders(req)

	resp, err := q.httpClient.Do(req)
	if err != nil {
		return SessionToken{}, nil, false, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return SessionToken{}, nil, false, &TransportError{Err: err}
	}

	var env qrPollEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return SessionToken{}, nil, false, fmt.Errorf("decode qrcode/poll response: %w", err)
	}

	if env.Code != 0 {
		return SessionToken{}, nil, false, &AuthError{Reason: fmt.Sprintf("qrcode/poll fatal outer code %d", env.Code)}
	}
	// 86038 is the inner code for an expired QR code.
	const qrCodeExpired = 86038
	if env.Data.Code == qrCodeExpired {
		return SessionToken{}, nil, false, &AuthError{Reason: "qr code expired"}
	}
	if env.Data.Code != 0 {
		q.logger.Debug("qr login not yet confirmed", "code", env.Data.Code, "message", env.Data.Message)
		return SessionToken{}, nil, false, nil
	}

	rawCookies := resp.Header.Values("Set-Cookie")
	tok, err := ParseCookieString(strings.Join(rawCookies, "; "))
	if err != nil {
		return SessionToken{}, nil, false, err
	}
	return tok, rawCookies, true, nil
}

// RenderTerminal returns the QR code as a block-character string suitable
// for printing to a terminal.
func (qr *QRCode) RenderTerminal() (string, error) {
	if qr.matrix == nil {
		return "", fmt.Errorf("qr code has no rendered matrix")
	}
	return qr.matrix.ToString(false), nil
}

// WriteSVG renders the QR code as an SVG file at path. go-qrcode has no
// built-in SVG encoder, so the bitmap is serialized by hand into a grid of
// <rect> elements.
func (qr *QRCode) WriteSVG(path string) error {
	if qr.matrix == nil {
		return fmt.Errorf("qr code has no rendered matrix")
	}
	svg := renderSVG(qr.matrix.Bitmap())
	return os.WriteFile(path, []byte(svg), 0o644)
}

func renderSVG(bitmap [][]bool) string {
	const module = 4
	size := len(bitmap) * module

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %d %d" width="%d" height="%d">`, size, size, size, size)
	b.WriteString(`<rect width="100%" height="100%" fill="#ffffff"/>`)
	for y, row := range bitmap {
		for x, dark := range row {
			if !dark {
				continue
			}
			fmt.Fprintf(&b, `<rect x="%d" y="%d" width="%d" height="%d" fill="#000000"/>`, x*module, y*module, module, module)
		}
	}
	b.WriteString(`</svg>`)
	return b.String()
}

func setBrowserHeaders(req *http.Request) {
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Referer", "https://www.bilibili.com/")
	req.Header.Set("Origin", "https://www.bilibili.com")
}
