package bilichat

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestQRLoginGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":0,"data":{"url":"https://passport.bilibili.com/h5/login-confirm?qrcode_key=abc123","qrcode_key":"abc123"}}`)
	}))
	defer srv.Close()

	origURL := qrGenerateURL
	qrGenerateURL = srv.URL
	defer func() { qrGenerateURL = origURL }()

	q := NewQRLogin(WithQRLoginHTTPClient(srv.Client()))
	qr, err := q.Generate(context.Background())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if qr.Key != "abc123" {
		t.Fatalf("key = %q, want abc123", qr.Key)
	}

	term, err := qr.RenderTerminal()
	if err != nil {
		t.Fatalf("render terminal: %v", err)
	}
	if term == "" {
		t.Fatal("expected non-empty terminal rendering")
	}
}

func TestQRLoginGenerateFatalCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":-400,"data":{}}`)
	}))
	defer srv.Close()

	origURL := qrGenerateURL
	qrGenerateURL = srv.URL
	defer func() { qrGenerateURL = origURL }()

	q := NewQRLogin(WithQRLoginHTTPClient(srv.Client()))
	if _, err := q.Generate(context.Background()); err == nil {
		t.Fatal("expected an error for non-zero outer code")
	}
}

func TestPollLoginNotYetConfirmed(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, `{"code":0,"data":{"code":86101,"message":"not yet scanned"}}`)
	}))
	defer srv.Close()

	origURL := qrPollURL
	qrPollURL = srv.URL
	defer func() { qrPollURL = origURL }()

	q := NewQRLogin(WithQRLoginHTTPClient(srv.Client()))
	qr := &QRCode{URL: srv.URL, Key: "k"}

	tok, _, done, err := q.pollOnce(context.Background(), qr)
	if err != nil {
		t.Fatalf("pollOnce: %v", err)
	}
	if done {
		t.Fatal("expected not done")
	}
	if tok != (SessionToken{}) {
		t.Fatalf("expected zero token, got %+v", tok)
	}
}

func TestPollLoginSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Set-Cookie", "DedeUserID=1; Path=/")
		w.Header().Add("Set-Cookie", "SESSDATA=sess; Path=/")
		w.Header().Add("Set-Cookie", "bili_jct=jct; Path=/")
		fmt.Fprint(w, `{"code":0,"data":{"code":0,"message":"success"}}`)
	}))
	defer srv.Close()

	origURL := qrPollURL
	qrPollURL = srv.URL
	defer func() { qrPollURL = origURL }()

	q := NewQRLogin(WithQRLoginHTTPClient(srv.Client()))
	qr := &QRCode{URL: srv.URL, Key: "k"}

	tok, raw, done, err := q.pollOnce(context.Background(), qr)
	if err != nil {
		t.Fatalf("pollOnce: %v", err)
	}
	if !done {
		t.Fatal("expected done")
	}
	if tok.UID != "1" || tok.SessData != "sess" || tok.CSRF != "jct" {
		t.Fatalf("got %+v", tok)
	}
	if len(raw) != 3 {
		t.Fatalf("want 3 raw cookie lines, got %d", len(raw))
	}
}

func TestPollLoginFatalOuterCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":-400,"message":"bad request"}`)
	}))
	defer srv.Close()

	origURL := qrPollURL
	qrPollURL = srv.URL
	defer func() { qrPollURL = origURL }()

	q := NewQRLogin(WithQRLoginHTTPClient(srv.Client()))
	qr := &QRCode{URL: srv.URL, Key: "k"}

	_, _, _, err := q.pollOnce(context.Background(), qr)
	if _, ok := err.(*AuthError); !ok {
		t.Fatalf("want *AuthError, got %v (%T)", err, err)
	}
}

func TestWithPollIntervalSetsPollInterval(t *testing.T) {
	q := NewQRLogin(WithPollInterval(5 * time.Millisecond))
	if q.pollInterval != 5*time.Millisecond {
		t.Fatalf("pollInterval = %v", q.pollInterval)
	}
}
