package bilichat

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchDanmuInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("id"); got != "123" {
			t.Errorf("id query param = %q, want 123", got)
		}
		if got := r.URL.Query().Get("type"); got != "0" {
			t.Errorf("type query param = %q, want 0", got)
		}
		fmt.Fprint(w, `{"code":0,"message":"0","data":{
			"token":"tok",
			"host_list":[{"host":"broadcastlv.chat.bilibili.com","port":2243,"wss_port":443,"ws_port":2244}],
			"business_id":0,"max_delay":5000,"refresh_rate":100,"refresh_row_factor":1.5
		}}`)
	}))
	defer srv.Close()

	hc := srv.Client()
	hc.Transport = redirectTransport{target: srv.URL}

	info, err := FetchDanmuInfo(context.Background(), hc, 123)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if info.Token != "tok" {
		t.Fatalf("token = %q, want tok", info.Token)
	}
	if len(info.HostList) != 1 || info.HostList[0].Host != "broadcastlv.chat.bilibili.com" {
		t.Fatalf("host_list = %+v", info.HostList)
	}
	if info.HostList[0].WSPort != 2244 || info.HostList[0].WSSPort != 443 {
		t.Fatalf("ws_port/wss_port = %d/%d, want 2244/443", info.HostList[0].WSPort, info.HostList[0].WSSPort)
	}
}

func TestFetchDanmuInfoErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":1,"message":"room not found","data":{}}`)
	}))
	defer srv.Close()

	hc := srv.Client()
	hc.Transport = redirectTransport{target: srv.URL}

	_, err := FetchDanmuInfo(context.Background(), hc, 999)
	var sendErr *SendError
	if err == nil {
		t.Fatal("expected an error")
	}
	if !asSendError(err, &sendErr) {
		t.Fatalf("want *SendError, got %v (%T)", err, err)
	}
	if sendErr.Code != 1 {
		t.Fatalf("code = %d, want 1", sendErr.Code)
	}
}

// redirectTransport forces every request to hit target instead of its
// original host, so hardcoded production URLs can be tested against a
// local httptest server.
type redirectTransport struct {
	target string
}

func (rt redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	targetURL, err := req.URL.Parse(rt.target)
	if err != nil {
		return nil, err
	}
	req2 := req.Clone(req.Context())
	req2.URL.Scheme = targetURL.Scheme
	req2.URL.Host = targetURL.Host
	return http.DefaultTransport.RoundTrip(req2)
}

func asSendError(err error, target **SendError) bool {
	se, ok := err.(*SendError)
	if !ok {
		return false
	}
	*target = se
	return true
}
