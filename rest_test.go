package bilichat

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestSendDanmaku(t *testing.T) {
	var gotForm url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		gotForm = r.Form
		fmt.Fprint(w, `{"code":0,"message":"0","data":{}}`)
	}))
	defer srv.Close()

	hc := srv.Client()
	hc.Transport = redirectTransport{target: srv.URL}

	c := NewRestClient(hc, SessionToken{UID: "1", SessData: "s", CSRF: "csrf-value"})
	if err := c.SendDanmaku(context.Background(), 123, "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotForm.Get("csrf") != "csrf-value" || gotForm.Get("csrf_token") != "csrf-value" {
		t.Fatalf("csrf fields missing: %+v", gotForm)
	}
	if gotForm.Get("msg") != "hello" {
		t.Fatalf("msg = %q", gotForm.Get("msg"))
	}
	if gotForm.Get("roomid") != "123" {
		t.Fatalf("roomid = %q", gotForm.Get("roomid"))
	}
}

func TestSendDanmakuErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":10030,"message":"frequency limited","data":{}}`)
	}))
	defer srv.Close()

	hc := srv.Client()
	hc.Transport = redirectTransport{target: srv.URL}

	c := NewRestClient(hc, SessionToken{UID: "1", SessData: "s", CSRF: "c"})
	err := c.SendDanmaku(context.Background(), 123, "hello")
	var sendErr *SendError
	if !asSendError(err, &sendErr) {
		t.Fatalf("want *SendError, got %v (%T)", err, err)
	}
	if sendErr.Code != 10030 {
		t.Fatalf("code = %d, want 10030", sendErr.Code)
	}
}

func TestBlockUser(t *testing.T) {
	var gotForm url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		gotForm = r.Form
		fmt.Fprint(w, `{"code":0,"message":"0","data":{}}`)
	}))
	defer srv.Close()

	hc := srv.Client()
	hc.Transport = redirectTransport{target: srv.URL}

	c := NewRestClient(hc, SessionToken{UID: "1", SessData: "s", CSRF: "c"})
	if err := c.BlockUser(context.Background(), 123, 456, 1); err != nil {
		t.Fatalf("block: %v", err)
	}
	if gotForm.Get("block_uid") != "456" || gotForm.Get("hour") != "1" {
		t.Fatalf("unexpected form: %+v", gotForm)
	}
}

func TestListFollowings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("vmid") != "2" {
			t.Errorf("vmid = %q", r.URL.Query().Get("vmid"))
		}
		fmt.Fprint(w, `{"code":0,"message":"0","data":{"list":[{"mid":5,"uname":"x","mtime":1}],"total":1}}`)
	}))
	defer srv.Close()

	hc := srv.Client()
	hc.Transport = redirectTransport{target: srv.URL}

	c := NewRestClient(hc, SessionToken{})
	result, err := c.ListFollowings(context.Background(), "2", 1, 50)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if result.Total != 1 || len(result.List) != 1 || result.List[0].Uname != "x" {
		t.Fatalf("got %+v", result)
	}
}
