package bilichat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const danmuInfoURL = "https://api.live.bilibili.com/xlive/web-room/v1/index/getDanmuInfo"

// LiveHost is one candidate chat server, offered alongside alternates so a
// client under heavy load on the primary host can fail over.
type LiveHost struct {
	Host    string `json:"host"`
	Port    int    `json:"port"`
	WSPort  int    `json:"ws_port"`
	WSSPort int    `json:"wss_port"`
}

// DanmuInfo is the server-issued handshake material a client must fetch
// fresh before every connection attempt: the host list and the per-session
// key carried in the websocket Login frame.
type DanmuInfo struct {
	Token            string     `json:"token"`
	HostList         []LiveHost `json:"host_list"`
	BusinessID       int        `json:"business_id"`
	MaxDelay         int        `json:"max_delay"`
	RefreshRate      int        `json:"refresh_rate"`
	RefreshRowFactor float64    `json:"refresh_row_factor"`
}

type danmuInfoEnvelope struct {
	Code    int       `json:"code"`
	Message string    `json:"message"`
	Data    DanmuInfo `json:"data"`
}

// FetchDanmuInfo retrieves the handshake material for roomID. Per the
// reconnect protocol, this must be called again before every (re)connect
// attempt: the token expires and the host list can change between
// sessions.
func FetchDanmuInfo(ctx context.Context, hc *http.Client, roomID uint32) (*DanmuInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, danmuInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build getDanmuInfo request: %w", err)
	}
	q := req.URL.Query()
	q.Set("id", fmt.Sprintf("%d", roomID))
	q.Set("type", "0")
	req.URL.RawQuery = q.Encode()
	setCommonHeaders(req)

	resp, err := hc.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	var env danmuInfoEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode getDanmuInfo response: %w", err)
	}
	if env.Code != 0 {
		return nil, &SendError{Code: env.Code, Message: env.Message}
	}

	info := env.Data
	return &info, nil
}

func setCommonHeaders(req *http.Request) {
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Referer", "https://live.bilibili.com/")
	req.Header.Set("Origin", "https://live.bilibili.com")
}
