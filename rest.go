package bilichat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	sendDanmakuURL   = "https://api.live.bilibili.com/msg/send"
	blockUserURL     = "https://api.live.bilibili.com/banned_service/v2/Silent/add_block_user"
	followingsURL    = "https://api.bilibili.com/x/relation/same/followings"
	searchFollowsURL = "https://api.bilibili.com/x/relation/followings/search"
)

// apiEnvelope is the common response shape of Bilibili's action endpoints:
// a status code, a human-readable message, and a typed payload.
type apiEnvelope[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	TTL     int    `json:"ttl"`
	Data    T      `json:"data"`
}

// RestClient issues the authenticated write/read actions a logged-in
// session can perform against a room: sending danmaku, silencing a user,
// and inspecting followings.
type RestClient struct {
	httpClient *http.Client
	token      SessionToken
}

// NewRestClient returns a RestClient that authenticates outgoing requests
// with token's csrf value and sends requests over hc (expected to carry a
// cookie jar populated from the same token).
func NewRestClient(hc *http.Client, token SessionToken) *RestClient {
	return &RestClient{httpClient: hc, token: token}
}

// SendDanmaku posts msg into roomID's chat as the authenticated user.
func (c *RestClient) SendDanmaku(ctx context.Context, roomID uint32, msg string) error {
	form := url.Values{
		"color":      {"16777215"},
		"fontsize":   {"25"},
		"mode":       {"1"},
		"msg":        {msg},
		"rnd":        {strconv.FormatInt(time.Now().Unix(), 10)},
		"roomid":     {strconv.FormatUint(uint64(roomID), 10)},
		"bubble":     {"0"},
		"csrf_token": {c.token.CSRF},
		"csrf":       {c.token.CSRF},
	}

	var env apiEnvelope[json.RawMessage]
	if err := c.doForm(ctx, sendDanmakuURL, form, &env); err != nil {
		return err
	}
	if env.Code != 0 {
		return &SendError{Code: env.Code, Message: env.Message}
	}
	return nil
}

// BlockUser silences blockUID in roomID for hour hours.
func (c *RestClient) BlockUser(ctx context.Context, roomID, blockUID, hour uint32) error {
	form := url.Values{
		"roomid":     {strconv.FormatUint(uint64(roomID), 10)},
		"block_uid":  {strconv.FormatUint(uint64(blockUID), 10)},
		"hour":       {strconv.FormatUint(uint64(hour), 10)},
		"csrf_token": {c.token.CSRF},
		"csrf":       {c.token.CSRF},
		"visit_id":   {""},
	}

	var env apiEnvelope[json.RawMessage]
	if err := c.doForm(ctx, blockUserURL, form, &env); err != nil {
		return err
	}
	if env.Code != 0 {
		return &SendError{Code: env.Code, Message: env.Message}
	}
	return nil
}

// FollowUser is one entry in a followings listing.
type FollowUser struct {
	MID   uint32 `json:"mid"`
	Uname string `json:"uname"`
	MTime uint64 `json:"mtime"`
}

// FollowResult is a page of followings.
type FollowResult struct {
	List  []FollowUser `json:"list"`
	Total uint32       `json:"total"`
}

// ListFollowings returns the followings shared with uid, one page at a time.
func (c *RestClient) ListFollowings(ctx context.Context, uid string, page, pageSize uint32) (*FollowResult, error) {
	q := url.Values{
		"vmid": {uid},
		"ps":   {strconv.FormatUint(uint64(pageSize), 10)},
		"pn":   {strconv.FormatUint(uint64(page), 10)},
	}

	var env apiEnvelope[FollowResult]
	if err := c.doGet(ctx, followingsURL+"?"+q.Encode(), &env); err != nil {
		return nil, err
	}
	if env.Code != 0 {
		return nil, &SendError{Code: env.Code, Message: env.Message}
	}
	return &env.Data, nil
}

// SearchFollowings filters uid's followings by a name substring.
func (c *RestClient) SearchFollowings(ctx context.Context, uid uint32, name string, page, pageSize uint32) (*FollowResult, error) {
	q := url.Values{
		"vmid": {strconv.FormatUint(uint64(uid), 10)},
		"name": {name},
		"ps":   {strconv.FormatUint(uint64(pageSize), 10)},
		"pn":   {strconv.FormatUint(uint64(page), 10)},
	}

	var env apiEnvelope[FollowResult]
	if err := c.doGet(ctx, searchFollowsURL+"?"+q.Encode(), &env); err != nil {
		return nil, err
	}
	if env.Code != 0 {
		return nil, &SendError{Code: env.Code, Message: env.Message}
	}
	return &env.Data, nil
}

func (c *RestClient) doForm(ctx context.Context, endpoint string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	setCommonHeaders(req)
	return c.do(req, out)
}

func (c *RestClient) doGet(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	setCommonHeaders(req)
	return c.do(req, out)
}

func (c *RestClient) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Err: err}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response from %s: %w", req.URL.Path, err)
	}
	return nil
}
