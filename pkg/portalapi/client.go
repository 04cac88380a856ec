package portalapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"
	"github.com/ubiportal/ubiportal/internal/utils"
	"github.com/ubiportal/ubiportal/pkg/whttp"
)

const unauthorisedMessage = "Unauthorised"

var (
	// ErrUnauthorized means the backend rejected the session token.
	ErrUnauthorized = errors.New("session is not authorised")
	ErrNoScope      = errors.New("no business unit selected")
	ErrNoBaseURL    = errors.New("api url is not configured")
)

// StatusError is a non-2xx answer from the backend.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned status %d", e.Code)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.Code, e.Message)
}

type Config struct {
	BaseURL string
	AppID   string
	Token   string
	Proxy   string
	Timeout time.Duration
	// RetryMax is the number of extra attempts for a failed request.
	RetryMax int
}

type Client struct {
	cfg  Config
	http *retryablehttp.Client
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, ErrNoBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	hc, err := whttp.NewClient(cfg.Proxy, cfg.Timeout, cfg.RetryMax)
	if err != nil {
		return nil, err
	}
	return &Client{cfg: cfg, http: hc}, nil
}

// WithToken returns a copy of the client that authenticates as token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.cfg.Token = token
	return &cp
}

func (c *Client) headers() []whttp.Header {
	return []whttp.Header{
		{Name: "Content-Type", Value: "application/json"},
		{Name: "x-application-id", Value: c.cfg.AppID},
		{Name: "Authorization", Value: c.cfg.Token},
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values) ([]byte, error) {
	u := c.cfg.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	utils.Log.Debugf("%s %s", method, u)

	res, err := whttp.Send(ctx, c.http, &whttp.Request{Method: method, URL: u, Headers: c.headers()})
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return res.Body, nil
	}

	msg := res.Title
	if gjson.ValidBytes(res.Body) {
		msg = gjson.GetBytes(res.Body, "errorMessage").String()
	}
	if msg == unauthorisedMessage {
		return nil, ErrUnauthorized
	}
	utils.Log.Warnf("%s %s returned %d %s", method, path, res.StatusCode, msg)
	return nil, &StatusError{Code: res.StatusCode, Message: msg}
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, query)
}

// SignOut ends the backend session.
func (c *Client) SignOut(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodDelete, "/user/session", nil)
	if errors.Is(err, ErrUnauthorized) {
		return nil
	}
	return err
}

func itoa(n int) string { return strconv.Itoa(n) }
