// Package snapshot fetches route-map screenshots from the remote capture service.
package snapshot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"tourdoc/apperr"
	"tourdoc/breaker"
)

// Profile is the device the capture service emulates.
type Profile string

const (
	ProfileDesktop Profile = "desktop"
	ProfileTablet  Profile = "tablet"
	ProfileMobile  Profile = "mobile"
)

func (p Profile) Valid() bool {
	switch p {
	case ProfileDesktop, ProfileTablet, ProfileMobile:
		return true
	}
	return false
}

const maxImageBytes = 20 << 20

type Service interface {
	Capture(ctx context.Context, route string, profile Profile) ([]byte, error)
}

type Config struct {
	BaseURL    string
	MapPageURL string
	APIKey     string
	Timeout    time.Duration
}

type Client struct {
	cfg     Config
	http    *http.Client
	breaker *breaker.Breaker
}

type submitResponse struct {
	Status  string `json:"status"`
	Token   string `json:"token"`
	Message string `json:"message"`
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: breaker.New("snapshot"),
	}
}

// Capture renders the map page for an encoded route and returns the image bytes.
// Any transport or service failure is a remote service error; there is no retry.
func (c *Client) Capture(ctx context.Context, route string, profile Profile) ([]byte, error) {
	const op = "snapshot.Capture"
	if route == "" {
		return nil, apperr.Validation(op, "route is empty")
	}
	if !profile.Valid() {
		return nil, apperr.Validation(op, "unknown device profile %q", profile)
	}
	return breaker.Do(c.breaker, func() ([]byte, error) {
		return c.capture(ctx, route, profile)
	})
}

func (c *Client) capture(ctx context.Context, route string, profile Profile) ([]byte, error) {
	const op = "snapshot.Capture"

	token, cookies, err := c.submit(ctx, route, profile)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/capture/"+url.PathEscape(token), nil)
	if err != nil {
		return nil, apperr.Remote(op, err, "cannot build capture download request")
	}
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.Remote(op, err, "screenshot service unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperr.Remote(op, nil, "screenshot download returned %d", resp.StatusCode)
	}
	img, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, apperr.Remote(op, err, "cannot read screenshot")
	}
	if len(img) == 0 {
		return nil, apperr.Remote(op, nil, "screenshot service returned an empty image")
	}
	return img, nil
}

func (c *Client) submit(ctx context.Context, route string, profile Profile) (string, []*http.Cookie, error) {
	const op = "snapshot.Capture"

	form := url.Values{
		"url":    {c.cfg.MapPageURL + "?route=" + url.QueryEscape(route)},
		"device": {string(profile)},
		"key":    {c.cfg.APIKey},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/capture", strings.NewReader(form.Encode()))
	if err != nil {
		return "", nil, apperr.Remote(op, err, "cannot build capture request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", nil, apperr.Remote(op, err, "screenshot service unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", nil, apperr.Remote(op, nil, "capture request returned %d", resp.StatusCode)
	}
	var out submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", nil, apperr.Remote(op, err, "invalid capture response")
	}
	if out.Status != "success" || out.Token == "" {
		return "", nil, apperr.Remote(op, nil, "capture rejected: %s", describe(out))
	}
	return out.Token, resp.Cookies(), nil
}

func describe(r submitResponse) string {
	if r.Message != "" {
		return r.Message
	}
	return fmt.Sprintf("status %q", r.Status)
}
