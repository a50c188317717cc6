// Package github talks to the GitHub releases API and downloads release assets.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/3leaps/toolup/internal/model"
)

const (
	DefaultAPIBase = "https://api.github.com"

	releasesPerPage = 100
	maxErrorBody    = 512
)

// TokenFromEnv returns the API token, preferring TOOLUP_GITHUB_TOKEN.
func TokenFromEnv() string {
	if tok := strings.TrimSpace(os.Getenv("TOOLUP_GITHUB_TOKEN")); tok != "" {
		return tok
	}
	return strings.TrimSpace(os.Getenv("GITHUB_TOKEN"))
}

// UserAgent is the User-Agent header sent with every request.
func UserAgent(version string) string {
	return fmt.Sprintf("toolup/%s", version)
}

// Client is a minimal GitHub releases client.
type Client struct {
	APIBase   string
	Token     string
	UserAgent string
	HTTP      *http.Client
}

// NewClient returns a client for apiBase (DefaultAPIBase when empty) using
// the token from the environment.
func NewClient(apiBase, userAgent string) *Client {
	if strings.TrimSpace(apiBase) == "" {
		apiBase = DefaultAPIBase
	}
	return &Client{
		APIBase:   strings.TrimRight(apiBase, "/"),
		Token:     TokenFromEnv(),
		UserAgent: userAgent,
		HTTP:      &http.Client{Timeout: 5 * time.Minute},
	}
}

// StatusError is returned for any non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("GET %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("GET %s: HTTP %d: %s", e.URL, e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// IsTransient reports whether retrying the request might succeed.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500 || se.StatusCode == http.StatusTooManyRequests
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, context.DeadlineExceeded)
}

// Releases lists the first page of releases for repo (owner/name), newest first.
func (c *Client) Releases(ctx context.Context, repo string) ([]model.Release, error) {
	var out []model.Release
	u := fmt.Sprintf("%s/repos/%s/releases?per_page=%d", c.APIBase, repo, releasesPerPage)
	if err := c.getJSON(ctx, u, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ReleaseByTag fetches the release for an exact tag.
func (c *Client) ReleaseByTag(ctx context.Context, repo, tag string) (*model.Release, error) {
	u := fmt.Sprintf("%s/repos/%s/releases/tags/%s", c.APIBase, repo, url.PathEscape(tag))
	var rel model.Release
	if err := c.getJSON(ctx, u, &rel); err != nil {
		return nil, err
	}
	return &rel, nil
}

// Download streams the body at rawURL into w and returns the byte count.
func (c *Client) Download(ctx context.Context, rawURL string, w io.Writer) (int64, error) {
	resp, err := c.get(ctx, rawURL, "application/octet-stream")
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("download %s: %w", rawURL, err)
	}
	return n, nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, v interface{}) error {
	resp, err := c.get(ctx, rawURL, "application/vnd.github+json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("parse %s: %w", rawURL, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, rawURL, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", accept)
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	if c.Token != "" && c.sendsToken(rawURL) {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	// #nosec G107 -- URLs come from the configured API base or API responses
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return resp, nil
}

// The token goes to the API host and github.com download hosts only.
func (c *Client) sendsToken(rawURL string) bool {
	if strings.HasPrefix(rawURL, c.APIBase+"/") {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == "github.com" || strings.HasSuffix(host, ".github.com")
}
