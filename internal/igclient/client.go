// Package igclient calls the Instagram internal web API with a browser session.
// Every method is a single round trip: no retry and no pacing.
package igclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"charognard/internal/config"
	"charognard/internal/model"
)

const (
	DefaultBaseURL = "https://www.instagram.com"
	DefaultAppID   = "936619743392459"
)

// Client is the set of platform calls the engine and onboarding use.
type Client interface {
	FetchSuggestions(ctx context.Context, cursor string) (model.SuggestionsPage, error)
	Follow(ctx context.Context, userID string) error
	Unfollow(ctx context.Context, userID string) error
	FriendshipStatus(ctx context.Context, userID string) (model.FriendshipStatus, error)
	FetchProfile(ctx context.Context, userID string) (model.User, error)
	FetchLatestMedia(ctx context.Context, userID string) (*model.Media, error)
	Like(ctx context.Context, mediaID string) error
	Unlike(ctx context.Context, mediaID string) error
}

// AuthRequiredError means the session is missing or was rejected.
type AuthRequiredError struct{ Reason string }

func (e *AuthRequiredError) Error() string {
	return "please log in to Instagram: " + e.Reason
}

// RequestFailedError is a non-2xx answer to one operation.
type RequestFailedError struct {
	Op     string
	Status int
}

func (e *RequestFailedError) Error() string {
	return fmt.Sprintf("failed to %s: status %d", e.Op, e.Status)
}

// IsAuthError reports whether err should send the user back to a login prompt.
func IsAuthError(err error) bool {
	var a *AuthRequiredError
	return errors.As(err, &a)
}

// Session holds the cookies of an authenticated browser session.
type Session struct {
	SessionID string
	CSRFToken string
	DSUserID  string
}

func SessionFrom(c config.SessionConfig) Session {
	return Session{SessionID: c.SessionID, CSRFToken: c.CSRFToken, DSUserID: c.DSUserID}
}

// AccountID is the identifier the state is partitioned by; empty when logged out.
func (s Session) AccountID() string { return s.DSUserID }

type HTTPClient struct {
	baseURL    string
	appID      string
	session    Session
	httpClient *http.Client
}

type Option func(*HTTPClient)

func WithBaseURL(u string) Option { return func(c *HTTPClient) { c.baseURL = strings.TrimRight(u, "/") } }

func WithAppID(id string) Option { return func(c *HTTPClient) { c.appID = id } }

func WithHTTPClient(h *http.Client) Option { return func(c *HTTPClient) { c.httpClient = h } }

func NewHTTPClient(s Session, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL:    DefaultBaseURL,
		appID:      DefaultAppID,
		session:    s,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// FromConfig builds a client for the configured platform and session.
func FromConfig(cfg config.Config) *HTTPClient {
	return NewHTTPClient(SessionFrom(cfg.Session),
		WithBaseURL(cfg.Platform.BaseURL),
		WithAppID(cfg.Platform.AppID),
		WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Platform.TimeoutSeconds) * time.Second}),
	)
}

func (c *HTTPClient) Session() Session { return c.session }

func (c *HTTPClient) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-CSRFToken", c.session.CSRFToken)
	req.Header.Set("X-IG-App-ID", c.appID)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	for name, v := range map[string]string{
		"sessionid":  c.session.SessionID,
		"csrftoken":  c.session.CSRFToken,
		"ds_user_id": c.session.DSUserID,
	} {
		if v != "" {
			req.AddCookie(&http.Cookie{Name: name, Value: v})
		}
	}
	return req, nil
}

// call performs one request and fails with RequestFailedError on non-2xx.
// On success the caller owns the response body.
func (c *HTTPClient) call(ctx context.Context, op, method, path string, body io.Reader) (*http.Response, error) {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		drain(resp)
		return nil, &RequestFailedError{Op: op, Status: resp.StatusCode}
	}
	return resp, nil
}

func (c *HTTPClient) post(ctx context.Context, op, path string) error {
	resp, err := c.call(ctx, op, http.MethodPost, path, nil)
	if err != nil {
		return err
	}
	drain(resp)
	return nil
}

func (c *HTTPClient) getJSON(ctx context.Context, op, path string, out any) error {
	resp, err := c.call(ctx, op, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer drain(resp)
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode: %w", op, err)
	}
	return nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

// FetchSuggestions loads one page of "suggested for you" accounts. An empty
// cursor requests the first page.
func (c *HTTPClient) FetchSuggestions(ctx context.Context, cursor string) (model.SuggestionsPage, error) {
	var out model.SuggestionsPage
	if c.session.CSRFToken == "" {
		return out, &AuthRequiredError{Reason: "no csrftoken cookie"}
	}
	maxID := "%5B%5D"
	if cursor != "" {
		maxID = url.QueryEscape(cursor)
	}
	form := "max_id=" + maxID + "&max_number_to_display=30&module=discover_people&paginate=true"
	req, err := c.newRequest(ctx, http.MethodPost, "/api/v1/discover/ayml/", strings.NewReader(form))
	if err != nil {
		return out, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return out, fmt.Errorf("fetch suggestions: %w", err)
	}
	defer drain(resp)
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return out, &AuthRequiredError{Reason: fmt.Sprintf("status %d", resp.StatusCode)}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return out, &RequestFailedError{Op: "fetch suggestions", Status: resp.StatusCode}
	}
	// A login redirect answers 200 with an HTML page.
	if strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		return out, &AuthRequiredError{Reason: "login page returned"}
	}
	var raw struct {
		MoreAvailable  bool   `json:"more_available"`
		MaxID          string `json:"max_id"`
		SuggestedUsers struct {
			Suggestions []model.Suggestion `json:"suggestions"`
		} `json:"suggested_users"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return out, fmt.Errorf("fetch suggestions: decode: %w", err)
	}
	out.Suggestions = raw.SuggestedUsers.Suggestions
	out.NextCursor = raw.MaxID
	out.HasMore = raw.MoreAvailable
	return out, nil
}

func (c *HTTPClient) Follow(ctx context.Context, userID string) error {
	return c.post(ctx, "follow user", "/api/v1/friendships/create/"+url.PathEscape(userID)+"/")
}

func (c *HTTPClient) Unfollow(ctx context.Context, userID string) error {
	return c.post(ctx, "unfollow user", "/api/v1/friendships/destroy/"+url.PathEscape(userID)+"/")
}

func (c *HTTPClient) FriendshipStatus(ctx context.Context, userID string) (model.FriendshipStatus, error) {
	var out model.FriendshipStatus
	err := c.getJSON(ctx, "check friendship status", "/api/v1/friendships/show/"+url.PathEscape(userID)+"/", &out)
	return out, err
}

func (c *HTTPClient) FetchProfile(ctx context.Context, userID string) (model.User, error) {
	var raw struct {
		User model.User `json:"user"`
	}
	err := c.getJSON(ctx, "fetch user info", "/api/v1/users/"+url.PathEscape(userID)+"/info/", &raw)
	return raw.User, err
}

// FetchLatestMedia returns the most recent post of userID, or nil if there is none.
func (c *HTTPClient) FetchLatestMedia(ctx context.Context, userID string) (*model.Media, error) {
	var raw struct {
		Items []model.Media `json:"items"`
	}
	if err := c.getJSON(ctx, "fetch user media", "/api/v1/feed/user/"+url.PathEscape(userID)+"/?count=1", &raw); err != nil {
		return nil, err
	}
	if len(raw.Items) == 0 {
		return nil, nil
	}
	return &raw.Items[0], nil
}

func (c *HTTPClient) Like(ctx context.Context, mediaID string) error {
	return c.post(ctx, "like post", "/api/v1/web/likes/"+url.PathEscape(mediaID)+"/like/")
}

func (c *HTTPClient) Unlike(ctx context.Context, mediaID string) error {
	return c.post(ctx, "unlike post", "/api/v1/web/likes/"+url.PathEscape(mediaID)+"/unlike/")
}
