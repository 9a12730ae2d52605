// Package roomapi is the REST client for the room service: resolving a
// shareable room code to a live room handle, creating rooms, and announcing
// departure.
package roomapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// ErrRoomNotFound means the code resolved to nothing: expired, mistyped, or
// never issued. Resolve absorbs a few of these first, since a freshly
// created room's code can lag the creation; once surfaced, callers should
// show it to the user rather than retry.
var ErrRoomNotFound = errors.New("room not found")

const (
	maxAttempts  = 3
	retryBackoff = 500 * time.Millisecond
)

// RoomInfo is the resolved room handle.
type RoomInfo struct {
	ID           string `json:"id"`
	Code         string `json:"code"`
	HostID       string `json:"hostId"`
	Participants int    `json:"participants"`
}

// Client talks to the room service over HTTP. Transient failures are
// retried a fixed number of times with a fixed backoff; 404 is terminal
// everywhere except Resolve, where it covers the post-create commit lag.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     zerolog.Logger
}

// NewClient creates a room API client against baseURL (no trailing slash).
func NewClient(baseURL string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log.With().Str("component", "roomapi").Logger(),
	}
}

// Login obtains a token for the given display name and holds it for
// subsequent calls.
func (c *Client) Login(ctx context.Context, user string) error {
	body, _ := json.Marshal(map[string]string{"username": user})

	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", body, &resp, failNotFound); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	c.token = resp.Token
	return nil
}

// Create registers a new room owned by the authenticated user.
func (c *Client) Create(ctx context.Context) (RoomInfo, error) {
	var info RoomInfo
	if err := c.do(ctx, http.MethodPost, "/api/rooms", nil, &info, failNotFound); err != nil {
		return RoomInfo{}, fmt.Errorf("create room: %w", err)
	}
	return info, nil
}

// Resolve looks up a room by its shareable code. Not-found is retried here:
// immediately after creation the room service may not have committed yet,
// and that race must not bounce the user out of a room that exists.
func (c *Client) Resolve(ctx context.Context, code string) (RoomInfo, error) {
	var info RoomInfo
	if err := c.do(ctx, http.MethodGet, "/api/rooms/"+code, nil, &info, retryNotFound); err != nil {
		return RoomInfo{}, fmt.Errorf("resolve room %q: %w", code, err)
	}
	return info, nil
}

// Leave announces departure from a room. Best effort; the server also
// notices dropped websockets.
func (c *Client) Leave(ctx context.Context, code string) error {
	if err := c.do(ctx, http.MethodPost, "/api/rooms/"+code+"/leave", nil, nil, failNotFound); err != nil {
		return fmt.Errorf("leave room %q: %w", code, err)
	}
	return nil
}

// do retry policies.
const (
	failNotFound  = false
	retryNotFound = true
)

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any, notFoundPolicy bool) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryBackoff):
			}
		}

		err := c.doOnce(ctx, method, path, body, out)
		if err == nil {
			return nil
		}
		// Auth failures never heal on retry; not-found only does for the
		// post-create lookup race, where the caller opts in.
		if errors.Is(err, errUnauthorized) {
			return err
		}
		if errors.Is(err, ErrRoomNotFound) && notFoundPolicy == failNotFound {
			return err
		}
		lastErr = err
		c.log.Warn().Err(err).Str("path", path).Int("attempt", attempt).Msg("room API request failed")
	}
	return lastErr
}

var errUnauthorized = errors.New("unauthorized")

func (c *Client) doOnce(ctx context.Context, method, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrRoomNotFound
	case resp.StatusCode == http.StatusUnauthorized:
		return errUnauthorized
	case resp.StatusCode >= 300:
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
