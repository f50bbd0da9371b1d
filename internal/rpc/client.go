package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// State is the client-side view of a scheduler snapshot.
type State struct {
	Revision       uint64 `json:"revision"`
	Status         string `json:"status"`
	TrackIndex     int    `json:"track_index"`
	Title          string `json:"current_track"`
	NextTitle      string `json:"next_track"`
	PositionMS     int64  `json:"position_ms"`
	DurationMS     int64  `json:"duration_ms"`
	Volume         int    `json:"volume"`
	RepeatMode     string `json:"repeat_mode"`
	PlaylistLength int    `json:"playlist_length"`
	HardwareError  string `json:"hardware_error"`
}

// Position returns the playback position.
func (s State) Position() time.Duration { return time.Duration(s.PositionMS) * time.Millisecond }

// Duration returns the track duration, 0 when unknown.
func (s State) Duration() time.Duration { return time.Duration(s.DurationMS) * time.Millisecond }

// Event is one notification received over the websocket.
type Event struct {
	Name  string
	State State
}

// Client calls the daemon over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	nextID  atomic.Uint64
}

// NewClient creates a client for a daemon at baseURL (e.g. http://127.0.0.1:60715).
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// wait_state may hold the request for MaxWaitTimeout
		http: &http.Client{Timeout: MaxWaitTimeout + 10*time.Second},
	}
}

// Call invokes method and decodes the result into result (which may be nil).
func (c *Client) Call(ctx context.Context, method string, params interface{}, result interface{}) error {
	id := c.nextID.Add(1)
	req := struct {
		JSONRPC string      `json:"jsonrpc"`
		Method  string      `json:"method"`
		Params  interface{} `json:"params,omitempty"`
		ID      uint64      `json:"id"`
	}{Version, method, params, id}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rpc", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("daemon unreachable at %s: %w", c.baseURL, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("decode response (HTTP %d): %w", httpResp.StatusCode, err)
	}
	if resp.Error != nil {
		return resp.Error
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Result, result); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

func (c *Client) state(ctx context.Context, method string, params interface{}) (State, error) {
	var st State
	err := c.Call(ctx, method, params, &st)
	return st, err
}

// State returns the current playback state.
func (c *Client) State(ctx context.Context) (State, error) { return c.state(ctx, "get_state", nil) }

// Play starts playback, optionally at index.
func (c *Client) Play(ctx context.Context, index *int) (State, error) {
	if index == nil {
		return c.state(ctx, "play", nil)
	}
	return c.state(ctx, "play", []int{*index})
}

// Pause pauses playback.
func (c *Client) Pause(ctx context.Context) (State, error) { return c.state(ctx, "pause", nil) }

// Stop stops playback.
func (c *Client) Stop(ctx context.Context) (State, error) { return c.state(ctx, "stop", nil) }

// Next skips to the next track.
func (c *Client) Next(ctx context.Context) (State, error) { return c.state(ctx, "next", nil) }

// Previous goes back one track.
func (c *Client) Previous(ctx context.Context) (State, error) { return c.state(ctx, "previous", nil) }

// Seek moves the position of the current track.
func (c *Client) Seek(ctx context.Context, pos time.Duration) (State, error) {
	return c.state(ctx, "seek", []int64{pos.Milliseconds()})
}

// Select jumps to index.
func (c *Client) Select(ctx context.Context, index int) (State, error) {
	return c.state(ctx, "select", []int{index})
}

// SetVolume sets the volume (clamped by the daemon).
func (c *Client) SetVolume(ctx context.Context, volume int) (State, error) {
	return c.state(ctx, "set_volume", []int{volume})
}

// SetRepeat sets the repeat mode by name.
func (c *Client) SetRepeat(ctx context.Context, mode string) (State, error) {
	return c.state(ctx, "set_repeat", []string{mode})
}

// Volume returns the current volume.
func (c *Client) Volume(ctx context.Context) (int, error) {
	var v int
	err := c.Call(ctx, "get_volume", nil, &v)
	return v, err
}

// Playlist returns the playlist listing.
func (c *Client) Playlist(ctx context.Context) ([]PlaylistEntry, error) {
	var entries []PlaylistEntry
	err := c.Call(ctx, "get_playlist", nil, &entries)
	return entries, err
}

// Colors returns the named colors and groups.
func (c *Client) Colors(ctx context.Context) ([]string, error) {
	var names []string
	err := c.Call(ctx, "get_colors", nil, &names)
	return names, err
}

// SetColor shows a named color or group while stopped.
func (c *Client) SetColor(ctx context.Context, color string) error {
	return c.Call(ctx, "set_color", []string{color}, nil)
}

// TestPattern runs a diagnostic pattern while stopped. An empty name runs
// the color wipe.
func (c *Client) TestPattern(ctx context.Context, pattern string) error {
	return c.Call(ctx, "test_pattern", []string{pattern}, nil)
}

// WaitState long-polls until the state revision exceeds revision.
func (c *Client) WaitState(ctx context.Context, revision uint64, timeout time.Duration) (State, error) {
	return c.state(ctx, "wait_state", map[string]interface{}{
		"revision":   revision,
		"timeout_ms": timeout.Milliseconds(),
	})
}

// Watch streams notifications from the websocket until ctx is done or the
// connection drops.
func (c *Client) Watch(ctx context.Context, fn func(Event)) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws"

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("connect %s: %w", u, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		var n struct {
			Method string `json:"method"`
			Params State  `json:"params"`
		}
		if err := json.Unmarshal(data, &n); err != nil || n.Method == "" {
			continue
		}
		fn(Event{Name: n.Method, State: n.Params})
	}
}
