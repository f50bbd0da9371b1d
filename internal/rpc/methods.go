package rpc

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/bbernstein/lacylights-showsync/internal/services/playlist"
	"github.com/bbernstein/lacylights-showsync/internal/services/scheduler"
	"github.com/bbernstein/lacylights-showsync/internal/show"
	"github.com/bbernstein/lacylights-showsync/internal/showerr"
)

// Controller is the scheduler surface the control plane drives.
type Controller interface {
	Play(ctx context.Context, track *int) (scheduler.Snapshot, error)
	Pause(ctx context.Context) (scheduler.Snapshot, error)
	Stop(ctx context.Context) (scheduler.Snapshot, error)
	Seek(ctx context.Context, pos time.Duration) (scheduler.Snapshot, error)
	Next(ctx context.Context) (scheduler.Snapshot, error)
	Previous(ctx context.Context) (scheduler.Snapshot, error)
	Select(ctx context.Context, i int) (scheduler.Snapshot, error)
	SetVolume(ctx context.Context, v int) (scheduler.Snapshot, error)
	SetRepeat(ctx context.Context, mode playlist.RepeatMode) (scheduler.Snapshot, error)
	ShowColor(ctx context.Context, frame show.PixelArray) error
	TestPattern(ctx context.Context, p show.TestPattern) error
	Snapshot(ctx context.Context) (scheduler.Snapshot, error)
	WaitForChange(ctx context.Context, revision uint64) (scheduler.Snapshot, error)
	Playlist(ctx context.Context) ([]playlist.Entry, error)
	Stats() scheduler.Stats
}

// Long-poll bounds for wait_state.
const (
	DefaultWaitTimeout = 30 * time.Second
	MaxWaitTimeout     = 60 * time.Second
)

// PlaylistEntry is the wire form of one playlist item.
type PlaylistEntry struct {
	playlist.Entry
	DurationMS int64 `json:"duration_ms"`
}

// NewShowDispatcher registers every playback method against ctrl.
func NewShowDispatcher(ctrl Controller, ledCount int) *Dispatcher {
	d := NewDispatcher()

	d.Register("play", func(ctx context.Context, p Params) (interface{}, error) {
		idx, err := p.Int(0, "index")
		if err != nil {
			return nil, err
		}
		return ctrl.Play(ctx, idx)
	})
	d.Register("play_index", func(ctx context.Context, p Params) (interface{}, error) {
		idx, err := p.RequireInt(0, "index")
		if err != nil {
			return nil, err
		}
		return ctrl.Play(ctx, &idx)
	})
	d.Register("pause", func(ctx context.Context, _ Params) (interface{}, error) {
		return ctrl.Pause(ctx)
	})
	d.Register("stop", func(ctx context.Context, _ Params) (interface{}, error) {
		return ctrl.Stop(ctx)
	})
	d.Register("seek", func(ctx context.Context, p Params) (interface{}, error) {
		var ms float64
		ok, err := p.Decode(0, "position_ms", &ms)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, invalidParams("missing position_ms")
		}
		return ctrl.Seek(ctx, millisToDuration(ms))
	})
	d.Register("set_volume", func(ctx context.Context, p Params) (interface{}, error) {
		v, err := p.RequireInt(0, "volume")
		if err != nil {
			return nil, err
		}
		return ctrl.SetVolume(ctx, v)
	})
	d.Register("get_volume", func(ctx context.Context, _ Params) (interface{}, error) {
		snap, err := ctrl.Snapshot(ctx)
		if err != nil {
			return nil, err
		}
		return snap.Volume, nil
	})
	d.Register("next", func(ctx context.Context, _ Params) (interface{}, error) {
		return ctrl.Next(ctx)
	})
	d.Register("previous", func(ctx context.Context, _ Params) (interface{}, error) {
		return ctrl.Previous(ctx)
	})
	d.Register("select", func(ctx context.Context, p Params) (interface{}, error) {
		idx, err := p.RequireInt(0, "index")
		if err != nil {
			return nil, err
		}
		return ctrl.Select(ctx, idx)
	})
	d.Register("set_repeat", func(ctx context.Context, p Params) (interface{}, error) {
		mode, err := repeatParam(p)
		if err != nil {
			return nil, err
		}
		return ctrl.SetRepeat(ctx, mode)
	})

	getState := func(ctx context.Context, _ Params) (interface{}, error) {
		return ctrl.Snapshot(ctx)
	}
	d.Register("get_state", getState)
	d.Register("get_status", getState)

	d.Register("get_playlist", func(ctx context.Context, _ Params) (interface{}, error) {
		entries, err := ctrl.Playlist(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]PlaylistEntry, len(entries))
		for i, e := range entries {
			out[i] = PlaylistEntry{Entry: e, DurationMS: e.Duration.Milliseconds()}
		}
		return out, nil
	})
	d.Register("get_colors", func(context.Context, Params) (interface{}, error) {
		return show.ListColors(), nil
	})
	d.Register("set_color", func(ctx context.Context, p Params) (interface{}, error) {
		var name string
		ok, err := p.Decode(0, "color", &name)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, invalidParams("missing color")
		}
		colors, err := show.ParseColorOrGroup(name)
		if err != nil {
			return nil, invalidParams("%v", err)
		}
		if err := ctrl.ShowColor(ctx, show.Segments(colors, ledCount)); err != nil {
			return nil, err
		}
		return true, nil
	})
	d.Register("test_pattern", func(ctx context.Context, p Params) (interface{}, error) {
		var name string
		if _, err := p.Decode(0, "pattern", &name); err != nil {
			return nil, err
		}
		pattern, err := show.NewTestPattern(name, ledCount)
		if err != nil {
			return nil, invalidParams("%v", err)
		}
		if err := ctrl.TestPattern(ctx, pattern); err != nil {
			return nil, err
		}
		return true, nil
	})
	d.Register("wait_state", func(ctx context.Context, p Params) (interface{}, error) {
		var revision uint64
		if _, err := p.Decode(0, "revision", &revision); err != nil {
			return nil, err
		}
		timeout := DefaultWaitTimeout
		ms, err := p.Int(1, "timeout_ms")
		if err != nil {
			return nil, err
		}
		if ms != nil {
			timeout = time.Duration(*ms) * time.Millisecond
		}
		if timeout <= 0 || timeout > MaxWaitTimeout {
			timeout = MaxWaitTimeout
		}
		waitCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return ctrl.WaitForChange(waitCtx, revision)
	})
	d.Register("get_stats", func(context.Context, Params) (interface{}, error) {
		stats := ctrl.Stats()
		return struct {
			scheduler.Stats
			MaxTickLagMS float64 `json:"max_tick_lag_ms"`
		}{stats, float64(stats.MaxTickLag) / float64(time.Millisecond)}, nil
	})

	return d
}

// millisToDuration converts fractional milliseconds, saturating instead of
// overflowing so a seek far past the end still clamps to the track duration.
func millisToDuration(ms float64) time.Duration {
	const maxMS = float64(math.MaxInt64 / int64(time.Millisecond))
	switch {
	case math.IsNaN(ms), ms <= -maxMS:
		return math.MinInt64
	case ms >= maxMS:
		return math.MaxInt64
	}
	return time.Duration(ms * float64(time.Millisecond))
}

// repeatParam accepts a mode name or its number.
func repeatParam(p Params) (playlist.RepeatMode, error) {
	var raw json.RawMessage
	ok, err := p.Decode(0, "mode", &raw)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, invalidParams("missing mode")
	}
	var name string
	if json.Unmarshal(raw, &name) == nil {
		mode, err := playlist.ParseRepeatMode(name)
		if err != nil {
			return 0, invalidParams("%v", err)
		}
		return mode, nil
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, invalidParams("mode must be a name or 0-2")
	}
	mode := playlist.RepeatMode(n)
	if !mode.Valid() {
		return 0, showerr.New(showerr.KindEncoding, "repeat mode %d out of range", n)
	}
	return mode, nil
}
