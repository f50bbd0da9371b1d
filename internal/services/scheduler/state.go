package scheduler

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bbernstein/lacylights-showsync/internal/services/playlist"
)

// Status is the playback status of the scheduler.
type Status int

const (
	Stopped Status = iota
	Playing
	Paused
)

func (s Status) String() string {
	switch s {
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "stopped"
	}
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name.
func (s *Status) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "stopped", "idle":
		*s = Stopped
	case "playing":
		*s = Playing
	case "paused":
		*s = Paused
	default:
		return fmt.Errorf("unknown status %q", text)
	}
	return nil
}

// PlaybackState is the scheduler's single source of truth. It is only read
// or written while holding the command lock.
type PlaybackState struct {
	Status     Status
	TrackIndex int
	Position   time.Duration
	Volume     int
	RepeatMode playlist.RepeatMode
	LastRender time.Time
	// HardwareErr is set when the strip failed repeatedly and cleared by the next Play.
	HardwareErr error
}

// Snapshot is an immutable copy of the playback state handed to adapters.
type Snapshot struct {
	Revision       uint64              `json:"revision"`
	Status         Status              `json:"status"`
	TrackIndex     int                 `json:"track_index"`
	Title          string              `json:"current_track,omitempty"`
	NextTitle      string              `json:"next_track,omitempty"`
	Position       time.Duration       `json:"-"`
	Duration       time.Duration       `json:"-"`
	Volume         int                 `json:"volume"`
	RepeatMode     playlist.RepeatMode `json:"-"`
	PlaylistLength int                 `json:"playlist_length"`
	HardwareError  string              `json:"hardware_error,omitempty"`
	LastRender     time.Time           `json:"-"`
}

// MarshalJSON adds millisecond fields and the repeat mode name.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	type plain Snapshot
	return json.Marshal(struct {
		plain
		PositionMS int64  `json:"position_ms"`
		DurationMS int64  `json:"duration_ms"`
		RepeatMode string `json:"repeat_mode"`
	}{
		plain:      plain(s),
		PositionMS: s.Position.Milliseconds(),
		DurationMS: s.Duration.Milliseconds(),
		RepeatMode: s.RepeatMode.String(),
	})
}

// Event names a notification.
type Event string

const (
	EventStateChanged  Event = "state_changed"
	EventKeepAlive     Event = "keepalive"
	EventHardwareError Event = "hardware_error"
)

// Notification is published on pubsub.TopicPlaybackState.
type Notification struct {
	Event    Event    `json:"event"`
	Snapshot Snapshot `json:"state"`
}

// Stats reports render loop health.
type Stats struct {
	TicksRendered uint64        `json:"ticks_rendered"`
	TicksDropped  uint64        `json:"ticks_dropped"`
	StripFailures uint64        `json:"strip_failures"`
	StaleResults  uint64        `json:"stale_results"`
	MaxTickLag    time.Duration `json:"max_tick_lag_ns"`
}
