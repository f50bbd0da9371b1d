// Package audio provides the playback clock: the audio player whose position
// drives show rendering.
package audio

import (
	"context"
	"time"
)

// Clock plays one track at a time and reports its position.
//
// Control methods may block on the backend and honour ctx cancellation.
// Position and Duration never block; they return the last known values and
// may be stale by up to one render tick.
type Clock interface {
	// Load replaces the current track and leaves it paused at 0. Events for
	// this track carry generation.
	Load(ctx context.Context, track string, generation uint64) error
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Stop(ctx context.Context) error
	Seek(ctx context.Context, pos time.Duration) error
	SetVolume(ctx context.Context, volume int) error

	Position() time.Duration
	// Duration is 0 when unknown.
	Duration() time.Duration

	Events() <-chan Event
	Close() error
}

// EventKind identifies an asynchronous clock event.
type EventKind int

const (
	// EventTrackEnd reports that the loaded track played to its end.
	EventTrackEnd EventKind = iota
	// EventError reports a playback fault for the loaded track.
	EventError
)

func (k EventKind) String() string {
	if k == EventError {
		return "error"
	}
	return "track_end"
}

// Event is emitted by a Clock for the track loaded with Generation.
type Event struct {
	Kind       EventKind
	Generation uint64
	Err        error
}

const eventBuffer = 16
