// Package settings persists playback preferences across restarts.
package settings

import (
	"context"
	"log"
	"strconv"

	"github.com/bbernstein/lacylights-showsync/internal/database/models"
	"github.com/bbernstein/lacylights-showsync/internal/services/playlist"
	"github.com/bbernstein/lacylights-showsync/internal/services/pubsub"
	"github.com/bbernstein/lacylights-showsync/internal/services/scheduler"
)

// Setting keys.
const (
	KeyVolume     = "volume"
	KeyRepeatMode = "repeat_mode"
	KeyTrackIndex = "track_index"
)

// Store is the subset of repositories.SettingRepository the persister needs.
type Store interface {
	Values(ctx context.Context, keys ...string) (map[string]string, error)
	Upsert(ctx context.Context, key, value string) (*models.Setting, error)
}

// Restored holds the persisted values that were found and valid.
type Restored struct {
	Volume     *int
	Repeat     *playlist.RepeatMode
	TrackIndex *int
}

// Restore reads persisted settings. Unparseable values are logged and skipped.
func Restore(ctx context.Context, store Store) (Restored, error) {
	var r Restored
	values, err := store.Values(ctx, KeyVolume, KeyRepeatMode, KeyTrackIndex)
	if err != nil {
		return r, err
	}

	if v, ok := values[KeyVolume]; ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 && n <= 100 {
			r.Volume = &n
		} else {
			log.Printf("Warning: ignoring stored volume %q", v)
		}
	}
	if v, ok := values[KeyRepeatMode]; ok {
		if mode, err := playlist.ParseRepeatMode(v); err == nil {
			r.Repeat = &mode
		} else {
			log.Printf("Warning: ignoring stored repeat mode %q", v)
		}
	}
	if v, ok := values[KeyTrackIndex]; ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			r.TrackIndex = &n
		} else {
			log.Printf("Warning: ignoring stored track index %q", v)
		}
	}
	return r, nil
}

// Persister writes volume, repeat mode and track index whenever a state
// notification carries new values.
type Persister struct {
	store  Store
	pubsub *pubsub.PubSub
	saved  map[string]string
}

// NewPersister creates a persister.
func NewPersister(store Store, ps *pubsub.PubSub) *Persister {
	return &Persister{store: store, pubsub: ps, saved: make(map[string]string)}
}

// Run saves settings from state notifications until ctx is done.
func (p *Persister) Run(ctx context.Context) {
	sub := p.pubsub.Subscribe(pubsub.TopicPlaybackState, "", 16)
	defer p.pubsub.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Channel:
			if !ok {
				return
			}
			n, ok := msg.(scheduler.Notification)
			if !ok || n.Event == scheduler.EventKeepAlive {
				continue
			}
			if err := p.Save(ctx, n.Snapshot); err != nil {
				log.Printf("Warning: failed to persist settings: %v", err)
			}
		}
	}
}

// Save upserts the values of snap that differ from the last saved ones.
func (p *Persister) Save(ctx context.Context, snap scheduler.Snapshot) error {
	values := map[string]string{
		KeyVolume:     strconv.Itoa(snap.Volume),
		KeyRepeatMode: snap.RepeatMode.String(),
		KeyTrackIndex: strconv.Itoa(snap.TrackIndex),
	}
	for _, key := range []string{KeyVolume, KeyRepeatMode, KeyTrackIndex} {
		value := values[key]
		if prev, ok := p.saved[key]; ok && prev == value {
			continue
		}
		if _, err := p.store.Upsert(ctx, key, value); err != nil {
			return err
		}
		p.saved[key] = value
	}
	return nil
}
