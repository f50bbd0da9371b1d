package rpc

import (
	"context"
	"sync"
	"time"

	"github.com/bbernstein/lacylights-showsync/internal/services/playlist"
	"github.com/bbernstein/lacylights-showsync/internal/services/scheduler"
	"github.com/bbernstein/lacylights-showsync/internal/show"
	"github.com/bbernstein/lacylights-showsync/internal/showerr"
)

// fakeController records calls and returns canned snapshots.
type fakeController struct {
	mu      sync.Mutex
	calls   []string
	snap    scheduler.Snapshot
	err     error
	frame   show.PixelArray
	pattern string
	seekPos time.Duration
	track   *int
	entries []playlist.Entry
	stats   scheduler.Stats
	panics  bool
}

func newFakeController() *fakeController {
	return &fakeController{snap: scheduler.Snapshot{Revision: 1, Volume: 50, PlaylistLength: 2}}
}

func (f *fakeController) record(name string) (scheduler.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panics {
		panic("boom")
	}
	f.calls = append(f.calls, name)
	return f.snap, f.err
}

func (f *fakeController) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type recorded struct {
	snap    scheduler.Snapshot
	frame   show.PixelArray
	pattern string
	seekPos time.Duration
	track   *int
}

// copy returns the fake's recorded fields under its lock.
func (f *fakeController) copy() recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	return recorded{snap: f.snap, frame: f.frame, pattern: f.pattern, seekPos: f.seekPos, track: f.track}
}

func (f *fakeController) Play(_ context.Context, track *int) (scheduler.Snapshot, error) {
	f.mu.Lock()
	f.track = track
	f.mu.Unlock()
	return f.record("play")
}

func (f *fakeController) Pause(context.Context) (scheduler.Snapshot, error) { return f.record("pause") }
func (f *fakeController) Stop(context.Context) (scheduler.Snapshot, error)  { return f.record("stop") }
func (f *fakeController) Next(context.Context) (scheduler.Snapshot, error)  { return f.record("next") }
func (f *fakeController) Previous(context.Context) (scheduler.Snapshot, error) {
	return f.record("previous")
}

func (f *fakeController) Seek(_ context.Context, pos time.Duration) (scheduler.Snapshot, error) {
	f.mu.Lock()
	f.seekPos = pos
	f.mu.Unlock()
	return f.record("seek")
}

func (f *fakeController) Select(_ context.Context, i int) (scheduler.Snapshot, error) {
	if i < 0 || i >= f.snap.PlaylistLength {
		return scheduler.Snapshot{}, showerr.New(showerr.KindIndex, "index %d out of range", i)
	}
	f.mu.Lock()
	f.snap.TrackIndex = i
	f.mu.Unlock()
	return f.record("select")
}

func (f *fakeController) SetVolume(_ context.Context, v int) (scheduler.Snapshot, error) {
	f.mu.Lock()
	f.snap.Volume = v
	f.mu.Unlock()
	return f.record("set_volume")
}

func (f *fakeController) SetRepeat(_ context.Context, mode playlist.RepeatMode) (scheduler.Snapshot, error) {
	f.mu.Lock()
	f.snap.RepeatMode = mode
	f.mu.Unlock()
	return f.record("set_repeat")
}

func (f *fakeController) ShowColor(_ context.Context, frame show.PixelArray) error {
	f.mu.Lock()
	f.frame = frame
	f.mu.Unlock()
	_, err := f.record("show_color")
	return err
}

func (f *fakeController) TestPattern(_ context.Context, p show.TestPattern) error {
	f.mu.Lock()
	f.pattern = p.Name
	f.mu.Unlock()
	_, err := f.record("test_pattern")
	return err
}

func (f *fakeController) Snapshot(context.Context) (scheduler.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap, nil
}

func (f *fakeController) WaitForChange(ctx context.Context, revision uint64) (scheduler.Snapshot, error) {
	f.mu.Lock()
	snap := f.snap
	f.mu.Unlock()
	if snap.Revision > revision {
		return snap, nil
	}
	<-ctx.Done()
	return snap, nil
}

func (f *fakeController) Playlist(context.Context) ([]playlist.Entry, error) {
	return f.entries, nil
}

func (f *fakeController) Stats() scheduler.Stats {
	return f.stats
}
