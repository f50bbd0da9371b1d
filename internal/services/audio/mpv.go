package audio

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/bbernstein/lacylights-showsync/internal/showerr"
)

const (
	mpvName = "mpv"

	propPlaybackTime = "playback-time"
	propDuration     = "duration"
	propPause        = "pause"
	propVolume       = "volume"

	eventPropertyChange = "property-change"
	eventEndFile        = "end-file"
	eventStartFile      = "start-file"

	reasonEOF   = "eof"
	reasonError = "error"
)

// observed properties and their observe ids
var observedProperties = map[int64]string{
	1: propPlaybackTime,
	2: propDuration,
	3: propPause,
}

// MPVConfig configures the mpv playback clock.
type MPVConfig struct {
	SocketPath     string
	StartInstance  bool
	ConnectTimeout time.Duration
	// Volume is applied when mpv is started by this process.
	Volume int
}

// MPV drives an mpv player over its JSON IPC socket.
type MPV struct {
	cfg  MPVConfig
	cmd  *exec.Cmd
	conn *ipcConn

	mu         sync.Mutex
	generation uint64
	position   time.Duration
	observedAt time.Time
	duration   time.Duration
	paused     bool
	loaded     bool
	// loadfile requests whose start-file has not arrived; end-file events
	// seen meanwhile belong to the previous file
	awaitingStart int

	events    chan Event
	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewMPV optionally starts an idle mpv process, connects to its IPC socket
// and subscribes to the properties the clock tracks.
func NewMPV(ctx context.Context, cfg MPVConfig) (*MPV, error) {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	m := &MPV{
		cfg:    cfg,
		paused: true,
		events: make(chan Event, eventBuffer),
		done:   make(chan struct{}),
	}

	if cfg.StartInstance {
		if err := m.startProcess(); err != nil {
			return nil, err
		}
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	conn, err := dialIPC(dialCtx, cfg.SocketPath)
	if err != nil {
		m.killProcess()
		return nil, showerr.Wrap(showerr.KindClock, err, "mpv")
	}
	m.conn = conn
	log.Printf("🔊 Connected to mpv at %s", cfg.SocketPath)

	m.wg.Add(1)
	go m.handleEvents()

	for id, name := range observedProperties {
		if _, err := conn.request(dialCtx, "observe_property", id, name); err != nil {
			m.Close()
			return nil, showerr.Wrap(showerr.KindClock, err, "observe %s", name)
		}
	}
	return m, nil
}

func (m *MPV) startProcess() error {
	_ = os.Remove(m.cfg.SocketPath)
	cmd := exec.Command(mpvName,
		"--idle",
		"--no-video",
		"--keep-open=no",
		fmt.Sprintf("--volume=%d", m.cfg.Volume),
		fmt.Sprintf("--input-ipc-server=%s", m.cfg.SocketPath),
	)
	if err := cmd.Start(); err != nil {
		return showerr.Wrap(showerr.KindClock, err, "could not start mpv process")
	}
	m.cmd = cmd
	log.Printf("🔊 Started mpv (pid %d)", cmd.Process.Pid)

	go func() {
		err := cmd.Wait()
		select {
		case <-m.done:
		default:
			log.Printf("Warning: mpv process exited: %v", err)
		}
	}()
	return nil
}

func (m *MPV) killProcess() {
	if m.cmd != nil && m.cmd.Process != nil {
		_ = m.cmd.Process.Kill()
	}
}

func (m *MPV) command(ctx context.Context, args ...interface{}) error {
	if _, err := m.conn.request(ctx, args...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return showerr.Wrap(showerr.KindClock, err, "mpv %v", args[0])
	}
	return nil
}

func (m *MPV) Load(ctx context.Context, track string, generation uint64) error {
	// pause persists across files, so the new track starts paused
	if err := m.command(ctx, "set_property", propPause, true); err != nil {
		return err
	}
	m.mu.Lock()
	m.generation = generation
	m.position = 0
	m.observedAt = time.Now()
	m.duration = 0
	m.paused = true
	m.loaded = true
	m.awaitingStart++
	m.mu.Unlock()

	if err := m.command(ctx, "loadfile", track, "replace"); err != nil {
		m.mu.Lock()
		if m.awaitingStart > 0 {
			m.awaitingStart--
		}
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *MPV) Play(ctx context.Context) error {
	return m.command(ctx, "set_property", propPause, false)
}

func (m *MPV) Pause(ctx context.Context) error {
	return m.command(ctx, "set_property", propPause, true)
}

func (m *MPV) Stop(ctx context.Context) error {
	m.mu.Lock()
	m.loaded = false
	m.position = 0
	m.mu.Unlock()
	return m.command(ctx, "stop")
}

func (m *MPV) Seek(ctx context.Context, pos time.Duration) error {
	if err := m.command(ctx, "seek", pos.Seconds(), "absolute+exact"); err != nil {
		return err
	}
	m.mu.Lock()
	m.position = pos
	m.observedAt = time.Now()
	m.mu.Unlock()
	return nil
}

func (m *MPV) SetVolume(ctx context.Context, volume int) error {
	return m.command(ctx, "set_property", propVolume, volume)
}

// Position extrapolates from the last observed playback-time while playing.
func (m *MPV) Position() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos := m.position
	if !m.paused && m.loaded {
		pos += time.Since(m.observedAt)
	}
	if m.duration > 0 && pos > m.duration {
		pos = m.duration
	}
	return pos
}

func (m *MPV) Duration() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.duration
}

func (m *MPV) Events() <-chan Event { return m.events }

// Close disconnects and terminates mpv when this process started it.
func (m *MPV) Close() error {
	var err error
	m.closeOnce.Do(func() {
		close(m.done)
		if m.conn != nil {
			err = m.conn.Close()
		}
		m.wg.Wait()
		close(m.events)
		if m.cmd != nil && m.cmd.Process != nil {
			_ = m.cmd.Process.Signal(os.Interrupt)
		}
	})
	return err
}

func (m *MPV) handleEvents() {
	defer m.wg.Done()
	for msg := range m.conn.events {
		switch msg.Event {
		case eventPropertyChange:
			m.applyProperty(msg.Name, msg.Data)
		case eventStartFile:
			m.mu.Lock()
			if m.awaitingStart > 0 {
				m.awaitingStart--
			}
			m.mu.Unlock()
		case eventEndFile:
			m.endFile(msg)
		}
	}

	select {
	case <-m.done:
	default:
		// lost the socket while running; fault the current track
		m.emit(Event{Kind: EventError, Generation: m.currentGeneration(),
			Err: showerr.New(showerr.KindClock, "mpv connection lost")})
	}
}

func (m *MPV) applyProperty(name string, data json.RawMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch name {
	case propPlaybackTime:
		var secs float64
		if json.Unmarshal(data, &secs) == nil {
			m.position = time.Duration(secs * float64(time.Second))
			m.observedAt = time.Now()
		}
	case propDuration:
		var secs float64
		if json.Unmarshal(data, &secs) == nil {
			m.duration = time.Duration(secs * float64(time.Second))
		} else {
			m.duration = 0
		}
	case propPause:
		var paused bool
		if json.Unmarshal(data, &paused) == nil {
			if paused && !m.paused {
				m.position += time.Since(m.observedAt)
			}
			m.observedAt = time.Now()
			m.paused = paused
		}
	}
}

func (m *MPV) endFile(msg message) {
	m.mu.Lock()
	if m.awaitingStart > 0 {
		m.mu.Unlock()
		return
	}
	gen := m.generation
	loaded := m.loaded
	if msg.Reason == reasonEOF || msg.Reason == reasonError {
		m.loaded = false
	}
	m.mu.Unlock()
	if !loaded {
		return
	}

	switch msg.Reason {
	case reasonEOF:
		m.emit(Event{Kind: EventTrackEnd, Generation: gen})
	case reasonError:
		m.emit(Event{Kind: EventError, Generation: gen,
			Err: showerr.New(showerr.KindClock, "mpv could not play file: %s", msg.FileError)})
	}
	// "stop", "quit" and "redirect" follow our own commands
}

func (m *MPV) emit(ev Event) {
	select {
	case m.events <- ev:
	case <-m.done:
	}
}

func (m *MPV) currentGeneration() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation
}
