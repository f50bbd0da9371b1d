// Package playlist holds the ordered list of shows and the track-advance policy.
package playlist

import (
	"fmt"
	"strings"
	"time"

	"github.com/bbernstein/lacylights-showsync/internal/show"
	"github.com/bbernstein/lacylights-showsync/internal/showerr"
)

// RepeatMode decides what happens when a track finishes.
type RepeatMode int

const (
	RepeatNone RepeatMode = iota
	RepeatOne
	RepeatAll
)

func (m RepeatMode) String() string {
	switch m {
	case RepeatOne:
		return "one"
	case RepeatAll:
		return "all"
	default:
		return "none"
	}
}

// Valid reports whether m is one of the defined modes.
func (m RepeatMode) Valid() bool {
	return m >= RepeatNone && m <= RepeatAll
}

// ParseRepeatMode accepts none/one/all (and the aliases off, single, repeat_one, repeat_all).
func ParseRepeatMode(s string) (RepeatMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "off":
		return RepeatNone, nil
	case "one", "single", "repeat_one", "repeatone":
		return RepeatOne, nil
	case "all", "repeat_all", "repeatall":
		return RepeatAll, nil
	}
	return RepeatNone, fmt.Errorf("unknown repeat mode %q", s)
}

// Entry is the listing view of one playlist item.
type Entry struct {
	Index    int           `json:"index"`
	Title    string        `json:"title"`
	Track    string        `json:"track"`
	Duration time.Duration `json:"-"`
	CueCount int           `json:"cue_count"`
}

// Manager is an ordered list of shows with a current index. It is not safe
// for concurrent use; the scheduler serializes access under its command lock.
type Manager struct {
	entries []*show.Show
	index   int
}

// New creates a manager positioned at the first show.
func New(shows []*show.Show) *Manager {
	m := &Manager{}
	m.entries = append(m.entries, shows...)
	return m
}

// Len returns the number of shows.
func (m *Manager) Len() int { return len(m.entries) }

// Index returns the current position. It is 0 for an empty playlist.
func (m *Manager) Index() int { return m.index }

// Current returns the show at the current index, or nil when the playlist is empty.
func (m *Manager) Current() *show.Show {
	if len(m.entries) == 0 {
		return nil
	}
	return m.entries[m.index]
}

// At returns the show at i without moving the index.
func (m *Manager) At(i int) (*show.Show, error) {
	if i < 0 || i >= len(m.entries) {
		return nil, showerr.New(showerr.KindIndex, "track index %d out of range [0, %d)", i, len(m.entries))
	}
	return m.entries[i], nil
}

// Advance moves to the track after the current one under mode. It reports
// false, leaving the index unchanged, when no next track exists.
func (m *Manager) Advance(mode RepeatMode) (int, bool) {
	n := len(m.entries)
	if n == 0 {
		return m.index, false
	}
	switch mode {
	case RepeatOne:
		return m.index, true
	case RepeatAll:
		m.index = (m.index + 1) % n
		return m.index, true
	default:
		if m.index+1 >= n {
			return m.index, false
		}
		m.index++
		return m.index, true
	}
}

// Previous moves back one track, stopping at the head of the list.
func (m *Manager) Previous() int {
	if m.index > 0 {
		m.index--
	}
	return m.index
}

// Select jumps to index i.
func (m *Manager) Select(i int) error {
	if i < 0 || i >= len(m.entries) {
		return showerr.New(showerr.KindIndex, "track index %d out of range [0, %d)", i, len(m.entries))
	}
	m.index = i
	return nil
}

// Reset returns to the first track.
func (m *Manager) Reset() { m.index = 0 }

// Replace swaps in a reloaded list. The index is kept when still in range, otherwise reset.
func (m *Manager) Replace(shows []*show.Show) {
	m.entries = append([]*show.Show(nil), shows...)
	if m.index >= len(m.entries) {
		m.index = 0
	}
}

// Entries returns the listing of every show in order.
func (m *Manager) Entries() []Entry {
	out := make([]Entry, len(m.entries))
	for i, s := range m.entries {
		out[i] = Entry{
			Index:    i,
			Title:    s.Title,
			Track:    s.Track,
			Duration: s.Duration,
			CueCount: len(s.Cues),
		}
	}
	return out
}
