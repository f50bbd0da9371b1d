package ble

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/bbernstein/lacylights-showsync/internal/services/playlist"
	"github.com/bbernstein/lacylights-showsync/internal/services/scheduler"
	"github.com/bbernstein/lacylights-showsync/internal/showerr"
)

// StateVersion is the first byte of every encoded state.
const StateVersion = 1

// StateSize is the length of an encoded state.
const StateSize = 12

const flagHardwareError = 1 << 0

// State is the decoded form of the state characteristic.
type State struct {
	Status        scheduler.Status
	HardwareError bool
	TrackIndex    int
	Position      time.Duration
	Volume        int
	Repeat        playlist.RepeatMode
	// Revision holds the low byte of the snapshot revision.
	Revision uint8
}

// EncodeState packs a snapshot as
// [version][status][flags][track u16][position ms u32][volume][repeat][revision].
// Track and position saturate at their field limits.
func EncodeState(snap scheduler.Snapshot) []byte {
	out := make([]byte, 0, StateSize)
	out = append(out, StateVersion, byte(snap.Status))

	var flags byte
	if snap.HardwareError != "" {
		flags |= flagHardwareError
	}
	out = append(out, flags)

	track := snap.TrackIndex
	if track < 0 {
		track = 0
	}
	if track > math.MaxUint16 {
		track = math.MaxUint16
	}
	out = binary.BigEndian.AppendUint16(out, uint16(track))

	ms := snap.Position.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	if ms > math.MaxUint32 {
		ms = math.MaxUint32
	}
	out = binary.BigEndian.AppendUint32(out, uint32(ms))

	return append(out, byte(snap.Volume), byte(snap.RepeatMode), byte(snap.Revision))
}

// DecodeState parses an encoded state.
func DecodeState(data []byte) (State, error) {
	if len(data) != StateSize {
		return State{}, showerr.New(showerr.KindEncoding, "state is %d bytes, want %d", len(data), StateSize)
	}
	if data[0] != StateVersion {
		return State{}, showerr.New(showerr.KindEncoding, "unsupported state version %d", data[0])
	}
	return State{
		Status:        scheduler.Status(data[1]),
		HardwareError: data[2]&flagHardwareError != 0,
		TrackIndex:    int(binary.BigEndian.Uint16(data[3:5])),
		Position:      time.Duration(binary.BigEndian.Uint32(data[5:9])) * time.Millisecond,
		Volume:        int(data[9]),
		Repeat:        playlist.RepeatMode(data[10]),
		Revision:      data[11],
	}, nil
}
