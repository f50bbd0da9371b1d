package ble

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbernstein/lacylights-showsync/internal/services/playlist"
	"github.com/bbernstein/lacylights-showsync/internal/services/scheduler"
	"github.com/bbernstein/lacylights-showsync/internal/showerr"
)

func intPtr(i int) *int { return &i }

func TestCommandRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		want []byte
	}{
		{"play", Command{Method: MethodPlay}, []byte{0x01}},
		{"play index", Command{Method: MethodPlay, Index: intPtr(258)}, []byte{0x01, 0x01, 0x02}},
		{"pause", Command{Method: MethodPause}, []byte{0x02}},
		{"stop", Command{Method: MethodStop}, []byte{0x03}},
		{"seek", Command{Method: MethodSeek, Position: 90500 * time.Millisecond}, []byte{0x04, 0x00, 0x01, 0x61, 0x84}},
		{"volume", Command{Method: MethodSetVolume, Volume: 100}, []byte{0x05, 100}},
		{"next", Command{Method: MethodNext}, []byte{0x06}},
		{"previous", Command{Method: MethodPrevious}, []byte{0x07}},
		{"select", Command{Method: MethodSelect, Index: intPtr(65535)}, []byte{0x08, 0xff, 0xff}},
		{"repeat", Command{Method: MethodSetRepeat, Repeat: playlist.RepeatAll}, []byte{0x09, 0x02}},
		{"get state", Command{Method: MethodGetState}, []byte{0x0A}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeCommand(tt.cmd, DefaultMTU)
			require.NoError(t, err)
			assert.Equal(t, tt.want, data)

			got, err := DecodeCommand(data, DefaultMTU)
			require.NoError(t, err)
			assert.Equal(t, tt.cmd, got)
		})
	}
}

func TestEncodeCommand_OutOfRange(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
	}{
		{"negative index", Command{Method: MethodPlay, Index: intPtr(-1)}},
		{"index too large", Command{Method: MethodSelect, Index: intPtr(70000)}},
		{"select without index", Command{Method: MethodSelect}},
		{"negative seek", Command{Method: MethodSeek, Position: -time.Second}},
		{"seek too far", Command{Method: MethodSeek, Position: 5000 * time.Hour}},
		{"volume", Command{Method: MethodSetVolume, Volume: 101}},
		{"negative volume", Command{Method: MethodSetVolume, Volume: -1}},
		{"repeat", Command{Method: MethodSetRepeat, Repeat: playlist.RepeatMode(3)}},
		{"unknown", Command{Method: 0x7f}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EncodeCommand(tt.cmd, DefaultMTU)
			require.Error(t, err)
			assert.True(t, showerr.IsKind(err, showerr.KindEncoding), "got %v", err)
		})
	}
}

func TestDecodeCommand_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"unknown id", []byte{0x42}},
		{"zero id", []byte{0x00}},
		{"play short index", []byte{0x01, 0x01}},
		{"pause with params", []byte{0x02, 0x00}},
		{"seek short", []byte{0x04, 0x00, 0x01}},
		{"seek long", []byte{0x04, 0x00, 0x00, 0x00, 0x01, 0x00}},
		{"volume over 100", []byte{0x05, 101}},
		{"volume missing", []byte{0x05}},
		{"select missing", []byte{0x08}},
		{"repeat out of range", []byte{0x09, 0x03}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeCommand(tt.data, DefaultMTU)
			require.Error(t, err)
			assert.True(t, showerr.IsKind(err, showerr.KindEncoding), "got %v", err)
		})
	}
}

func TestCommand_MTU(t *testing.T) {
	_, err := EncodeCommand(Command{Method: MethodSeek, Position: time.Second}, 4)
	assert.True(t, showerr.IsKind(err, showerr.KindEncoding))

	_, err = DecodeCommand([]byte{0x04, 0, 0, 0, 1}, 4)
	assert.True(t, showerr.IsKind(err, showerr.KindEncoding))

	_, err = DecodeCommand([]byte{0x04, 0, 0, 0, 1}, 5)
	assert.NoError(t, err)
}

func TestMethodString(t *testing.T) {
	assert.Equal(t, "seek", MethodSeek.String())
	assert.Equal(t, "unknown", Method(0xee).String())
}

func TestStateRoundTrip(t *testing.T) {
	snap := scheduler.Snapshot{
		Revision:      0x1234,
		Status:        scheduler.Paused,
		TrackIndex:    3,
		Position:      61234 * time.Millisecond,
		Volume:        80,
		RepeatMode:    playlist.RepeatOne,
		HardwareError: "strip failed",
	}

	data := EncodeState(snap)
	require.Len(t, data, StateSize)
	assert.Equal(t, []byte{
		StateVersion, byte(scheduler.Paused), 0x01,
		0x00, 0x03,
		0x00, 0x00, 0xef, 0x32,
		80, byte(playlist.RepeatOne), 0x34,
	}, data)

	st, err := DecodeState(data)
	require.NoError(t, err)
	assert.Equal(t, State{
		Status:        scheduler.Paused,
		HardwareError: true,
		TrackIndex:    3,
		Position:      61234 * time.Millisecond,
		Volume:        80,
		Repeat:        playlist.RepeatOne,
		Revision:      0x34,
	}, st)
}

func TestEncodeState_Saturates(t *testing.T) {
	data := EncodeState(scheduler.Snapshot{TrackIndex: 1 << 20, Position: 5000 * time.Hour})
	st, err := DecodeState(data)
	require.NoError(t, err)
	assert.Equal(t, 65535, st.TrackIndex)
	assert.Equal(t, time.Duration(1<<32-1)*time.Millisecond, st.Position)
	assert.False(t, st.HardwareError)
}

func TestDecodeState_Invalid(t *testing.T) {
	_, err := DecodeState([]byte{1, 2, 3})
	assert.True(t, showerr.IsKind(err, showerr.KindEncoding))

	data := EncodeState(scheduler.Snapshot{})
	data[0] = 9
	_, err = DecodeState(data)
	assert.True(t, showerr.IsKind(err, showerr.KindEncoding))
}
