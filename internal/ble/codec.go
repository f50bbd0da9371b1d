package ble

import (
	"context"
	"encoding/binary"
	"math"
	"time"

	"github.com/bbernstein/lacylights-showsync/internal/services/playlist"
	"github.com/bbernstein/lacylights-showsync/internal/services/scheduler"
	"github.com/bbernstein/lacylights-showsync/internal/showerr"
)

// Method identifies a command on the command characteristic.
type Method byte

const (
	MethodPlay      Method = 0x01
	MethodPause     Method = 0x02
	MethodStop      Method = 0x03
	MethodSeek      Method = 0x04
	MethodSetVolume Method = 0x05
	MethodNext      Method = 0x06
	MethodPrevious  Method = 0x07
	MethodSelect    Method = 0x08
	MethodSetRepeat Method = 0x09
	MethodGetState  Method = 0x0A
)

var methodNames = map[Method]string{
	MethodPlay:      "play",
	MethodPause:     "pause",
	MethodStop:      "stop",
	MethodSeek:      "seek",
	MethodSetVolume: "set_volume",
	MethodNext:      "next",
	MethodPrevious:  "previous",
	MethodSelect:    "select",
	MethodSetRepeat: "set_repeat",
	MethodGetState:  "get_state",
}

func (m Method) String() string {
	if name, ok := methodNames[m]; ok {
		return name
	}
	return "unknown"
}

// Command is one decoded command write. Only the field matching Method is used.
type Command struct {
	Method Method
	// Index is the playlist index for play and select; nil plays the current track.
	Index    *int
	Position time.Duration
	Volume   int
	Repeat   playlist.RepeatMode
}

// Controller is the scheduler surface the BLE adapter drives.
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
	Snapshot(ctx context.Context) (scheduler.Snapshot, error)
}

// Apply runs the command against ctrl.
func (c Command) Apply(ctx context.Context, ctrl Controller) (scheduler.Snapshot, error) {
	switch c.Method {
	case MethodPlay:
		return ctrl.Play(ctx, c.Index)
	case MethodPause:
		return ctrl.Pause(ctx)
	case MethodStop:
		return ctrl.Stop(ctx)
	case MethodSeek:
		return ctrl.Seek(ctx, c.Position)
	case MethodSetVolume:
		return ctrl.SetVolume(ctx, c.Volume)
	case MethodNext:
		return ctrl.Next(ctx)
	case MethodPrevious:
		return ctrl.Previous(ctx)
	case MethodSelect:
		if c.Index == nil {
			return scheduler.Snapshot{}, showerr.New(showerr.KindEncoding, "select needs an index")
		}
		return ctrl.Select(ctx, *c.Index)
	case MethodSetRepeat:
		return ctrl.SetRepeat(ctx, c.Repeat)
	case MethodGetState:
		return ctrl.Snapshot(ctx)
	}
	return scheduler.Snapshot{}, showerr.New(showerr.KindEncoding, "unknown method 0x%02x", byte(c.Method))
}

// EncodeCommand packs cmd as [method id][params], big-endian.
func EncodeCommand(cmd Command, mtu int) ([]byte, error) {
	out := []byte{byte(cmd.Method)}
	switch cmd.Method {
	case MethodPlay:
		if cmd.Index != nil {
			idx, err := encodeIndex(*cmd.Index)
			if err != nil {
				return nil, err
			}
			out = append(out, idx...)
		}
	case MethodSelect:
		if cmd.Index == nil {
			return nil, showerr.New(showerr.KindEncoding, "select needs an index")
		}
		idx, err := encodeIndex(*cmd.Index)
		if err != nil {
			return nil, err
		}
		out = append(out, idx...)
	case MethodSeek:
		ms := cmd.Position.Milliseconds()
		if ms < 0 || ms > math.MaxUint32 {
			return nil, showerr.New(showerr.KindEncoding, "seek position %dms out of range", ms)
		}
		out = binary.BigEndian.AppendUint32(out, uint32(ms))
	case MethodSetVolume:
		if cmd.Volume < 0 || cmd.Volume > 100 {
			return nil, showerr.New(showerr.KindEncoding, "volume %d out of range 0-100", cmd.Volume)
		}
		out = append(out, byte(cmd.Volume))
	case MethodSetRepeat:
		if !cmd.Repeat.Valid() {
			return nil, showerr.New(showerr.KindEncoding, "repeat mode %d out of range", int(cmd.Repeat))
		}
		out = append(out, byte(cmd.Repeat))
	case MethodPause, MethodStop, MethodNext, MethodPrevious, MethodGetState:
	default:
		return nil, showerr.New(showerr.KindEncoding, "unknown method 0x%02x", byte(cmd.Method))
	}
	if len(out) > mtu {
		return nil, showerr.New(showerr.KindEncoding, "command is %d bytes, MTU is %d", len(out), mtu)
	}
	return out, nil
}

func encodeIndex(i int) ([]byte, error) {
	if i < 0 || i > math.MaxUint16 {
		return nil, showerr.New(showerr.KindEncoding, "index %d out of range", i)
	}
	return binary.BigEndian.AppendUint16(nil, uint16(i)), nil
}

// DecodeCommand parses a command write. Every malformed payload fails with
// an EncodingError.
func DecodeCommand(data []byte, mtu int) (Command, error) {
	if len(data) == 0 {
		return Command{}, showerr.New(showerr.KindEncoding, "empty command")
	}
	if len(data) > mtu {
		return Command{}, showerr.New(showerr.KindEncoding, "command is %d bytes, MTU is %d", len(data), mtu)
	}
	cmd := Command{Method: Method(data[0])}
	params := data[1:]

	wantLen := func(n int) error {
		if len(params) != n {
			return showerr.New(showerr.KindEncoding, "%s takes %d parameter bytes, got %d", cmd.Method, n, len(params))
		}
		return nil
	}

	switch cmd.Method {
	case MethodPlay:
		if len(params) == 0 {
			return cmd, nil
		}
		if err := wantLen(2); err != nil {
			return Command{}, err
		}
		idx := int(binary.BigEndian.Uint16(params))
		cmd.Index = &idx
	case MethodSelect:
		if err := wantLen(2); err != nil {
			return Command{}, err
		}
		idx := int(binary.BigEndian.Uint16(params))
		cmd.Index = &idx
	case MethodSeek:
		if err := wantLen(4); err != nil {
			return Command{}, err
		}
		cmd.Position = time.Duration(binary.BigEndian.Uint32(params)) * time.Millisecond
	case MethodSetVolume:
		if err := wantLen(1); err != nil {
			return Command{}, err
		}
		if params[0] > 100 {
			return Command{}, showerr.New(showerr.KindEncoding, "volume %d out of range 0-100", params[0])
		}
		cmd.Volume = int(params[0])
	case MethodSetRepeat:
		if err := wantLen(1); err != nil {
			return Command{}, err
		}
		cmd.Repeat = playlist.RepeatMode(params[0])
		if !cmd.Repeat.Valid() {
			return Command{}, showerr.New(showerr.KindEncoding, "repeat mode %d out of range", params[0])
		}
	case MethodPause, MethodStop, MethodNext, MethodPrevious, MethodGetState:
		if err := wantLen(0); err != nil {
			return Command{}, err
		}
	default:
		return Command{}, showerr.New(showerr.KindEncoding, "unknown method 0x%02x", data[0])
	}
	return cmd, nil
}
