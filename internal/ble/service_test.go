package ble

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbernstein/lacylights-showsync/internal/rpc"
	"github.com/bbernstein/lacylights-showsync/internal/services/playlist"
	"github.com/bbernstein/lacylights-showsync/internal/services/pubsub"
	"github.com/bbernstein/lacylights-showsync/internal/services/scheduler"
	"github.com/bbernstein/lacylights-showsync/internal/showerr"
)

type fakeController struct {
	mu    sync.Mutex
	calls []string
	snap  scheduler.Snapshot
}

func (f *fakeController) record(call string) (scheduler.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	f.snap.Revision++
	return f.snap, nil
}

func (f *fakeController) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeController) Play(_ context.Context, track *int) (scheduler.Snapshot, error) {
	if track != nil {
		f.mu.Lock()
		f.snap.TrackIndex = *track
		f.mu.Unlock()
	}
	f.mu.Lock()
	f.snap.Status = scheduler.Playing
	f.mu.Unlock()
	return f.record("play")
}
func (f *fakeController) Pause(context.Context) (scheduler.Snapshot, error) {
	return scheduler.Snapshot{}, showerr.New(showerr.KindInvalidState, "cannot pause while stopped")
}
func (f *fakeController) Stop(context.Context) (scheduler.Snapshot, error) { return f.record("stop") }
func (f *fakeController) Seek(_ context.Context, pos time.Duration) (scheduler.Snapshot, error) {
	f.mu.Lock()
	f.snap.Position = pos
	f.mu.Unlock()
	return f.record("seek")
}
func (f *fakeController) Next(context.Context) (scheduler.Snapshot, error)     { return f.record("next") }
func (f *fakeController) Previous(context.Context) (scheduler.Snapshot, error) { return f.record("previous") }
func (f *fakeController) Select(_ context.Context, i int) (scheduler.Snapshot, error) {
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
func (f *fakeController) Snapshot(context.Context) (scheduler.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap, nil
}

type notification struct {
	char  uuid.UUID
	value []byte
}

type fakePeripheral struct {
	app      chan Application
	notified chan notification
}

func newFakePeripheral() *fakePeripheral {
	return &fakePeripheral{app: make(chan Application, 1), notified: make(chan notification, 64)}
}

func (p *fakePeripheral) Serve(ctx context.Context, app Application) error {
	p.app <- app
	<-ctx.Done()
	return nil
}

func (p *fakePeripheral) Notify(char uuid.UUID, value []byte) error {
	p.notified <- notification{char: char, value: append([]byte(nil), value...)}
	return nil
}

func (p *fakePeripheral) next(t *testing.T, char uuid.UUID) []byte {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case n := <-p.notified:
			if n.char == char {
				return n.value
			}
		case <-deadline:
			t.Fatalf("no notification on %s", char)
			return nil
		}
	}
}

func newTestService(t *testing.T) (*Service, *fakeController, *fakePeripheral, *pubsub.PubSub) {
	t.Helper()
	ctrl := &fakeController{snap: scheduler.Snapshot{PlaylistLength: 3}}
	periph := newFakePeripheral()
	ps := pubsub.New()
	t.Cleanup(ps.Close)

	d := rpc.NewDispatcher()
	d.Register("echo", func(_ context.Context, p rpc.Params) (interface{}, error) {
		var s string
		if _, err := p.Decode(0, "text", &s); err != nil {
			return nil, err
		}
		return s, nil
	})
	svc := NewService(ctrl, d, ps, periph, Config{DeviceName: "test"})
	return svc, ctrl, periph, ps
}

func TestService_Application(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	app := svc.Application()

	assert.Equal(t, ServiceUUID, app.ServiceUUID)
	assert.Equal(t, "test", app.LocalName)
	require.Len(t, app.Characteristics, 3)

	byUUID := map[uuid.UUID]Characteristic{}
	for _, c := range app.Characteristics {
		byUUID[c.UUID] = c
	}
	assert.Equal(t, []string{FlagWrite}, byUUID[CommandCharUUID].Flags)
	assert.Equal(t, []string{FlagRead, FlagNotify}, byUUID[StateCharUUID].Flags)
	assert.Equal(t, []string{FlagWrite, FlagIndicate}, byUUID[RPCCharUUID].Flags)

	noRPC := NewService(&fakeController{}, nil, pubsub.New(), newFakePeripheral(), Config{})
	assert.Len(t, noRPC.Application().Characteristics, 2)
}

func TestService_HandleCommand(t *testing.T) {
	svc, ctrl, _, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.HandleCommand(ctx, Request{}, []byte{0x08, 0x00, 0x02}))
	require.NoError(t, svc.HandleCommand(ctx, Request{}, []byte{0x05, 42}))
	require.NoError(t, svc.HandleCommand(ctx, Request{}, []byte{0x04, 0x00, 0x00, 0x03, 0xe8}))

	snap, _ := ctrl.Snapshot(ctx)
	assert.Equal(t, 2, snap.TrackIndex)
	assert.Equal(t, 42, snap.Volume)
	assert.Equal(t, time.Second, snap.Position)
	assert.Equal(t, []string{"select", "set_volume", "seek"}, ctrl.Calls())
}

func TestService_MalformedCommandNeverReachesScheduler(t *testing.T) {
	svc, ctrl, _, _ := newTestService(t)
	ctx := context.Background()

	for _, data := range [][]byte{{}, {0x05, 200}, {0x09, 7}, {0x99}, {0x08}} {
		err := svc.HandleCommand(ctx, Request{}, data)
		assert.True(t, showerr.IsKind(err, showerr.KindEncoding), "payload %x: %v", data, err)
	}
	assert.Empty(t, ctrl.Calls())
}

func TestService_CommandErrorsAreReturned(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	err := svc.HandleCommand(context.Background(), Request{}, []byte{byte(MethodPause)})
	assert.True(t, showerr.IsKind(err, showerr.KindInvalidState))
}

func TestService_CommandRespectsClientMTU(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	// A 5-byte seek does not fit a 4-byte MTU but the service default is used
	// when the client MTU is too small to carry a header.
	assert.NoError(t, svc.HandleCommand(context.Background(), Request{MTU: 4}, []byte{0x04, 0, 0, 0, 1}))
}

func TestService_GetStateNotifies(t *testing.T) {
	svc, _, periph, _ := newTestService(t)

	require.NoError(t, svc.HandleCommand(context.Background(), Request{}, []byte{byte(MethodGetState)}))
	st, err := DecodeState(periph.next(t, StateCharUUID))
	require.NoError(t, err)
	assert.Equal(t, scheduler.Stopped, st.Status)
}

func TestService_ReadState(t *testing.T) {
	svc, ctrl, _, _ := newTestService(t)
	_, _ = ctrl.Play(context.Background(), nil)

	data, err := svc.ReadState(context.Background(), Request{})
	require.NoError(t, err)
	st, err := DecodeState(data)
	require.NoError(t, err)
	assert.Equal(t, scheduler.Playing, st.Status)
}

func TestService_HandleRPC(t *testing.T) {
	svc, _, periph, _ := newTestService(t)
	ctx := context.Background()

	req := []byte(`{"jsonrpc": "2.0", "method": "wotabag.echo", "params": ["hello over ble"], "id": 5}`)
	chunks, err := Split(9, req, DefaultMTU)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for _, chunk := range chunks {
		require.NoError(t, svc.HandleRPC(ctx, Request{Client: "/org/bluez/hci0/dev_1"}, chunk))
	}

	r := NewReassembler()
	var reply []byte
	for reply == nil {
		data := periph.next(t, RPCCharUUID)
		assert.LessOrEqual(t, len(data), DefaultMTU)
		msg, complete, err := r.Add(data)
		require.NoError(t, err)
		if complete {
			reply = msg
		}
	}

	var resp rpc.Response
	require.NoError(t, json.Unmarshal(reply, &resp))
	assert.Nil(t, resp.Error)
	assert.Equal(t, `"hello over ble"`, string(resp.Result))
	assert.Equal(t, "5", string(resp.ID))
}

func TestService_RPCRepliesFitNegotiatedMTU(t *testing.T) {
	svc, _, periph, _ := newTestService(t)
	ctx := context.Background()
	client := Request{Client: "/org/bluez/hci0/dev_2", MTU: 23}

	req := []byte(`{"jsonrpc": "2.0", "method": "echo", "params": ["a reply long enough to need several datagrams"], "id": 1}`)
	chunks, err := Split(3, req, 20)
	require.NoError(t, err)
	for _, chunk := range chunks {
		require.NoError(t, svc.HandleRPC(ctx, client, chunk))
	}

	r := NewReassembler()
	for {
		data := periph.next(t, RPCCharUUID)
		assert.LessOrEqual(t, len(data), 23-attHeaderSize, "value must fit one ATT PDU")
		_, complete, err := r.Add(data)
		require.NoError(t, err)
		if complete {
			break
		}
	}
}

func TestService_MTU(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	assert.Equal(t, 20, svc.mtu(Request{MTU: 23}))
	assert.Equal(t, 244, svc.mtu(Request{MTU: 247}))
	assert.Equal(t, DefaultMTU, svc.mtu(Request{}))
	assert.Equal(t, DefaultMTU, svc.mtu(Request{MTU: HeaderSize + attHeaderSize}))
}

func TestService_HandleRPCMalformedDatagram(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	err := svc.HandleRPC(context.Background(), Request{Client: "a"}, []byte{1, 2})
	assert.True(t, showerr.IsKind(err, showerr.KindEncoding))
}

func TestService_HandleRPCLimitsPendingMessages(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	var err error
	for key := 0; key <= maxPendingMessages && err == nil; key++ {
		err = svc.HandleRPC(ctx, Request{Client: "a"}, mustDatagram(t, Datagram{Key: uint8(key), Length: 10, Payload: []byte("x")}))
	}
	assert.Error(t, err)

	// Other clients are unaffected.
	assert.NoError(t, svc.HandleRPC(ctx, Request{Client: "b"}, mustDatagram(t, Datagram{Key: 0, Length: 10, Payload: []byte("x")})))
}

func TestService_RunForwardsNotifications(t *testing.T) {
	svc, _, periph, ps := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	select {
	case app := <-periph.app:
		assert.Equal(t, ServiceUUID, app.ServiceUUID)
	case <-time.After(2 * time.Second):
		t.Fatal("application not served")
	}

	ps.Publish(pubsub.TopicPlaybackState, "", scheduler.Notification{
		Event:    scheduler.EventHardwareError,
		Snapshot: scheduler.Snapshot{Revision: 9, HardwareError: "strip failed", Volume: 30},
	})
	st, err := DecodeState(periph.next(t, StateCharUUID))
	require.NoError(t, err)
	assert.True(t, st.HardwareError)
	assert.Equal(t, 30, st.Volume)
	assert.Equal(t, uint8(9), st.Revision)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}
