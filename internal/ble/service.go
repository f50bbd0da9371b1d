// Package ble exposes the scheduler as a BLE GATT service: a binary command
// characteristic, a state characteristic and a framed JSON-RPC characteristic.
package ble

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/bbernstein/lacylights-showsync/internal/rpc"
	"github.com/bbernstein/lacylights-showsync/internal/services/pubsub"
	"github.com/bbernstein/lacylights-showsync/internal/services/scheduler"
)

// GATT identifiers.
var (
	ServiceUUID     = uuid.MustParse("07150001-2ba7-43c7-8df6-103ff4bcbfac")
	RPCCharUUID     = uuid.MustParse("07150002-2ba7-43c7-8df6-103ff4bcbfac")
	CommandCharUUID = uuid.MustParse("07150003-2ba7-43c7-8df6-103ff4bcbfac")
	StateCharUUID   = uuid.MustParse("07150004-2ba7-43c7-8df6-103ff4bcbfac")
)

// DefaultMTU is the value size assumed when neither the config nor the host
// stack gives one.
const DefaultMTU = 48

// attHeaderSize is the ATT opcode and handle carried in every write,
// notification and indication.
const attHeaderSize = 3

const maxPendingMessages = 8

// Characteristic flags as BlueZ names them.
const (
	FlagRead     = "read"
	FlagWrite    = "write"
	FlagNotify   = "notify"
	FlagIndicate = "indicate"
)

// Request identifies the client behind a read or write.
type Request struct {
	// Client is an opaque per-connection identifier (the BlueZ device path).
	Client string
	// MTU is the negotiated ATT MTU, 0 when the host stack does not report it.
	MTU int
}

// Characteristic describes one GATT characteristic and its handlers.
type Characteristic struct {
	UUID        uuid.UUID
	Flags       []string
	Description string
	OnRead      func(ctx context.Context, req Request) ([]byte, error)
	OnWrite     func(ctx context.Context, req Request, value []byte) error
}

// Application is the GATT service to register and advertise.
type Application struct {
	LocalName       string
	ServiceUUID     uuid.UUID
	Characteristics []Characteristic
}

// Peripheral is the BLE host stack boundary.
type Peripheral interface {
	// Serve registers and advertises app, blocking until ctx is done.
	Serve(ctx context.Context, app Application) error
	// Notify pushes value to clients subscribed to the characteristic.
	Notify(char uuid.UUID, value []byte) error
}

// Config configures the GATT service.
type Config struct {
	DeviceName string
	MTU        int
}

// Service adapts the scheduler and JSON-RPC dispatcher onto GATT.
type Service struct {
	ctrl       Controller
	dispatcher *rpc.Dispatcher
	pubsub     *pubsub.PubSub
	periph     Peripheral
	cfg        Config

	mu          sync.Mutex
	reassembler map[string]*Reassembler
	replyKey    uint8
	notifyErr   bool

	wg sync.WaitGroup
}

// NewService creates the GATT service. dispatcher may be nil to leave the
// rpc characteristic out.
func NewService(ctrl Controller, dispatcher *rpc.Dispatcher, ps *pubsub.PubSub, periph Peripheral, cfg Config) *Service {
	if cfg.MTU <= HeaderSize {
		cfg.MTU = DefaultMTU
	}
	return &Service{
		ctrl:        ctrl,
		dispatcher:  dispatcher,
		pubsub:      ps,
		periph:      periph,
		cfg:         cfg,
		reassembler: make(map[string]*Reassembler),
	}
}

// Application describes the service for the peripheral.
func (s *Service) Application() Application {
	app := Application{
		LocalName:   s.cfg.DeviceName,
		ServiceUUID: ServiceUUID,
		Characteristics: []Characteristic{
			{
				UUID:        CommandCharUUID,
				Flags:       []string{FlagWrite},
				Description: "Show sync command",
				OnWrite:     s.HandleCommand,
			},
			{
				UUID:        StateCharUUID,
				Flags:       []string{FlagRead, FlagNotify},
				Description: "Show sync state",
				OnRead:      s.ReadState,
			},
		},
	}
	if s.dispatcher != nil {
		app.Characteristics = append(app.Characteristics, Characteristic{
			UUID:        RPCCharUUID,
			Flags:       []string{FlagWrite, FlagIndicate},
			Description: "Show sync RPC over BLE",
			OnWrite:     s.HandleRPC,
		})
	}
	return app
}

// Run serves the application and forwards state notifications until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	sub := s.pubsub.Subscribe(pubsub.TopicPlaybackState, "", 16)
	defer s.pubsub.Unsubscribe(sub)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.periph.Serve(ctx, s.Application())
	}()

	defer s.wg.Wait()
	for {
		select {
		case err := <-serveErr:
			if err != nil {
				return fmt.Errorf("ble peripheral: %w", err)
			}
			return nil
		case msg, ok := <-sub.Channel:
			if !ok {
				return <-serveErr
			}
			if n, ok := msg.(scheduler.Notification); ok {
				s.notifyState(n.Snapshot)
			}
		}
	}
}

func (s *Service) notifyState(snap scheduler.Snapshot) {
	err := s.periph.Notify(StateCharUUID, EncodeState(snap))

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case err != nil && !s.notifyErr:
		log.Printf("Warning: BLE state notify failed: %v", err)
		s.notifyErr = true
	case err == nil && s.notifyErr:
		log.Printf("📡 BLE state notify recovered")
		s.notifyErr = false
	}
}

// HandleCommand decodes and applies a command write. Decoding errors are
// returned before the scheduler is called.
func (s *Service) HandleCommand(ctx context.Context, req Request, value []byte) error {
	cmd, err := DecodeCommand(value, s.mtu(req))
	if err != nil {
		return err
	}
	snap, err := cmd.Apply(ctx, s.ctrl)
	if err != nil {
		return err
	}
	if cmd.Method == MethodGetState {
		s.notifyState(snap)
	}
	return nil
}

// ReadState returns the encoded current state.
func (s *Service) ReadState(ctx context.Context, _ Request) ([]byte, error) {
	snap, err := s.ctrl.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return EncodeState(snap), nil
}

// HandleRPC feeds one datagram. A completed message is dispatched in the
// background and its reply indicated back in datagrams.
func (s *Service) HandleRPC(ctx context.Context, req Request, value []byte) error {
	if s.dispatcher == nil {
		return errors.New("rpc characteristic disabled")
	}
	s.mu.Lock()
	r, ok := s.reassembler[req.Client]
	if !ok {
		r = NewReassembler()
		s.reassembler[req.Client] = r
	}
	msg, complete, err := r.Add(value)
	if err == nil && r.Pending() > maxPendingMessages {
		delete(s.reassembler, req.Client)
		err = fmt.Errorf("too many incomplete messages from %s", req.Client)
	}
	s.mu.Unlock()
	if err != nil || !complete {
		return err
	}

	mtu := s.mtu(req)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		reply := s.dispatcher.Handle(context.WithoutCancel(ctx), msg)
		if reply != nil {
			s.indicate(reply, mtu)
		}
	}()
	return nil
}

func (s *Service) indicate(reply []byte, mtu int) {
	s.mu.Lock()
	key := s.replyKey
	s.replyKey++
	s.mu.Unlock()

	chunks, err := Split(key, reply, mtu)
	if err != nil {
		log.Printf("Warning: BLE rpc reply dropped: %v", err)
		return
	}
	for _, chunk := range chunks {
		if err := s.periph.Notify(RPCCharUUID, chunk); err != nil {
			log.Printf("Warning: BLE rpc reply failed: %v", err)
			return
		}
	}
}

// mtu is the largest characteristic value for req: the negotiated ATT MTU
// less the ATT header, or the configured size when the link does not say.
func (s *Service) mtu(req Request) int {
	if payload := req.MTU - attHeaderSize; payload > HeaderSize {
		return payload
	}
	return s.cfg.MTU
}
