package strip

import (
	"log"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/bbernstein/lacylights-showsync/internal/show"
	"github.com/bbernstein/lacylights-showsync/internal/showerr"
	"github.com/bbernstein/lacylights-showsync/pkg/artnet"
)

// Config holds Art-Net strip configuration.
type Config struct {
	Enabled       bool
	BroadcastAddr string
	Port          int
	Universe      int // first universe, 1-based
	LEDCount      int
	ColorOrder    ColorOrder
	Brightness    int // 0-255
	// IdleRefresh resends the last frame when nothing was written for this
	// long, so receivers do not time out. Zero disables it.
	IdleRefresh time.Duration
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		BroadcastAddr: "255.255.255.255",
		Port:          artnet.DefaultPort,
		Universe:      1,
		LEDCount:      27,
		ColorOrder:    OrderGRB,
		Brightness:    128,
		IdleRefresh:   time.Second,
	}
}

// ArtNet drives a pixel strip through an Art-Net node. With Enabled false it
// runs in simulation mode: frames are only kept in memory.
type ArtNet struct {
	mu sync.Mutex

	cfg       Config
	conn      net.Conn
	sequence  byte
	lastFrame show.PixelArray
	lastWrite time.Time
	frames    uint64
	closed    bool

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewArtNet opens the UDP socket (unless in simulation mode) and starts the idle refresh loop.
func NewArtNet(cfg Config) (*ArtNet, error) {
	if cfg.Port <= 0 {
		cfg.Port = artnet.DefaultPort
	}
	if cfg.Universe <= 0 {
		cfg.Universe = 1
	}
	if cfg.LEDCount <= 0 {
		return nil, showerr.New(showerr.KindConfig, "LED count must be positive, got %d", cfg.LEDCount)
	}
	if cfg.ColorOrder == "" {
		cfg.ColorOrder = OrderRGB
	}

	a := &ArtNet{
		cfg:       cfg,
		lastFrame: show.Blackout(cfg.LEDCount),
		stopChan:  make(chan struct{}),
	}

	universes := (cfg.LEDCount + artnet.PixelsPerUniverse - 1) / artnet.PixelsPerUniverse
	if cfg.Enabled {
		addr, err := net.ResolveUDPAddr("udp4", cfg.BroadcastAddr+":"+strconv.Itoa(cfg.Port))
		if err != nil {
			return nil, showerr.Wrap(showerr.KindHardware, err, "resolve Art-Net address")
		}
		conn, err := net.DialUDP("udp4", nil, addr)
		if err != nil {
			return nil, showerr.Wrap(showerr.KindHardware, err, "open Art-Net socket")
		}
		a.conn = conn
		log.Printf("💡 LED strip: %d pixels (%s, brightness %d) over %d universe(s) from %d",
			cfg.LEDCount, cfg.ColorOrder, cfg.Brightness, universes, cfg.Universe)
		log.Printf("📡 Art-Net output enabled, broadcasting to %s:%d", cfg.BroadcastAddr, cfg.Port)
	} else {
		log.Printf("💡 LED strip: %d pixels (simulation mode)", cfg.LEDCount)
	}

	if cfg.IdleRefresh > 0 {
		a.wg.Add(1)
		go a.refreshLoop()
	}
	return a, nil
}

// LEDCount returns the configured pixel count.
func (a *ArtNet) LEDCount() int { return a.cfg.LEDCount }

// Write sends frame to the strip. Frames of the wrong length are padded or truncated.
func (a *ArtNet) Write(frame show.PixelArray) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return showerr.New(showerr.KindHardware, "strip is closed")
	}
	fitted := make(show.PixelArray, a.cfg.LEDCount)
	copy(fitted, frame)

	if err := a.sendLocked(fitted); err != nil {
		return err
	}
	a.lastFrame = fitted
	a.lastWrite = time.Now()
	a.frames++
	return nil
}

func (a *ArtNet) sendLocked(frame show.PixelArray) error {
	if a.conn == nil {
		return nil
	}
	for i, channels := range artnet.PixelsToChannels(encode(frame, a.cfg.ColorOrder, a.cfg.Brightness)) {
		a.sequence++
		if a.sequence == 0 {
			a.sequence = 1 // 0 disables sequencing on receivers
		}
		packet := artnet.BuildDMXPacket(a.cfg.Universe+i, channels, a.sequence)
		if _, err := a.conn.Write(packet); err != nil {
			return showerr.Wrap(showerr.KindHardware, err, "Art-Net send to universe %d", a.cfg.Universe+i)
		}
	}
	return nil
}

// refreshLoop resends the last frame while the strip is idle.
func (a *ArtNet) refreshLoop() {
	defer a.wg.Done()
	ticker := time.NewTicker(a.cfg.IdleRefresh)
	defer ticker.Stop()

	for {
		select {
		case <-a.stopChan:
			return
		case <-ticker.C:
			a.mu.Lock()
			if !a.closed && time.Since(a.lastWrite) >= a.cfg.IdleRefresh {
				if err := a.sendLocked(a.lastFrame); err != nil {
					log.Printf("Warning: Art-Net refresh failed: %v", err)
				}
			}
			a.mu.Unlock()
		}
	}
}

// LastFrame returns a copy of the last frame written.
func (a *ArtNet) LastFrame() show.PixelArray {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastFrame.Clone()
}

// FrameCount returns the number of frames written successfully.
func (a *ArtNet) FrameCount() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.frames
}

// IsSimulated reports whether the strip runs without network output.
func (a *ArtNet) IsSimulated() bool { return !a.cfg.Enabled }

// Close blacks out the strip and releases the socket.
func (a *ArtNet) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.stopChan)
	a.mu.Unlock()
	a.wg.Wait()

	a.mu.Lock()
	defer a.mu.Unlock()
	blackout := show.Blackout(a.cfg.LEDCount)
	if err := a.sendLocked(blackout); err != nil {
		log.Printf("Warning: final blackout failed: %v", err)
	}
	a.lastFrame = blackout
	if a.conn != nil {
		err := a.conn.Close()
		a.conn = nil
		log.Printf("💡 LED strip output stopped")
		return err
	}
	return nil
}
