// Package main is the entry point for the LacyLights show sync daemon.
package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/joho/godotenv"

	"github.com/bbernstein/lacylights-showsync/internal/ble"
	"github.com/bbernstein/lacylights-showsync/internal/ble/bluez"
	"github.com/bbernstein/lacylights-showsync/internal/config"
	"github.com/bbernstein/lacylights-showsync/internal/database"
	"github.com/bbernstein/lacylights-showsync/internal/database/repositories"
	"github.com/bbernstein/lacylights-showsync/internal/rpc"
	"github.com/bbernstein/lacylights-showsync/internal/services/audio"
	"github.com/bbernstein/lacylights-showsync/internal/services/network"
	"github.com/bbernstein/lacylights-showsync/internal/services/playlist"
	"github.com/bbernstein/lacylights-showsync/internal/services/pubsub"
	"github.com/bbernstein/lacylights-showsync/internal/services/scheduler"
	"github.com/bbernstein/lacylights-showsync/internal/services/settings"
	"github.com/bbernstein/lacylights-showsync/internal/services/strip"
	"github.com/bbernstein/lacylights-showsync/internal/show"
	"github.com/bbernstein/lacylights-showsync/internal/showerr"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Load .env file if present
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg := config.Load()

	// Print startup banner
	printBanner(cfg)

	if err := run(cfg); err != nil {
		log.Fatalf("❌ %v", err)
	}
	log.Println("Server stopped")
}

func run(cfg *config.Config) error {
	// Refuse to start twice: two daemons would fight over the strip and mpv.
	lock := flock.New(cfg.LockFile)
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to take lock %s: %w", cfg.LockFile, err)
	}
	if !locked {
		return fmt.Errorf("another instance is already running (lock %s)", cfg.LockFile)
	}
	defer func() { _ = lock.Unlock() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to database
	db, err := database.Connect(database.Config{
		URL:   cfg.DatabaseURL,
		Debug: cfg.IsDevelopment(),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() { _ = database.Close(db) }()
	settingRepo := repositories.NewSettingRepository(db)

	// Load the playlist. A broken playlist file leaves the daemon running
	// with nothing to play until the file is fixed.
	doc, err := playlist.LoadDocument(cfg.PlaylistFile, cfg.LEDCount)
	if err != nil {
		log.Printf("Warning: %v, starting with an empty playlist", err)
		doc = &playlist.Document{Path: cfg.PlaylistFile}
	} else {
		log.Printf("📜 Playlist loaded: %s", doc)
	}

	restored, err := settings.Restore(ctx, settingRepo)
	if err != nil {
		log.Printf("Warning: failed to read saved settings: %v", err)
	}
	schedCfg := schedulerConfig(cfg, doc, restored)

	durations := newTrackDurations(doc.Shows)
	clock := newClock(ctx, cfg, durations, schedCfg.InitialVolume)
	defer func() { _ = clock.Close() }()

	order, err := strip.ParseColorOrder(cfg.LEDColorOrder)
	if err != nil {
		log.Printf("Warning: %v, using %s", err, strip.OrderGRB)
		order = strip.OrderGRB
	}
	broadcast, err := network.ResolveBroadcast(cfg.ArtNetBroadcast)
	if err != nil {
		log.Printf("Warning: %v, using %s", err, network.GlobalBroadcast)
		broadcast = network.GlobalBroadcast
	}
	output, err := strip.NewArtNet(strip.Config{
		Enabled:       cfg.ArtNetEnabled,
		BroadcastAddr: broadcast,
		Port:          cfg.ArtNetPort,
		Universe:      cfg.ArtNetUniverse,
		LEDCount:      cfg.LEDCount,
		ColorOrder:    order,
		Brightness:    cfg.LEDBrightness,
		IdleRefresh:   time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize strip output: %w", err)
	}
	defer func() { _ = output.Close() }()

	ps := pubsub.New()
	defer ps.Close()

	sched := scheduler.New(schedCfg, clock, output, playlist.New(doc.Shows), ps)
	sched.Start()
	defer sched.Close()

	var wg sync.WaitGroup
	goRun := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	persister := settings.NewPersister(settingRepo, ps)
	goRun(func() { persister.Run(ctx) })

	if cfg.WatchShows {
		watcher, err := playlist.NewWatcher(doc, cfg.LEDCount, playlist.DefaultDebounce, func(d *playlist.Document) {
			durations.update(d.Shows)
			reloadCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if _, err := sched.ReplacePlaylist(reloadCtx, d.Shows); err != nil {
				log.Printf("Warning: failed to apply reloaded playlist: %v", err)
			}
		})
		if err != nil {
			log.Printf("Warning: playlist hot reload disabled: %v", err)
		} else {
			log.Printf("👀 Watching %s for changes", cfg.PlaylistFile)
			goRun(func() { watcher.Run(ctx) })
		}
	}

	dispatcher := rpc.NewShowDispatcher(sched, cfg.LEDCount)
	server := rpc.NewServer(dispatcher, ps, rpc.ServerConfig{
		CORSOrigin: cfg.CORSOrigin,
		Debug:      cfg.IsDevelopment(),
		Version:    Version,
	})

	if cfg.BLEEnabled {
		periph, err := bluez.New(cfg.BLEAdapter)
		if err != nil {
			// Continue anyway - the JSON-RPC surface still works without Bluetooth
			log.Printf("Warning: BLE unavailable: %v", err)
		} else {
			defer func() { _ = periph.Close() }()
			svc := ble.NewService(sched, dispatcher, ps, periph, ble.Config{
				DeviceName: cfg.BLEDeviceName,
				MTU:        cfg.BLEMTU,
			})
			goRun(func() {
				if err := svc.Run(ctx); err != nil {
					log.Printf("Warning: BLE service stopped: %v", err)
				}
			})
		}
	}

	serveErr := rpc.ListenAndServe(ctx, cfg.Addr(), server.Handler(), shutdownTimeout)
	stop()
	log.Println("Shutting down server...")
	wg.Wait()
	return serveErr
}

// schedulerConfig resolves the initial playback settings: saved settings win
// over the playlist file, which wins over the environment.
func schedulerConfig(cfg *config.Config, doc *playlist.Document, saved settings.Restored) scheduler.Config {
	sc := scheduler.DefaultConfig()
	sc.RenderRateHz = cfg.RenderRateHz
	sc.TickLockTimeout = cfg.TickLockTimeout
	sc.FailureThreshold = cfg.StripFailureThreshold
	sc.KeepAliveInterval = cfg.KeepAliveInterval

	sc.InitialVolume = cfg.Volume
	if mode, err := playlist.ParseRepeatMode(cfg.RepeatMode); err == nil {
		sc.InitialRepeat = mode
	} else {
		log.Printf("Warning: REPEAT_MODE: %v", err)
	}

	if doc.Volume != nil {
		sc.InitialVolume = *doc.Volume
	}
	if doc.Repeat != nil {
		sc.InitialRepeat = *doc.Repeat
	}

	if saved.Volume != nil {
		sc.InitialVolume = *saved.Volume
	}
	if saved.Repeat != nil {
		sc.InitialRepeat = *saved.Repeat
	}
	if saved.TrackIndex != nil && *saved.TrackIndex < len(doc.Shows) {
		sc.InitialIndex = *saved.TrackIndex
	}
	return sc
}

// newClock starts the configured audio backend, falling back to the
// simulated clock when mpv cannot be reached.
func newClock(ctx context.Context, cfg *config.Config, durations *trackDurations, volume int) audio.Clock {
	switch cfg.AudioBackend {
	case "mpv":
		clock, err := audio.NewMPV(ctx, audio.MPVConfig{
			SocketPath:     cfg.MPVSocketPath,
			StartInstance:  cfg.MPVStartInstance,
			ConnectTimeout: cfg.MPVConnectTimeout,
			Volume:         volume,
		})
		if err == nil {
			return clock
		}
		log.Printf("Warning: mpv unavailable (%v), using simulated clock", err)
	case "simulated":
	default:
		log.Printf("Warning: %v, using simulated clock",
			showerr.New(showerr.KindConfig, "unknown audio backend %q", cfg.AudioBackend))
	}
	return audio.NewSimulated(durations.lookup)
}

// trackDurations feeds declared show durations to the simulated clock.
type trackDurations struct {
	mu sync.RWMutex
	m  map[string]time.Duration
}

func newTrackDurations(shows []*show.Show) *trackDurations {
	d := &trackDurations{}
	d.update(shows)
	return d
}

func (d *trackDurations) update(shows []*show.Show) {
	m := make(map[string]time.Duration, len(shows))
	for _, s := range shows {
		if s.Duration > 0 {
			m[s.Track] = s.Duration
		}
	}
	d.mu.Lock()
	d.m = m
	d.mu.Unlock()
}

func (d *trackDurations) lookup(track string) time.Duration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.m[track]
}

// printBanner prints the startup banner.
func printBanner(cfg *config.Config) {
	fmt.Println("============================================")
	fmt.Println("  LacyLights Show Sync")
	fmt.Printf("  Version: %s\n", Version)
	fmt.Printf("  Build:   %s\n", BuildTime)
	fmt.Printf("  Commit:  %s\n", GitCommit)
	fmt.Println("============================================")
	fmt.Printf("  Environment: %s\n", cfg.Env)
	fmt.Printf("  Listen:      %s\n", cfg.Addr())
	fmt.Printf("  Database:    %s\n", cfg.DatabaseURL)
	fmt.Printf("  Playlist:    %s\n", cfg.PlaylistFile)
	fmt.Printf("  LEDs:        %d (%s)\n", cfg.LEDCount, cfg.LEDColorOrder)
	fmt.Printf("  Render:      %d Hz\n", cfg.RenderRateHz)
	fmt.Printf("  Audio:       %s\n", cfg.AudioBackend)
	fmt.Printf("  Art-Net:     %v\n", cfg.ArtNetEnabled)
	fmt.Printf("  BLE:         %v\n", cfg.BLEEnabled)
	fmt.Println("============================================")
}
