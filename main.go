// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"tonecast/cmd"
	"tonecast/internal/audio"
	"tonecast/internal/config"
	"tonecast/internal/dispatch"
	"tonecast/internal/dispatch/udp"
	log "tonecast/internal/log"
	"tonecast/internal/message"
	"tonecast/internal/observe"
	"tonecast/internal/phrasegen"
	"tonecast/internal/pipeline"
	"tonecast/internal/server"
	"tonecast/internal/tui"
	"tonecast/pkg/build"

	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 5 * time.Second
	monitorLogFile  = "tonecast.log"
)

// main is the entry point of the daemon. The program flow is divided into
// three phases:
//
// 1. Startup phase:
//   - Initialize build information
//   - Parse command line arguments and load configuration
//   - Execute one-off commands if requested
//   - Build the dispatch hub, its sinks and the capture source
//
// 2. Concurrent phase:
//   - Supervise capture and feed chunks into the pipeline
//   - Serve the HTTP surface
//   - Run the terminal monitor if enabled
//
// 3. Shutdown phase:
//   - Handle termination signals
//   - Drain the pipeline before closing sinks
//   - Stop the server, the recorder and the meter provider
func main() {
	if err := run(); err != nil {
		log.Errorf("%v", err)
		log.Sync()
		os.Exit(1)
	}
	log.Sync()
}

func run() error {
	// ==================== STARTUP PHASE ====================

	if err := build.Initialize(); err != nil {
		if !errors.Is(err, build.ErrMissingFlags) {
			return err
		}
		log.Debugf("Build: %v", err)
	}

	inv, err := cmd.ParseArgs(os.Args[1:])
	if err != nil {
		return err
	}
	if inv == nil {
		return nil
	}

	// Device listing needs neither configuration nor credentials.
	if inv.Command == cmd.CommandList {
		return listDevices()
	}

	cfg, err := loadConfig(inv)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if inv.Command == cmd.CommandDraft {
		return draftDictionary(ctx, cfg, inv)
	}
	return serve(ctx, stop, cfg, inv)
}

func loadConfig(inv *cmd.Invocation) (*config.Config, error) {
	cfg, err := config.LoadConfig(inv.ConfigPath)
	if err != nil {
		return nil, err
	}
	inv.Apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	level, ok := log.ParseLevel(cfg.LogLevel)
	if !ok {
		log.Warnf("Config: Unknown log level %q, keeping %s", cfg.LogLevel, log.GetLevel())
	} else {
		log.SetLevel(level)
	}
	if cfg.Debug {
		log.SetLevel(log.LevelDebug)
	}
	return cfg, nil
}

func listDevices() error {
	if err := audio.Initialize(); err != nil {
		return err
	}
	defer audio.Terminate()
	return audio.ListDevices(os.Stdout)
}

func draftDictionary(ctx context.Context, cfg *config.Config, inv *cmd.Invocation) error {
	drafter, err := phrasegen.New(cfg.Credentials.GenerationAPIKey, cfg.Credentials.GenerationModel)
	if err != nil {
		return err
	}
	dict, err := drafter.Draft(ctx, phrasegen.Keys(inv.DraftMaxLow, inv.DraftMaxHigh))
	if err != nil {
		return err
	}
	if err := message.SaveDictionary(inv.DraftOut, dict); err != nil {
		return err
	}
	fmt.Printf("Wrote %d phrases to %s\n", len(dict.Keys()), inv.DraftOut)
	return nil
}

func serve(ctx context.Context, stop context.CancelFunc, cfg *config.Config, inv *cmd.Invocation) error {
	info := build.Get()

	provider, err := observe.InitProvider(info.Name, info.Version)
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(sctx); err != nil {
			log.Warnf("Metrics: Shutdown: %v", err)
		}
	}()
	metrics, err := observe.NewMetrics(provider.MeterProvider)
	if err != nil {
		return fmt.Errorf("failed to create instruments: %w", err)
	}

	dict := message.DefaultDictionary()
	if path := cfg.Analysis.DictionaryFile; path != "" {
		if dict, err = message.LoadDictionary(path); err != nil {
			return err
		}
		log.Infof("Dictionary: Loaded %d phrases from %s", len(dict.Keys()), path)
	}
	synth := message.NewSynthesizer(dict)

	hub := dispatch.NewHub(dispatch.Options{
		MaxInFlight: int64(cfg.Sinks.MaxInFlight),
		Timeout:     config.DefaultSinkTimeout,
		Metrics:     metrics,
	})
	broadcast := dispatch.NewBroadcast(metrics)

	var monitor *tui.Monitor
	if inv.TUI {
		monitor = tui.NewMonitor(tui.DefaultHistory)
	}
	logs, err := registerSinks(hub, broadcast, monitor, cfg)
	if err != nil {
		hub.Close()
		return err
	}

	src, err := newSource(cfg)
	if err != nil {
		hub.Close()
		return err
	}
	if _, ok := src.(*audio.PortAudioSource); ok {
		if err := audio.Initialize(); err != nil {
			hub.Close()
			return err
		}
		defer audio.Terminate()
	}

	popts := pipeline.Options{Metrics: metrics}
	var recorder *audio.Recorder
	if cfg.Recording.Enabled {
		if err := os.MkdirAll(cfg.Recording.OutputDir, 0o755); err != nil {
			hub.Close()
			return fmt.Errorf("failed to create recording directory: %w", err)
		}
		path := audio.RecordingPath(cfg.Recording.OutputDir, time.Now())
		if recorder, err = audio.NewRecorder(path, int(cfg.Audio.SampleRate)); err != nil {
			hub.Close()
			return err
		}
		popts.Recorder = recorder
	}

	supervisor := audio.NewSupervisor(src, cfg.Audio.RestartDelay, metrics)
	popts.Running = supervisor.Running

	p, err := pipeline.New(*cfg, synth, hub, popts)
	if err != nil {
		hub.Close()
		return err
	}

	sopts := server.Options{
		Addr:     cfg.Server.ListenAddr,
		SSERetry: cfg.Server.SSERetry,
		Metrics:  provider.Handler,
	}
	if logs != nil {
		sopts.Logs = logs
	}
	srv := server.New(&p.State, broadcast, sopts)

	// ==================== CONCURRENT PHASE ====================

	if monitor != nil {
		f, err := os.OpenFile(monitorLogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			hub.Close()
			return fmt.Errorf("failed to open %s: %w", monitorLogFile, err)
		}
		defer f.Close()
		restore := log.RedirectTo(f)
		defer restore()
	}

	log.Infof("%s %s: Capturing via %s, serving on %s with %d sinks",
		info.Name, info.Version, src.Name(), cfg.Server.ListenAddr, hub.Len())

	g, gctx := errgroup.WithContext(ctx)
	events := make(chan audio.Event, 64)
	drained := make(chan struct{})

	g.Go(func() error {
		supervisor.Run(gctx, events)
		return nil
	})
	g.Go(func() error {
		defer close(drained)
		if err := p.Run(gctx, events); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return srv.Start()
	})
	if monitor != nil {
		g.Go(func() error {
			defer stop()
			return monitor.Run()
		})
	}

	// ==================== SHUTDOWN PHASE ====================

	g.Go(func() error {
		<-gctx.Done()
		<-drained

		// Closing the hub ends every live stream so the server can drain.
		if err := hub.Close(); err != nil {
			log.Warnf("Dispatch: Close: %v", err)
		}
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	err = g.Wait()

	if recorder != nil {
		if cerr := recorder.Close(); cerr != nil {
			log.Warnf("Recorder: Close: %v", cerr)
		} else {
			log.Infof("Recording saved to %s", recorder.Path())
		}
	}
	if failures := hub.Failures(); len(failures) > 0 {
		log.Infof("Dispatch: %d sink failures during this run, last: %s: %v",
			len(failures), failures[len(failures)-1].Sink, failures[len(failures)-1].Err)
	}
	return err
}

// registerSinks builds the configured sinks. The returned log file is nil
// when file logging is disabled.
func registerSinks(hub *dispatch.Hub, broadcast *dispatch.Broadcast, monitor *tui.Monitor, cfg *config.Config) (*dispatch.LogFile, error) {
	var logs *dispatch.LogFile
	if path := cfg.Sinks.LogFile; path != "" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create log directory: %w", err)
			}
		}
		var err error
		if logs, err = dispatch.OpenLogFile(path); err != nil {
			return nil, err
		}
		hub.Register(logs)
	}

	hub.Register(broadcast)

	if u := cfg.Sinks.UDP; u.Enabled {
		sender, err := udp.NewSender(u.TargetAddress)
		if err != nil {
			return logs, err
		}
		sink, err := udp.NewSink(sender)
		if err != nil {
			sender.Close()
			return logs, err
		}
		hub.Register(sink)
	}

	if monitor != nil {
		hub.Register(monitor)
	}

	if w := cfg.Sinks.Webhook; w.Enabled {
		var key []byte
		if w.EncryptionEnabled {
			var err error
			if key, err = cfg.WebhookKey(); err != nil {
				return logs, err
			}
		}
		sink, err := dispatch.NewWebhook(w.URL, key, &http.Client{Timeout: w.Timeout})
		if err != nil {
			return logs, err
		}
		hub.RegisterAsync(sink)
	}

	if a := cfg.Sinks.Assistant; a.Enabled {
		creds := &clientcredentials.Config{
			ClientID:     cfg.Credentials.AssistantClientID,
			ClientSecret: cfg.Credentials.AssistantClientSecret,
			TokenURL:     a.TokenURL,
			Scopes:       a.Scopes,
		}
		sink, err := dispatch.NewAssistant(a.Endpoint, creds, &http.Client{Timeout: a.Timeout})
		if err != nil {
			return logs, err
		}
		hub.RegisterAsync(sink)
	}

	actuators := []struct {
		name string
		cfg  config.CommandConfig
	}{
		{"tts", cfg.Sinks.TTS},
		{"haptic", cfg.Sinks.Haptic},
	}
	for _, a := range actuators {
		if !a.cfg.Enabled {
			continue
		}
		sink, err := dispatch.NewCommand(a.name, a.cfg.Command)
		if err != nil {
			return logs, err
		}
		hub.RegisterAsync(sink)
	}
	return logs, nil
}

func newSource(cfg *config.Config) (audio.Source, error) {
	a := cfg.Audio
	switch a.CaptureMode {
	case config.CaptureModePortAudio:
		return &audio.PortAudioSource{
			DeviceID:   a.InputDevice,
			Channels:   a.Channels,
			SampleRate: a.SampleRate,
			LowLatency: a.LowLatency,
		}, nil
	case config.CaptureModeCommand:
		return &audio.CommandSource{Argv: a.CaptureCommand}, nil
	case config.CaptureModeFile:
		return &audio.FileSource{
			Path:       a.FallbackFile,
			Realtime:   true,
			SampleRate: a.SampleRate,
		}, nil
	default:
		return nil, fmt.Errorf("unknown capture mode %q", a.CaptureMode)
	}
}
