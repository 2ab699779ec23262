// SPDX-License-Identifier: MIT
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	applog "tonecast/internal/log"
	"tonecast/pkg/bitint"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrMissingCredential is returned by Validate when a required credential
// is absent. The process must not start without it.
var ErrMissingCredential = errors.New("missing required credential")

// DefaultCandidates are searched, in order, when LoadConfig gets an empty path.
var DefaultCandidates = []string{"tonecast.yaml", "config.yaml"}

// EnvFile is loaded into the process environment before overrides are
// applied. Variables already set in the environment win.
var EnvFile = ".env"

// LoadConfig loads configuration from the YAML file at path. If path is
// empty, DefaultCandidates are searched and built-in defaults are used when
// none exists. The .env file and ENV_* overrides are applied afterwards.
// The result is not validated: callers apply command line overrides first
// and then call Validate.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		for _, candidate := range DefaultCandidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		applog.Debugf("Config: Loaded %s", path)
	}

	if err := loadEnvFile(EnvFile); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()
	return &cfg, nil
}

func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// Validate checks ranges, cross-field consistency and the presence of the
// required credentials. All problems are reported together.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	a := c.Audio
	if a.SampleRate < MinSampleRate || a.SampleRate > MaxSampleRate {
		add("audio.sample_rate %.0f out of range [%d, %d]", a.SampleRate, MinSampleRate, MaxSampleRate)
	}
	if !bitint.IsPowerOfTwo(a.FrameSize) {
		add("audio.frame_size %d is not a power of two (try %d or %d)", a.FrameSize, bitint.PrevPowerOfTwo(a.FrameSize), bitint.NextPowerOfTwo(a.FrameSize))
	} else if a.FrameSize < MinFrameSize || a.FrameSize > MaxFrameSize {
		add("audio.frame_size %d out of range [%d, %d]", a.FrameSize, MinFrameSize, MaxFrameSize)
	}
	if a.Channels < 1 {
		add("audio.channels must be at least 1, got %d", a.Channels)
	}
	if a.InputDevice < MinDeviceID {
		add("audio.input_device %d is invalid", a.InputDevice)
	}
	if a.RestartDelay <= 0 {
		add("audio.restart_delay must be positive")
	}
	switch a.CaptureMode {
	case CaptureModePortAudio:
	case CaptureModeCommand:
		if len(a.CaptureCommand) == 0 {
			add("audio.capture_command must be set in command mode")
		}
	case CaptureModeFile:
		if a.FallbackFile == "" {
			add("audio.fallback_file must be set in file mode")
		}
	default:
		add("audio.capture_mode %q is not one of portaudio, command, file", a.CaptureMode)
	}

	n := c.Analysis
	if n.SmoothingWindow < 1 {
		add("analysis.smoothing_window must be at least 1, got %d", n.SmoothingWindow)
	}
	if n.MinConfidence <= 0 || n.MinConfidence > 1 {
		add("analysis.min_confidence %.2f out of range (0, 1]", n.MinConfidence)
	}
	if n.MinMagnitude < 0 {
		add("analysis.min_magnitude must not be negative")
	}
	if n.LowThresholdHz >= n.HighThresholdHz {
		add("analysis.low_threshold_hz %.1f must be below high_threshold_hz %.1f", n.LowThresholdHz, n.HighThresholdHz)
	}
	s := n.Signature
	if s.LowMinHz > s.LowMaxHz || s.HighMinHz > s.HighMaxHz {
		add("analysis.signature windows must have min <= max")
	}
	for i := 1; i < len(n.ColorBands); i++ {
		if n.ColorBands[i].BelowHz <= n.ColorBands[i-1].BelowHz {
			add("analysis.color_bands must be ordered by ascending below_hz")
			break
		}
	}
	if n.DefaultColor == "" || n.NeutralColor == "" {
		add("analysis.default_color and analysis.neutral_color must be set")
	}
	for _, b := range n.SymbolBands {
		if b.Symbol == "" || b.LowHz >= b.HighHz {
			add("analysis.symbol_bands entry %+v is invalid", b)
		}
	}

	if c.Pipeline.MinDispatchInterval < 0 {
		add("pipeline.min_dispatch_interval must not be negative")
	}

	k := c.Sinks
	if k.LogFile == "" {
		add("sinks.log_file must be set")
	}
	if k.MaxInFlight < 1 {
		add("sinks.max_in_flight must be at least 1")
	}
	if k.Webhook.Enabled {
		if k.Webhook.URL == "" {
			add("sinks.webhook.url must be set when the webhook is enabled")
		}
		if k.Webhook.EncryptionEnabled {
			if _, err := c.WebhookKey(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if k.Assistant.Enabled && (k.Assistant.Endpoint == "" || k.Assistant.TokenURL == "") {
		add("sinks.assistant.endpoint and token_url must be set when the assistant is enabled")
	}
	if k.TTS.Enabled && len(k.TTS.Command) == 0 {
		add("sinks.tts.command must be set when tts is enabled")
	}
	if k.Haptic.Enabled && len(k.Haptic.Command) == 0 {
		add("sinks.haptic.command must be set when haptic is enabled")
	}
	if k.UDP.Enabled {
		if _, _, err := net.SplitHostPort(k.UDP.TargetAddress); err != nil {
			add("sinks.udp.target_address %q appears invalid: %v", k.UDP.TargetAddress, err)
		}
	}

	if c.Server.ListenAddr == "" {
		add("server.listen_addr must be set")
	}
	if c.Server.SSERetry <= 0 {
		add("server.sse_retry must be positive")
	}

	cr := c.Credentials
	if cr.AssistantClientID == "" || cr.AssistantClientSecret == "" {
		errs = append(errs, fmt.Errorf("%w: voice-assistant client id and secret (ENV_ASSISTANT_CLIENT_ID, ENV_ASSISTANT_CLIENT_SECRET)", ErrMissingCredential))
	}
	if cr.GenerationAPIKey == "" {
		errs = append(errs, fmt.Errorf("%w: message-generation API key (ENV_GENERATION_API_KEY)", ErrMissingCredential))
	}

	return errors.Join(errs...)
}

// WebhookKey decodes the hex webhook encryption key into 32 raw bytes.
func (c *Config) WebhookKey() ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(c.Sinks.Webhook.EncryptionKey))
	if err != nil {
		return nil, fmt.Errorf("sinks.webhook.encryption_key is not hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("sinks.webhook.encryption_key must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// applyEnvOverrides applies ENV_* variables on top of the loaded values.
// Unparseable values are logged and ignored.
func (c *Config) applyEnvOverrides() {
	str := func(name string, dst *string) {
		if val, ok := os.LookupEnv(name); ok {
			*dst = val
			applog.Debugf("Config: Overriding from %s", name)
		}
	}

	if val, ok := os.LookupEnv("ENV_DEBUG"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Debug = b
		} else {
			applog.Warnf("Config: Ignoring ENV_DEBUG=%q: %v", val, err)
		}
	}
	if val, ok := os.LookupEnv("ENV_AUDIO_DEVICE"); ok {
		if n, err := strconv.Atoi(val); err == nil {
			c.Audio.InputDevice = n
		} else {
			applog.Warnf("Config: Ignoring ENV_AUDIO_DEVICE=%q: %v", val, err)
		}
	}
	if val, ok := os.LookupEnv("ENV_RESTART_DELAY"); ok {
		if d, err := time.ParseDuration(val); err == nil {
			c.Audio.RestartDelay = d
		} else {
			applog.Warnf("Config: Ignoring ENV_RESTART_DELAY=%q: %v", val, err)
		}
	}

	str("ENV_LOG_LEVEL", &c.LogLevel)
	str("ENV_CAPTURE_MODE", &c.Audio.CaptureMode)
	str("ENV_FALLBACK_FILE", &c.Audio.FallbackFile)
	str("ENV_LISTEN_ADDR", &c.Server.ListenAddr)
	str("ENV_WEBHOOK_URL", &c.Sinks.Webhook.URL)
	str("ENV_WEBHOOK_KEY", &c.Sinks.Webhook.EncryptionKey)
	str("ENV_ASSISTANT_CLIENT_ID", &c.Credentials.AssistantClientID)
	str("ENV_ASSISTANT_CLIENT_SECRET", &c.Credentials.AssistantClientSecret)
	str("ENV_GENERATION_API_KEY", &c.Credentials.GenerationAPIKey)
	str("ENV_GENERATION_MODEL", &c.Credentials.GenerationModel)
}
