// Package config loads and renders the carlink TOML configuration.
//
// Loading overlays only the keys present in a file onto Default(), so a partial
// file never resets unrelated settings.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/carlink/internal/capability"
	"github.com/danmuck/carlink/internal/control"
	"github.com/danmuck/carlink/internal/device"
)

const DefaultSelfIDFile = "vehicle_info.txt"

var ErrInvalid = errors.New("config: invalid")

// File mirrors the on-disk layout.
type File struct {
	SelfID          string `toml:"self_id,omitempty"`
	SelfIDFile      string `toml:"self_id_file"`
	ShutdownTimeout string `toml:"shutdown_timeout"`

	Link struct {
		Port         string `toml:"port"`
		BaudRate     int    `toml:"baud_rate"`
		ReadTimeout  string `toml:"read_timeout"`
		PollInterval string `toml:"poll_interval"`
		MaxLineBytes int    `toml:"max_line_bytes"`
	} `toml:"link"`

	Outgoing struct {
		RecordDuration string `toml:"record_duration"`
		SampleRate     int    `toml:"sample_rate"`
		Language       string `toml:"language"`
		AckTimeout     string `toml:"ack_timeout"`
	} `toml:"outgoing"`

	Incoming struct {
		ChunkSize int `toml:"chunk_size"`
	} `toml:"incoming"`

	Audio struct {
		TempDir           string   `toml:"temp_dir"`
		CaptureCommand    []string `toml:"capture_command"`
		TranscribeCommand []string `toml:"transcribe_command"`
		SpeakCommand      []string `toml:"speak_command"`
	} `toml:"audio"`

	Control struct {
		ListenAddr  string   `toml:"listen_addr"`
		CORSOrigins []string `toml:"cors_origins"`
		AuthToken   string   `toml:"auth_token,omitempty"`
	} `toml:"control"`

	History struct {
		Path string `toml:"path"`
	} `toml:"history"`
}

// Audio holds the argv templates for the process-backed capabilities.
type Audio struct {
	TempDir           string
	CaptureCommand    []string
	TranscribeCommand []string
	SpeakCommand      []string
}

// App is the resolved runtime configuration.
type App struct {
	SelfID      string
	SelfIDFile  string
	Service     device.ServiceConfig
	Audio       Audio
	Control     control.Config
	HistoryPath string
}

func Default() App {
	return App{
		SelfIDFile: DefaultSelfIDFile,
		Service:    device.DefaultServiceConfig(),
		Audio: Audio{
			CaptureCommand:    capability.DefaultCaptureCommand,
			TranscribeCommand: capability.DefaultTranscribeCommand,
			SpeakCommand:      capability.DefaultSpeakCommand,
		},
		Control: control.DefaultConfig(),
	}
}

// Load overlays the keys defined in path onto Default. An empty path returns the
// defaults. Unknown keys are rejected.
func Load(path string) (App, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	var raw File
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return App{}, fmt.Errorf("load carlink config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return App{}, fmt.Errorf("%w: unknown key %q in %s", ErrInvalid, undecoded[0].String(), path)
	}

	if meta.IsDefined("self_id") {
		cfg.SelfID = strings.TrimSpace(raw.SelfID)
	}
	if meta.IsDefined("self_id_file") {
		cfg.SelfIDFile = strings.TrimSpace(raw.SelfIDFile)
	}
	if meta.IsDefined("shutdown_timeout") {
		if cfg.Service.ShutdownTimeout, err = parseDuration("shutdown_timeout", raw.ShutdownTimeout); err != nil {
			return App{}, err
		}
	}

	svc := &cfg.Service
	if meta.IsDefined("link", "port") {
		svc.Link.Port = strings.TrimSpace(raw.Link.Port)
	}
	if meta.IsDefined("link", "baud_rate") {
		svc.Link.BaudRate = raw.Link.BaudRate
	}
	if meta.IsDefined("link", "read_timeout") {
		if svc.Link.ReadTimeout, err = parseDuration("link.read_timeout", raw.Link.ReadTimeout); err != nil {
			return App{}, err
		}
	}
	if meta.IsDefined("link", "poll_interval") {
		if svc.Link.PollInterval, err = parseDuration("link.poll_interval", raw.Link.PollInterval); err != nil {
			return App{}, err
		}
	}
	if meta.IsDefined("link", "max_line_bytes") {
		svc.Link.MaxLineBytes = raw.Link.MaxLineBytes
	}

	if meta.IsDefined("outgoing", "record_duration") {
		if svc.Outgoing.RecordDuration, err = parseDuration("outgoing.record_duration", raw.Outgoing.RecordDuration); err != nil {
			return App{}, err
		}
	}
	if meta.IsDefined("outgoing", "sample_rate") {
		svc.Outgoing.SampleRate = raw.Outgoing.SampleRate
	}
	if meta.IsDefined("outgoing", "language") {
		svc.Outgoing.Language = strings.TrimSpace(raw.Outgoing.Language)
	}
	if meta.IsDefined("outgoing", "ack_timeout") {
		if svc.Outgoing.AckTimeout, err = parseDuration("outgoing.ack_timeout", raw.Outgoing.AckTimeout); err != nil {
			return App{}, err
		}
	}
	if meta.IsDefined("incoming", "chunk_size") {
		svc.Incoming.ChunkSize = raw.Incoming.ChunkSize
	}

	if meta.IsDefined("audio", "temp_dir") {
		cfg.Audio.TempDir = strings.TrimSpace(raw.Audio.TempDir)
	}
	if meta.IsDefined("audio", "capture_command") {
		cfg.Audio.CaptureCommand = raw.Audio.CaptureCommand
	}
	if meta.IsDefined("audio", "transcribe_command") {
		cfg.Audio.TranscribeCommand = raw.Audio.TranscribeCommand
	}
	if meta.IsDefined("audio", "speak_command") {
		cfg.Audio.SpeakCommand = raw.Audio.SpeakCommand
	}

	if meta.IsDefined("control", "listen_addr") {
		cfg.Control.ListenAddr = strings.TrimSpace(raw.Control.ListenAddr)
	}
	if meta.IsDefined("control", "cors_origins") {
		cfg.Control.CORSOrigins = raw.Control.CORSOrigins
	}
	if meta.IsDefined("control", "auth_token") {
		cfg.Control.AuthToken = strings.TrimSpace(raw.Control.AuthToken)
	}
	if meta.IsDefined("history", "path") {
		cfg.HistoryPath = strings.TrimSpace(raw.History.Path)
	}

	if err := Validate(cfg); err != nil {
		return App{}, err
	}
	return cfg, nil
}

// Validate rejects settings the runtime cannot start with.
func Validate(cfg App) error {
	if err := cfg.Service.Link.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if strings.TrimSpace(cfg.SelfID) != "" {
		if _, err := capability.ValidateSelfID(cfg.SelfID); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}
	commands := map[string][]string{
		"audio.capture_command":    cfg.Audio.CaptureCommand,
		"audio.transcribe_command": cfg.Audio.TranscribeCommand,
		"audio.speak_command":      cfg.Audio.SpeakCommand,
	}
	for key, argv := range commands {
		if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
			return fmt.Errorf("%w: %s must name a program", ErrInvalid, key)
		}
	}
	if cfg.Service.Outgoing.SampleRate < 0 || cfg.Service.Incoming.ChunkSize < 0 {
		return fmt.Errorf("%w: sample_rate and chunk_size must not be negative", ErrInvalid)
	}
	return nil
}

// SelfIDProvider prefers an explicit id over the id file.
func (c App) SelfIDProvider() capability.SelfIDProvider {
	return capability.FirstOf{
		capability.StaticID(c.SelfID),
		capability.FileID{Path: c.SelfIDFile},
	}
}

func parseDuration(key, value string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%w: parse %s: %v", ErrInvalid, key, err)
	}
	return d, nil
}
