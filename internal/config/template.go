package config

import (
	"fmt"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

const templateHeader = "# carlink configuration. Every key is optional; omitted keys keep their defaults.\n\n"

// ToFile converts a resolved configuration back to its on-disk form.
func ToFile(cfg App) File {
	var f File
	f.SelfID = cfg.SelfID
	f.SelfIDFile = cfg.SelfIDFile
	f.ShutdownTimeout = cfg.Service.ShutdownTimeout.String()

	l := cfg.Service.Link
	f.Link.Port = l.Port
	f.Link.BaudRate = l.BaudRate
	f.Link.ReadTimeout = l.ReadTimeout.String()
	f.Link.PollInterval = l.PollInterval.String()
	f.Link.MaxLineBytes = l.MaxLineBytes

	o := cfg.Service.Outgoing
	f.Outgoing.RecordDuration = o.RecordDuration.String()
	f.Outgoing.SampleRate = o.SampleRate
	f.Outgoing.Language = o.Language
	f.Outgoing.AckTimeout = o.AckTimeout.String()
	f.Incoming.ChunkSize = cfg.Service.Incoming.ChunkSize

	f.Audio.TempDir = cfg.Audio.TempDir
	f.Audio.CaptureCommand = cfg.Audio.CaptureCommand
	f.Audio.TranscribeCommand = cfg.Audio.TranscribeCommand
	f.Audio.SpeakCommand = cfg.Audio.SpeakCommand

	f.Control.ListenAddr = cfg.Control.ListenAddr
	f.Control.CORSOrigins = cfg.Control.CORSOrigins
	f.Control.AuthToken = cfg.Control.AuthToken
	f.History.Path = cfg.HistoryPath
	return f
}

// Render encodes cfg as a complete TOML document.
func Render(cfg App) ([]byte, error) {
	body, err := toml.Marshal(ToFile(cfg))
	if err != nil {
		return nil, fmt.Errorf("config: render: %w", err)
	}
	return append([]byte(templateHeader), body...), nil
}

// WriteTemplate writes the default configuration to path.
func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	data, err := Render(Default())
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create dir: %w", err)
		}
	}
	return os.WriteFile(path, data, 0o600)
}
