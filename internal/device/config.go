package device

import (
	"strings"
	"time"

	"github.com/danmuck/carlink/internal/exchange"
	"github.com/danmuck/carlink/internal/link"
)

const DefaultShutdownTimeout = 2 * time.Second

// OutgoingConfig controls the record → transcribe → send pipeline.
type OutgoingConfig struct {
	RecordDuration time.Duration
	SampleRate     int
	Language       string
	AckTimeout     time.Duration
}

// IncomingConfig controls speech playback of accepted messages.
type IncomingConfig struct {
	ChunkSize int
}

// ServiceConfig configures the device runtime.
type ServiceConfig struct {
	Link            link.Config
	Outgoing        OutgoingConfig
	Incoming        IncomingConfig
	ShutdownTimeout time.Duration
}

// Device service defaults for a single-vehicle runtime.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Link: link.DefaultConfig(),
		Outgoing: OutgoingConfig{
			RecordDuration: exchange.RecordDuration,
			SampleRate:     exchange.SampleRate,
			Language:       exchange.DefaultLanguage,
			AckTimeout:     exchange.DefaultAckTimeout,
		},
		Incoming: IncomingConfig{
			ChunkSize: exchange.SpeechChunkRunes,
		},
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

// WithDefaults fills zero values from DefaultServiceConfig.
func (c ServiceConfig) WithDefaults() ServiceConfig {
	def := DefaultServiceConfig()
	c.Link = c.Link.WithDefaults()
	if c.Outgoing.RecordDuration <= 0 {
		c.Outgoing.RecordDuration = def.Outgoing.RecordDuration
	}
	if c.Outgoing.SampleRate <= 0 {
		c.Outgoing.SampleRate = def.Outgoing.SampleRate
	}
	if strings.TrimSpace(c.Outgoing.Language) == "" {
		c.Outgoing.Language = def.Outgoing.Language
	}
	if c.Outgoing.AckTimeout <= 0 {
		c.Outgoing.AckTimeout = def.Outgoing.AckTimeout
	}
	if c.Incoming.ChunkSize <= 0 {
		c.Incoming.ChunkSize = def.Incoming.ChunkSize
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}
	return c
}
