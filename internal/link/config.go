package link

import (
	"errors"
	"strings"
	"time"
)

const (
	DefaultPort         = "/dev/serial0"
	DefaultBaudRate     = 115200
	DefaultReadTimeout  = time.Second
	DefaultPollInterval = 100 * time.Millisecond
	MaxPollInterval     = 250 * time.Millisecond
	DefaultMaxLineBytes = 4096
)

var (
	ErrPortRequired    = errors.New("link: port required")
	ErrInvalidBaudRate = errors.New("link: invalid baud rate")
)

// Config defines serial link parameters.
type Config struct {
	Port         string
	BaudRate     int
	ReadTimeout  time.Duration
	PollInterval time.Duration
	MaxLineBytes int
}

func DefaultConfig() Config {
	return Config{
		Port:         DefaultPort,
		BaudRate:     DefaultBaudRate,
		ReadTimeout:  DefaultReadTimeout,
		PollInterval: DefaultPollInterval,
		MaxLineBytes: DefaultMaxLineBytes,
	}
}

// WithDefaults fills unset fields and caps the poll interval.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	c.Port = strings.TrimSpace(c.Port)
	if c.BaudRate == 0 {
		c.BaudRate = def.BaudRate
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = def.ReadTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.PollInterval > MaxPollInterval {
		c.PollInterval = MaxPollInterval
	}
	if c.MaxLineBytes <= 0 {
		c.MaxLineBytes = def.MaxLineBytes
	}
	return c
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Port) == "" {
		return ErrPortRequired
	}
	if c.BaudRate <= 0 {
		return ErrInvalidBaudRate
	}
	return nil
}
