package capability

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

var (
	ErrNoSelfID      = errors.New("capability: vehicle id not configured")
	ErrInvalidSelfID = errors.New("capability: invalid vehicle id")
)

// SelfIDProvider supplies the local vehicle id once at startup.
type SelfIDProvider interface {
	SelfID() (string, error)
}

// StaticID is an id fixed by configuration or flags.
type StaticID string

func (s StaticID) SelfID() (string, error) {
	return ValidateSelfID(string(s))
}

// FileID reads the id from a small text file written by the setup keyboard.
type FileID struct {
	Path string
}

func (f FileID) SelfID() (string, error) {
	if strings.TrimSpace(f.Path) == "" {
		return "", ErrNoSelfID
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s missing", ErrNoSelfID, f.Path)
		}
		return "", err
	}
	return ValidateSelfID(string(data))
}

// FirstOf tries providers in order and returns the first configured id.
type FirstOf []SelfIDProvider

func (p FirstOf) SelfID() (string, error) {
	for _, provider := range p {
		if provider == nil {
			continue
		}
		id, err := provider.SelfID()
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, ErrNoSelfID) {
			return "", err
		}
	}
	return "", ErrNoSelfID
}

// ValidateSelfID trims id and rejects values the wire format cannot carry.
func ValidateSelfID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", ErrNoSelfID
	}
	if strings.ContainsAny(id, ",\r\n") {
		return "", fmt.Errorf("%w: %q", ErrInvalidSelfID, id)
	}
	return id, nil
}
