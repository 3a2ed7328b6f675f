// Package capability defines the narrow interfaces through which the core reaches
// audio capture, speech-to-text, text-to-speech and the local vehicle id, plus
// process-backed implementations of each.
package capability

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"
)

var (
	ErrCapture       = errors.New("capability: capture failed")
	ErrTranscription = errors.New("capability: transcription failed")
	ErrSynthesis     = errors.New("capability: speech synthesis failed")
)

// Capturer records a fixed-length mono utterance.
type Capturer interface {
	Capture(ctx context.Context, duration time.Duration, sampleRate int) (*Clip, error)
}

// Transcriber turns a recorded clip into text in the given language.
type Transcriber interface {
	Transcribe(ctx context.Context, clip *Clip, language string) (string, error)
}

// Speaker synthesizes one chunk of text and returns when playback ends.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Clip is a captured recording. The owner must call Release on every path.
type Clip struct {
	Path       string
	SampleRate int
	Duration   time.Duration

	releaseOnce sync.Once
	release     func() error
	releaseErr  error
}

func NewClip(path string, sampleRate int, duration time.Duration, release func() error) *Clip {
	return &Clip{
		Path:       path,
		SampleRate: sampleRate,
		Duration:   duration,
		release:    release,
	}
}

// NewTempClip reserves an empty temporary WAV file that Release removes.
func NewTempClip(dir string, sampleRate int, duration time.Duration) (*Clip, error) {
	f, err := os.CreateTemp(dir, "carlink-*.wav")
	if err != nil {
		return nil, err
	}
	path := f.Name()
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return nil, err
	}
	return NewClip(path, sampleRate, duration, func() error {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}), nil
}

// Release frees the clip's backing storage. Safe to call more than once.
func (c *Clip) Release() error {
	if c == nil {
		return nil
	}
	c.releaseOnce.Do(func() {
		if c.release != nil {
			c.releaseErr = c.release()
		}
	})
	return c.releaseErr
}

// CaptureFunc adapts a function to Capturer.
type CaptureFunc func(ctx context.Context, duration time.Duration, sampleRate int) (*Clip, error)

func (f CaptureFunc) Capture(ctx context.Context, duration time.Duration, sampleRate int) (*Clip, error) {
	return f(ctx, duration, sampleRate)
}

// TranscribeFunc adapts a function to Transcriber.
type TranscribeFunc func(ctx context.Context, clip *Clip, language string) (string, error)

func (f TranscribeFunc) Transcribe(ctx context.Context, clip *Clip, language string) (string, error) {
	return f(ctx, clip, language)
}

// SpeakFunc adapts a function to Speaker.
type SpeakFunc func(ctx context.Context, text string) error

func (f SpeakFunc) Speak(ctx context.Context, text string) error {
	return f(ctx, text)
}
