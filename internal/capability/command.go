package capability

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/carlink/internal/tools"
	"github.com/rs/zerolog/log"
)

const maxStderrInError = 200

var ErrEmptyCommand = errors.New("capability: empty command")

// Default argv templates. Placeholders are replaced per call.
var (
	DefaultCaptureCommand = []string{
		"arecord", "-q", "-d", "{seconds}", "-r", "{rate}", "-c", "1", "-f", "S16_LE", "-t", "wav", "{out}",
	}
	DefaultTranscribeCommand = []string{
		"whisper-cli", "-m", "models/ggml-tiny.bin", "-l", "{lang}", "-nt", "-np", "-f", "{in}",
	}
	DefaultSpeakCommand = []string{
		"espeak", "-s", "150", "{text}",
	}
)

// CommandCapturer records by running an external recorder into a temp WAV file.
// Placeholders: {out} {seconds} {rate}.
type CommandCapturer struct {
	Runner  tools.CommandRunner
	Argv    []string
	TempDir string
}

func (c CommandCapturer) Capture(ctx context.Context, duration time.Duration, sampleRate int) (*Clip, error) {
	if len(c.Argv) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrCapture, ErrEmptyCommand)
	}
	clip, err := NewTempClip(c.TempDir, sampleRate, duration)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCapture, err)
	}
	argv := expand(c.Argv, map[string]string{
		"{out}":     clip.Path,
		"{seconds}": strconv.Itoa(int(math.Ceil(duration.Seconds()))),
		"{rate}":    strconv.Itoa(sampleRate),
	})
	if _, stderr, code, err := runner(c.Runner).Run(ctx, argv[0], argv[1:]...); err != nil {
		_ = clip.Release()
		return nil, fmt.Errorf("%w: %s exit=%d: %w%s", ErrCapture, argv[0], code, err, stderrSuffix(stderr))
	}
	info, err := os.Stat(clip.Path)
	if err != nil || info.Size() == 0 {
		_ = clip.Release()
		return nil, fmt.Errorf("%w: recording missing or empty", ErrCapture)
	}
	log.Debug().Str("path", clip.Path).Int64("bytes", info.Size()).Msg("capability: clip recorded")
	return clip, nil
}

// CommandTranscriber runs an external speech-to-text tool and reads its stdout.
// Placeholders: {in} {lang}.
type CommandTranscriber struct {
	Runner tools.CommandRunner
	Argv   []string
}

func (t CommandTranscriber) Transcribe(ctx context.Context, clip *Clip, language string) (string, error) {
	if len(t.Argv) == 0 {
		return "", fmt.Errorf("%w: %w", ErrTranscription, ErrEmptyCommand)
	}
	if clip == nil || clip.Path == "" {
		return "", fmt.Errorf("%w: no recording", ErrTranscription)
	}
	argv := expand(t.Argv, map[string]string{
		"{in}":   clip.Path,
		"{lang}": language,
	})
	stdout, stderr, code, err := runner(t.Runner).Run(ctx, argv[0], argv[1:]...)
	if err != nil {
		return "", fmt.Errorf("%w: %s exit=%d: %w%s", ErrTranscription, argv[0], code, err, stderrSuffix(stderr))
	}
	return strings.Join(strings.Fields(string(stdout)), " "), nil
}

// CommandSpeaker runs an external synthesizer for each chunk.
// Placeholder: {text}.
type CommandSpeaker struct {
	Runner tools.CommandRunner
	Argv   []string
}

func (s CommandSpeaker) Speak(ctx context.Context, text string) error {
	if len(s.Argv) == 0 {
		return fmt.Errorf("%w: %w", ErrSynthesis, ErrEmptyCommand)
	}
	argv := expand(s.Argv, map[string]string{"{text}": text})
	if _, stderr, code, err := runner(s.Runner).Run(ctx, argv[0], argv[1:]...); err != nil {
		return fmt.Errorf("%w: %s exit=%d: %w%s", ErrSynthesis, argv[0], code, err, stderrSuffix(stderr))
	}
	return nil
}

func runner(r tools.CommandRunner) tools.CommandRunner {
	if r == nil {
		return tools.ExecRunner{}
	}
	return r
}

// expand substitutes placeholders argument by argument; substituted values are
// never re-scanned, so user text cannot inject further placeholders.
func expand(argv []string, values map[string]string) []string {
	pairs := make([]string, 0, len(values)*2)
	for k, v := range values {
		pairs = append(pairs, k, v)
	}
	r := strings.NewReplacer(pairs...)
	out := make([]string, len(argv))
	for i, arg := range argv {
		out[i] = r.Replace(arg)
	}
	return out
}

func stderrSuffix(stderr []byte) string {
	msg := strings.TrimSpace(string(stderr))
	if msg == "" {
		return ""
	}
	if len(msg) > maxStderrInError {
		msg = msg[:maxStderrInError]
	}
	return ": " + msg
}
