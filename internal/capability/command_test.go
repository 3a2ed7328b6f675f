package capability

import (
	"context"
	"errors"
	"os"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/carlink/internal/testutil/testlog"
)

func TestCommandCapturerExpandsTemplateAndKeepsClip(t *testing.T) {
	testlog.Start(t)
	r := &fakeRunner{writeOut: []byte("RIFF....WAVE")}
	c := CommandCapturer{Runner: r, Argv: DefaultCaptureCommand, TempDir: t.TempDir()}

	clip, err := c.Capture(context.Background(), 5*time.Second, 44100)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	call := r.last()
	if call.name != "arecord" {
		t.Fatalf("unexpected binary %q", call.name)
	}
	joined := strings.Join(call.args, " ")
	if !strings.Contains(joined, "-d 5 -r 44100 -c 1") || call.args[len(call.args)-1] != clip.Path {
		t.Fatalf("unexpected args %q", joined)
	}
	if clip.SampleRate != 44100 || clip.Duration != 5*time.Second {
		t.Fatalf("unexpected clip %+v", clip)
	}

	if err := clip.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := os.Stat(clip.Path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("clip file must be removed, stat err=%v", err)
	}
	if err := clip.Release(); err != nil {
		t.Fatalf("second release: %v", err)
	}
}

func TestCommandCapturerFailureReleasesTempFile(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	r := &fakeRunner{err: errors.New("exit status 1"), code: 1, stderr: "no capture device"}
	c := CommandCapturer{Runner: r, Argv: DefaultCaptureCommand, TempDir: dir}

	_, err := c.Capture(context.Background(), time.Second, 16000)
	if !errors.Is(err, ErrCapture) || !strings.Contains(err.Error(), "no capture device") {
		t.Fatalf("expected ErrCapture with stderr, got %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("temp files leaked: %d", len(entries))
	}

	empty := CommandCapturer{Runner: &fakeRunner{}, Argv: DefaultCaptureCommand, TempDir: dir}
	if _, err := empty.Capture(context.Background(), time.Second, 16000); !errors.Is(err, ErrCapture) {
		t.Fatalf("empty recording must fail capture, got %v", err)
	}
	if _, err := (CommandCapturer{TempDir: dir}).Capture(context.Background(), time.Second, 1); !errors.Is(err, ErrEmptyCommand) {
		t.Fatalf("expected ErrEmptyCommand, got %v", err)
	}
}

func TestCommandTranscriberNormalizesWhitespace(t *testing.T) {
	testlog.Start(t)
	r := &fakeRunner{stdout: "\n  앞차   조심\n하세요 \n"}
	tr := CommandTranscriber{Runner: r, Argv: DefaultTranscribeCommand}
	clip := NewClip("/tmp/in.wav", 44100, time.Second, nil)

	text, err := tr.Transcribe(context.Background(), clip, "ko")
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "앞차 조심 하세요" {
		t.Fatalf("unexpected text %q", text)
	}
	want := []string{"-m", "models/ggml-tiny.bin", "-l", "ko", "-nt", "-np", "-f", "/tmp/in.wav"}
	if got := r.last().args; !reflect.DeepEqual(got, want) {
		t.Fatalf("args=%q want=%q", got, want)
	}

	r.err = errors.New("exit status 2")
	if _, err := tr.Transcribe(context.Background(), clip, "ko"); !errors.Is(err, ErrTranscription) {
		t.Fatalf("expected ErrTranscription, got %v", err)
	}
	if _, err := tr.Transcribe(context.Background(), nil, "ko"); !errors.Is(err, ErrTranscription) {
		t.Fatalf("nil clip must fail, got %v", err)
	}
}

func TestCommandSpeakerPassesTextVerbatim(t *testing.T) {
	testlog.Start(t)
	r := &fakeRunner{}
	s := CommandSpeaker{Runner: r, Argv: DefaultSpeakCommand}
	if err := s.Speak(context.Background(), "say {text} twice"); err != nil {
		t.Fatalf("speak: %v", err)
	}
	want := []string{"-s", "150", "say {text} twice"}
	if got := r.last().args; !reflect.DeepEqual(got, want) {
		t.Fatalf("args=%q want=%q", got, want)
	}

	r.err = errors.New("exit status 1")
	if err := s.Speak(context.Background(), "x"); !errors.Is(err, ErrSynthesis) {
		t.Fatalf("expected ErrSynthesis, got %v", err)
	}
}

func TestCommandAdaptersKeepCauseInChain(t *testing.T) {
	testlog.Start(t)
	ctx := context.Background()
	clip := NewClip("/tmp/in.wav", 44100, time.Second, nil)

	if _, err := (CommandCapturer{TempDir: t.TempDir()}).Capture(ctx, time.Second, 1); !errors.Is(err, ErrCapture) || !errors.Is(err, ErrEmptyCommand) {
		t.Fatalf("capture: expected ErrCapture and ErrEmptyCommand, got %v", err)
	}
	if _, err := (CommandTranscriber{}).Transcribe(ctx, clip, "ko"); !errors.Is(err, ErrTranscription) || !errors.Is(err, ErrEmptyCommand) {
		t.Fatalf("transcribe: expected ErrTranscription and ErrEmptyCommand, got %v", err)
	}
	if err := (CommandSpeaker{}).Speak(ctx, "x"); !errors.Is(err, ErrSynthesis) || !errors.Is(err, ErrEmptyCommand) {
		t.Fatalf("speak: expected ErrSynthesis and ErrEmptyCommand, got %v", err)
	}

	cause := errors.New("exit status 3")
	r := &fakeRunner{err: cause, code: 3}
	if err := (CommandSpeaker{Runner: r, Argv: DefaultSpeakCommand}).Speak(ctx, "x"); !errors.Is(err, cause) {
		t.Fatalf("speak: runner error must stay in the chain, got %v", err)
	}
	if _, err := (CommandTranscriber{Runner: r, Argv: DefaultTranscribeCommand}).Transcribe(ctx, clip, "ko"); !errors.Is(err, cause) {
		t.Fatalf("transcribe: runner error must stay in the chain, got %v", err)
	}
}
