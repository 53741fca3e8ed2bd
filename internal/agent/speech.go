package agent

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Segment is one bounded capture of caller audio.
type Segment struct {
	Data     []byte
	Format   string
	Duration time.Duration
}

// AudioSource opens the caller's input device.
type AudioSource interface {
	Open(ctx context.Context) (Stream, error)
}

// Stream is an open capture. Capture records until the caller stops
// speaking or ctx is done, and returns what was recorded so far.
type Stream interface {
	Capture(ctx context.Context) (Segment, error)
	Close() error
}

// Transcriber turns captured audio into text. Failures should be reported
// as *TranscriptionError so the caller can tell them apart.
type Transcriber interface {
	Transcribe(ctx context.Context, seg Segment) (string, error)
}

// Synthesizer speaks text aloud and returns once playback has finished.
type Synthesizer interface {
	Speak(ctx context.Context, text string) error
}

// FailureKind classifies a failed transcription.
type FailureKind string

const (
	FailureNoSpeech FailureKind = "no-speech"
	FailureNetwork  FailureKind = "network"
	FailureDevice   FailureKind = "device"
	FailureOther    FailureKind = "other"
)

// TranscriptionError aborts a single turn.
type TranscriptionError struct {
	Kind FailureKind
	Err  error
}

func (e *TranscriptionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("transcription failed: %s", e.Kind)
	}
	return fmt.Sprintf("transcription failed: %s: %v", e.Kind, e.Err)
}

func (e *TranscriptionError) Unwrap() error { return e.Err }

// UserMessage is the text shown to the caller for this failure.
func (e *TranscriptionError) UserMessage() string {
	switch e.Kind {
	case FailureNoSpeech:
		return "No speech detected. Please speak clearly and try again."
	case FailureNetwork:
		return "Network error. Please check your connection."
	case FailureDevice:
		return "Microphone not working. Please check permissions."
	default:
		return "Speech recognition error. Please try again."
	}
}

func classify(err error, fallback FailureKind) *TranscriptionError {
	var te *TranscriptionError
	if errors.As(err, &te) {
		return te
	}
	return &TranscriptionError{Kind: fallback, Err: err}
}
