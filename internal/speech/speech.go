// Package speech provides the server-side speech collaborators used when
// no vendor recognizer or voice is attached.
package speech

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spec-kit/escalation-service/internal/agent"
)

// FormatText marks a segment whose bytes are already a UTF-8 transcript,
// as sent by clients that run recognition on-device.
const FormatText = "text/plain"

// BufferSource replays an uploaded recording as a single capture.
type BufferSource struct {
	Data   []byte
	Format string
}

func (b BufferSource) Open(ctx context.Context) (agent.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &bufferStream{seg: agent.Segment{Data: b.Data, Format: b.Format}}, nil
}

type bufferStream struct {
	seg    agent.Segment
	closed bool
}

func (s *bufferStream) Capture(ctx context.Context) (agent.Segment, error) {
	if s.closed {
		return agent.Segment{}, errors.New("stream closed")
	}
	return s.seg, ctx.Err()
}

func (s *bufferStream) Close() error {
	s.closed = true
	return nil
}

// TextTranscriber accepts segments that carry their own transcript.
type TextTranscriber struct{}

func (TextTranscriber) Transcribe(_ context.Context, seg agent.Segment) (string, error) {
	format := strings.ToLower(strings.TrimSpace(strings.SplitN(seg.Format, ";", 2)[0]))
	if format != FormatText {
		return "", &agent.TranscriptionError{Kind: agent.FailureOther, Err: errors.New("unsupported audio format " + seg.Format)}
	}
	if !utf8.Valid(seg.Data) {
		return "", &agent.TranscriptionError{Kind: agent.FailureOther, Err: errors.New("transcript is not valid UTF-8")}
	}
	text := strings.TrimSpace(string(seg.Data))
	if text == "" {
		return "", &agent.TranscriptionError{Kind: agent.FailureNoSpeech}
	}
	return text, nil
}

// LogSynthesizer "speaks" by logging the line. An optional per-word delay
// approximates playback time.
type LogSynthesizer struct {
	Logger  *zap.Logger
	PerWord time.Duration
}

func (l LogSynthesizer) Speak(ctx context.Context, text string) error {
	if l.Logger != nil {
		l.Logger.Info("agent speaking", zap.String("text", text))
	}
	if l.PerWord <= 0 {
		return nil
	}
	timer := time.NewTimer(time.Duration(len(strings.Fields(text))) * l.PerWord)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
