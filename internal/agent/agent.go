// Package agent runs conversational turns against the knowledge base and
// escalates questions it cannot answer.
package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/escalation-service/internal/clock"
	"github.com/spec-kit/escalation-service/internal/config"
	"github.com/spec-kit/escalation-service/internal/domain"
	"github.com/spec-kit/escalation-service/internal/match"
	"github.com/spec-kit/escalation-service/internal/observability"
	"github.com/spec-kit/escalation-service/internal/relay"
	apperrors "github.com/spec-kit/escalation-service/pkg/util/errorutil"
)

// ErrBusy is returned when a turn starts while the previous one is still
// running.
var ErrBusy = errors.New("agent busy with previous turn")

const (
	SpeakerCaller = "You"
	SpeakerAgent  = "Agent"
	SpeakerSystem = "System"

	// DefaultIdentity names the agent inside a relay room.
	DefaultIdentity = "escalation-agent"

	escalationTimeout = 10 * time.Second
)

// Turn outcomes as reported to metrics.
const (
	OutcomeAnswered            = "answered"
	OutcomeEscalated           = "escalated"
	OutcomeBusy                = "busy"
	OutcomeTranscriptionFailed = "transcription_failed"
)

// Knowledge looks up learned answers.
type Knowledge interface {
	Lookup(ctx context.Context, question string) (match.Result, error)
}

// Escalator files a help request for a question the agent could not answer.
type Escalator interface {
	Escalate(ctx context.Context, customerID, question string) error
}

// UsageRecorder counts answers served from a knowledge entry.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, entryID string) (*domain.KnowledgeEntry, error)
}

// Line is one speaker-tagged transcript entry.
type Line struct {
	Speaker string    `json:"sender"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

// Config tunes one agent.
type Config struct {
	// CustomerID is recorded on help requests escalated from this agent.
	CustomerID       string
	Identity         string
	DeferralPhrase   string
	CaptureCeiling   time.Duration
	RecordUsageOnHit bool
}

// Dependencies are the collaborators of an agent. Only Knowledge and
// Escalator are required; missing speech or relay pieces disable those
// steps.
type Dependencies struct {
	Knowledge   Knowledge
	Escalator   Escalator
	Usage       UsageRecorder
	Source      AudioSource
	Transcriber Transcriber
	Synthesizer Synthesizer
	Relay       relay.Relay
	Clock       clock.Clock
	Logger      *zap.Logger
	Metrics     *observability.Metrics
}

// Reply describes how a turn was answered.
type Reply struct {
	Question  string                 `json:"question"`
	Answer    string                 `json:"answer"`
	Escalated bool                   `json:"escalated"`
	Entry     *domain.KnowledgeEntry `json:"entry,omitempty"`
	Relayed   bool                   `json:"relayed"`
}

// Agent handles the turns of one conversation. Turns never overlap: a new
// one is refused with ErrBusy until the previous one has been relayed.
type Agent struct {
	cfg  Config
	deps Dependencies

	busy     atomic.Bool
	renderMu sync.Mutex
	pending  sync.WaitGroup

	mu          sync.Mutex
	transcript  []Line
	room        string
	unsubscribe func()
}

// New builds an agent.
func New(cfg Config, deps Dependencies) *Agent {
	if cfg.Identity == "" {
		cfg.Identity = DefaultIdentity
	}
	if cfg.DeferralPhrase == "" {
		cfg.DeferralPhrase = config.DefaultDeferralPhrase
	}
	if cfg.CaptureCeiling <= 0 {
		cfg.CaptureCeiling = 5 * time.Second
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Agent{cfg: cfg, deps: deps}
}

// Turn captures one spoken question from the configured source and
// answers it.
func (a *Agent) Turn(ctx context.Context) (*Reply, error) {
	return a.TurnFrom(ctx, a.deps.Source)
}

// TurnFrom is Turn with a per-turn audio source.
func (a *Agent) TurnFrom(ctx context.Context, source AudioSource) (*Reply, error) {
	if !a.busy.CompareAndSwap(false, true) {
		a.deps.Metrics.RecordTurn(OutcomeBusy)
		return nil, ErrBusy
	}
	defer a.busy.Store(false)

	seg, err := a.capture(ctx, source)
	if err != nil {
		return nil, a.abort(err)
	}
	question, err := a.transcribe(ctx, seg)
	if err != nil {
		return nil, a.abort(err)
	}
	return a.respond(ctx, question), nil
}

// HandleText answers a typed question, skipping capture and transcription.
func (a *Agent) HandleText(ctx context.Context, text string) (*Reply, error) {
	question := strings.TrimSpace(text)
	if question == "" {
		return nil, apperrors.NewValidationError("message required", nil)
	}
	if !a.busy.CompareAndSwap(false, true) {
		a.deps.Metrics.RecordTurn(OutcomeBusy)
		return nil, ErrBusy
	}
	defer a.busy.Store(false)
	return a.respond(ctx, question), nil
}

// Busy reports whether a turn is in progress.
func (a *Agent) Busy() bool {
	return a.busy.Load()
}

func (a *Agent) abort(err error) error {
	te := classify(err, FailureOther)
	a.deps.Metrics.RecordTurn(OutcomeTranscriptionFailed)
	a.deps.Logger.Warn("turn aborted",
		zap.String("kind", string(te.Kind)),
		zap.Error(te.Err))
	return te
}

func (a *Agent) capture(ctx context.Context, source AudioSource) (Segment, error) {
	if source == nil {
		return Segment{}, &TranscriptionError{Kind: FailureDevice, Err: errors.New("no audio source")}
	}
	cctx, cancel := context.WithTimeout(ctx, a.cfg.CaptureCeiling)
	defer cancel()

	stream, err := source.Open(cctx)
	if err != nil {
		return Segment{}, classify(err, FailureDevice)
	}
	defer func() {
		if err := stream.Close(); err != nil {
			a.deps.Logger.Warn("closing audio stream", zap.Error(err))
		}
	}()

	seg, err := stream.Capture(cctx)
	// Hitting the ceiling stops the recording; whatever was captured is kept.
	if err != nil && !(errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil) {
		return Segment{}, classify(err, FailureDevice)
	}
	if len(seg.Data) == 0 {
		return Segment{}, &TranscriptionError{Kind: FailureNoSpeech}
	}
	return seg, nil
}

func (a *Agent) transcribe(ctx context.Context, seg Segment) (string, error) {
	if a.deps.Transcriber == nil {
		return "", &TranscriptionError{Kind: FailureOther, Err: errors.New("no transcriber")}
	}
	text, err := a.deps.Transcriber.Transcribe(context.WithoutCancel(ctx), seg)
	if err != nil {
		return "", classify(err, FailureOther)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", &TranscriptionError{Kind: FailureNoSpeech}
	}
	return text, nil
}

func (a *Agent) respond(ctx context.Context, question string) *Reply {
	reply := &Reply{Question: question}

	res, err := a.deps.Knowledge.Lookup(ctx, question)
	if err != nil {
		a.deps.Logger.Warn("knowledge lookup failed; deferring", zap.Error(err))
	}
	if err == nil && res.Found() {
		entry := *res.Entry
		reply.Answer = entry.Answer
		reply.Entry = &entry
		a.recordUsage(ctx, entry.ID)
	} else {
		reply.Answer = a.cfg.DeferralPhrase
		reply.Escalated = true
		a.escalate(ctx, question)
	}

	a.render(ctx, question, reply.Answer)
	reply.Relayed = a.publish(ctx, reply.Answer)

	if reply.Escalated {
		a.deps.Metrics.RecordTurn(OutcomeEscalated)
	} else {
		a.deps.Metrics.RecordTurn(OutcomeAnswered)
	}
	return reply
}

func (a *Agent) recordUsage(ctx context.Context, entryID string) {
	if !a.cfg.RecordUsageOnHit || a.deps.Usage == nil {
		return
	}
	if _, err := a.deps.Usage.RecordUsage(ctx, entryID); err != nil {
		a.deps.Logger.Warn("recording knowledge usage failed", zap.String("entry_id", entryID), zap.Error(err))
	}
}

// escalate files the help request in the background. Its outcome never
// changes the reply.
func (a *Agent) escalate(ctx context.Context, question string) {
	if a.deps.Escalator == nil {
		return
	}
	a.pending.Add(1)
	go func() {
		defer a.pending.Done()
		ectx, cancel := context.WithTimeout(context.WithoutCancel(ctx), escalationTimeout)
		defer cancel()
		if err := a.deps.Escalator.Escalate(ectx, a.cfg.CustomerID, question); err != nil {
			a.deps.Logger.Warn("escalation failed",
				zap.String("customer_id", a.cfg.CustomerID),
				zap.String("question", question),
				zap.Error(err))
			return
		}
		a.deps.Logger.Info("question escalated", zap.String("customer_id", a.cfg.CustomerID))
	}()
}

func (a *Agent) render(ctx context.Context, question, answer string) {
	a.renderMu.Lock()
	defer a.renderMu.Unlock()

	a.appendLine(SpeakerCaller, question)
	a.appendLine(SpeakerAgent, answer)

	if a.deps.Synthesizer == nil {
		return
	}
	if err := a.deps.Synthesizer.Speak(context.WithoutCancel(ctx), answer); err != nil {
		a.deps.Logger.Warn("speech synthesis failed", zap.Error(err))
	}
}

func (a *Agent) publish(ctx context.Context, answer string) bool {
	a.mu.Lock()
	room := a.room
	a.mu.Unlock()
	if room == "" || a.deps.Relay == nil {
		return false
	}
	err := a.deps.Relay.Publish(ctx, relay.Message{Room: room, Sender: a.cfg.Identity, Payload: []byte(answer)})
	if err != nil {
		a.deps.Logger.Warn("relay publish failed", zap.String("room", room), zap.Error(err))
		return false
	}
	return true
}

func (a *Agent) appendLine(speaker, text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.transcript = append(a.transcript, Line{Speaker: speaker, Text: text, At: a.deps.Clock.Now()})
}

// Transcript returns a copy of the conversation so far.
func (a *Agent) Transcript() []Line {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Line(nil), a.transcript...)
}

// Wait blocks until background escalations have finished.
func (a *Agent) Wait() {
	a.pending.Wait()
}
