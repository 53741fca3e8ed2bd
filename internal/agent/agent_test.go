package agent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/spec-kit/escalation-service/internal/clock"
	"github.com/spec-kit/escalation-service/internal/config"
	"github.com/spec-kit/escalation-service/internal/domain"
	"github.com/spec-kit/escalation-service/internal/relay"
	"github.com/spec-kit/escalation-service/internal/repository"
	"github.com/spec-kit/escalation-service/internal/service"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeStream struct {
	seg    Segment
	err    error
	block  bool
	closed atomic.Bool
}

func (s *fakeStream) Capture(ctx context.Context) (Segment, error) {
	if s.block {
		<-ctx.Done()
		return s.seg, ctx.Err()
	}
	return s.seg, s.err
}

func (s *fakeStream) Close() error {
	s.closed.Store(true)
	return nil
}

type fakeSource struct {
	stream  *fakeStream
	openErr error
}

func (s *fakeSource) Open(context.Context) (Stream, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	return s.stream, nil
}

type fakeTranscriber struct {
	text string
	err  error
}

func (t *fakeTranscriber) Transcribe(context.Context, Segment) (string, error) {
	return t.text, t.err
}

type recordingSynth struct {
	mu      sync.Mutex
	spoken  []string
	release chan struct{}
	active  atomic.Int32
	overlap atomic.Bool
}

func (s *recordingSynth) Speak(ctx context.Context, text string) error {
	if s.active.Add(1) > 1 {
		s.overlap.Store(true)
	}
	defer s.active.Add(-1)
	if s.release != nil {
		<-s.release
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spoken = append(s.spoken, text)
	return nil
}

func (s *recordingSynth) said() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spoken...)
}

type failingEscalator struct{ calls atomic.Int32 }

func (f *failingEscalator) Escalate(context.Context, string, string) error {
	f.calls.Add(1)
	return errors.New("ledger unreachable")
}

type harness struct {
	clock     *clock.FakeClock
	knowledge *service.KnowledgeService
	ledger    *service.HelpRequestService
	synth     *recordingSynth
	relay     *relay.MemoryRelay
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	h := &harness{clock: clock.Fake(epoch), synth: &recordingSynth{}, relay: relay.NewMemoryRelay()}
	t.Cleanup(func() { _ = h.relay.Close() })

	customers := repository.NewMemoryCustomerRepository()
	require.NoError(t, customers.Create(ctx, &domain.Customer{ID: "cust_101", Phone: "+1-555-0101", CreatedAt: epoch}))

	h.knowledge = service.NewKnowledgeService(service.KnowledgeDependencies{
		KnowledgeRepo: repository.NewMemoryKnowledgeRepository(),
		Clock:         h.clock,
		Logger:        zap.NewNop(),
	})
	require.NoError(t, h.knowledge.Seed(ctx, []domain.KnowledgeEntry{
		{ID: "kb_2", Pattern: "hello hi hey", Answer: "Hello! How can I help you today?", Source: domain.KnowledgeSourceSeed, CreatedAt: epoch, UpdatedAt: epoch},
		{ID: "kb_1", Pattern: "hours weekend", Answer: "We are open 10am to 4pm on weekends.", Source: domain.KnowledgeSourceSeed, CreatedAt: epoch, UpdatedAt: epoch},
	}))

	h.ledger = service.NewHelpRequestService(service.HelpRequestDependencies{
		HelpRequestRepo: repository.NewMemoryHelpRequestRepository(),
		CustomerRepo:    customers,
		Knowledge:       h.knowledge,
		Clock:           h.clock,
		Logger:          zap.NewNop(),
		Policy:          service.LedgerPolicy{DefaultHorizon: 15 * time.Minute},
	})
	return h
}

func (h *harness) agent(cfg Config, source AudioSource, transcriber Transcriber) *Agent {
	if cfg.CustomerID == "" {
		cfg.CustomerID = "cust_101"
	}
	return New(cfg, Dependencies{
		Knowledge:   h.knowledge,
		Escalator:   h.ledger,
		Usage:       h.knowledge,
		Source:      source,
		Transcriber: transcriber,
		Synthesizer: h.synth,
		Relay:       h.relay,
		Clock:       h.clock,
		Logger:      zap.NewNop(),
	})
}

func voice(text string) (*fakeSource, *fakeStream, *fakeTranscriber) {
	stream := &fakeStream{seg: Segment{Data: []byte{1, 2, 3}, Format: "pcm"}}
	return &fakeSource{stream: stream}, stream, &fakeTranscriber{text: text}
}

func TestTurnAnswersFromKnowledge(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	source, stream, transcriber := voice("hello")
	a := h.agent(Config{}, source, transcriber)
	defer a.Close()

	require.NoError(t, a.Join(ctx, "support"))
	listener := make(chan relay.Message, 1)
	unsub, err := h.relay.Subscribe(ctx, "support", func(m relay.Message) { listener <- m })
	require.NoError(t, err)
	defer unsub()

	reply, err := a.Turn(ctx)
	require.NoError(t, err)
	a.Wait()

	assert.Equal(t, "Hello! How can I help you today?", reply.Answer)
	assert.False(t, reply.Escalated)
	assert.True(t, reply.Relayed)
	require.NotNil(t, reply.Entry)
	assert.Equal(t, "kb_2", reply.Entry.ID)
	assert.True(t, stream.closed.Load())
	assert.Equal(t, []string{reply.Answer}, h.synth.said())

	select {
	case m := <-listener:
		assert.Equal(t, reply.Answer, string(m.Payload))
		assert.Equal(t, DefaultIdentity, m.Sender)
	case <-time.After(2 * time.Second):
		t.Fatal("reply not relayed")
	}

	requests, err := h.ledger.List(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, requests)

	lines := a.Transcript()
	require.Len(t, lines, 3)
	assert.Equal(t, Line{Speaker: SpeakerSystem, Text: "Connected to room: support", At: epoch}, lines[0])
	assert.Equal(t, Line{Speaker: SpeakerCaller, Text: "hello", At: epoch}, lines[1])
	assert.Equal(t, Line{Speaker: SpeakerAgent, Text: reply.Answer, At: epoch}, lines[2])
}

func TestTurnEscalatesUnknownQuestion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	source, _, transcriber := voice("what is the meaning of life")
	a := h.agent(Config{}, source, transcriber)

	reply, err := a.Turn(ctx)
	require.NoError(t, err)
	a.Wait()

	assert.Equal(t, config.DefaultDeferralPhrase, reply.Answer)
	assert.True(t, reply.Escalated)
	assert.False(t, reply.Relayed, "not joined to a room")
	assert.Nil(t, reply.Entry)
	assert.Equal(t, []string{config.DefaultDeferralPhrase}, h.synth.said())

	requests, err := h.ledger.List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, domain.HelpRequestStatusPending, requests[0].Status)
	assert.Equal(t, "what is the meaning of life", requests[0].Question)
	assert.Equal(t, "cust_101", requests[0].CustomerID)
	assert.Equal(t, epoch.Add(15*time.Minute), requests[0].TimeoutAt)
}

func TestEscalationFailureKeepsReply(t *testing.T) {
	h := newHarness(t)
	escalator := &failingEscalator{}
	a := New(Config{CustomerID: "cust_101"}, Dependencies{
		Knowledge:   h.knowledge,
		Escalator:   escalator,
		Synthesizer: h.synth,
		Logger:      zap.NewNop(),
	})

	reply, err := a.HandleText(context.Background(), "do you repair bikes")
	require.NoError(t, err)
	a.Wait()

	assert.Equal(t, config.DefaultDeferralPhrase, reply.Answer)
	assert.EqualValues(t, 1, escalator.calls.Load())
}

func TestTranscriptionFailureAbortsTurn(t *testing.T) {
	cases := []struct {
		name string
		src  func() (*fakeSource, *fakeStream, *fakeTranscriber)
		kind FailureKind
	}{
		{
			name: "network",
			src: func() (*fakeSource, *fakeStream, *fakeTranscriber) {
				s, st, tr := voice("")
				tr.err = &TranscriptionError{Kind: FailureNetwork, Err: errors.New("dial tcp: timeout")}
				return s, st, tr
			},
			kind: FailureNetwork,
		},
		{
			name: "untyped error",
			src: func() (*fakeSource, *fakeStream, *fakeTranscriber) {
				s, st, tr := voice("")
				tr.err = errors.New("boom")
				return s, st, tr
			},
			kind: FailureOther,
		},
		{
			name: "empty transcript",
			src: func() (*fakeSource, *fakeStream, *fakeTranscriber) {
				return voice("   ")
			},
			kind: FailureNoSpeech,
		},
		{
			name: "silent capture",
			src: func() (*fakeSource, *fakeStream, *fakeTranscriber) {
				s, st, tr := voice("hello")
				st.seg = Segment{}
				return s, st, tr
			},
			kind: FailureNoSpeech,
		},
		{
			name: "device failure",
			src: func() (*fakeSource, *fakeStream, *fakeTranscriber) {
				s, st, tr := voice("hello")
				st.err = errors.New("microphone unplugged")
				return s, st, tr
			},
			kind: FailureDevice,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			source, stream, transcriber := tc.src()
			a := h.agent(Config{}, source, transcriber)

			reply, err := a.Turn(context.Background())
			a.Wait()
			assert.Nil(t, reply)
			var te *TranscriptionError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, tc.kind, te.Kind)
			assert.NotEmpty(t, te.UserMessage())
			assert.True(t, stream.closed.Load())
			assert.False(t, a.Busy())
			assert.Empty(t, h.synth.said())

			requests, err := h.ledger.List(context.Background(), nil)
			require.NoError(t, err)
			assert.Empty(t, requests)
		})
	}
}

func TestOpenFailureIsDeviceFailure(t *testing.T) {
	h := newHarness(t)
	a := h.agent(Config{}, &fakeSource{openErr: errors.New("permission denied")}, &fakeTranscriber{text: "hello"})

	_, err := a.Turn(context.Background())
	var te *TranscriptionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, FailureDevice, te.Kind)
}

func TestCaptureCeilingStopsRecording(t *testing.T) {
	h := newHarness(t)
	source, stream, transcriber := voice("hours on the weekend")
	stream.block = true
	a := h.agent(Config{CaptureCeiling: 20 * time.Millisecond}, source, transcriber)

	start := time.Now()
	reply, err := a.Turn(context.Background())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, stream.closed.Load())
	assert.Equal(t, "We are open 10am to 4pm on weekends.", reply.Answer)
}

func TestBusyAgentRefusesNewTurn(t *testing.T) {
	h := newHarness(t)
	h.synth.release = make(chan struct{})
	source, _, transcriber := voice("hello")
	a := h.agent(Config{}, source, transcriber)

	done := make(chan error, 1)
	go func() {
		_, err := a.Turn(context.Background())
		done <- err
	}()

	require.Eventually(t, a.Busy, 2*time.Second, time.Millisecond)
	_, err := a.HandleText(context.Background(), "hours weekend")
	assert.ErrorIs(t, err, ErrBusy)
	_, err = a.Turn(context.Background())
	assert.ErrorIs(t, err, ErrBusy)

	close(h.synth.release)
	require.NoError(t, <-done)
	assert.False(t, a.Busy())

	reply, err := a.HandleText(context.Background(), "hours weekend")
	require.NoError(t, err)
	assert.Equal(t, "We are open 10am to 4pm on weekends.", reply.Answer)
	assert.False(t, h.synth.overlap.Load())
}

func TestHandleTextRejectsBlank(t *testing.T) {
	h := newHarness(t)
	a := h.agent(Config{}, nil, nil)
	_, err := a.HandleText(context.Background(), "  ")
	assert.Error(t, err)
	assert.False(t, a.Busy())
}

func TestRecordUsageOnHit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	off := h.agent(Config{}, nil, nil)
	_, err := off.HandleText(ctx, "hello")
	require.NoError(t, err)

	on := h.agent(Config{RecordUsageOnHit: true}, nil, nil)
	_, err = on.HandleText(ctx, "hi")
	require.NoError(t, err)

	entries, err := h.knowledge.List(ctx)
	require.NoError(t, err)
	for _, e := range entries {
		if e.ID == "kb_2" {
			assert.EqualValues(t, 1, e.UsageCount)
		}
	}
}

func TestInboundRoomMessages(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.agent(Config{}, nil, nil)
	defer a.Close()

	require.NoError(t, a.Join(ctx, "support"))
	assert.Equal(t, "support", a.Room())

	require.NoError(t, h.relay.Publish(ctx, relay.Message{Room: "support", Sender: "Caller-1a2b3c", Payload: []byte("anyone there?")}))
	require.NoError(t, h.relay.Publish(ctx, relay.Message{Room: "support", Payload: []byte("ping")}))
	_, err := a.HandleText(ctx, "hello")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(a.Transcript()) == 5 }, 2*time.Second, time.Millisecond)
	speakers := map[string]string{}
	for _, line := range a.Transcript() {
		speakers[line.Text] = line.Speaker
	}
	assert.Equal(t, "Caller-1a2b3c", speakers["anyone there?"])
	assert.Equal(t, SpeakerAgent, speakers["ping"])
	assert.Equal(t, SpeakerCaller, speakers["hello"])

	a.Leave()
	assert.Empty(t, a.Transcript(), "leaving clears the transcript")
	assert.Equal(t, "", a.Room())
}

func TestJoinWithoutRelay(t *testing.T) {
	a := New(Config{}, Dependencies{Logger: zap.NewNop()})
	assert.ErrorIs(t, a.Join(context.Background(), "support"), ErrNoRelay)
}
