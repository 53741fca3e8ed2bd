package agent

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/escalation-service/internal/relay"
)

// ErrNoRelay is returned by Join when the agent has no relay.
var ErrNoRelay = errors.New("agent has no relay")

// Join connects the agent to room. Messages from other participants are
// added to the transcript; replies are published there from now on. The
// transcript restarts with a connection notice.
func (a *Agent) Join(ctx context.Context, room string) error {
	room = strings.TrimSpace(room)
	if room == "" {
		return errors.New("room required")
	}
	if a.deps.Relay == nil {
		return ErrNoRelay
	}
	a.Leave()

	a.mu.Lock()
	a.transcript = []Line{{Speaker: SpeakerSystem, Text: "Connected to room: " + room, At: a.deps.Clock.Now()}}
	a.mu.Unlock()

	unsubscribe, err := a.deps.Relay.Subscribe(ctx, room, a.receive)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.room = room
	a.unsubscribe = unsubscribe
	a.mu.Unlock()

	a.deps.Logger.Info("agent joined room", zap.String("room", room), zap.String("identity", a.cfg.Identity))
	return nil
}

// Leave disconnects from the current room, if any, and clears the
// transcript.
func (a *Agent) Leave() {
	a.mu.Lock()
	room, unsubscribe := a.room, a.unsubscribe
	a.room, a.unsubscribe = "", nil
	if room != "" {
		a.transcript = nil
	}
	a.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
		a.deps.Logger.Info("agent left room", zap.String("room", room))
	}
}

// Room returns the joined room, or "" when disconnected.
func (a *Agent) Room() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.room
}

// Close leaves the room and waits for pending escalations.
func (a *Agent) Close() {
	a.Leave()
	a.Wait()
}

func (a *Agent) receive(msg relay.Message) {
	if msg.Sender == a.cfg.Identity {
		return
	}
	speaker := msg.Sender
	if speaker == "" {
		speaker = SpeakerAgent
	}
	a.appendLine(speaker, string(msg.Payload))
}

// Identity is the agent's participant name in relay rooms.
func (a *Agent) Identity() string {
	return a.cfg.Identity
}
