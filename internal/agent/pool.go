package agent

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Pool keeps one agent per conversation room.
type Pool struct {
	mu     sync.Mutex
	agents map[string]*Agent
	build  func() *Agent
	logger *zap.Logger
}

// NewPool creates a pool; build returns a fresh, unjoined agent.
func NewPool(build func() *Agent, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{agents: make(map[string]*Agent), build: build, logger: logger}
}

// Get returns the agent for room, creating it and joining the room on
// first use. Without a relay the agent still answers but does not publish.
func (p *Pool) Get(ctx context.Context, room string) (*Agent, error) {
	room = strings.TrimSpace(room)
	if room == "" {
		return nil, errors.New("room required")
	}
	if a, ok := p.Lookup(room); ok {
		return a, nil
	}

	a := p.build()
	if err := a.Join(ctx, room); err != nil && !errors.Is(err, ErrNoRelay) {
		a.Close()
		return nil, err
	}

	p.mu.Lock()
	existing, ok := p.agents[room]
	if !ok {
		p.agents[room] = a
	}
	p.mu.Unlock()
	if ok {
		// Another caller joined room first.
		a.Close()
		return existing, nil
	}
	return a, nil
}

// Lookup returns the agent for room without creating one.
func (p *Pool) Lookup(room string) (*Agent, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.agents[room]
	return a, ok
}

// Remove closes and forgets the agent for room.
func (p *Pool) Remove(room string) bool {
	p.mu.Lock()
	a, ok := p.agents[room]
	delete(p.agents, room)
	p.mu.Unlock()
	if ok {
		a.Close()
	}
	return ok
}

// Rooms lists rooms with a live agent.
func (p *Pool) Rooms() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	rooms := make([]string, 0, len(p.agents))
	for room := range p.agents {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}

// Close shuts every agent down.
func (p *Pool) Close() {
	p.mu.Lock()
	agents := p.agents
	p.agents = make(map[string]*Agent)
	p.mu.Unlock()
	for room, a := range agents {
		a.Close()
		p.logger.Debug("agent closed", zap.String("room", room))
	}
}
