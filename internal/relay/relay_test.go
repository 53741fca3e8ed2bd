package relay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type collector struct {
	mu   sync.Mutex
	msgs []string
}

func (c *collector) handle(m Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, string(m.Payload))
}

func (c *collector) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.msgs...)
}

func TestMemoryRelayDeliversToRoom(t *testing.T) {
	r := NewMemoryRelay()
	defer r.Close()
	ctx := context.Background()

	lobby, other := &collector{}, &collector{}
	unsubLobby, err := r.Subscribe(ctx, "lobby", lobby.handle)
	require.NoError(t, err)
	unsubOther, err := r.Subscribe(ctx, "other", other.handle)
	require.NoError(t, err)

	require.NoError(t, r.Publish(ctx, Message{Room: "lobby", Sender: "tester", Payload: []byte("hello")}))
	require.NoError(t, r.Publish(ctx, Message{Room: "lobby", Sender: "tester", Payload: []byte("again")}))

	// Unsubscribe waits for delivery to drain.
	unsubLobby()
	unsubOther()
	assert.Equal(t, []string{"hello", "again"}, lobby.snapshot())
	assert.Empty(t, other.snapshot())

	require.NoError(t, r.Publish(ctx, Message{Room: "lobby", Sender: "tester", Payload: []byte("nobody listening")}))
	assert.Len(t, lobby.snapshot(), 2)
}

func TestMemoryRelayUnsubscribeIdempotent(t *testing.T) {
	r := NewMemoryRelay()
	unsub, err := r.Subscribe(context.Background(), "room", func(Message) {})
	require.NoError(t, err)
	unsub()
	unsub()
	require.NoError(t, r.Close())
}

func TestMemoryRelayClosed(t *testing.T) {
	r := NewMemoryRelay()
	c := &collector{}
	unsub, err := r.Subscribe(context.Background(), "room", c.handle)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	unsub()

	assert.ErrorIs(t, r.Publish(context.Background(), Message{Room: "room", Payload: []byte("x")}), ErrClosed)
	_, err = r.Subscribe(context.Background(), "room", c.handle)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestChannelName(t *testing.T) {
	assert.Equal(t, "room:support-1", Channel("support-1"))
}

func TestTokenIssuer(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	issuer := NewTokenIssuer("key", "secret", 30*time.Minute, func() time.Time { return now })
	require.True(t, issuer.Configured())

	token, err := issuer.Issue("Supervisor", "support")
	require.NoError(t, err)

	claims, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "key", claims.Issuer)
	assert.Equal(t, "Supervisor", claims.Subject)
	assert.Equal(t, VideoGrant{RoomJoin: true, Room: "support", CanPublish: true, CanPublishData: true, CanSubscribe: true}, claims.Video)
	assert.WithinDuration(t, now.Add(30*time.Minute), claims.ExpiresAt.Time, 0)

	other := NewTokenIssuer("key", "different", time.Hour, nil)
	_, err = other.Parse(token)
	assert.Error(t, err)
}

func TestTokenIssuerDefaultsAndErrors(t *testing.T) {
	issuer := NewTokenIssuer("key", "secret", 0, nil)
	token, err := issuer.Issue("", "support")
	require.NoError(t, err)
	claims, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Regexp(t, `^Caller-[0-9a-f]{6}$`, claims.Subject)

	_, err = issuer.Issue("x", "  ")
	assert.Error(t, err)

	_, err = NewTokenIssuer("", "", 0, nil).Issue("x", "room")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
