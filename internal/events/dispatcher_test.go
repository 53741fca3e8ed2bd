package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDispatcherDeliversToAllHandlers(t *testing.T) {
	d := NewInMemoryDispatcher()
	var got []string
	d.Subscribe(EventHelpRequestCreated, func(_ context.Context, e Event) error {
		got = append(got, "first:"+e.HelpRequestID)
		return errors.New("first failed")
	})
	d.Subscribe(EventHelpRequestCreated, func(_ context.Context, e Event) error {
		got = append(got, "second:"+e.HelpRequestID)
		return nil
	})
	d.Subscribe(EventHelpRequestExpired, func(context.Context, Event) error {
		t.Fatal("unrelated handler invoked")
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventHelpRequestCreated, HelpRequestID: "req_1"})
	assert.EqualError(t, err, "first failed")
	assert.Equal(t, []string{"first:req_1", "second:req_1"}, got)
}
