package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPublishFansOutDespiteFailures(t *testing.T) {
	d := NewInMemoryDispatcher(zap.NewNop())

	var calls []string
	d.Subscribe(EventTicketClaimed, func(context.Context, Event) error {
		calls = append(calls, "first")
		return errors.New("unreachable recipient")
	})
	d.Subscribe(EventTicketClaimed, func(context.Context, Event) error {
		calls = append(calls, "second")
		panic("boom")
	})
	d.Subscribe(EventTicketClaimed, func(context.Context, Event) error {
		calls = append(calls, "third")
		return nil
	})
	d.Subscribe(EventTicketClosed, func(context.Context, Event) error {
		calls = append(calls, "closed")
		return nil
	})

	err := d.Publish(context.Background(), New(EventTicketClaimed, 7, nil, time.Now(), Recipients{Group: true}, nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, calls)
}

func TestNewStampsUniqueIDs(t *testing.T) {
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	a := New(EventTicketCreated, 1, nil, at, Recipients{}, nil)
	b := New(EventTicketCreated, 1, nil, at, Recipients{}, nil)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, at, a.Timestamp)
	assert.True(t, a.Recipients.Empty())
	assert.False(t, Recipients{UserIDs: []int64{3}}.Empty())
}
