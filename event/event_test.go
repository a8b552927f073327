package event

import (
	"testing"

	"github.com/agentuity/go-terminals/logger"
	"github.com/stretchr/testify/assert"
)

func TestPublishOrder(t *testing.T) {
	var s Signal[int]
	var got []string
	s.Subscribe(func(v int) { got = append(got, "a") })
	s.Subscribe(func(v int) { got = append(got, "b") })
	s.Publish(1)
	assert.Equal(t, []string{"a", "b"}, got)
	assert.Equal(t, 2, s.Len())
}

func TestUnsubscribe(t *testing.T) {
	var s Signal[string]
	var got []string
	sub := s.Subscribe(func(v string) { got = append(got, v) })
	s.Publish("one")
	s.Unsubscribe(sub)
	s.Publish("two")
	assert.Equal(t, []string{"one"}, got)
	assert.Equal(t, 0, s.Len())
	assert.NoError(t, sub.Close())
}

func TestReentrantUnsubscribe(t *testing.T) {
	var s Signal[int]
	var sub Subscription
	calls := 0
	sub = s.Subscribe(func(v int) {
		calls++
		sub.Close()
		s.Publish(v + 1)
	})
	other := 0
	s.Subscribe(func(v int) { other++ })
	s.Publish(1)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, other)
}

func TestPanicRecovered(t *testing.T) {
	log := logger.NewTestLogger()
	s := New[int](log)
	delivered := false
	s.Subscribe(func(int) { panic("boom") })
	s.Subscribe(func(int) { delivered = true })
	assert.NotPanics(t, func() { s.Publish(1) })
	assert.True(t, delivered)
	assert.True(t, log.Contains("ERROR", "boom"))
}

func TestClose(t *testing.T) {
	var s Signal[int]
	calls := 0
	s.Subscribe(func(int) { calls++ })
	s.Close()
	s.Publish(1)
	s.Subscribe(func(int) { calls++ })
	s.Publish(2)
	assert.Equal(t, 0, calls)
	assert.True(t, s.IsClosed())
	assert.Equal(t, 0, s.Len())
}
