package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubscriptionsIdempotentSubscribe(t *testing.T) {
	s := NewSubscriptions[int]()

	assert.True(t, s.Subscribe("cpu_usage", 1))
	assert.False(t, s.Subscribe("cpu_usage", 1))
	assert.True(t, s.Subscribe("cpu_usage", 2))

	assert.Equal(t, []int{1, 2}, s.Subscribers("cpu_usage"))
	assert.Equal(t, 2, s.Len())
}

func TestSubscriptionsUnsubscribeAbsentIsNoop(t *testing.T) {
	s := NewSubscriptions[int]()
	s.Subscribe("cpu_usage", 1)

	assert.False(t, s.Unsubscribe("cpu_usage", 2))
	assert.False(t, s.Unsubscribe("memory_usage", 1))
	assert.Equal(t, 1, s.Len())

	assert.True(t, s.Unsubscribe("cpu_usage", 1))
	assert.Empty(t, s.Subscribers("cpu_usage"))
	assert.Zero(t, s.Len())
}

func TestSubscriptionsRemoveConn(t *testing.T) {
	s := NewSubscriptions[string]()
	s.Subscribe("cpu_usage", "a")
	s.Subscribe("memory_usage", "a")
	s.Subscribe("memory_usage", "b")

	assert.Equal(t, 2, s.RemoveConn("a"))
	assert.Empty(t, s.Subscribers("cpu_usage"))
	assert.Equal(t, []string{"b"}, s.Subscribers("memory_usage"))
	assert.Zero(t, s.RemoveConn("a"))
}
