package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoPutGet(t *testing.T) {
	m := New[string, int](time.Minute)

	m.Put("a", 1)
	got, ok := m.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, got)

	_, ok = m.Get("missing")
	assert.False(t, ok)
}

func TestMemoExpiry(t *testing.T) {
	m := New[string, int](time.Nanosecond)

	m.Put("a", 1)
	time.Sleep(5 * time.Millisecond)

	_, ok := m.Get("a")
	assert.False(t, ok)
}

func TestMemoZeroTTLNeverExpires(t *testing.T) {
	m := New[string, int](0)

	m.Put("a", 1)
	time.Sleep(2 * time.Millisecond)

	got, ok := m.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, got)
}

func TestMemoPutRestartsLifetime(t *testing.T) {
	m := New[string, int](time.Minute)

	m.Put("a", 1)
	m.Put("a", 2)

	got, ok := m.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 2, got)
}

func TestMemoEvict(t *testing.T) {
	m := New[string, int](time.Minute)

	m.Put("a", 1)
	m.Evict("a")

	_, ok := m.Get("a")
	assert.False(t, ok)
}

func TestNilMemoIsSafe(t *testing.T) {
	var m *Memo[string, int]

	m.Put("a", 1)
	_, ok := m.Get("a")
	assert.False(t, ok)
	m.Evict("a")
}
