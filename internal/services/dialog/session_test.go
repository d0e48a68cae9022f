package dialog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	s := NewMemoryStore(time.Minute)

	_, ok := s.Get(1)
	require.False(t, ok)

	s.Put(&Session{UserID: 1, State: StateDate})
	got, ok := s.Get(1)
	require.True(t, ok)
	require.Equal(t, StateDate, got.State)

	s.Delete(1)
	_, ok = s.Get(1)
	require.False(t, ok)
}

func TestMemoryStoreExpiry(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	now := time.Now()
	s.now = func() time.Time { return now }

	s.Put(&Session{UserID: 1})
	now = now.Add(31 * time.Minute)
	_, ok := s.Get(1)
	require.False(t, ok, "session past TTL must be dropped")
}

func TestMemoryStoreTouchExtendsLife(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	now := time.Now()
	s.now = func() time.Time { return now }

	s.Put(&Session{UserID: 1})
	now = now.Add(40 * time.Second)
	_, ok := s.Get(1) // touch
	require.True(t, ok)
	now = now.Add(40 * time.Second)
	_, ok = s.Get(1)
	require.True(t, ok, "activity must extend the session")
}
