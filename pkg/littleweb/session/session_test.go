package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateGetRoundTrip(t *testing.T) {
	m := NewManager(time.Minute)
	defer m.Close()

	s := m.Create()
	require.NotEmpty(t, s.ID)
	assert.True(t, s.Empty())

	got, ok := m.Get(s.ID)
	require.True(t, ok)
	assert.Equal(t, s.ID, got.ID)
}

func TestGetMissingSessionReturnsFalse(t *testing.T) {
	m := NewManager(time.Minute)
	defer m.Close()

	_, ok := m.Get("does-not-exist")
	assert.False(t, ok)
}

func TestGetExpiredSessionIsRemoved(t *testing.T) {
	m := NewManager(time.Millisecond)
	defer m.Close()

	s := m.Create()
	time.Sleep(5 * time.Millisecond)

	_, ok := m.Get(s.ID)
	assert.False(t, ok)
}

func TestSetAndValueAndEmpty(t *testing.T) {
	m := NewManager(time.Minute)
	defer m.Close()

	s := m.Create()
	assert.True(t, s.Empty())

	s.Set("user", "alice")
	assert.False(t, s.Empty())

	v, ok := s.Value("user")
	require.True(t, ok)
	assert.Equal(t, "alice", v)
}

func TestInvalidateFlagsSession(t *testing.T) {
	s := &Session{ID: "x"}
	assert.False(t, s.Invalidated)
	s.Invalidate()
	assert.True(t, s.Invalidated)
}

func TestRemoveDeletesSession(t *testing.T) {
	m := NewManager(time.Minute)
	defer m.Close()

	s := m.Create()
	m.Remove(s.ID)

	_, ok := m.Get(s.ID)
	assert.False(t, ok)
}

func TestSaveRefreshesExpiry(t *testing.T) {
	m := NewManager(10 * time.Millisecond)
	defer m.Close()

	s := m.Create()
	time.Sleep(6 * time.Millisecond)
	m.Save(s)
	time.Sleep(6 * time.Millisecond)

	_, ok := m.Get(s.ID)
	assert.True(t, ok, "Save should have pushed expiry out past the first window")
}
