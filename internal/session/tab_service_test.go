package session

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTabService(maxPerUser int) (*TabService, *manualClock) {
	clock := newManualClock()
	ts := NewTabService(NewMemoryTabRepository(), NewTabLimits(TabLimitConfig{MaxPerUser: maxPerUser}))
	ts.now = clock.Now
	return ts, clock
}

func TestTabService_ConcurrentCreateRespectsLimit(t *testing.T) {
	ts, _ := newTestTabService(5)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ts.Create("alice", "sess-1", "bash", "")
		}()
	}
	wg.Wait()

	if n := ts.Count("alice"); n != 5 {
		t.Errorf("expected exactly 5 tabs, got %d", n)
	}
}

func TestNewTab_NameValidation(t *testing.T) {
	now := time.Now()

	_, err := NewTab("t", "u", "s", "bash", "", now)
	require.ErrorIs(t, err, ErrInvalidTabName)
	assert.Contains(t, err.Error(), "1-50 characters")

	_, err = NewTab("t", "u", "s", "bash", strings.Repeat("x", 51), now)
	require.ErrorIs(t, err, ErrInvalidTabName)

	tab, err := NewTab("t", "u", "s", "bash", strings.Repeat("x", 50), now)
	require.NoError(t, err)
	assert.Len(t, tab.Name(), 50)

	// Length is counted in characters, not bytes.
	_, err = NewTab("t", "u", "s", "bash", strings.Repeat("é", 50), now)
	assert.NoError(t, err)
}

func TestTab_Rename(t *testing.T) {
	tab, err := NewTab("t", "u", "s", "bash", "Original", time.Now())
	require.NoError(t, err)

	require.NoError(t, tab.Rename("Renamed"))
	assert.Equal(t, "Renamed", tab.Name())

	assert.Error(t, tab.Rename(""))
	assert.Error(t, tab.Rename(strings.Repeat("y", 51)))
	assert.Equal(t, "Renamed", tab.Name())
}

func TestTabService_Create(t *testing.T) {
	ts, _ := newTestTabService(20)

	tab, err := ts.Create("alice", "s1", "bash", "My Tab")
	require.NoError(t, err)
	assert.Equal(t, "My Tab", tab.Name())
	assert.Equal(t, "bash", tab.ShellID)
	assert.Equal(t, "alice", tab.UserID)
	assert.Equal(t, "s1", tab.SessionID)

	auto, err := ts.Create("alice", "s1", "powershell", "")
	require.NoError(t, err)
	assert.Equal(t, "Powershell", auto.Name())
}

func TestTabService_CreateLimit(t *testing.T) {
	ts, _ := newTestTabService(2)

	_, err := ts.Create("alice", "s1", "bash", "Tab 1")
	require.NoError(t, err)
	_, err = ts.Create("alice", "s1", "bash", "Tab 2")
	require.NoError(t, err)

	_, err = ts.Create("alice", "s1", "bash", "Tab 3")
	var limitErr *LimitError
	require.True(t, errors.As(err, &limitErr))
	assert.Contains(t, limitErr.Reason, "Maximum tabs")
}

func TestTabService_Retrieval(t *testing.T) {
	ts, clock := newTestTabService(20)

	first, _ := ts.Create("alice", "s1", "bash", "First")
	clock.Advance(time.Second)
	second, _ := ts.Create("alice", "s1", "zsh", "Second")
	clock.Advance(time.Second)
	third, _ := ts.Create("alice", "s2", "fish", "Third")
	ts.Create("bob", "s3", "bash", "Other")

	assert.Same(t, first, ts.Get(first.ID))
	assert.Nil(t, ts.Get("nonexistent"))

	tabs := ts.UserTabs("alice")
	require.Len(t, tabs, 3)
	assert.Equal(t, []*Tab{first, second, third}, tabs)

	assert.ElementsMatch(t, []*Tab{first, second}, ts.TabsForSession("s1"))
	assert.Equal(t, 3, ts.Count("alice"))
}

func TestTabService_Touch(t *testing.T) {
	ts, clock := newTestTabService(20)
	tab, _ := ts.Create("alice", "s1", "bash", "Test")
	original := tab.LastAccessed()

	clock.Advance(time.Minute)
	got := ts.Touch(tab.ID, "alice")
	require.NotNil(t, got)
	assert.True(t, got.LastAccessed().After(original))

	assert.Nil(t, ts.Touch(tab.ID, "bob"))
	assert.Nil(t, ts.Touch("nonexistent", "alice"))
}

func TestTabService_Rename(t *testing.T) {
	ts, _ := newTestTabService(20)
	tab, _ := ts.Create("alice", "s1", "bash", "Original")

	got := ts.Rename(tab.ID, "alice", "New Name")
	require.NotNil(t, got)
	assert.Equal(t, "New Name", got.Name())

	assert.Nil(t, ts.Rename(tab.ID, "alice", ""))
	assert.Nil(t, ts.Rename(tab.ID, "bob", "Hacked"))
	assert.Equal(t, "New Name", ts.Get(tab.ID).Name())
}

func TestTabService_Close(t *testing.T) {
	ts, _ := newTestTabService(20)
	tab, _ := ts.Create("alice", "s1", "bash", "Test")

	assert.Nil(t, ts.Close(tab.ID, "bob"))
	assert.NotNil(t, ts.Get(tab.ID))

	closed := ts.Close(tab.ID, "alice")
	require.NotNil(t, closed)
	assert.Equal(t, tab.ID, closed.ID)
	assert.Nil(t, ts.Get(tab.ID))
}

func TestTabService_CloseForSession(t *testing.T) {
	ts, _ := newTestTabService(20)
	for i := 0; i < 3; i++ {
		ts.Create("alice", "s1", "bash", "")
	}
	ts.Create("alice", "s2", "bash", "")

	removed := ts.CloseForSession("s1")
	assert.Len(t, removed, 3)
	assert.Equal(t, 1, ts.Count("alice"))
	assert.Empty(t, ts.TabsForSession("s1"))
}
