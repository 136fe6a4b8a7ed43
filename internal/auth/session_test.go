package auth

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/tunnelgate/internal/clock"
	"grimm.is/tunnelgate/internal/state"
)

var testEpoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type storeFactory func(t *testing.T, clk clock.Clock) SessionStore

func sessionStores() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T, clk clock.Clock) SessionStore {
			return NewMemorySessionStore(clk)
		},
		"sqlite": func(t *testing.T, clk clock.Clock) SessionStore {
			opts := state.DefaultOptions(":memory:")
			opts.CleanupInterval = 0
			opts.Clock = clk
			st, err := state.NewSQLiteStore(opts)
			require.NoError(t, err)
			t.Cleanup(func() { st.Close() })

			ss, err := NewStateSessionStore(st, clk)
			require.NoError(t, err)
			return ss
		},
	}
}

func TestSessions_RememberSetsExpiry(t *testing.T) {
	for name, newStore := range sessionStores() {
		t.Run(name, func(t *testing.T) {
			mock := clock.NewMockClock(testEpoch)
			sessions := NewSessions(newStore(t, mock), 30*time.Minute, mock)

			remembered, err := sessions.Establish(true)
			require.NoError(t, err)
			require.NotNil(t, remembered.ExpiresAt)
			assert.Equal(t, testEpoch.Add(30*time.Minute), *remembered.ExpiresAt)

			plain, err := sessions.Establish(false)
			require.NoError(t, err)
			assert.Nil(t, plain.ExpiresAt)

			assert.True(t, sessions.Authenticated(remembered.ID))
			assert.True(t, sessions.Authenticated(plain.ID))
		})
	}
}

func TestSessions_NoMaxAgeIgnoresRemember(t *testing.T) {
	sessions := NewSessions(NewMemorySessionStore(nil), 0, nil)

	sess, err := sessions.Establish(true)
	require.NoError(t, err)
	assert.Nil(t, sess.ExpiresAt)
}

func TestSessions_Expiry(t *testing.T) {
	for name, newStore := range sessionStores() {
		t.Run(name, func(t *testing.T) {
			mock := clock.NewMockClock(testEpoch)
			store := newStore(t, mock)
			sessions := NewSessions(store, time.Hour, mock)

			sess, err := sessions.Establish(true)
			require.NoError(t, err)

			mock.Advance(59 * time.Minute)
			assert.True(t, sessions.Authenticated(sess.ID))

			mock.Advance(2 * time.Minute)
			assert.False(t, sessions.Authenticated(sess.ID))

			_, err = store.Get(sess.ID)
			assert.ErrorIs(t, err, ErrSessionNotFound)
		})
	}
}

func TestSessions_Destroy(t *testing.T) {
	for name, newStore := range sessionStores() {
		t.Run(name, func(t *testing.T) {
			sessions := NewSessions(newStore(t, nil), 0, nil)

			sess, err := sessions.Establish(false)
			require.NoError(t, err)
			require.NoError(t, sessions.Destroy(sess.ID))

			assert.False(t, sessions.Authenticated(sess.ID))
			assert.NoError(t, sessions.Destroy(sess.ID), "destroying twice is not an error")
			assert.NoError(t, sessions.Destroy(""))
		})
	}
}

func TestSessions_UnknownID(t *testing.T) {
	sessions := NewSessions(NewMemorySessionStore(nil), 0, nil)

	assert.False(t, sessions.Authenticated(""))
	assert.False(t, sessions.Authenticated("deadbeef"))
}

func TestSessions_IDsAreUnique(t *testing.T) {
	sessions := NewSessions(NewMemorySessionStore(nil), 0, nil)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		sess, err := sessions.Establish(false)
		require.NoError(t, err)
		assert.Len(t, sess.ID, 64)
		assert.False(t, seen[sess.ID], "duplicate session id")
		seen[sess.ID] = true
	}
}

func TestSessions_ConcurrentDestroyAndLookup(t *testing.T) {
	sessions := NewSessions(NewMemorySessionStore(nil), 0, nil)
	sess, err := sessions.Establish(false)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sessions.Authenticated(sess.ID)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = sessions.Destroy(sess.ID)
	}()
	wg.Wait()

	assert.False(t, sessions.Authenticated(sess.ID))
}

func TestMemorySessionStore_SweepsExpiredOnSave(t *testing.T) {
	mock := clock.NewMockClock(testEpoch)
	store := NewMemorySessionStore(mock)
	sessions := NewSessions(store, time.Minute, mock)

	_, err := sessions.Establish(true)
	require.NoError(t, err)
	mock.Advance(2 * time.Minute)

	_, err = sessions.Establish(false)
	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())
}

func TestMemorySessionStore_ReturnsCopies(t *testing.T) {
	store := NewMemorySessionStore(nil)
	require.NoError(t, store.Save(&Session{ID: "a", Authenticated: true}))

	got, err := store.Get("a")
	require.NoError(t, err)
	got.Authenticated = false

	again, err := store.Get("a")
	require.NoError(t, err)
	assert.True(t, again.Authenticated)
}

func TestStateSessionStore_OnlyRememberedSessionsPersist(t *testing.T) {
	clk := clock.NewMockClock(testEpoch)
	opts := state.DefaultOptions(":memory:")
	opts.CleanupInterval = 0
	opts.Clock = clk
	st, err := state.NewSQLiteStore(opts)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	store, err := NewStateSessionStore(st, clk)
	require.NoError(t, err)
	sessions := NewSessions(store, time.Hour, clk)

	plain, err := sessions.Establish(false)
	require.NoError(t, err)
	remembered, err := sessions.Establish(true)
	require.NoError(t, err)

	persisted, err := st.List(state.BucketSessions)
	require.NoError(t, err)
	assert.Len(t, persisted, 1)
	assert.Contains(t, persisted, remembered.ID)

	// A fresh store over the same database stands in for a restart.
	restarted, err := NewStateSessionStore(st, clk)
	require.NoError(t, err)
	after := NewSessions(restarted, time.Hour, clk)
	assert.True(t, after.Authenticated(remembered.ID))
	assert.False(t, after.Authenticated(plain.ID))

	require.NoError(t, sessions.Destroy(plain.ID))
	assert.False(t, sessions.Authenticated(plain.ID))
}
