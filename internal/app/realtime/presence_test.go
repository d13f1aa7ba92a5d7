package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pairchat/internal/app/store"
)

type fakePresenceStore struct {
	mu         sync.Mutex
	statuses   map[string]store.Presence
	failGet    bool
	failUpdate bool
}

func newFakePresenceStore() *fakePresenceStore {
	return &fakePresenceStore{statuses: make(map[string]store.Presence)}
}

func (f *fakePresenceStore) UpdatePresence(_ context.Context, userID, status string, lastActive *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdate {
		return errors.New("store down")
	}
	f.statuses[userID] = store.Presence{Status: status, LastActive: lastActive}
	return nil
}

func (f *fakePresenceStore) GetPresence(_ context.Context, userID string) (store.Presence, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGet {
		return store.Presence{}, errors.New("store down")
	}
	return f.statuses[userID], nil
}

func (f *fakePresenceStore) statusOf(userID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statuses[userID].Status
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events [][]byte
}

func (f *fakeBroadcaster) BroadcastAll(event []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeBroadcaster) statusChanges(t *testing.T) []StatusChangePayload {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []StatusChangePayload
	for _, raw := range f.events {
		var env Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		if env.Type != EventUserStatusChange {
			continue
		}
		var payload StatusChangePayload
		require.NoError(t, json.Unmarshal(env.Payload, &payload))
		out = append(out, payload)
	}
	return out
}

func newTestTracker(t *testing.T) (*PresenceTracker, *fakePresenceStore, *fakeBroadcaster) {
	t.Helper()

	ps := newFakePresenceStore()
	bc := &fakeBroadcaster{}
	tracker := NewPresenceTracker(NewConnectionRegistry(), ps, bc, zerolog.Nop())
	t.Cleanup(tracker.Stop)

	return tracker, ps, bc
}

func TestPresenceBroadcastsOnlineOnlyOnFirstConnection(t *testing.T) {
	tracker, ps, bc := newTestTracker(t)
	ctx := context.Background()

	tracker.ConnectionOpened(ctx, "user-a", "conn-1")
	tracker.ConnectionOpened(ctx, "user-a", "conn-2")

	changes := bc.statusChanges(t)
	require.Len(t, changes, 1)
	assert.Equal(t, "user-a", changes[0].UserID)
	assert.Equal(t, store.StatusOnline, changes[0].Status)
	assert.Equal(t, store.StatusOnline, ps.statusOf("user-a"))
}

func TestPresenceBroadcastsOfflineOnlyOnLastDisconnect(t *testing.T) {
	tracker, ps, bc := newTestTracker(t)
	ctx := context.Background()

	tracker.ConnectionOpened(ctx, "user-a", "conn-1")
	tracker.ConnectionOpened(ctx, "user-a", "conn-2")

	tracker.ConnectionClosed(ctx, "user-a", "conn-1")
	changes := bc.statusChanges(t)
	require.Len(t, changes, 1) // still just the online transition

	tracker.ConnectionClosed(ctx, "user-a", "conn-2")
	changes = bc.statusChanges(t)
	require.Len(t, changes, 2)
	assert.Equal(t, store.StatusOffline, changes[1].Status)
	require.NotNil(t, changes[1].LastActive)

	assert.Equal(t, store.StatusOffline, ps.statusOf("user-a"))
}

func TestPresenceSetStatusRequiresOpenConnection(t *testing.T) {
	tracker, _, _ := newTestTracker(t)
	ctx := context.Background()

	customErr := tracker.SetStatus(ctx, "user-a", store.StatusAway)
	require.NotNil(t, customErr)

	tracker.ConnectionOpened(ctx, "user-a", "conn-1")
	require.Nil(t, tracker.SetStatus(ctx, "user-a", store.StatusAway))
}

func TestPresenceSetStatusRejectsOffline(t *testing.T) {
	tracker, _, _ := newTestTracker(t)
	ctx := context.Background()

	tracker.ConnectionOpened(ctx, "user-a", "conn-1")
	require.NotNil(t, tracker.SetStatus(ctx, "user-a", store.StatusOffline))
	require.NotNil(t, tracker.SetStatus(ctx, "user-a", "sleeping"))
}

func TestPresenceStatusDegradesToOfflineOnLookupFailure(t *testing.T) {
	tracker, ps, _ := newTestTracker(t)
	ps.failGet = true

	pr := tracker.Status(context.Background(), "user-a")
	assert.Equal(t, store.StatusOffline, pr.Status)
}

func TestPresenceStatusReportsOnlineFromRegistry(t *testing.T) {
	tracker, ps, _ := newTestTracker(t)
	ctx := context.Background()

	tracker.ConnectionOpened(ctx, "user-a", "conn-1")

	// Even with a broken durable store, a live connection reads as online.
	ps.failGet = true
	pr := tracker.Status(ctx, "user-a")
	assert.Equal(t, store.StatusOnline, pr.Status)
}

func TestPresenceStatusHonorsSelfReportedAwayWhileConnected(t *testing.T) {
	tracker, _, _ := newTestTracker(t)
	ctx := context.Background()

	tracker.ConnectionOpened(ctx, "user-a", "conn-1")
	require.Nil(t, tracker.SetStatus(ctx, "user-a", store.StatusAway))

	pr := tracker.Status(ctx, "user-a")
	assert.Equal(t, store.StatusAway, pr.Status)
}

func TestPresenceStoreFailureDoesNotSuppressBroadcast(t *testing.T) {
	tracker, ps, bc := newTestTracker(t)
	ps.failUpdate = true

	tracker.ConnectionOpened(context.Background(), "user-a", "conn-1")

	changes := bc.statusChanges(t)
	require.Len(t, changes, 1)
	assert.Equal(t, store.StatusOnline, changes[0].Status)
}

func TestPresenceSweepDemotesIdleUsersOnce(t *testing.T) {
	tracker, _, bc := newTestTracker(t)
	ctx := context.Background()

	tracker.ConnectionOpened(ctx, "user-a", "conn-1")

	tracker.mu.Lock()
	tracker.lastSeen["user-a"] = time.Now().Add(-idleThreshold - time.Second)
	tracker.mu.Unlock()

	tracker.sweepOnce()
	tracker.sweepOnce() // second sweep must not broadcast again

	changes := bc.statusChanges(t)
	require.Len(t, changes, 2) // online + one away demotion
	assert.Equal(t, store.StatusAway, changes[1].Status)
}

func TestPresenceHeartbeatPromotesIdleUserBackOnline(t *testing.T) {
	tracker, ps, bc := newTestTracker(t)
	ctx := context.Background()

	tracker.ConnectionOpened(ctx, "user-a", "conn-1")

	tracker.mu.Lock()
	tracker.lastSeen["user-a"] = time.Now().Add(-idleThreshold - time.Second)
	tracker.mu.Unlock()
	tracker.sweepOnce()

	tracker.Heartbeat("user-a")

	changes := bc.statusChanges(t)
	require.Len(t, changes, 3) // online, away, back online
	assert.Equal(t, store.StatusAway, changes[1].Status)
	assert.Equal(t, store.StatusOnline, changes[2].Status)

	assert.Equal(t, store.StatusOnline, ps.statusOf("user-a"))
	assert.Equal(t, store.StatusOnline, tracker.Status(ctx, "user-a").Status)
}

func TestPresenceHeartbeatAfterRecoveryDoesNotRebroadcast(t *testing.T) {
	tracker, _, bc := newTestTracker(t)
	ctx := context.Background()

	tracker.ConnectionOpened(ctx, "user-a", "conn-1")

	tracker.mu.Lock()
	tracker.lastSeen["user-a"] = time.Now().Add(-idleThreshold - time.Second)
	tracker.mu.Unlock()
	tracker.sweepOnce()

	tracker.Heartbeat("user-a")
	tracker.Heartbeat("user-a")
	tracker.sweepOnce() // lastSeen is fresh again; no re-demotion

	changes := bc.statusChanges(t)
	require.Len(t, changes, 3) // online, away, back online; nothing more
}

func TestPresenceIdleDemotionRepeatsAfterNewIdleSpell(t *testing.T) {
	tracker, _, bc := newTestTracker(t)
	ctx := context.Background()

	tracker.ConnectionOpened(ctx, "user-a", "conn-1")

	tracker.mu.Lock()
	tracker.lastSeen["user-a"] = time.Now().Add(-idleThreshold - time.Second)
	tracker.mu.Unlock()
	tracker.sweepOnce()

	tracker.Heartbeat("user-a")

	tracker.mu.Lock()
	tracker.lastSeen["user-a"] = time.Now().Add(-idleThreshold - time.Second)
	tracker.mu.Unlock()
	tracker.sweepOnce()

	changes := bc.statusChanges(t)
	require.Len(t, changes, 4) // online, away, back online, away again
	assert.Equal(t, store.StatusAway, changes[3].Status)
}

func TestPresenceExtraConnectionEndsIdleSpell(t *testing.T) {
	tracker, _, bc := newTestTracker(t)
	ctx := context.Background()

	tracker.ConnectionOpened(ctx, "user-a", "conn-1")

	tracker.mu.Lock()
	tracker.lastSeen["user-a"] = time.Now().Add(-idleThreshold - time.Second)
	tracker.mu.Unlock()
	tracker.sweepOnce()

	tracker.ConnectionOpened(ctx, "user-a", "conn-2")

	changes := bc.statusChanges(t)
	require.Len(t, changes, 3) // online, away, back online
	assert.Equal(t, store.StatusOnline, changes[2].Status)
}

func TestPresenceQueryAfterDisconnectReturnsLastActive(t *testing.T) {
	tracker, _, bc := newTestTracker(t)
	ctx := context.Background()

	tracker.ConnectionOpened(ctx, "user-a", "conn-1")
	tracker.ConnectionClosed(ctx, "user-a", "conn-1")

	changes := bc.statusChanges(t)
	require.Len(t, changes, 2)
	broadcastLastActive := changes[1].LastActive
	require.NotNil(t, broadcastLastActive)

	pr := tracker.Status(ctx, "user-a")
	assert.Equal(t, store.StatusOffline, pr.Status)
	require.NotNil(t, pr.LastActive)
	assert.True(t, pr.LastActive.Equal(*broadcastLastActive))
}

func TestPingCadenceUndercutsIdleThreshold(t *testing.T) {
	// Pongs are the only activity a quiet-but-healthy connection produces, so
	// they must arrive more often than the sweep's staleness cutoff.
	assert.Less(t, pingPeriod, idleThreshold)
	assert.Less(t, pingPeriod, pongWait)
}

func TestPresenceSubscribeAndUnsubscribe(t *testing.T) {
	tracker, _, _ := newTestTracker(t)
	ctx := context.Background()

	var mu sync.Mutex
	var seen []StatusChange
	unsubscribe := tracker.Subscribe(func(change StatusChange) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, change)
	})

	tracker.ConnectionOpened(ctx, "user-a", "conn-1")

	mu.Lock()
	require.Len(t, seen, 1)
	assert.Equal(t, store.StatusOnline, seen[0].Status)
	mu.Unlock()

	unsubscribe()
	tracker.ConnectionClosed(ctx, "user-a", "conn-1")

	mu.Lock()
	assert.Len(t, seen, 1)
	mu.Unlock()
}
