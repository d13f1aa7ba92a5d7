package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pairchat/internal/app/store"
	"pairchat/internal/metrics"
	"pairchat/internal/pkg/errs"
)

const (
	// idleThreshold is how long a connection may stay silent (no pong, no
	// event) before its user is demoted to away.
	idleThreshold = 30 * time.Second

	// sweepInterval is how often the idle sweep runs.
	sweepInterval = 5 * time.Second
)

// PresenceStore is the durable side of presence: the last-known status served
// when no connection is live.
type PresenceStore interface {
	UpdatePresence(ctx context.Context, userID, status string, lastActive *time.Time) error
	GetPresence(ctx context.Context, userID string) (store.Presence, error)
}

// Broadcaster delivers an encoded event to every connected client. Presence is
// global in this design, not room-scoped.
type Broadcaster interface {
	BroadcastAll(event []byte)
}

// StatusChange describes one presence transition.
type StatusChange struct {
	UserID     string
	Status     string
	LastActive *time.Time
}

// PresenceTracker translates connection-count transitions into presence
// broadcasts and durable updates. It owns all mutation of presence state.
//
// Durable-store failures are logged and swallowed: presence is ephemeral and
// self-corrects on the next transition, so a write failure never takes down a
// connection.
type PresenceTracker struct {
	registry *ConnectionRegistry
	store    PresenceStore
	bc       Broadcaster
	logger   zerolog.Logger

	mu sync.Mutex
	// lastSeen tracks the most recent heartbeat per online user.
	lastSeen map[string]time.Time
	// idleAway marks users the sweep has demoted, so each idle spell
	// broadcasts a single transition.
	idleAway map[string]bool
	// subs holds presence-change subscribers keyed by handle.
	subs    map[int]func(StatusChange)
	nextSub int

	done chan struct{}
	wg   sync.WaitGroup
}

// NewPresenceTracker wires the tracker and starts its idle sweep. Call Stop
// on shutdown to cancel the sweep.
func NewPresenceTracker(registry *ConnectionRegistry, ps PresenceStore, bc Broadcaster, logger zerolog.Logger) *PresenceTracker {
	t := &PresenceTracker{
		registry: registry,
		store:    ps,
		bc:       bc,
		logger:   logger.With().Str("component", "PresenceTracker").Logger(),
		lastSeen: make(map[string]time.Time),
		idleAway: make(map[string]bool),
		subs:     make(map[int]func(StatusChange)),
		done:     make(chan struct{}),
	}

	t.wg.Add(1)
	go t.runSweep()

	return t
}

// Stop cancels the idle sweep and waits for it to exit.
func (t *PresenceTracker) Stop() {
	select {
	case <-t.done:
	default:
		close(t.done)
	}
	t.wg.Wait()
}

// Subscribe registers a callback for presence transitions and returns an
// unsubscribe handle. Callbacks run synchronously on the transitioning
// goroutine and must not block.
func (t *PresenceTracker) Subscribe(fn func(StatusChange)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()

	handle := t.nextSub
	t.nextSub++
	t.subs[handle] = fn

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.subs, handle)
	}
}

// ConnectionOpened registers the connection and, on the user's 0→1 count
// transition, marks them online and broadcasts the change.
func (t *PresenceTracker) ConnectionOpened(ctx context.Context, userID, connID string) {
	count := t.registry.Register(userID, connID)

	t.mu.Lock()
	t.lastSeen[userID] = time.Now()
	wasIdle := t.idleAway[userID]
	delete(t.idleAway, userID)
	t.mu.Unlock()

	if count != 1 {
		// Not a presence transition, unless this connection ends an idle
		// spell on the user's other connections.
		if wasIdle {
			t.transition(ctx, StatusChange{UserID: userID, Status: store.StatusOnline})
		}
		return
	}

	metrics.OnlineUsers.Inc()
	t.transition(ctx, StatusChange{UserID: userID, Status: store.StatusOnline})
}

// ConnectionClosed deregisters the connection and, on the user's 1→0 count
// transition, marks them offline with the current time as last-active.
// Additional open connections from the same user suppress the broadcast.
func (t *PresenceTracker) ConnectionClosed(ctx context.Context, userID, connID string) {
	count := t.registry.Deregister(userID, connID)
	if count != 0 {
		return
	}

	t.mu.Lock()
	delete(t.lastSeen, userID)
	delete(t.idleAway, userID)
	t.mu.Unlock()

	now := time.Now()
	metrics.OnlineUsers.Dec()
	t.transition(ctx, StatusChange{UserID: userID, Status: store.StatusOffline, LastActive: &now})
}

// SetStatus applies an explicit status override (away, or an online refresh).
// Only accepted while the user has at least one open connection.
func (t *PresenceTracker) SetStatus(ctx context.Context, userID, status string) *errs.CustomError {
	if status != store.StatusOnline && status != store.StatusAway {
		return errs.NewError(errs.ErrInvalidParams)
	}
	if !t.registry.IsOnline(userID) {
		return errs.NewError(errs.ErrInvalidParams)
	}

	t.mu.Lock()
	if status == store.StatusOnline {
		t.lastSeen[userID] = time.Now()
		delete(t.idleAway, userID)
	}
	t.mu.Unlock()

	now := time.Now()
	t.transition(ctx, StatusChange{UserID: userID, Status: status, LastActive: &now})
	return nil
}

// Heartbeat records activity on one of the user's connections. Fed by pong
// frames and any inbound event. A user the sweep had demoted is promoted back
// to online, durable write and broadcast included, so resumed activity is
// visible without an explicit update_status.
func (t *PresenceTracker) Heartbeat(userID string) {
	t.mu.Lock()
	t.lastSeen[userID] = time.Now()
	wasIdle := t.idleAway[userID]
	delete(t.idleAway, userID)
	t.mu.Unlock()

	if !wasIdle {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), sweepInterval)
	defer cancel()
	t.transition(ctx, StatusChange{UserID: userID, Status: store.StatusOnline})
}

// Status answers an on-demand presence query. It never fails: store lookups
// that error degrade to offline (or online, when the registry already proves
// a live connection).
func (t *PresenceTracker) Status(ctx context.Context, userID string) store.Presence {
	if t.registry.IsOnline(userID) {
		// A connected user may still have self-reported away; the durable
		// record keeps that distinction.
		pr, err := t.store.GetPresence(ctx, userID)
		if err == nil && pr.Status == store.StatusAway {
			return pr
		}
		return store.Presence{Status: store.StatusOnline}
	}

	pr, err := t.store.GetPresence(ctx, userID)
	if err != nil {
		t.logger.Warn().Err(err).Str("user_id", userID).Msg("Presence lookup failed, degrading to offline.")
		return store.Presence{Status: store.StatusOffline}
	}
	if pr.Status == "" {
		pr.Status = store.StatusOffline
	}
	return pr
}

// transition persists the durable copy best-effort, then broadcasts the change
// to every connection and notifies subscribers.
func (t *PresenceTracker) transition(ctx context.Context, change StatusChange) {
	if err := t.store.UpdatePresence(ctx, change.UserID, change.Status, change.LastActive); err != nil {
		t.logger.Warn().Err(err).
			Str("user_id", change.UserID).
			Str("status", change.Status).
			Msg("Durable presence update failed. Broadcast proceeding.")
	}

	metrics.PresenceTransitions.WithLabelValues(change.Status).Inc()

	event, err := EncodeEvent(EventUserStatusChange, StatusChangePayload{
		UserID:     change.UserID,
		Status:     change.Status,
		LastActive: change.LastActive,
	})
	if err != nil {
		t.logger.Error().Err(err).Msg("Failed to encode presence broadcast.")
		return
	}
	t.bc.BroadcastAll(event)

	t.mu.Lock()
	subs := make([]func(StatusChange), 0, len(t.subs))
	for _, fn := range t.subs {
		subs = append(subs, fn)
	}
	t.mu.Unlock()

	for _, fn := range subs {
		fn(change)
	}
}

// runSweep periodically demotes users whose connections have gone silent past
// idleThreshold. Server-authoritative: a client claiming online while sending
// nothing still goes away.
func (t *PresenceTracker) runSweep() {
	defer t.wg.Done()

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.sweepOnce()
		}
	}
}

func (t *PresenceTracker) sweepOnce() {
	cutoff := time.Now().Add(-idleThreshold)

	var stale []string
	t.mu.Lock()
	for _, userID := range t.registry.OnlineUsers() {
		seen, ok := t.lastSeen[userID]
		if !ok || t.idleAway[userID] {
			continue
		}
		if seen.Before(cutoff) {
			t.idleAway[userID] = true
			stale = append(stale, userID)
		}
	}
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), sweepInterval)
	defer cancel()

	for _, userID := range stale {
		t.logger.Debug().Str("user_id", userID).Msg("Idle connection, demoting to away.")
		now := time.Now()
		t.transition(ctx, StatusChange{UserID: userID, Status: store.StatusAway, LastActive: &now})
	}
}
