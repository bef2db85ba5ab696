// Package scheduler implements the thread-safe, time-driven retry core: a
// min-heap of due times, an in-memory index of in-flight messages, and a
// background tick loop that advances each message through bounded retries
// until it reaches a terminal state.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"sms-retry-scheduler/internal/clock"
)

// Config tunes the Core's background tick loop.
type Config struct {
	// TickInterval is how often Wakeup runs in the background. Zero means 500ms.
	TickInterval time.Duration
	// StopGrace bounds how long Stop waits for the tick loop to exit.
	StopGrace time.Duration
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = 500 * time.Millisecond
	}
	if c.StopGrace <= 0 {
		c.StopGrace = 2 * time.Second
	}
	return c
}

// MetricsSink receives counters as the Core transitions messages. A nil
// sink is valid; every call site guards against it.
type MetricsSink interface {
	ObserveAttempt(outcome string)
	ObserveSuccess()
	ObserveFailure()
	ObservePersistenceError(operation string)
	SetInProgress(n int)
	SetHeapDepth(n int)
	ObserveTick(d time.Duration)
}

// TerminalNotifier receives a message's terminal state once it is final.
// Implementations must not block meaningfully -- this is a best-effort fan
// out, not part of the scheduler's own durability guarantees.
type TerminalNotifier interface {
	Delivered(state MessageState)
	Failed(state MessageState)
}

// Core is the scheduler: single mutex guarding the heap, the index, and the
// running flag, so NewMessage and a wakeup tick never interleave.
type Core struct {
	cfg      Config
	clock    clock.Clock
	send     SendPort
	store    PersistencePort
	logger   *zap.Logger
	metrics  MetricsSink
	notifier TerminalNotifier

	mu      sync.Mutex
	heap    *retryHeap
	index   map[string]*MessageState
	running bool
	stats   Stats

	stopCh chan struct{}
	doneCh chan struct{}
}

// New builds a Core. send and store must be non-nil; logger and metrics may
// be nil (a no-op zap.NewNop() logger is substituted, metrics calls skipped).
func New(cfg Config, send SendPort, store PersistencePort, clk clock.Clock, logger *zap.Logger, metrics MetricsSink) *Core {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Core{
		cfg:     cfg.withDefaults(),
		clock:   clk,
		send:    send,
		store:   store,
		logger:  logger,
		metrics: metrics,
		heap:    newRetryHeap(),
		index:   make(map[string]*MessageState),
	}
}

// Start recovers persisted pending state and launches the background tick
// loop. Idempotent: a second call while already running logs and returns.
func (c *Core) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		c.logger.Warn("scheduler already running")
		return nil
	}

	if err := c.recoverLocked(ctx); err != nil {
		return err
	}

	c.running = true
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	go c.tickLoop(c.stopCh, c.doneCh)

	c.logger.Info("scheduler started", zap.Int("recovered", len(c.index)))
	return nil
}

// Stop clears the running flag and waits for the tick loop to exit, up to
// cfg.StopGrace.
func (c *Core) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		c.logger.Warn("scheduler not running")
		return
	}
	c.running = false
	stopCh, doneCh := c.stopCh, c.doneCh
	c.mu.Unlock()

	close(stopCh)
	select {
	case <-doneCh:
	case <-time.After(c.cfg.StopGrace):
		c.logger.Warn("scheduler stop timed out waiting for tick loop")
	}
	c.logger.Info("scheduler stopped")
}

// recoverLocked loads pending state persisted by a prior instance and seeds
// the heap and index from it. Callers must hold c.mu. Past-due retry times
// are clamped forward to now rather than firing a storm of immediate retries
// spread across however long the scheduler was down. A failed load is logged,
// counted as a persistence error, and treated as an empty recovery set.
func (c *Core) recoverLocked(ctx context.Context) error {
	pending, err := c.store.LoadAllPending(ctx)
	if err != nil {
		c.logger.Error("failed to recover pending state, starting with an empty recovery set", zap.Error(err))
		c.observePersistenceError("load_all_pending")
		pending = nil
	}

	now := c.clock.Now()
	for i := range pending {
		state := pending[i]
		if state.NextRetryAt < now {
			state.NextRetryAt = now
		}
		stored := state
		c.index[state.MessageID] = &stored
		c.heap.push(stored.NextRetryAt, stored.MessageID)
	}

	c.stats.InProgress = int64(len(pending))
	c.syncGauges()
	return nil
}

// NewMessage handles a new message arrival: it builds the initial PENDING
// state, records it, and performs the first send attempt synchronously
// under the lock, exactly like the intake-time attempt the wakeup loop
// gives every later retry.
func (c *Core) NewMessage(ctx context.Context, msg Message) MessageState {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	state := &MessageState{
		MessageID:    msg.MessageID,
		Message:      msg,
		AttemptCount: 0,
		NextRetryAt:  now,
		Status:       StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	c.index[msg.MessageID] = state
	c.stats.TotalMessages++
	c.stats.InProgress++
	c.syncGauges()

	c.logger.Info("new message received", zap.String("message_id", msg.MessageID))

	success := c.attemptSend(ctx, state)
	if success {
		c.handleSuccess(ctx, state)
	} else {
		c.scheduleNextRetry(ctx, state)
	}

	return state.Clone()
}

// Wakeup drains every entry due at or before the time the tick started. A
// message rescheduled during the tick to a time at or before that start is
// attempted again within the same tick, so a message that has fallen behind
// its schedule can run several attempts in one tick.
func (c *Core) Wakeup(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return
	}

	start := c.clock.Now()
	processed := 0

	for {
		entry, ok := c.heap.peek()
		if !ok || entry.nextRetryAt > start {
			break
		}
		c.heap.pop()

		state, tracked := c.index[entry.messageID]
		if !tracked || state.Status != StatusPending {
			continue
		}

		success := c.attemptSend(ctx, state)
		switch {
		case success:
			c.handleSuccess(ctx, state)
		case state.AttemptCount >= MaxAttempts:
			c.handleFailure(ctx, state)
		default:
			c.scheduleNextRetry(ctx, state)
		}
		processed++
	}

	if processed > 0 {
		c.logger.Debug("wakeup processed messages", zap.Int("count", processed))
	}
	if c.metrics != nil {
		c.metrics.ObserveTick(time.Duration((c.clock.Now() - start) * float64(time.Second)))
	}
}

// tickLoop runs Wakeup on cfg.TickInterval until stopCh closes. A panic from
// within a single tick is recovered and logged so one bad tick never kills
// the whole loop.
func (c *Core) tickLoop(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)
	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			c.safeTick()
		}
	}
}

func (c *Core) safeTick() {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("recovered panic in wakeup tick", zap.Any("panic", r))
		}
	}()
	c.Wakeup(context.Background())
}

// attemptSend invokes the send port, recording the attempt regardless of
// outcome. A panic or error from the port is treated as a failed attempt --
// it must never take down the scheduler goroutine.
func (c *Core) attemptSend(ctx context.Context, state *MessageState) (success bool) {
	c.logger.Info("attempting send",
		zap.String("message_id", state.MessageID),
		zap.Int("attempt", state.AttemptCount+1),
		zap.Int("max_attempts", MaxAttempts))

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic during send attempt",
				zap.String("message_id", state.MessageID), zap.Any("panic", r))
			success = false
		}
		state.AttemptCount++
		state.UpdatedAt = c.clock.Now()
		outcome := "failure"
		if success {
			outcome = "success"
		}
		if c.metrics != nil {
			c.metrics.ObserveAttempt(outcome)
		}
	}()

	ok, err := c.send(ctx, state.Message)
	if err != nil {
		c.logger.Error("send port returned error",
			zap.String("message_id", state.MessageID), zap.Error(err))
		return false
	}
	return ok
}

// scheduleNextRetry computes the next due time from the retry schedule,
// reinserts the message into the heap, and persists its state.
func (c *Core) scheduleNextRetry(ctx context.Context, state *MessageState) {
	if state.AttemptCount >= len(RetrySchedule) {
		c.logger.Error("no more retries available", zap.String("message_id", state.MessageID))
		return
	}

	delay := RetrySchedule[state.AttemptCount]
	state.NextRetryAt = state.CreatedAt + delay
	c.heap.push(state.NextRetryAt, state.MessageID)
	c.syncGauges()

	if err := c.store.SavePending(ctx, *state); err != nil {
		c.logger.Error("failed to persist pending state",
			zap.String("message_id", state.MessageID), zap.Error(err))
		c.observePersistenceError("save_pending")
	}

	c.logger.Debug("scheduled retry",
		zap.String("message_id", state.MessageID),
		zap.Float64("next_retry_at", state.NextRetryAt),
		zap.Float64("delay", delay))
}

// handleSuccess transitions state to SUCCESS, drops it from the index, and
// writes the success log entry.
func (c *Core) handleSuccess(ctx context.Context, state *MessageState) {
	state.Status = StatusSuccess
	state.UpdatedAt = c.clock.Now()

	delete(c.index, state.MessageID)
	c.stats.TotalSuccess++
	c.stats.InProgress--
	c.syncGauges()
	if c.metrics != nil {
		c.metrics.ObserveSuccess()
	}

	if err := c.store.WriteSuccess(ctx, *state); err != nil {
		c.logger.Error("failed to persist success",
			zap.String("message_id", state.MessageID), zap.Error(err))
		c.observePersistenceError("write_success")
	}

	c.logger.Info("message sent successfully",
		zap.String("message_id", state.MessageID), zap.Int("attempts", state.AttemptCount))

	if c.notifier != nil {
		c.notifier.Delivered(*state)
	}
}

// handleFailure transitions state to FAILED_MAX_RETRIES, drops it from the
// index, and writes the failure log entry.
func (c *Core) handleFailure(ctx context.Context, state *MessageState) {
	state.Status = StatusFailedMaxRetries
	state.UpdatedAt = c.clock.Now()

	delete(c.index, state.MessageID)
	c.stats.TotalFailed++
	c.stats.InProgress--
	c.syncGauges()
	if c.metrics != nil {
		c.metrics.ObserveFailure()
	}

	if err := c.store.WriteFailed(ctx, *state); err != nil {
		c.logger.Error("failed to persist failure",
			zap.String("message_id", state.MessageID), zap.Error(err))
		c.observePersistenceError("write_failed")
	}

	c.logger.Warn("message failed after max attempts",
		zap.String("message_id", state.MessageID), zap.Int("attempts", state.AttemptCount))

	if c.notifier != nil {
		c.notifier.Failed(*state)
	}
}

// SetNotifier wires an optional terminal-transition notifier. Must be
// called before Start (or at least before any message reaches a terminal
// state) -- it is not synchronized against concurrent handleSuccess /
// handleFailure calls.
func (c *Core) SetNotifier(n TerminalNotifier) {
	c.notifier = n
}

// Running reports whether the tick loop is currently active.
func (c *Core) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// GetStats returns a point-in-time snapshot of the scheduler's counters.
func (c *Core) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// GetRecentSuccess returns up to limit recently-succeeded messages from the
// persistence layer. Unlike NewMessage/Wakeup this does not touch the live
// index and so does not need the scheduler lock.
func (c *Core) GetRecentSuccess(ctx context.Context, limit int) ([]MessageState, error) {
	return c.store.RecentSuccess(ctx, limit)
}

// GetRecentFailed returns up to limit recently-failed messages from the
// persistence layer.
func (c *Core) GetRecentFailed(ctx context.Context, limit int) ([]MessageState, error) {
	return c.store.RecentFailed(ctx, limit)
}

// syncGauges pushes point-in-time depth counters to the metrics sink.
// Callers must hold c.mu.
func (c *Core) syncGauges() {
	if c.metrics == nil {
		return
	}
	c.metrics.SetInProgress(int(c.stats.InProgress))
	c.metrics.SetHeapDepth(c.heap.Len())
}

func (c *Core) observePersistenceError(operation string) {
	c.stats.PersistenceErrors++
	if c.metrics != nil {
		c.metrics.ObservePersistenceError(operation)
	}
}
