package countdown

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/clock"
)

const (
	DefaultTickInterval = time.Second
	DefaultSyncInterval = 5 * time.Second
	DefaultSyncTimeout  = 4 * time.Second
)

// Syncer receives the advisory remaining-time pushes.
type Syncer interface {
	UpdateRemainingTime(ctx context.Context, submissionID uuid.UUID, seconds int) error
}

// Options tunes the two cadences. Zero values fall back to the defaults.
type Options struct {
	TickInterval time.Duration
	SyncInterval time.Duration
	SyncTimeout  time.Duration
}

// Timer owns the remaining time of one exam screen. It decrements locally
// once per tick and pushes the value to the backend on its own, slower
// cadence. Nothing else writes the remaining time; callers read it or Reset it.
type Timer struct {
	mu     sync.Mutex
	clk    clock.Clock
	syncer Syncer
	log    zerolog.Logger
	opts   Options

	submissionID uuid.UUID
	remaining    int
	expired      bool
	onExpire     func()

	// gen invalidates callbacks of torn-down intervals that already fired.
	gen  uint64
	tick clock.Timer
	sync clock.Timer
}

// New creates a stopped Timer.
func New(syncer Syncer, clk clock.Clock, log zerolog.Logger, opts Options) *Timer {
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.SyncInterval <= 0 {
		opts.SyncInterval = DefaultSyncInterval
	}
	if opts.SyncTimeout <= 0 {
		opts.SyncTimeout = DefaultSyncTimeout
	}
	return &Timer{
		clk:    clk,
		syncer: syncer,
		log:    log.With().Str("component", "countdown").Logger(),
		opts:   opts,
	}
}

// Reset tears down any running intervals and starts counting down from
// seconds. onExpire runs once, on the tick where the value first reaches
// zero. A Reset to zero starts nothing; the caller handles an exam that is
// already out of time.
func (t *Timer) Reset(submissionID uuid.UUID, seconds int, onExpire func()) {
	if seconds < 0 {
		seconds = 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()
	t.gen++
	t.submissionID = submissionID
	t.remaining = seconds
	t.expired = false
	t.onExpire = onExpire

	if seconds == 0 {
		return
	}

	gen := t.gen
	t.tick = t.clk.Every(t.opts.TickInterval, func() { t.onTick(gen) })
	t.sync = t.clk.Every(t.opts.SyncInterval, func() { t.onSync(gen) })

	t.log.Debug().
		Str("submission_id", submissionID.String()).
		Int("remaining", seconds).
		Msg("Countdown started")
}

// Stop cancels both intervals. The remaining value is kept for reading.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	t.gen++
}

func (t *Timer) stopLocked() {
	if t.tick != nil {
		t.tick.Stop()
		t.tick = nil
	}
	if t.sync != nil {
		t.sync.Stop()
		t.sync = nil
	}
}

func (t *Timer) onTick(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || t.remaining == 0 {
		t.mu.Unlock()
		return
	}

	t.remaining--
	submissionID := t.submissionID
	var fire func()
	if t.remaining == 0 && !t.expired {
		t.expired = true
		fire = t.onExpire
		// Nothing left to count or report.
		t.stopLocked()
	}
	t.mu.Unlock()

	if fire != nil {
		t.log.Info().Str("submission_id", submissionID.String()).Msg("Countdown expired")
		fire()
	}
}

func (t *Timer) onSync(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || t.remaining == 0 || t.syncer == nil {
		t.mu.Unlock()
		return
	}
	submissionID := t.submissionID
	remaining := t.remaining
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), t.opts.SyncTimeout)
	defer cancel()

	if err := t.syncer.UpdateRemainingTime(ctx, submissionID, remaining); err != nil {
		t.log.Warn().Err(err).
			Str("submission_id", submissionID.String()).
			Int("remaining", remaining).
			Msg("Remaining time sync failed")
	}
}

// Remaining returns the current remaining seconds.
func (t *Timer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

// Expired reports whether the countdown has crossed zero since the last Reset.
func (t *Timer) Expired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.expired
}

// Snapshot is the presentation view of the countdown.
type Snapshot struct {
	Remaining int    `json:"remaining"`
	Display   string `json:"display"`
	Warning   bool   `json:"warning"`
	Critical  bool   `json:"critical"`
}

func (t *Timer) Snapshot() Snapshot {
	return SnapshotOf(t.Remaining())
}
