package accounts

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultReaperSchedule runs the sweep at minute zero of every hour
const DefaultReaperSchedule = "0 * * * *"

// ExpiryReaper deletes expired pending changes
type ExpiryReaper struct {
	store    StagingStore
	schedule string
	timeout  time.Duration
	now      clock
	logger   Logger

	mu   sync.Mutex
	cron *cron.Cron
}

func NewExpiryReaper(store StagingStore) *ExpiryReaper {
	return &ExpiryReaper{
		store:    store,
		schedule: DefaultReaperSchedule,
		timeout:  time.Minute,
		now:      defaultClock,
		logger:   defLogger{},
	}
}

// WithSchedule sets the standard five field cron expression
func (r *ExpiryReaper) WithSchedule(spec string) *ExpiryReaper {
	if spec != "" {
		r.schedule = spec
	}
	return r
}

func (r *ExpiryReaper) WithClock(now func() time.Time) *ExpiryReaper {
	if now != nil {
		r.now = now
	}
	return r
}

func (r *ExpiryReaper) WithLogger(logger Logger) *ExpiryReaper {
	if logger != nil {
		r.logger = logger
	}
	return r
}

// Sweep deletes every record already expired and returns how many were removed
func (r *ExpiryReaper) Sweep(ctx context.Context) (int, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}

	n, err := r.store.DeleteExpired(ctx, r.now())
	if err != nil {
		return 0, err
	}

	if n > 0 {
		r.logger.Info("expired pending changes removed", "count", n)
	}

	return n, nil
}

// Start schedules Sweep. Calling Start on a running reaper is a no-op.
func (r *ExpiryReaper) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cron != nil {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(r.schedule, r.run); err != nil {
		return err
	}

	c.Start()
	r.cron = c
	r.logger.Info("expiry reaper started", "schedule", r.schedule)

	return nil
}

// Stop halts the schedule and waits for a running sweep to finish
func (r *ExpiryReaper) Stop() {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.mu.Unlock()

	if c == nil {
		return
	}

	<-c.Stop().Done()
	r.logger.Info("expiry reaper stopped")
}

func (r *ExpiryReaper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if _, err := r.Sweep(ctx); err != nil {
		r.logger.Error("expiry sweep failed", "error", err)
	}
}
