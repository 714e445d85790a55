// Package scheduler runs periodic family settlements. A distributed lock
// keyed by family and period keeps several service instances from settling
// the same family at once; the settlement uniqueness rule in the store is
// the final guard.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bsm/redislock"

	"github.com/xraph/starledger"
	"github.com/xraph/starledger/id"
)

// ErrLockHeld is returned by a Locker when another holder owns the key.
var ErrLockHeld = errors.New("scheduler: lock held elsewhere")

// Settler is the part of the ledger the runner drives.
type Settler interface {
	RunFamilySettlement(ctx context.Context, familyID id.FamilyID, periodEnd time.Time) ([]starledger.ChildSettlement, error)
}

// Lock is a held lock.
type Lock interface {
	Release(ctx context.Context) error
}

// Locker hands out exclusive, expiring locks.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

// RedisLocker is a Locker over bsm/redislock.
type RedisLocker struct {
	client *redislock.Client
}

// NewRedisLocker wraps a go-redis client.
func NewRedisLocker(client redislock.RedisClient) *RedisLocker {
	return &RedisLocker{client: redislock.New(client)}
}

func (r *RedisLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	lock, err := r.client.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrLockHeld
	}
	if err != nil {
		return nil, err
	}
	return lock, nil
}

// PeriodFunc maps the current time to the end of the most recent period
// that is due for settlement.
type PeriodFunc func(now time.Time) time.Time

// Weekly closes periods at 00:00 UTC on the given weekday.
func Weekly(day time.Weekday) PeriodFunc {
	return func(now time.Time) time.Time {
		now = now.UTC()
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		back := (int(midnight.Weekday()) - int(day) + 7) % 7
		return midnight.AddDate(0, 0, -back)
	}
}

// Daily closes periods at 00:00 UTC.
func Daily() PeriodFunc {
	return func(now time.Time) time.Time {
		now = now.UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
}

// FamilySource lists the families to settle.
type FamilySource func(ctx context.Context) ([]id.FamilyID, error)

// Static returns a FamilySource over a fixed list.
func Static(families ...id.FamilyID) FamilySource {
	return func(context.Context) ([]id.FamilyID, error) { return families, nil }
}

// Runner settles families on an interval.
type Runner struct {
	settler  Settler
	families FamilySource
	locker   Locker
	logger   *slog.Logger
	now      func() time.Time

	interval time.Duration
	lockTTL  time.Duration
	period   PeriodFunc
	prefix   string
}

// Option configures a Runner.
type Option func(*Runner)

func WithLogger(logger *slog.Logger) Option { return func(r *Runner) { r.logger = logger } }

func WithInterval(d time.Duration) Option { return func(r *Runner) { r.interval = d } }

func WithLockTTL(d time.Duration) Option { return func(r *Runner) { r.lockTTL = d } }

func WithPeriod(p PeriodFunc) Option { return func(r *Runner) { r.period = p } }

func WithKeyPrefix(prefix string) Option { return func(r *Runner) { r.prefix = prefix } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(r *Runner) { r.now = now } }

// New creates a Runner. A nil locker runs without cross-instance locking.
func New(settler Settler, families FamilySource, locker Locker, opts ...Option) *Runner {
	r := &Runner{
		settler:  settler,
		families: families,
		locker:   locker,
		logger:   slog.Default(),
		now:      time.Now,
		interval: time.Hour,
		lockTTL:  5 * time.Minute,
		period:   Weekly(time.Monday),
		prefix:   "starledger:settle:",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Report summarizes one pass.
type Report struct {
	PeriodEnd time.Time
	Settled   int
	Skipped   int
	Failed    int
	Locked    int // families held by another instance
}

// Run ticks until ctx is cancelled, settling once immediately.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.RunOnce(ctx); err != nil {
			r.logger.Error("settlement pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce settles every family for the current period.
func (r *Runner) RunOnce(ctx context.Context) (Report, error) {
	rep := Report{PeriodEnd: r.period(r.now())}

	families, err := r.families(ctx)
	if err != nil {
		return rep, fmt.Errorf("scheduler: list families: %w", err)
	}

	for _, famID := range families {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		results, err := r.settleFamily(ctx, famID, rep.PeriodEnd)
		switch {
		case errors.Is(err, ErrLockHeld):
			rep.Locked++
			continue
		case err != nil:
			rep.Failed++
			r.logger.Warn("family settlement failed", "family_id", famID, "error", err)
			continue
		}
		for _, res := range results {
			switch {
			case res.Err == nil:
				rep.Settled++
			case res.Skipped():
				rep.Skipped++
			default:
				rep.Failed++
			}
		}
	}

	r.logger.Info("settlement pass finished",
		"period_end", rep.PeriodEnd,
		"settled", rep.Settled,
		"skipped", rep.Skipped,
		"failed", rep.Failed,
		"locked", rep.Locked,
	)
	return rep, nil
}

func (r *Runner) settleFamily(ctx context.Context, famID id.FamilyID, periodEnd time.Time) ([]starledger.ChildSettlement, error) {
	if r.locker != nil {
		key := fmt.Sprintf("%s%s:%d", r.prefix, famID, periodEnd.Unix())
		lock, err := r.locker.Obtain(ctx, key, r.lockTTL)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				r.logger.Warn("settlement lock release failed", "key", key, "error", err)
			}
		}()
	}
	return r.settler.RunFamilySettlement(ctx, famID, periodEnd)
}
