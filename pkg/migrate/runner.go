package migrate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/theory-cloud/columntheory/pkg/warehouse"
)

// Locker serializes runs across processes. lease.Manager implements it.
type Locker interface {
	Lock(ctx context.Context, name string) (func(context.Context) error, error)
}

// DefaultLockName is the lock Up and Down take when a Locker is configured.
const DefaultLockName = "columntheory-migrations"

// Runner applies migrations from a Source and tracks them in a Ledger.
// Without a Locker, concurrent runs against one ledger must be serialized
// by the caller.
type Runner struct {
	gateway  warehouse.Gateway
	source   Source
	ledger   Ledger
	locker   Locker
	logger   *slog.Logger
	now      func() time.Time
	lockName string
}

type Option func(*Runner)

func WithLocker(l Locker) Option {
	return func(r *Runner) { r.locker = l }
}

func WithLockName(name string) Option {
	return func(r *Runner) {
		if name != "" {
			r.lockName = name
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

func NewRunner(gw warehouse.Gateway, source Source, ledger Ledger, opts ...Option) *Runner {
	r := &Runner{
		gateway:  gw,
		source:   source,
		ledger:   ledger,
		logger:   slog.Default(),
		now:      time.Now,
		lockName: DefaultLockName,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Status describes one migration known to the source or the ledger.
type Status struct {
	AppliedAt time.Time
	Migration Migration
	Applied   bool
	// Modified is set when the applied checksum differs from the current script.
	Modified bool
	// Missing is set when the ledger records a version the source lacks.
	Missing bool
}

// Status reports every migration in version order.
func (r *Runner) Status(ctx context.Context) ([]Status, error) {
	migrations, applied, err := r.load(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Status, 0, len(migrations))
	seen := make(map[string]bool, len(migrations))
	for _, m := range migrations {
		seen[m.Version] = true
		st := Status{Migration: m}
		if rec, ok := applied[m.Version]; ok {
			st.Applied = true
			st.AppliedAt = rec.AppliedAt
			st.Modified = rec.Checksum != m.Checksum()
		}
		out = append(out, st)
	}
	for _, rec := range applied {
		if seen[rec.Version] {
			continue
		}
		out = append(out, Status{
			Migration: Migration{Version: rec.Version, Name: rec.Name},
			Applied:   true,
			AppliedAt: rec.AppliedAt,
			Missing:   true,
		})
	}
	sortByVersion(out, func(s Status) string { return s.Migration.Version })
	return out, nil
}

// Pending returns the migrations not yet applied, in order. An applied
// migration whose script changed is an error.
func (r *Runner) Pending(ctx context.Context) ([]Migration, error) {
	migrations, applied, err := r.load(ctx)
	if err != nil {
		return nil, err
	}

	var pending []Migration
	for _, m := range migrations {
		rec, ok := applied[m.Version]
		if !ok {
			pending = append(pending, m)
			continue
		}
		if rec.Checksum != m.Checksum() {
			return nil, fmt.Errorf("%w: %s", ErrChecksumMismatch, m.ID())
		}
	}
	return pending, nil
}

// Up applies up to steps pending migrations, or all of them when steps <= 0,
// and returns the ones applied. A failing script stops the run; earlier
// migrations stay recorded.
func (r *Runner) Up(ctx context.Context, steps int) (done []Migration, err error) {
	release, err := r.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { err = r.unlock(release, err) }()

	pending, err := r.Pending(ctx)
	if err != nil {
		return nil, err
	}
	if steps > 0 && steps < len(pending) {
		pending = pending[:steps]
	}

	done = make([]Migration, 0, len(pending))
	for _, m := range pending {
		start := r.now()
		if err := r.exec(ctx, m.Up); err != nil {
			return done, fmt.Errorf("apply %s: %w", m.ID(), err)
		}
		rec := Record{Version: m.Version, Name: m.Name, Checksum: m.Checksum(), AppliedAt: r.now().UTC()}
		if err := r.ledger.Record(ctx, rec); err != nil {
			return done, err
		}
		r.logger.Info("migration applied",
			slog.String("version", m.Version),
			slog.String("name", m.Name),
			slog.Duration("took", r.now().Sub(start)))
		done = append(done, m)
	}
	return done, nil
}

// Down rolls back the most recent steps applied migrations, one when
// steps <= 0, newest first.
func (r *Runner) Down(ctx context.Context, steps int) (done []Migration, err error) {
	if steps <= 0 {
		steps = 1
	}
	release, err := r.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { err = r.unlock(release, err) }()

	migrations, err := r.source.Load(ctx)
	if err != nil {
		return nil, err
	}
	byVersion := make(map[string]Migration, len(migrations))
	for _, m := range migrations {
		byVersion[m.Version] = m
	}
	records, err := r.ledger.Applied(ctx)
	if err != nil {
		return nil, err
	}

	for i := len(records) - 1; i >= 0 && len(done) < steps; i-- {
		rec := records[i]
		m, ok := byVersion[rec.Version]
		if !ok {
			return done, fmt.Errorf("%w: %s_%s", ErrUnknownApplied, rec.Version, rec.Name)
		}
		if m.Down == "" {
			return done, fmt.Errorf("%w: %s", ErrMissingDown, m.ID())
		}
		if err := r.exec(ctx, m.Down); err != nil {
			return done, fmt.Errorf("roll back %s: %w", m.ID(), err)
		}
		if err := r.ledger.Remove(ctx, m.Version); err != nil {
			return done, err
		}
		r.logger.Info("migration rolled back", slog.String("version", m.Version), slog.String("name", m.Name))
		done = append(done, m)
	}
	return done, nil
}

func (r *Runner) load(ctx context.Context) ([]Migration, map[string]Record, error) {
	migrations, err := r.source.Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	records, err := r.ledger.Applied(ctx)
	if err != nil {
		return nil, nil, err
	}
	applied := make(map[string]Record, len(records))
	for _, rec := range records {
		applied[rec.Version] = rec
	}
	return migrations, applied, nil
}

func (r *Runner) exec(ctx context.Context, script string) error {
	for _, stmt := range SplitStatements(script) {
		r.logger.Debug("migration statement", slog.String("sql", stmt))
		if _, err := r.gateway.Exec(ctx, stmt, nil); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) lock(ctx context.Context) (func(context.Context) error, error) {
	if r.locker == nil {
		return nil, nil
	}
	release, err := r.locker.Lock(ctx, r.lockName)
	if err != nil {
		return nil, fmt.Errorf("acquire migration lock: %w", err)
	}
	return release, nil
}

// unlock releases the lock and reports a release failure unless the run
// already failed.
func (r *Runner) unlock(release func(context.Context) error, runErr error) error {
	if release == nil {
		return runErr
	}
	if err := release(context.Background()); err != nil && runErr == nil {
		return fmt.Errorf("release migration lock: %w", err)
	}
	return runErr
}
