package migrate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/theory-cloud/columntheory/pkg/naming"
	"github.com/theory-cloud/columntheory/pkg/types"
	"github.com/theory-cloud/columntheory/pkg/warehouse"
)

// Ledger stores which migrations have been applied.
type Ledger interface {
	// Applied returns every record in version order.
	Applied(ctx context.Context) ([]Record, error)
	Record(ctx context.Context, rec Record) error
	Remove(ctx context.Context, version string) error
}

// MemoryLedger keeps records in process memory. It is owned by the caller:
// share one instance between runners that must see the same history.
type MemoryLedger struct {
	records map[string]Record
	mu      sync.Mutex
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{records: make(map[string]Record)}
}

func (l *MemoryLedger) Applied(_ context.Context) ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Record, 0, len(l.records))
	for _, r := range l.records {
		out = append(out, r)
	}
	sortByVersion(out, func(r Record) string { return r.Version })
	return out, nil
}

func (l *MemoryLedger) Record(_ context.Context, rec Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.records == nil {
		l.records = make(map[string]Record)
	}
	l.records[rec.Version] = rec
	return nil
}

func (l *MemoryLedger) Remove(_ context.Context, version string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.records, version)
	return nil
}

func (l *MemoryLedger) has(version string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.records[version]
	return ok
}

// Ledger table columns.
const (
	columnVersion   = "version"
	columnName      = "name"
	columnChecksum  = "checksum"
	columnAppliedAt = "applied_at"
)

// LedgerSchema is the physical schema of the warehouse ledger table.
var LedgerSchema = []types.Field{
	{Name: columnVersion, Type: types.PhysicalString, Mode: types.ModeRequired},
	{Name: columnName, Type: types.PhysicalString, Mode: types.ModeRequired},
	{Name: columnChecksum, Type: types.PhysicalString, Mode: types.ModeRequired},
	{Name: columnAppliedAt, Type: types.PhysicalTimestamp, Mode: types.ModeRequired},
}

// WarehouseLedger stores records in a warehouse table through the gateway.
// When the warehouse refuses the streaming insert, the record lands in the
// fallback ledger instead so the run can proceed.
type WarehouseLedger struct {
	gateway  warehouse.Gateway
	fallback *MemoryLedger
	logger   *slog.Logger
	table    warehouse.TableRef
}

// NewWarehouseLedger stores records in table. fallback may be nil, in which
// case insert failures are returned.
func NewWarehouseLedger(gw warehouse.Gateway, table warehouse.TableRef, fallback *MemoryLedger, logger *slog.Logger) *WarehouseLedger {
	if logger == nil {
		logger = slog.Default()
	}
	return &WarehouseLedger{gateway: gw, table: table, fallback: fallback, logger: logger}
}

// Ensure creates the ledger table when it does not exist.
func (l *WarehouseLedger) Ensure(ctx context.Context) error {
	ok, err := l.gateway.TableExists(ctx, l.table)
	if err != nil {
		return fmt.Errorf("check ledger table %s: %w", l.table, err)
	}
	if ok {
		return nil
	}
	if err := l.gateway.CreateTable(ctx, l.table, LedgerSchema); err != nil {
		return fmt.Errorf("create ledger table %s: %w", l.table, err)
	}
	return nil
}

func (l *WarehouseLedger) Applied(ctx context.Context) ([]Record, error) {
	sql := fmt.Sprintf("SELECT %s, %s, %s, %s FROM %s",
		naming.Quote(columnVersion), naming.Quote(columnName), naming.Quote(columnChecksum),
		naming.Quote(columnAppliedAt), naming.Quote(l.table.String()))
	rows, err := l.gateway.Query(ctx, sql, nil)
	if err != nil {
		return nil, fmt.Errorf("read ledger %s: %w", l.table, err)
	}

	byVersion := make(map[string]Record, len(rows))
	for _, row := range rows {
		rec := Record{
			Version:  asString(row[columnVersion]),
			Name:     asString(row[columnName]),
			Checksum: asString(row[columnChecksum]),
		}
		rec.AppliedAt, err = asTime(row[columnAppliedAt])
		if err != nil {
			return nil, fmt.Errorf("ledger %s version %s: %w", l.table, rec.Version, err)
		}
		byVersion[rec.Version] = rec
	}
	if l.fallback != nil {
		pending, _ := l.fallback.Applied(ctx)
		for _, rec := range pending {
			byVersion[rec.Version] = rec
		}
	}

	out := make([]Record, 0, len(byVersion))
	for _, rec := range byVersion {
		out = append(out, rec)
	}
	sortByVersion(out, func(r Record) string { return r.Version })
	return out, nil
}

func (l *WarehouseLedger) Record(ctx context.Context, rec Record) error {
	err := l.gateway.InsertRows(ctx, l.table, []warehouse.Row{{
		columnVersion:   rec.Version,
		columnName:      rec.Name,
		columnChecksum:  rec.Checksum,
		columnAppliedAt: rec.AppliedAt,
	}})
	if err == nil {
		return nil
	}
	if l.fallback == nil {
		return fmt.Errorf("record migration %s: %w", rec.Version, err)
	}
	l.logger.Warn("ledger insert refused, recording in memory",
		slog.String("table", l.table.String()),
		slog.String("version", rec.Version),
		slog.Any("error", err))
	return l.fallback.Record(ctx, rec)
}

func (l *WarehouseLedger) Remove(ctx context.Context, version string) error {
	if l.fallback != nil && l.fallback.has(version) {
		return l.fallback.Remove(ctx, version)
	}
	sql := fmt.Sprintf("DELETE FROM %s WHERE %s = @version",
		naming.Quote(l.table.String()), naming.Quote(columnVersion))
	if _, err := l.gateway.Exec(ctx, sql, map[string]any{"version": version}); err != nil {
		return warehouse.ClassifyError("delete", l.table, err)
	}
	return nil
}

func asString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	}
	return fmt.Sprint(v)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05",
}

func asTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return t, nil
	case string, []byte:
		s := asString(t)
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognized applied_at %q", s)
	}
	return time.Time{}, fmt.Errorf("unexpected applied_at type %T", v)
}
