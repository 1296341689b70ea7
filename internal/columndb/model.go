package columndb

import (
	"context"
	"maps"

	"github.com/theory-cloud/columntheory/internal/encryption"
	"github.com/theory-cloud/columntheory/internal/expr"
	"github.com/theory-cloud/columntheory/internal/numutil"
	"github.com/theory-cloud/columntheory/pkg/core"
	"github.com/theory-cloud/columntheory/pkg/errors"
	"github.com/theory-cloud/columntheory/pkg/model"
	"github.com/theory-cloud/columntheory/pkg/naming"
	"github.com/theory-cloud/columntheory/pkg/query"
	"github.com/theory-cloud/columntheory/pkg/reassemble"
	"github.com/theory-cloud/columntheory/pkg/schema"
	"github.com/theory-cloud/columntheory/pkg/warehouse"
)

// Model runs finds and writes for one registered entity. It is a thin
// handle; models for the same entity are interchangeable.
type Model struct {
	db     *DB
	entity *model.Entity
}

var _ core.Model = (*Model)(nil)

// Name returns the entity name.
func (m *Model) Name() string {
	return m.entity.Name
}

// Entity returns the registered metadata.
func (m *Model) Entity() *model.Entity {
	return m.entity
}

// FindAll returns every matching record, nested by includes.
func (m *Model) FindAll(ctx context.Context, req query.FindRequest) ([]reassemble.Record, error) {
	q, err := m.db.compiler.Find(m.entity.Name, req)
	if err != nil {
		return nil, err
	}
	rows, err := m.query(ctx, "findAll", q.SQL, q.Params)
	if err != nil {
		return nil, err
	}
	return m.records(ctx, rows, q.Plan)
}

// FindOne returns the first matching record, or nil when nothing matches.
func (m *Model) FindOne(ctx context.Context, req query.FindRequest) (reassemble.Record, error) {
	req.Limit = 1
	recs, err := m.FindAll(ctx, req)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return recs[0], nil
}

// FindByPk returns the record with primary key pk. req.Where, when set, is
// AND-ed with the key match.
func (m *Model) FindByPk(ctx context.Context, pk any, req query.FindRequest) (reassemble.Record, error) {
	if pk == nil {
		return nil, errors.NewError("findByPk", m.entity.Name, errors.ErrMissingPrimaryKey)
	}
	where := query.Filter{m.entity.PrimaryKey: pk}
	if len(req.Where) > 0 {
		where = query.Filter{expr.KeyAnd: []query.Filter{req.Where, where}}
	}
	req.Where = where
	return m.FindOne(ctx, req)
}

// FindAndCountAll returns one page of records and the number of matching
// parents, from a single statement.
func (m *Model) FindAndCountAll(ctx context.Context, req query.FindRequest) (*core.CountResult, error) {
	q, err := m.db.compiler.FindAndCount(m.entity.Name, req)
	if err != nil {
		return nil, err
	}
	rows, err := m.query(ctx, "findAndCountAll", q.SQL, q.Params)
	if err != nil {
		return nil, err
	}

	result := &core.CountResult{Rows: []reassemble.Record{}}
	if len(rows) == 0 {
		return result, nil
	}
	if result.Count, err = numutil.ToInt64(rows[0][q.CountColumn]); err != nil {
		return nil, errors.NewError("findAndCountAll", m.entity.Name, err)
	}

	// An empty page still yields one row carrying only the total.
	pk := naming.ColumnAlias(q.Plan.Alias, q.Plan.PrimaryKey())
	data := make([]warehouse.Row, 0, len(rows))
	for _, row := range rows {
		if row[pk] != nil {
			data = append(data, row)
		}
	}
	if result.Rows, err = m.records(ctx, data, q.Plan); err != nil {
		return nil, err
	}
	return result, nil
}

// Count returns the number of matching records.
func (m *Model) Count(ctx context.Context, req query.FindRequest) (int64, error) {
	v, err := m.aggregate(ctx, "count", query.Aggregate{Func: query.Count}, req)
	if err != nil {
		return 0, err
	}
	n, err := numutil.ToInt64(v)
	if err != nil {
		return 0, errors.NewError("count", m.entity.Name, err)
	}
	return n, nil
}

// Max returns the largest value of field, or nil when nothing matches.
func (m *Model) Max(ctx context.Context, field string, req query.FindRequest) (any, error) {
	return m.aggregate(ctx, "max", query.Aggregate{Func: query.Max, Field: field}, req)
}

// Min returns the smallest value of field, or nil when nothing matches.
func (m *Model) Min(ctx context.Context, field string, req query.FindRequest) (any, error) {
	return m.aggregate(ctx, "min", query.Aggregate{Func: query.Min, Field: field}, req)
}

// Sum returns the sum of field, or nil when nothing matches.
func (m *Model) Sum(ctx context.Context, field string, req query.FindRequest) (any, error) {
	return m.aggregate(ctx, "sum", query.Aggregate{Func: query.Sum, Field: field}, req)
}

// Avg returns the mean of field, or nil when nothing matches.
func (m *Model) Avg(ctx context.Context, field string, req query.FindRequest) (any, error) {
	return m.aggregate(ctx, "avg", query.Aggregate{Func: query.Avg, Field: field}, req)
}

func (m *Model) aggregate(ctx context.Context, op string, agg query.Aggregate, req query.FindRequest) (any, error) {
	if len(req.Group) > 0 {
		return nil, &errors.ValidationError{
			Err:    errors.ErrValidation,
			Entity: m.entity.Name,
			Reason: op + " returns a single value; use Grouped for grouped aggregates",
		}
	}
	q, err := m.db.compiler.Aggregate(m.entity.Name, req, agg)
	if err != nil {
		return nil, err
	}
	rows, err := m.query(ctx, op, q.SQL, q.Params)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0][q.ResultColumn], nil
}

// Grouped runs agg once per group of req.Group. Each record holds the group
// values, keyed by field for the entity itself and by "alias.field" for
// includes, plus the aggregate under its result name.
func (m *Model) Grouped(ctx context.Context, agg query.Aggregate, req query.FindRequest) ([]reassemble.Record, error) {
	q, err := m.db.compiler.Aggregate(m.entity.Name, req, agg)
	if err != nil {
		return nil, err
	}
	rows, err := m.query(ctx, "grouped", q.SQL, q.Params)
	if err != nil {
		return nil, err
	}

	aliases := q.Plan.Aliases()
	out := make([]reassemble.Record, 0, len(rows))
	for _, row := range rows {
		rec := make(reassemble.Record, len(row))
		for col, v := range row {
			if col == q.ResultColumn {
				rec[col] = v
				continue
			}
			alias, field, ok := naming.ParseColumnAlias(col, aliases)
			switch {
			case !ok:
				rec[col] = v
			case alias == q.Plan.Alias:
				rec[field] = v
			default:
				rec[alias+"."+field] = v
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

// Create inserts one record and returns it with defaults applied.
func (m *Model) Create(ctx context.Context, values map[string]any) (reassemble.Record, error) {
	if err := m.guard("create"); err != nil {
		return nil, err
	}
	recs, err := m.insert(ctx, "create", []map[string]any{values}, false)
	if err != nil {
		return nil, err
	}
	return recs[0], nil
}

// BulkCreate inserts every record in one streaming call. With
// IgnoreDuplicates, records whose primary key already exists (in the table
// or earlier in values) are skipped and left out of the result.
func (m *Model) BulkCreate(ctx context.Context, values []map[string]any, opts core.BulkOptions) ([]reassemble.Record, error) {
	if err := m.guard("bulkCreate"); err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return []reassemble.Record{}, nil
	}
	return m.insert(ctx, "bulkCreate", values, opts.IgnoreDuplicates)
}

func (m *Model) insert(ctx context.Context, op string, values []map[string]any, ignoreDuplicates bool) ([]reassemble.Record, error) {
	if err := encryption.FailClosedIfEncryptedWithoutService(m.db.crypto, m.entity); err != nil {
		return nil, err
	}

	now := m.db.now()
	recs := make([]reassemble.Record, 0, len(values))
	for _, v := range values {
		rec, err := m.prepare(v, now)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}

	if ignoreDuplicates {
		var err error
		if recs, err = m.withoutDuplicates(ctx, op, recs); err != nil {
			return nil, err
		}
		if len(recs) == 0 {
			return recs, nil
		}
	}

	rows := make([]warehouse.Row, len(recs))
	for i, rec := range recs {
		row := maps.Clone(map[string]any(rec))
		if err := encryption.EncryptValues(ctx, m.db.crypto, m.entity, row); err != nil {
			return nil, err
		}
		rows[i] = row
	}

	table := m.db.schema.TableRef(m.entity)
	m.db.log(ctx).DebugContext(ctx, "streaming insert",
		"entity", m.entity.Name, "op", op, "table", table.String(), "rows", len(rows))
	if err := m.db.gateway.InsertRows(ctx, table, rows); err != nil {
		err = warehouse.ClassifyError(op, table, err)
		m.db.log(ctx).WarnContext(ctx, "streaming insert failed",
			"entity", m.entity.Name, "op", op, "error", err)
		return nil, err
	}
	return recs, nil
}

func (m *Model) withoutDuplicates(ctx context.Context, op string, recs []reassemble.Record) ([]reassemble.Record, error) {
	pk := m.entity.PrimaryKey
	seen := make(map[string]struct{}, len(recs))
	unique := make([]reassemble.Record, 0, len(recs))
	keys := make([]any, 0, len(recs))
	for _, rec := range recs {
		k := keyString(rec[pk])
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		unique = append(unique, rec)
		keys = append(keys, rec[pk])
	}

	stmt, err := m.db.compiler.DuplicateCheck(m.entity.Name, keys)
	if err != nil {
		return nil, err
	}
	rows, err := m.query(ctx, op, stmt.SQL, stmt.Params)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return unique, nil
	}

	existing := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		existing[keyString(row[pk])] = struct{}{}
	}
	out := unique[:0]
	for _, rec := range unique {
		if _, ok := existing[keyString(rec[pk])]; !ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Update sets values on every record matching where and returns the number
// of rows changed. An empty where updates every row.
func (m *Model) Update(ctx context.Context, values map[string]any, where query.Filter) (int64, error) {
	if err := m.guard("update"); err != nil {
		return 0, err
	}
	if err := encryption.FailClosedIfEncryptedWithoutService(m.db.crypto, m.entity); err != nil {
		return 0, err
	}
	if err := m.checkNulls(values); err != nil {
		return 0, err
	}

	set := maps.Clone(values)
	if len(set) > 0 {
		m.touch(set)
	}
	if err := encryption.EncryptValues(ctx, m.db.crypto, m.entity, set); err != nil {
		return 0, err
	}

	stmt, err := m.db.compiler.Update(m.entity.Name, set, where)
	if err != nil {
		return 0, err
	}
	return m.exec(ctx, "update", stmt)
}

// Destroy deletes every record matching where and returns the number of
// rows deleted.
func (m *Model) Destroy(ctx context.Context, where query.Filter) (int64, error) {
	if err := m.guard("destroy"); err != nil {
		return 0, err
	}
	stmt, err := m.db.compiler.Delete(m.entity.Name, where)
	if err != nil {
		return 0, err
	}
	return m.exec(ctx, "destroy", stmt)
}

// Increment adds by to numeric attributes of every matching record.
func (m *Model) Increment(ctx context.Context, by map[string]any, where query.Filter) (int64, error) {
	return m.increment(ctx, "increment", by, where, false)
}

// Decrement subtracts by from numeric attributes of every matching record.
func (m *Model) Decrement(ctx context.Context, by map[string]any, where query.Filter) (int64, error) {
	return m.increment(ctx, "decrement", by, where, true)
}

func (m *Model) increment(ctx context.Context, op string, by map[string]any, where query.Filter, decrement bool) (int64, error) {
	if err := m.guard(op); err != nil {
		return 0, err
	}
	set := map[string]any{}
	m.touch(set)
	stmt, err := m.db.compiler.Increment(m.entity.Name, query.IncrementRequest{
		By:        by,
		Set:       set,
		Where:     where,
		Decrement: decrement,
	})
	if err != nil {
		return 0, err
	}
	return m.exec(ctx, op, stmt)
}

// Sync creates the entity's table, or recreates it with Force.
func (m *Model) Sync(ctx context.Context, opts core.SyncOptions) error {
	return m.db.schema.Sync(ctx, m.entity.Name, schema.SyncOptions{Force: opts.Force})
}

// Drop removes the entity's table.
func (m *Model) Drop(ctx context.Context) error {
	return m.db.schema.Drop(ctx, m.entity.Name)
}

// guard rejects op before any SQL is built when the read-only policy
// disables it.
func (m *Model) guard(op string) error {
	if m.db.config.ReadOnly.Blocks(op) {
		return errors.NewError(op, m.entity.Name, errors.ErrReadOnly)
	}
	return nil
}

// touch sets updatedAt in values unless the caller supplied it.
func (m *Model) touch(values map[string]any) {
	if !m.entity.Timestamps {
		return
	}
	name := naming.ConvertAttrName(model.UpdatedAtAttribute, m.db.registry.Convention())
	if _, ok := values[name]; ok || !m.entity.HasAttribute(name) {
		return
	}
	values[name] = m.db.now()
}

func (m *Model) records(ctx context.Context, rows []warehouse.Row, plan *query.Node) ([]reassemble.Record, error) {
	recs := reassemble.Rows(rows, plan)
	err := reassemble.Walk(recs, plan, func(n *query.Node, rec reassemble.Record) error {
		return encryption.DecryptValues(ctx, m.db.crypto, n.Entity, rec)
	})
	if err != nil {
		return nil, err
	}
	return recs, nil
}

func (m *Model) query(ctx context.Context, op, sql string, params map[string]any) ([]warehouse.Row, error) {
	log := m.db.log(ctx)
	log.DebugContext(ctx, "compiled query", "entity", m.entity.Name, "op", op, "sql", sql, "params", len(params))

	rows, err := m.db.gateway.Query(ctx, sql, params)
	if err != nil {
		log.WarnContext(ctx, "warehouse query failed", "entity", m.entity.Name, "op", op, "error", err)
		return nil, err
	}
	return rows, nil
}

func (m *Model) exec(ctx context.Context, op string, stmt *query.CompiledStatement) (int64, error) {
	log := m.db.log(ctx)
	log.DebugContext(ctx, "compiled statement", "entity", m.entity.Name, "op", op, "sql", stmt.SQL, "params", len(stmt.Params))

	res, err := m.db.gateway.Exec(ctx, stmt.SQL, stmt.Params)
	if err != nil {
		err = warehouse.ClassifyError(op, m.db.schema.TableRef(m.entity), err)
		log.WarnContext(ctx, "warehouse statement failed", "entity", m.entity.Name, "op", op, "error", err)
		return 0, err
	}
	if res == nil {
		return 0, nil
	}
	return res.RowsAffected, nil
}
