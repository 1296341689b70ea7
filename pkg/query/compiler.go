package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/theory-cloud/columntheory/internal/expr"
	"github.com/theory-cloud/columntheory/pkg/errors"
	"github.com/theory-cloud/columntheory/pkg/model"
	"github.com/theory-cloud/columntheory/pkg/naming"
	"github.com/theory-cloud/columntheory/pkg/validation"
)

// Compiler turns find requests and writes into SQL. It holds no per-query
// state and is safe for concurrent use.
type Compiler struct {
	registry *model.Registry
	project  string
	dataset  string
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithDataset qualifies every table with dataset.
func WithDataset(dataset string) Option {
	return func(c *Compiler) { c.dataset = dataset }
}

// WithProject qualifies every table with project. It only applies together
// with WithDataset.
func WithProject(project string) Option {
	return func(c *Compiler) { c.project = project }
}

// NewCompiler creates a compiler over the entities in registry.
func NewCompiler(registry *model.Registry, opts ...Option) *Compiler {
	c := &Compiler{registry: registry}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Table returns the quoted table reference for e.
func (c *Compiler) Table(e *model.Entity) string {
	name := e.TableName
	if c.dataset != "" {
		name = c.dataset + "." + name
		if c.project != "" {
			name = c.project + "." + name
		}
	}
	return naming.Quote(name)
}

// Find compiles a find request.
func (c *Compiler) Find(entity string, req FindRequest) (*CompiledQuery, error) {
	p, err := c.prepare(entity, req)
	if err != nil {
		return nil, err
	}
	stmt := c.dataSelect(p, req)
	return &CompiledQuery{
		SQL:    stmt.String(),
		Params: p.builder.Params(),
		Plan:   p.root,
	}, nil
}

// FindAndCount compiles a find request and a count over the same FROM, joins
// and WHERE into one statement. Every returned row carries the total in
// TotalColumn; an empty page yields one row whose data columns are NULL.
func (c *Compiler) FindAndCount(entity string, req FindRequest) (*CompiledQuery, error) {
	p, err := c.prepare(entity, req)
	if err != nil {
		return nil, err
	}

	needed := p.needed()
	count := selectStmt{
		columns: []string{p.countExpr(req.Distinct, needed) + " AS " + naming.Quote(countTotalColumn)},
		from:    p.from,
		joins:   c.joins(p.root, needed),
		where:   p.where,
	}

	data := c.dataSelect(p, req)
	outerOrder := make([]string, len(p.orders))
	for i, term := range p.orders {
		hidden := orderColumn + strconv.Itoa(i)
		data.columns = append(data.columns, term.col+" AS "+naming.Quote(hidden))
		outerOrder[i] = naming.Column(dataCTE, hidden) + " " + term.dir
	}

	var b strings.Builder
	b.WriteString("WITH ")
	b.WriteString(naming.Quote(countCTE) + " AS (" + count.String() + "), ")
	b.WriteString(naming.Quote(dataCTE) + " AS (" + data.String() + ") ")
	b.WriteString("SELECT " + naming.Quote(dataCTE) + ".*, ")
	b.WriteString(naming.Column(countCTE, countTotalColumn) + " AS " + naming.Quote(TotalColumn))
	b.WriteString(" FROM " + naming.Quote(countCTE) + " LEFT JOIN " + naming.Quote(dataCTE) + " ON TRUE")
	if len(outerOrder) > 0 {
		b.WriteString(" ORDER BY " + strings.Join(outerOrder, ", "))
	}

	return &CompiledQuery{
		SQL:         b.String(),
		Params:      p.builder.Params(),
		Plan:        p.root,
		CountColumn: TotalColumn,
	}, nil
}

// Aggregate compiles a single aggregate over the rows a find would match.
// Includes only take part through their filters. With Group set, the group
// columns are selected as <alias>_<field> next to the aggregate.
func (c *Compiler) Aggregate(entity string, req FindRequest, agg Aggregate) (*CompiledQuery, error) {
	switch agg.Func {
	case Count, Max, Min, Sum, Avg:
	default:
		return nil, fmt.Errorf("%w: unsupported aggregate %q", errors.ErrInvalidOperator, agg.Func)
	}
	if err := validation.ValidateIdentifier(agg.alias()); err != nil {
		return nil, err
	}

	p, err := c.prepare(entity, req)
	if err != nil {
		return nil, err
	}

	var arg string
	onRoot := true
	switch {
	case agg.Field != "":
		t, err := p.resolve(agg.Field)
		if err != nil {
			return nil, err
		}
		arg, onRoot = t.col, t.node == p.root
	case agg.Func == Count:
		arg = "*"
	default:
		return nil, fmt.Errorf("%w: %s requires a field", errors.ErrInvalidOperator, agg.Func)
	}
	terms := p.group
	if len(p.group) > 0 {
		terms = append(append([]term(nil), p.group...), p.orders...)
	}
	for _, t := range terms {
		onRoot = onRoot && t.node == p.root
	}

	// A collection join repeats each parent once per matching child. An
	// aggregate over parent columns then reads the parent table alone and
	// restricts it to the matching keys.
	needed := p.needed()
	semi := fansOut(needed) && onRoot && arg != "*"
	if agg.Func == Count && (req.Distinct || (fansOut(needed) && !semi)) {
		if arg == "*" {
			arg = p.pk()
		}
		arg = "DISTINCT " + arg
	}

	columns := make([]string, 0, len(p.group)+1)
	for _, g := range p.group {
		columns = append(columns, g.col+" AS "+naming.Quote(naming.ColumnAlias(g.node.Alias, g.field)))
	}
	columns = append(columns, fmt.Sprintf("%s(%s) AS %s", agg.Func, arg, naming.Quote(agg.alias())))

	stmt := selectStmt{
		columns: columns,
		from:    p.from,
		joins:   c.joins(p.root, needed),
		where:   p.where,
		group:   p.groupCols(),
	}
	if semi {
		keys := selectStmt{
			columns: []string{p.pk()},
			from:    p.from,
			joins:   stmt.joins,
			where:   p.where,
		}
		stmt.joins = nil
		stmt.where = p.pk() + " IN (" + keys.String() + ")"
	}
	if len(p.group) > 0 {
		stmt.order = p.orderExprs()
		stmt.limit, stmt.offset = req.Limit, req.Offset
	}

	return &CompiledQuery{
		SQL:          stmt.String(),
		Params:       p.builder.Params(),
		Plan:         p.root,
		ResultColumn: agg.alias(),
	}, nil
}

// prepared is the per-call state shared by the select forms.
type prepared struct {
	root       *Node
	aliases    map[string]*Node
	builder    *expr.Builder
	referenced map[*Node]bool
	from       string
	where      string
	orders     []term
	group      []term
}

type term struct {
	node  *Node
	field string
	col   string
	dir   string
}

func (c *Compiler) prepare(entity string, req FindRequest) (*prepared, error) {
	if req.Limit < 0 || req.Offset < 0 {
		return nil, fmt.Errorf("%w: limit and offset must not be negative", errors.ErrValidation)
	}

	root, aliases, err := c.plan(entity, req.Attributes, req.Include)
	if err != nil {
		return nil, err
	}

	p := &prepared{
		root:       root,
		aliases:    aliases,
		builder:    expr.NewBuilder(0),
		referenced: make(map[*Node]bool),
		from:       c.Table(root.Entity) + " AS " + naming.Quote(root.Alias),
	}

	parts := make([]string, 0, 1)
	top, err := p.builder.Where(req.Where, expr.Options{Alias: root.Alias, Check: p.check()})
	if err != nil {
		return nil, err
	}
	parts = append(parts, top)

	// Include filters are qualified by the include's own alias.
	var incErr error
	root.Walk(func(n *Node) {
		if incErr != nil || n == root || len(n.Where) == 0 {
			return
		}
		sql, err := p.builder.Where(n.Where, expr.Options{Alias: n.Alias, Check: p.check()})
		if err != nil {
			incErr = fmt.Errorf("include %s: %w", n.Alias, err)
			return
		}
		parts = append(parts, sql)
	})
	if incErr != nil {
		return nil, incErr
	}
	p.where = and(parts...)

	for _, o := range req.Order {
		t, err := p.resolve(o.Field)
		if err != nil {
			return nil, err
		}
		t.dir = o.direction()
		p.orders = append(p.orders, t)
	}
	for _, g := range req.Group {
		t, err := p.resolve(g)
		if err != nil {
			return nil, err
		}
		p.group = append(p.group, t)
	}
	return p, nil
}

// check validates a column reference and records which includes the
// top-level statement depends on.
func (p *prepared) check() expr.FieldCheck {
	return func(alias, field string) error {
		node, ok := p.aliases[alias]
		if !ok || node == nil {
			return fmt.Errorf("%w: no include aliased %q", errors.ErrRelationNotFound, alias)
		}
		if err := checkAttribute(node.Entity, field); err != nil {
			return err
		}
		p.referenced[node] = true
		return nil
	}
}

func checkAttribute(e *model.Entity, field string) error {
	attr, ok := e.Attribute(field)
	if !ok {
		return fmt.Errorf("%w: %s.%s", errors.ErrUnknownAttribute, e.Name, field)
	}
	if attr.Encrypted {
		return &errors.EncryptedFieldError{
			Err:       errors.ErrEncryptedFieldNotQueryable,
			Field:     e.Name + "." + field,
			Operation: "filter",
		}
	}
	return nil
}

// resolve turns "field" or "alias.field" into a qualified column.
func (p *prepared) resolve(ref string) (term, error) {
	alias, field := p.root.Alias, ref
	if i := strings.LastIndexByte(ref, '.'); i >= 0 {
		alias, field = ref[:i], ref[i+1:]
	}
	if err := validation.ValidateIdentifier(alias); err != nil {
		return term{}, err
	}
	if err := validation.ValidateIdentifier(field); err != nil {
		return term{}, err
	}
	if err := p.check()(alias, field); err != nil {
		return term{}, err
	}
	node := p.aliases[alias]
	return term{node: node, field: field, col: naming.Column(node.Alias, field)}, nil
}

// needed returns the includes that must be joined when only the set of
// parents matters: restricting includes, includes the statement references,
// and their ancestors.
func (p *prepared) needed() map[*Node]bool {
	keep := make(map[*Node]bool)
	p.root.Walk(func(n *Node) {
		if n == p.root || !(n.restricts || p.referenced[n]) {
			return
		}
		for cur := n; cur != nil && cur != p.root; cur = cur.parent {
			keep[cur] = true
		}
	})
	return keep
}

func fansOut(nodes map[*Node]bool) bool {
	for n := range nodes {
		if n.Collection() {
			return true
		}
	}
	return false
}

func (p *prepared) pk() string {
	return naming.Column(p.root.Alias, p.root.PrimaryKey())
}

// countExpr counts parents. Collection joins repeat parents, so they count
// distinct keys like an explicit distinct request does.
func (p *prepared) countExpr(distinct bool, joined map[*Node]bool) string {
	if distinct || fansOut(joined) {
		return "COUNT(DISTINCT " + p.pk() + ")"
	}
	return "COUNT(*)"
}

func (p *prepared) orderExprs() []string {
	out := make([]string, len(p.orders))
	for i, t := range p.orders {
		out[i] = t.col + " " + t.dir
	}
	return out
}

func (p *prepared) groupCols() []string {
	out := make([]string, len(p.group))
	for i, t := range p.group {
		out[i] = t.col
	}
	return out
}

// paginates reports whether LIMIT/OFFSET must go through the parent key
// subquery: a collection include would otherwise let the limit cut a parent's
// children short.
func (p *prepared) paginates(req FindRequest) bool {
	return (req.Limit > 0 || req.Offset > 0) && len(p.group) == 0 && p.root.hasCollection()
}

func (c *Compiler) dataSelect(p *prepared, req FindRequest) selectStmt {
	stmt := selectStmt{
		distinct: req.Distinct,
		columns:  selectColumns(p.root),
		from:     p.from,
		joins:    c.joins(p.root, nil),
		where:    p.where,
		group:    p.groupCols(),
		order:    p.orderExprs(),
	}
	if p.paginates(req) {
		stmt.where = and(p.pk()+" IN ("+c.pageSelect(p, req).String()+")", p.where)
		return stmt
	}
	stmt.limit, stmt.offset = req.Limit, req.Offset
	return stmt
}

// pageSelect selects one page of parent keys. Sorting by an included column
// uses its per-parent minimum (ascending) or maximum (descending).
func (c *Compiler) pageSelect(p *prepared, req FindRequest) selectStmt {
	pk := p.pk()
	group := []string{pk}
	seen := map[string]bool{pk: true}
	order := make([]string, 0, len(p.orders))
	for _, t := range p.orders {
		if t.node == p.root {
			if !seen[t.col] {
				seen[t.col] = true
				group = append(group, t.col)
			}
			order = append(order, t.col+" "+t.dir)
			continue
		}
		fn := "MIN"
		if t.dir == "DESC" {
			fn = "MAX"
		}
		order = append(order, fn+"("+t.col+") "+t.dir)
	}

	return selectStmt{
		columns: []string{pk},
		from:    p.from,
		joins:   c.joins(p.root, p.needed()),
		where:   p.where,
		group:   group,
		order:   order,
		limit:   req.Limit,
		offset:  req.Offset,
	}
}

func selectColumns(root *Node) []string {
	var cols []string
	root.Walk(func(n *Node) {
		for _, attr := range n.Selected {
			cols = append(cols, naming.Column(n.Alias, attr)+" AS "+naming.Quote(naming.ColumnAlias(n.Alias, attr)))
		}
	})
	return cols
}

// joins emits join clauses for the includes under root in pre-order. A nil
// keep set joins everything.
func (c *Compiler) joins(root *Node, keep map[*Node]bool) []string {
	var out []string
	root.Walk(func(n *Node) {
		if n == root || (keep != nil && !keep[n]) {
			return
		}
		out = append(out, c.joinClauses(n)...)
	})
	return out
}

func (c *Compiler) joinClauses(n *Node) []string {
	kind := "LEFT OUTER JOIN"
	if n.Required {
		kind = "INNER JOIN"
	}
	parent := n.parent.Alias
	join := func(e *model.Entity, alias, on string) string {
		return kind + " " + c.Table(e) + " AS " + naming.Quote(alias) + " ON " + on
	}

	switch a := n.Association.(type) {
	case model.OwnedBy:
		return []string{join(n.Entity, n.Alias, eq(parent, a.ForeignKey, n.Alias, a.TargetKey))}
	case model.OwnsOne:
		return []string{join(n.Entity, n.Alias, eq(parent, a.SourceKey, n.Alias, a.ForeignKey))}
	case model.HasMany:
		return []string{join(n.Entity, n.Alias, eq(parent, a.SourceKey, n.Alias, a.ForeignKey))}
	case model.ManyToMany:
		through := naming.JunctionAlias(n.Alias)
		return []string{
			join(n.junction, through, eq(parent, a.SourceKey, through, a.ForeignKey)),
			join(n.Entity, n.Alias, eq(through, a.OtherKey, n.Alias, a.TargetKey)),
		}
	}
	return nil
}

func eq(leftAlias, left, rightAlias, right string) string {
	return naming.Column(leftAlias, left) + " = " + naming.Column(rightAlias, right)
}

// and joins non-empty predicates, parenthesizing when there is more than one.
func and(parts ...string) string {
	nonEmpty := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	if len(nonEmpty) == 1 {
		return nonEmpty[0]
	}
	for i, p := range nonEmpty {
		nonEmpty[i] = "(" + p + ")"
	}
	return strings.Join(nonEmpty, " AND ")
}

type selectStmt struct {
	columns  []string
	joins    []string
	group    []string
	order    []string
	from     string
	where    string
	limit    int
	offset   int
	distinct bool
}

func (s selectStmt) String() string {
	var b strings.Builder
	b.WriteString("SELECT ")
	if s.distinct {
		b.WriteString("DISTINCT ")
	}
	b.WriteString(strings.Join(s.columns, ", "))
	b.WriteString(" FROM ")
	b.WriteString(s.from)
	for _, j := range s.joins {
		b.WriteString(" ")
		b.WriteString(j)
	}
	if s.where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(s.where)
	}
	if len(s.group) > 0 {
		b.WriteString(" GROUP BY ")
		b.WriteString(strings.Join(s.group, ", "))
	}
	if len(s.order) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(s.order, ", "))
	}
	switch {
	case s.limit > 0:
		b.WriteString(" LIMIT " + strconv.Itoa(s.limit))
	case s.offset > 0:
		// OFFSET is only valid after a LIMIT.
		b.WriteString(" LIMIT " + unboundedLimit)
	}
	if s.offset > 0 {
		b.WriteString(" OFFSET " + strconv.Itoa(s.offset))
	}
	return b.String()
}
