package analytics

import (
	"slices"
	"strconv"
	"strings"
)

const collisionsFrom = "traffic_collisions tc"

const (
	joinSeverity    = "LEFT JOIN severity s ON s.id = tc.severity_id"
	joinAddressType = "LEFT JOIN address_type adt ON adt.id = tc.address_type_id"
)

// selectQuery assembles one aggregate statement over traffic_collisions.
// Placeholders are numbered in bind order.
type selectQuery struct {
	columns []string
	joins   []string
	conds   []string
	args    []any
	groupBy []string
	orderBy []string
	limit   int
}

func newSelect(columns ...string) *selectQuery {
	return &selectQuery{columns: columns}
}

func (q *selectQuery) column(expr string) {
	q.columns = append(q.columns, expr)
}

// join adds a join clause once, however many filters or groupings need it
func (q *selectQuery) join(clause string) {
	if !slices.Contains(q.joins, clause) {
		q.joins = append(q.joins, clause)
	}
}

// bind records an argument and returns its placeholder
func (q *selectQuery) bind(v any) string {
	q.args = append(q.args, v)
	return "$" + strconv.Itoa(len(q.args))
}

func (q *selectQuery) where(cond string) {
	q.conds = append(q.conds, cond)
}

func (q *selectQuery) group(exprs ...string) {
	q.groupBy = append(q.groupBy, exprs...)
}

func (q *selectQuery) order(exprs ...string) {
	q.orderBy = append(q.orderBy, exprs...)
}

// SQL renders the statement and its arguments. The limit, when set, is bound
// last so the cut happens after ordering.
func (q *selectQuery) SQL() (string, []any) {
	args := slices.Clone(q.args)

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(q.columns, ", "))
	b.WriteString(" FROM ")
	b.WriteString(collisionsFrom)
	for _, j := range q.joins {
		b.WriteString(" ")
		b.WriteString(j)
	}
	if len(q.conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(q.conds, " AND "))
	}
	if len(q.groupBy) > 0 {
		b.WriteString(" GROUP BY ")
		b.WriteString(strings.Join(q.groupBy, ", "))
	}
	if len(q.orderBy) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(q.orderBy, ", "))
	}
	if q.limit > 0 {
		args = append(args, q.limit)
		b.WriteString(" LIMIT $")
		b.WriteString(strconv.Itoa(len(args)))
	}
	return b.String(), args
}
