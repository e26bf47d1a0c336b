package timescale

import (
	"fmt"
	"strings"

	"github.com/52north/connected-systems-go/pkg/csa/types"
)

// MaxPageSize is the hard ceiling on a single observation page.
// Larger requested limits are capped silently.
const MaxPageSize = 100000

const selectColumns = `uuid, resulttime, phenomenontime, datastream_id, result, sampling_feature_id, procedure_link, parameters`

// ObservationQuery builds the WHERE clause of an observation query as
// AND-ed predicates with positional placeholders.
type ObservationQuery struct {
	clauses []string
	args    []any
	limit   int
	offset  int
}

func NewObservationQuery() *ObservationQuery {
	return &ObservationQuery{limit: 10}
}

func (q *ObservationQuery) WithIDs(ids []string) *ObservationQuery {
	if len(ids) == 0 {
		return q
	}
	q.clauses = append(q.clauses, fmt.Sprintf("uuid = any($%d)", len(q.args)+1))
	q.args = append(q.args, ids)
	return q
}

func (q *ObservationQuery) WithDatastream(id string) *ObservationQuery {
	if id == "" {
		return q
	}
	q.clauses = append(q.clauses, fmt.Sprintf("datastream_id = $%d", len(q.args)+1))
	q.args = append(q.args, id)
	return q
}

// WithTime restricts the given timestamp column to the interval. Each
// closed bound contributes its own predicate.
func (q *ObservationQuery) WithTime(column string, interval *types.TimeInterval) *ObservationQuery {
	if interval == nil {
		return q
	}

	if !interval.IsOpenStart() {
		q.clauses = append(q.clauses, fmt.Sprintf("%s >= $%d", column, len(q.args)+1))
		q.args = append(q.args, *interval.Start)
	}

	if !interval.IsOpenEnd() {
		q.clauses = append(q.clauses, fmt.Sprintf("%s <= $%d", column, len(q.args)+1))
		q.args = append(q.args, *interval.End)
	}

	return q
}

func (q *ObservationQuery) WithLimit(limit int) *ObservationQuery {
	q.limit = min(limit, MaxPageSize)
	return q
}

func (q *ObservationQuery) WithOffset(offset int) *ObservationQuery {
	q.offset = offset
	return q
}

func (q *ObservationQuery) Limit() int {
	return q.limit
}

// SQL renders the full statement. Paging can be left out for count
// style reuse of the same predicates.
func (q *ObservationQuery) SQL(withPaging bool) string {
	var sb strings.Builder

	sb.WriteString("SELECT ")
	sb.WriteString(selectColumns)
	sb.WriteString(" FROM observations")

	if len(q.clauses) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(q.clauses, " AND "))
	}

	sb.WriteString(" ORDER BY resulttime DESC")

	if withPaging {
		fmt.Fprintf(&sb, " LIMIT %d OFFSET %d", q.limit, q.offset)
	}

	return sb.String()
}

// Args returns the placeholder values in positional order.
func (q *ObservationQuery) Args() []any {
	return q.args
}
