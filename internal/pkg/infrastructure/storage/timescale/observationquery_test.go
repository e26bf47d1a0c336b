package timescale

import (
	"strings"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/52north/connected-systems-go/pkg/csa/types"
)

func TestPlaceholdersAreSequential(t *testing.T) {
	is := is.New(t)

	start := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	q := NewObservationQuery().
		WithDatastream("ds-1").
		WithTime("resulttime", types.NewTimeInterval(&start, &end))

	sql := q.SQL(true)
	is.True(strings.Contains(sql, "datastream_id = $1"))
	is.True(strings.Contains(sql, "resulttime >= $2"))
	is.True(strings.Contains(sql, "resulttime <= $3"))
	is.Equal(len(q.Args()), 3)
}

func TestOpenBoundsContributeNoPredicate(t *testing.T) {
	is := is.New(t)

	end := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	q := NewObservationQuery().
		WithTime("phenomenontime", types.NewTimeInterval(nil, &end))

	sql := q.SQL(true)
	is.True(!strings.Contains(sql, ">="))
	is.True(strings.Contains(sql, "phenomenontime <= $1"))
	is.Equal(len(q.Args()), 1)
}

func TestLimitIsCappedSilently(t *testing.T) {
	is := is.New(t)

	q := NewObservationQuery().WithLimit(2 * MaxPageSize)

	is.Equal(q.Limit(), MaxPageSize)
	is.True(strings.Contains(q.SQL(true), "LIMIT 100000"))
}

func TestEmptyQueryHasNoWhereClause(t *testing.T) {
	is := is.New(t)

	sql := NewObservationQuery().SQL(true)
	is.True(!strings.Contains(sql, "WHERE"))
	is.True(strings.Contains(sql, "LIMIT 10 OFFSET 0"))
}

func TestPagingCanBeLeftOut(t *testing.T) {
	is := is.New(t)

	q := NewObservationQuery().WithIDs([]string{"a", "b"}).WithLimit(50).WithOffset(100)

	sql := q.SQL(false)
	is.True(strings.Contains(sql, "uuid = any($1)"))
	is.True(!strings.Contains(sql, "LIMIT"))
	is.True(!strings.Contains(sql, "OFFSET"))
}
