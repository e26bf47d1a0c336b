package docstore

import (
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/52north/connected-systems-go/pkg/csa/types"
)

func TestEmptyQueryMatchesAll(t *testing.T) {
	is := is.New(t)

	body := NewQuery().Body(0, 10)

	query := body["query"].(M)
	_, ok := query["match_all"]
	is.True(ok)

	is.Equal(body["from"], 0)
	is.Equal(body["size"], 10)
}

func TestTermsAndTextFragments(t *testing.T) {
	is := is.New(t)

	q := NewQuery().
		Terms("_id", []string{"a", "b"}).
		Text("thermometer", "name", "description")

	boolQuery := boolOf(is, q)

	filter := boolQuery["filter"].([]M)
	is.Equal(len(filter), 1)
	is.Equal(filter[0]["terms"].(M)["_id"].([]string)[0], "a")

	must := boolQuery["must"].([]M)
	is.Equal(len(must), 1)
	is.Equal(must[0]["multi_match"].(M)["query"], "thermometer")
}

func TestRangeLeavesOutOpenBounds(t *testing.T) {
	is := is.New(t)

	start := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	q := NewQuery().Range("validTime", types.NewTimeInterval(&start, nil))

	boolQuery := boolOf(is, q)
	bounds := boolQuery["filter"].([]M)[0]["range"].(M)["validTime"].(M)

	_, hasGTE := bounds["gte"]
	_, hasLTE := bounds["lte"]
	is.True(hasGTE)
	is.True(!hasLTE)
}

func TestFullyOpenRangeAddsNothing(t *testing.T) {
	is := is.New(t)

	q := NewQuery().Range("validTime", types.NewTimeInterval(nil, nil))

	_, ok := q.Body(0, 10)["query"].(M)["match_all"]
	is.True(ok)
}

func TestExcludeExists(t *testing.T) {
	is := is.New(t)

	q := NewQuery().ExcludeExists("parent")

	boolQuery := boolOf(is, q)
	mustNot := boolQuery["must_not"].([]M)
	is.Equal(mustNot[0]["exists"].(M)["field"], "parent")
}

func TestBBoxFragment(t *testing.T) {
	is := is.New(t)

	q := NewQuery().BBox("geometry", &types.BoundingBox{MinX: 5.5, MinY: 50.0, MaxX: 9.5, MaxY: 53.5})

	boolQuery := boolOf(is, q)
	box := boolQuery["filter"].([]M)[0]["geo_bounding_box"].(M)["geometry"].(M)

	is.Equal(box["top_left"].(M)["lat"], 53.5)
	is.Equal(box["top_left"].(M)["lon"], 5.5)
	is.Equal(box["bottom_right"].(M)["lat"], 50.0)
	is.Equal(box["bottom_right"].(M)["lon"], 9.5)
}

func TestHasIDFilter(t *testing.T) {
	is := is.New(t)

	is.True(NewQuery().Terms("_id", []string{"a"}).HasIDFilter())
	is.True(!NewQuery().Terms("uid", []string{"a"}).HasIDFilter())
	is.True(!NewQuery().HasIDFilter())
}

func boolOf(is *is.I, q *Query) M {
	body := q.Body(0, 10)
	boolQuery, ok := body["query"].(M)["bool"].(M)
	is.True(ok)
	return boolQuery
}
