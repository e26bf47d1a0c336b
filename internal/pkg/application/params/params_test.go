package params

import (
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/matryer/is"

	cserrors "github.com/52north/connected-systems-go/pkg/csa/errors"
)

func TestParseBBoxRejectsWrongArity(t *testing.T) {
	is := is.New(t)

	_, err := ParseBBox("1,2,3")
	is.True(err != nil) // 3 values must be rejected

	_, err = ParseBBox("1,2,3,4,5")
	is.True(err != nil) // 5 values must be rejected
}

func TestParseBBox2D(t *testing.T) {
	is := is.New(t)

	box, err := ParseBBox("5.5,50.0,9.5,53.5")
	is.NoErr(err)

	is.Equal(box.MinX, 5.5)
	is.Equal(box.MinY, 50.0)
	is.Equal(box.MaxX, 9.5)
	is.Equal(box.MaxY, 53.5)
	is.True(!box.Is3D())
}

func TestParseBBox3D(t *testing.T) {
	is := is.New(t)

	box, err := ParseBBox("5.5,50.0,0,9.5,53.5,100")
	is.NoErr(err)

	is.True(box.Is3D())
	is.Equal(*box.MinAlt, 0.0)
	is.Equal(*box.MaxAlt, 100.0)
}

func TestParseTimeInterval(t *testing.T) {
	is := is.New(t)

	instant, err := ParseTimeInterval("2024-04-01T12:00:00Z")
	is.NoErr(err)
	is.Equal(*instant.Start, *instant.End) // a single instant is a degenerate interval

	openStart, err := ParseTimeInterval("../2024-04-01T12:00:00Z")
	is.NoErr(err)
	is.True(openStart.IsOpenStart())
	is.True(!openStart.IsOpenEnd())

	openEnd, err := ParseTimeInterval("2024-04-01T12:00:00Z/..")
	is.NoErr(err)
	is.True(!openEnd.IsOpenStart())
	is.True(openEnd.IsOpenEnd())

	now, err := ParseTimeInterval("now")
	is.NoErr(err)
	is.True(now.Start != nil)
	is.True(time.Since(*now.Start) < time.Minute)

	_, err = ParseTimeInterval("yesterday")
	is.True(err != nil)

	_, err = ParseTimeInterval("../..")
	is.True(err == nil) // fully open interval is allowed
}

func TestParseAggregatesAllFailures(t *testing.T) {
	is := is.New(t)

	values := url.Values{
		"bbox":  []string{"1,2,3"},
		"limit": []string{"-5"},
	}

	_, err := Parse("/systems", values, Systems...)
	is.True(errors.Is(err, cserrors.ErrInvalidQuery))

	msg := err.Error()
	is.True(strings.Contains(msg, "bbox"))  // both offending parameters are named
	is.True(strings.Contains(msg, "limit")) // both offending parameters are named
}

func TestParseIgnoresUnrecognizedParameters(t *testing.T) {
	is := is.New(t)

	values := url.Values{
		"parent": []string{"sys-1"},
		"wibble": []string{"wobble"},
	}

	p, err := Parse("/procedures", values, Procedures...)
	is.NoErr(err)

	is.Equal(len(p.Parent), 0) // parent is not recognized for procedures
}

func TestNextLinkAdvancesOffset(t *testing.T) {
	is := is.New(t)

	values := url.Values{
		"q":      []string{"thermometer"},
		"limit":  []string{"5"},
		"offset": []string{"10"},
	}

	p, err := Parse("/systems", values, Systems...)
	is.NoErr(err)

	next := p.NextLink()
	is.True(strings.Contains(next, "offset=15"))
	is.True(strings.Contains(next, "limit=5"))
	is.True(strings.Contains(next, "q=thermometer"))
	is.True(strings.HasPrefix(next, "/systems?"))

	is.Equal(next, p.NextLink()) // serialization is deterministic
}

func TestDefaults(t *testing.T) {
	is := is.New(t)

	p, err := Parse("/systems", url.Values{}, Systems...)
	is.NoErr(err)

	is.Equal(p.Limit, DefaultLimit)
	is.Equal(p.Offset, 0)
}
