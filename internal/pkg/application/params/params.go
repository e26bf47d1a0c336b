package params

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	cserrors "github.com/52north/connected-systems-go/pkg/csa/errors"
	"github.com/52north/connected-systems-go/pkg/csa/types"
)

const DefaultLimit = 10

// Recognized parameter sets per collection. Only names in the set are
// parsed; anything else in the request is ignored.
var (
	Common           = []string{"f", "id", "q", "limit", "offset"}
	Systems          = append(Common, "datetime", "bbox", "geom", "parent", "procedure", "foi", "observedProperty", "controlledProperty")
	Deployments      = append(Common, "datetime", "bbox", "geom", "system", "foi", "observedProperty")
	Procedures       = append(Common, "datetime", "foi", "observedProperty", "controlledProperty")
	SamplingFeatures = append(Common, "datetime", "bbox", "geom", "system", "foi", "observedProperty", "controlledProperty")
	Properties       = Common
	Datastreams      = append(Common, "system", "foi", "observedProperty", "phenomenonTime", "resultTime", "schema")
	Observations     = append(Common, "datastream", "foi", "observedProperty", "phenomenonTime", "resultTime")
)

// Parameters is the typed representation of the recognized query
// parameters of a single request.
type Parameters struct {
	url string
	raw url.Values

	Format string
	IDs    []string
	Query  string
	Limit  int
	Offset int

	BBox     *types.BoundingBox
	Geometry string

	DateTime       *types.TimeInterval
	PhenomenonTime *types.TimeInterval
	ResultTime     *types.TimeInterval

	Parent             []string
	System             []string
	Procedure          []string
	FOI                []string
	ObservedProperty   []string
	ControlledProperty []string
	Datastream         string
	Schema             bool
}

// Parse turns raw query parameter values into a typed Parameters
// object. All recognized parameters are parsed before returning; any
// failures are aggregated into a single invalid-query error carrying
// the offending arguments.
func Parse(requestURL string, values url.Values, recognized ...string) (*Parameters, error) {
	p := &Parameters{
		url:   requestURL,
		raw:   url.Values{},
		Limit: DefaultLimit,
	}

	bad := []string{}

	for _, name := range recognized {
		if !values.Has(name) {
			continue
		}

		value := values.Get(name)
		p.raw.Set(name, value)

		if err := p.set(name, value); err != nil {
			bad = append(bad, fmt.Sprintf("%s=%q (%s)", name, value, err.Error()))
		}
	}

	if len(bad) > 0 {
		return nil, cserrors.NewInvalidQueryError(
			"invalid query parameters: " + strings.Join(bad, ", "),
		)
	}

	return p, nil
}

func (p *Parameters) set(name, value string) error {
	var err error

	switch name {
	case "f":
		p.Format = value
	case "id":
		p.IDs = splitList(value)
	case "q":
		p.Query = value
	case "limit":
		p.Limit, err = parseNonNegativeInt(value)
	case "offset":
		p.Offset, err = parseNonNegativeInt(value)
	case "bbox":
		p.BBox, err = ParseBBox(value)
	case "geom":
		p.Geometry = value
	case "datetime":
		p.DateTime, err = ParseTimeInterval(value)
	case "phenomenonTime":
		p.PhenomenonTime, err = ParseTimeInterval(value)
	case "resultTime":
		p.ResultTime, err = ParseTimeInterval(value)
	case "parent":
		p.Parent = splitList(value)
	case "system":
		p.System = splitList(value)
	case "procedure":
		p.Procedure = splitList(value)
	case "foi":
		p.FOI = splitList(value)
	case "observedProperty":
		p.ObservedProperty = splitList(value)
	case "controlledProperty":
		p.ControlledProperty = splitList(value)
	case "datastream":
		p.Datastream = value
	case "schema":
		p.Schema, err = strconv.ParseBool(value)
	}

	return err
}

// URL returns the canonical request URL without its query string.
func (p *Parameters) URL() string {
	return p.url
}

// NextLink synthesizes the href of the next page: all supplied
// parameters re-serialized with offset advanced by limit. The encoding
// is deterministic (keys in sorted order).
func (p *Parameters) NextLink() string {
	values := url.Values{}
	for k, v := range p.raw {
		values[k] = v
	}

	values.Set("limit", strconv.Itoa(p.Limit))
	values.Set("offset", strconv.Itoa(p.Offset+p.Limit))

	return p.url + "?" + values.Encode()
}

func splitList(value string) []string {
	return strings.Split(value, ",")
}

func parseNonNegativeInt(value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("not an integer")
	}
	if n < 0 {
		return 0, fmt.Errorf("must not be negative")
	}
	return n, nil
}

// ParseBBox parses a comma separated bounding box with either 4 (2D)
// or 6 (3D) values in lower-left, upper-right order.
func ParseBBox(value string) (*types.BoundingBox, error) {
	tokens := strings.Split(value, ",")

	if len(tokens) != 4 && len(tokens) != 6 {
		return nil, fmt.Errorf("bbox must contain 4 or 6 values, got %d", len(tokens))
	}

	coords := make([]float64, len(tokens))
	for i, tok := range tokens {
		f, err := strconv.ParseFloat(strings.TrimSpace(tok), 64)
		if err != nil {
			return nil, fmt.Errorf("bbox value %q is not a number", tok)
		}
		coords[i] = f
	}

	if len(coords) == 4 {
		return &types.BoundingBox{
			MinX: coords[0], MinY: coords[1],
			MaxX: coords[2], MaxY: coords[3],
		}, nil
	}

	return &types.BoundingBox{
		MinX: coords[0], MinY: coords[1], MinAlt: &coords[2],
		MaxX: coords[3], MaxY: coords[4], MaxAlt: &coords[5],
	}, nil
}

// ParseTimeInterval parses a datetime parameter: a single instant, the
// literal "now" (resolved at parse time), or "A/B" where either side
// may be ".." for an open bound or "now".
func ParseTimeInterval(value string) (*types.TimeInterval, error) {
	now := time.Now().UTC()

	if start, end, isInterval := strings.Cut(value, "/"); isInterval {
		startTime, err := parseIntervalBound(start, now)
		if err != nil {
			return nil, err
		}

		endTime, err := parseIntervalBound(end, now)
		if err != nil {
			return nil, err
		}

		return types.NewTimeInterval(startTime, endTime), nil
	}

	instant, err := parseIntervalBound(value, now)
	if err != nil {
		return nil, err
	}
	if instant == nil {
		return nil, fmt.Errorf("a single instant must not be open")
	}

	return types.NewTimeInterval(instant, instant), nil
}

func parseIntervalBound(token string, now time.Time) (*time.Time, error) {
	switch token {
	case "..":
		return nil, nil
	case "now":
		return &now, nil
	}

	ts, err := time.Parse(time.RFC3339, token)
	if err != nil {
		return nil, fmt.Errorf("unparsable timestamp %q", token)
	}

	return &ts, nil
}
