package csa

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/matryer/is"

	app "github.com/52north/connected-systems-go/internal/pkg/application/csa"
	"github.com/52north/connected-systems-go/internal/pkg/application/params"
	apierrors "github.com/52north/connected-systems-go/internal/pkg/presentation/api/csa/errors"
	cserrors "github.com/52north/connected-systems-go/pkg/csa/errors"
	"github.com/52north/connected-systems-go/pkg/csa/types"
)

func TestQuerySystemsReturnsCollectionEnvelope(t *testing.T) {
	is, ts, part1, _ := setupTest(t)
	defer ts.Close()

	part1.QuerySystemsFunc = func(ctx context.Context, p *params.Parameters) (*types.CollectionResult, error) {
		return &types.CollectionResult{
			Items: []map[string]any{{"id": "sys-1", "name": "Weather Station 42"}},
			Links: []types.Link{{Title: "next page", Rel: "next", Href: "/systems?limit=10&offset=10"}},
		}, nil
	}

	resp, body := newTestRequest(is, ts, "GET", "/systems", nil)

	is.Equal(resp.StatusCode, http.StatusOK)

	envelope := map[string]any{}
	is.NoErr(json.Unmarshal([]byte(body), &envelope))

	items := envelope["items"].([]any)
	is.Equal(len(items), 1)

	links := envelope["links"].([]any)
	is.Equal(links[0].(map[string]any)["rel"], "next")
}

func TestInvalidBBoxReturnsBadRequest(t *testing.T) {
	is, ts, _, _ := setupTest(t)
	defer ts.Close()

	resp, body := newTestRequest(is, ts, "GET", "/systems?bbox=1,2,3", nil)

	is.Equal(resp.StatusCode, http.StatusBadRequest)
	is.True(strings.Contains(body, "bbox"))
}

func TestRetrieveUnknownSystemReturnsNotFound(t *testing.T) {
	is, ts, part1, _ := setupTest(t)
	defer ts.Close()

	part1.QuerySystemsFunc = func(ctx context.Context, p *params.Parameters) (*types.CollectionResult, error) {
		return nil, cserrors.NewNotFoundError("no such system")
	}

	resp, _ := newTestRequest(is, ts, "GET", "/systems/sys-missing", nil)

	is.Equal(resp.StatusCode, http.StatusNotFound)
	is.Equal(resp.Header.Get("Content-Type"), apierrors.ProblemReportContentType)
}

func TestCreateSystemReturnsCreatedWithLocation(t *testing.T) {
	is, ts, part1, _ := setupTest(t)
	defer ts.Close()

	part1.CreateFunc = func(ctx context.Context, entityType app.EntityType, encoding string, item map[string]any) (string, error) {
		return "sys-new", nil
	}

	resp, _ := newTestRequest(is, ts, "POST", "/systems", bytes.NewBufferString(systemJSON))

	is.Equal(resp.StatusCode, http.StatusCreated)
	is.Equal(resp.Header.Get("Location"), "/systems/sys-new")
}

func TestCreateSystemWithEmptyPayloadFailsValidation(t *testing.T) {
	is, ts, _, _ := setupTest(t)
	defer ts.Close()

	resp, body := newTestRequest(is, ts, "POST", "/systems", bytes.NewBufferString(`{}`))

	is.Equal(resp.StatusCode, http.StatusBadRequest)
	is.True(strings.Contains(body, "Validation Failed"))
}

func TestCreateSystemWithBadJSONReturnsBadRequest(t *testing.T) {
	is, ts, _, _ := setupTest(t)
	defer ts.Close()

	resp, _ := newTestRequest(is, ts, "POST", "/systems", bytes.NewBufferString("this is not json"))

	is.Equal(resp.StatusCode, http.StatusBadRequest)
}

func TestGuardedDeleteReturnsConflict(t *testing.T) {
	is, ts, part1, _ := setupTest(t)
	defer ts.Close()

	part1.DeleteFunc = func(ctx context.Context, entityType app.EntityType, id string, cascade bool) error {
		return cserrors.NewConflictError("system sys-1 still has subsystems")
	}

	resp, _ := newTestRequest(is, ts, "DELETE", "/systems/sys-1", nil)

	is.Equal(resp.StatusCode, http.StatusConflict)
}

func TestDeletePassesCascadeFlag(t *testing.T) {
	is, ts, part1, _ := setupTest(t)
	defer ts.Close()

	cascaded := false
	part1.DeleteFunc = func(ctx context.Context, entityType app.EntityType, id string, cascade bool) error {
		cascaded = cascade
		return nil
	}

	resp, _ := newTestRequest(is, ts, "DELETE", "/systems/sys-1?cascade=true", nil)

	is.Equal(resp.StatusCode, http.StatusNoContent)
	is.True(cascaded)
}

func TestCreateObservationInStream(t *testing.T) {
	is, ts, _, part2 := setupTest(t)
	defer ts.Close()

	streamID := ""
	part2.CreateObservationFunc = func(ctx context.Context, item map[string]any) (string, error) {
		streamID, _ = item["datastream@id"].(string)
		return "obs-1", nil
	}

	resp, _ := newTestRequest(is, ts, "POST", "/datastreams/ds-1/observations",
		bytes.NewBufferString(`{"result": 23.5, "resultTime": "2024-04-01T12:00:00Z"}`))

	is.Equal(resp.StatusCode, http.StatusCreated)
	is.Equal(streamID, "ds-1")
}

func TestReplaceLockedSchemaReturnsConflict(t *testing.T) {
	is, ts, _, part2 := setupTest(t)
	defer ts.Close()

	part2.ReplaceSchemaFunc = func(ctx context.Context, datastreamID string, schema map[string]any) error {
		return cserrors.NewConflictError("schema is locked")
	}

	resp, _ := newTestRequest(is, ts, "PUT", "/datastreams/ds-1/schema",
		bytes.NewBufferString(`{"obsFormat": "application/om+json"}`))

	is.Equal(resp.StatusCode, http.StatusConflict)
}

func TestInternalErrorsAreNotLeakedAsSuccess(t *testing.T) {
	is, ts, part1, _ := setupTest(t)
	defer ts.Close()

	part1.QuerySystemsFunc = func(ctx context.Context, p *params.Parameters) (*types.CollectionResult, error) {
		return nil, cserrors.NewInternalError("backend unavailable")
	}

	resp, _ := newTestRequest(is, ts, "GET", "/systems", nil)

	is.Equal(resp.StatusCode, http.StatusInternalServerError)
}

func newTestRequest(is *is.I, ts *httptest.Server, method, path string, body io.Reader) (*http.Response, string) {
	req, _ := http.NewRequest(method, ts.URL+path, body)
	req.Header.Add("Content-Type", "application/sml+json")

	resp, err := http.DefaultClient.Do(req)
	is.NoErr(err) // http request failed
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	is.NoErr(err) // failed to read response body

	return resp, string(respBody)
}

func setupTest(t *testing.T) (*is.I, *httptest.Server, *app.Part1ProviderMock, *app.Part2ProviderMock) {
	is := is.New(t)

	part1 := &app.Part1ProviderMock{}
	part2 := &app.Part2ProviderMock{}

	r := chi.NewRouter()
	err := RegisterHandlers(context.Background(), r, app.NewValidator(), part1, part2)
	is.NoErr(err)

	return is, httptest.NewServer(r), part1, part2
}

var systemJSON string = `{
	"type": "PhysicalSystem",
	"uniqueId": "urn:x-acme:systems:ws42",
	"label": "Weather Station 42"
}`
