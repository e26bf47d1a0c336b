package csa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	app "github.com/52north/connected-systems-go/internal/pkg/application/csa"
	"github.com/52north/connected-systems-go/internal/pkg/application/params"
	apierrors "github.com/52north/connected-systems-go/internal/pkg/presentation/api/csa/errors"
	cserrors "github.com/52north/connected-systems-go/pkg/csa/errors"
	"github.com/52north/connected-systems-go/pkg/csa/sml"
	"github.com/52north/connected-systems-go/pkg/csa/types"
)

var tracer = otel.Tracer("connected-systems-api/csa")

type queryFunc func(ctx context.Context, p *params.Parameters) (*types.CollectionResult, error)

// RegisterHandlers mounts the collection routes on the router.
func RegisterHandlers(ctx context.Context, r chi.Router, validator app.Validator, part1 app.Part1Provider, part2 app.Part2Provider) error {

	collections := []struct {
		pattern    string
		entityType app.EntityType
		recognized []string
		query      queryFunc
	}{
		{"/systems", app.Systems, params.Systems, part1.QuerySystems},
		{"/deployments", app.Deployments, params.Deployments, part1.QueryDeployments},
		{"/procedures", app.Procedures, params.Procedures, part1.QueryProcedures},
		{"/samplingFeatures", app.SamplingFeatures, params.SamplingFeatures, part1.QuerySamplingFeatures},
		{"/properties", app.Properties, params.Properties, part1.QueryProperties},
	}

	for _, c := range collections {
		r.Route(c.pattern, func(r chi.Router) {
			r.Get("/", NewQueryCollectionHandler(c.entityType.String(), c.query, c.recognized))
			r.Post("/", NewCreateEntityHandler(validator, part1, c.entityType))

			r.Route("/{entityId}", func(r chi.Router) {
				r.Get("/", NewRetrieveEntityHandler(c.entityType.String(), c.query))
				r.Put("/", NewReplaceEntityHandler(validator, part1, c.entityType))
				r.Delete("/", NewDeleteEntityHandler(part1, c.entityType))
			})
		})
	}

	r.Route("/datastreams", func(r chi.Router) {
		r.Get("/", NewQueryCollectionHandler("datastreams", part2.QueryDatastreams, params.Datastreams))
		r.Post("/", NewCreateDatastreamHandler(validator, part2))

		r.Route("/{entityId}", func(r chi.Router) {
			r.Get("/", NewRetrieveEntityHandler("datastream", part2.QueryDatastreams))
			r.Delete("/", NewDeleteDatastreamHandler(part2))

			r.Get("/schema", NewRetrieveSchemaHandler(part2))
			r.Put("/schema", NewReplaceSchemaHandler(part2))

			r.Route("/observations", func(r chi.Router) {
				r.Get("/", NewQueryStreamObservationsHandler(part2))
				r.Post("/", NewCreateObservationHandler(validator, part2))
			})
		})
	})

	r.Route("/observations", func(r chi.Router) {
		r.Get("/", NewQueryCollectionHandler("observations", part2.QueryObservations, params.Observations))

		r.Route("/{entityId}", func(r chi.Router) {
			r.Get("/", NewRetrieveEntityHandler("observation", part2.QueryObservations))
			r.Delete("/", NewDeleteObservationHandler(part2))
		})
	})

	return nil
}

// NewQueryCollectionHandler handles GET requests for a collection.
func NewQueryCollectionHandler(collection string, query queryFunc, recognized []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "query-"+collection)
		defer func() {
			if err != nil {
				span.RecordError(err)
			}
			span.End()
		}()

		traceID := traceIDFrom(span)

		qp, err := params.Parse(r.URL.Path, r.URL.Query(), recognized...)
		if err != nil {
			reportProblem(ctx, w, traceID, err)
			return
		}

		result, err := query(ctx, qp)
		if err != nil {
			reportProblem(ctx, w, traceID, err)
			return
		}

		items := make([]map[string]any, 0, len(result.Items))
		for _, item := range result.Items {
			items = append(items, projectEncoding(item, qp.Format))
		}

		respondJSON(ctx, w, http.StatusOK, map[string]any{
			"items": items,
			"links": result.Links,
		})
	}
}

// NewRetrieveEntityHandler handles GET requests for a single entity.
func NewRetrieveEntityHandler(name string, query queryFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "retrieve-"+name)
		defer func() {
			if err != nil {
				span.RecordError(err)
			}
			span.End()
		}()

		traceID := traceIDFrom(span)
		entityID := chi.URLParam(r, "entityId")

		values := url.Values{"id": []string{entityID}}
		if f := r.URL.Query().Get("f"); f != "" {
			values.Set("f", f)
		}

		qp, err := params.Parse(r.URL.Path, values, "id", "f")
		if err != nil {
			reportProblem(ctx, w, traceID, err)
			return
		}

		result, err := query(ctx, qp)
		if err != nil {
			reportProblem(ctx, w, traceID, err)
			return
		}

		if len(result.Items) == 0 {
			err = cserrors.NewNotFoundError(fmt.Sprintf("%s %s does not exist", name, entityID))
			reportProblem(ctx, w, traceID, err)
			return
		}

		respondJSON(ctx, w, http.StatusOK, projectEncoding(result.Items[0], qp.Format))
	}
}

// NewCreateEntityHandler handles POST requests for the metadata
// collections.
func NewCreateEntityHandler(validator app.Validator, provider app.Part1Provider, entityType app.EntityType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "create-"+entityType.String())
		defer func() {
			if err != nil {
				span.RecordError(err)
			}
			span.End()
		}()

		traceID := traceIDFrom(span)
		encoding := contentTypeOf(r)

		item, err := decodeBody(r)
		if err != nil {
			reportProblem(ctx, w, traceID, err)
			return
		}

		if err = validator.Validate(ctx, entityType, encoding, item); err != nil {
			reportProblem(ctx, w, traceID, err)
			return
		}

		id, err := provider.Create(ctx, entityType, encoding, item)
		if err != nil {
			reportProblem(ctx, w, traceID, err)
			return
		}

		w.Header().Add("Location", locationOf(r, id))
		w.WriteHeader(http.StatusCreated)
	}
}

// NewReplaceEntityHandler handles PUT requests replacing a metadata
// entity in full.
func NewReplaceEntityHandler(validator app.Validator, provider app.Part1Provider, entityType app.EntityType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "replace-"+entityType.String())
		defer func() {
			if err != nil {
				span.RecordError(err)
			}
			span.End()
		}()

		traceID := traceIDFrom(span)
		entityID := chi.URLParam(r, "entityId")
		encoding := contentTypeOf(r)

		item, err := decodeBody(r)
		if err != nil {
			reportProblem(ctx, w, traceID, err)
			return
		}

		if err = validator.Validate(ctx, entityType, encoding, item); err != nil {
			reportProblem(ctx, w, traceID, err)
			return
		}

		if err = provider.Replace(ctx, entityType, encoding, entityID, item); err != nil {
			reportProblem(ctx, w, traceID, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// NewDeleteEntityHandler handles DELETE requests for the metadata
// collections. The cascade query parameter opts in to recursive
// deletion of dependents.
func NewDeleteEntityHandler(provider app.Part1Provider, entityType app.EntityType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "delete-"+entityType.String())
		defer func() {
			if err != nil {
				span.RecordError(err)
			}
			span.End()
		}()

		traceID := traceIDFrom(span)
		entityID := chi.URLParam(r, "entityId")
		cascade := r.URL.Query().Get("cascade") == "true"

		if err = provider.Delete(ctx, entityType, entityID, cascade); err != nil {
			reportProblem(ctx, w, traceID, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// NewCreateDatastreamHandler handles POST requests for datastreams.
func NewCreateDatastreamHandler(validator app.Validator, provider app.Part2Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "create-datastream")
		defer func() {
			if err != nil {
				span.RecordError(err)
			}
			span.End()
		}()

		traceID := traceIDFrom(span)

		item, err := decodeBody(r)
		if err != nil {
			reportProblem(ctx, w, traceID, err)
			return
		}

		if err = validator.Validate(ctx, app.Datastreams, contentTypeOf(r), item); err != nil {
			reportProblem(ctx, w, traceID, err)
			return
		}

		id, err := provider.CreateDatastream(ctx, item)
		if err != nil {
			reportProblem(ctx, w, traceID, err)
			return
		}

		w.Header().Add("Location", locationOf(r, id))
		w.WriteHeader(http.StatusCreated)
	}
}

// NewDeleteDatastreamHandler handles DELETE requests for datastreams.
func NewDeleteDatastreamHandler(provider app.Part2Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "delete-datastream")
		defer func() {
			if err != nil {
				span.RecordError(err)
			}
			span.End()
		}()

		traceID := traceIDFrom(span)
		entityID := chi.URLParam(r, "entityId")
		cascade := r.URL.Query().Get("cascade") == "true"

		if err = provider.DeleteDatastream(ctx, entityID, cascade); err != nil {
			reportProblem(ctx, w, traceID, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// NewRetrieveSchemaHandler handles GET requests for a datastream's
// schema.
func NewRetrieveSchemaHandler(provider app.Part2Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "retrieve-schema")
		defer func() {
			if err != nil {
				span.RecordError(err)
			}
			span.End()
		}()

		traceID := traceIDFrom(span)
		entityID := chi.URLParam(r, "entityId")

		values := url.Values{"id": []string{entityID}, "schema": []string{"true"}}

		qp, err := params.Parse(r.URL.Path, values, "id", "schema")
		if err != nil {
			reportProblem(ctx, w, traceID, err)
			return
		}

		result, err := provider.QueryDatastreams(ctx, qp)
		if err != nil {
			reportProblem(ctx, w, traceID, err)
			return
		}

		if len(result.Items) == 0 {
			err = cserrors.NewNotFoundError(fmt.Sprintf("datastream %s does not exist", entityID))
			reportProblem(ctx, w, traceID, err)
			return
		}

		respondJSON(ctx, w, http.StatusOK, result.Items[0]["schema"])
	}
}

// NewReplaceSchemaHandler handles PUT requests replacing a datastream's
// schema.
func NewReplaceSchemaHandler(provider app.Part2Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "replace-schema")
		defer func() {
			if err != nil {
				span.RecordError(err)
			}
			span.End()
		}()

		traceID := traceIDFrom(span)
		entityID := chi.URLParam(r, "entityId")

		schema, err := decodeBody(r)
		if err != nil {
			reportProblem(ctx, w, traceID, err)
			return
		}

		if err = provider.ReplaceSchema(ctx, entityID, schema); err != nil {
			reportProblem(ctx, w, traceID, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// NewQueryStreamObservationsHandler handles GET requests for the
// observations of one datastream.
func NewQueryStreamObservationsHandler(provider app.Part2Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "query-stream-observations")
		defer func() {
			if err != nil {
				span.RecordError(err)
			}
			span.End()
		}()

		traceID := traceIDFrom(span)

		qp, err := params.Parse(r.URL.Path, r.URL.Query(), params.Observations...)
		if err != nil {
			reportProblem(ctx, w, traceID, err)
			return
		}

		qp.Datastream = chi.URLParam(r, "entityId")

		result, err := provider.QueryObservations(ctx, qp)
		if err != nil {
			reportProblem(ctx, w, traceID, err)
			return
		}

		respondJSON(ctx, w, http.StatusOK, map[string]any{
			"items": result.Items,
			"links": result.Links,
		})
	}
}

// NewCreateObservationHandler handles POST requests pushing an
// observation into a datastream.
func NewCreateObservationHandler(validator app.Validator, provider app.Part2Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "create-observation")
		defer func() {
			if err != nil {
				span.RecordError(err)
			}
			span.End()
		}()

		traceID := traceIDFrom(span)

		item, err := decodeBody(r)
		if err != nil {
			reportProblem(ctx, w, traceID, err)
			return
		}

		if streamID := chi.URLParam(r, "entityId"); streamID != "" {
			item["datastream@id"] = streamID
		}

		if err = validator.Validate(ctx, app.Observations, contentTypeOf(r), item); err != nil {
			reportProblem(ctx, w, traceID, err)
			return
		}

		id, err := provider.CreateObservation(ctx, item)
		if err != nil {
			reportProblem(ctx, w, traceID, err)
			return
		}

		w.Header().Add("Location", locationOf(r, id))
		w.WriteHeader(http.StatusCreated)
	}
}

// NewDeleteObservationHandler handles DELETE requests for observations.
func NewDeleteObservationHandler(provider app.Part2Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "delete-observation")
		defer func() {
			if err != nil {
				span.RecordError(err)
			}
			span.End()
		}()

		traceID := traceIDFrom(span)
		entityID := chi.URLParam(r, "entityId")

		if err = provider.DeleteObservation(ctx, entityID); err != nil {
			reportProblem(ctx, w, traceID, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// projectEncoding picks the payload matching the requested format from
// a stored document. Entities that only carry one rendering fall back
// to what they have.
func projectEncoding(item map[string]any, format string) map[string]any {
	pick := func(key string) map[string]any {
		payload, ok := item[key].(map[string]any)
		if !ok {
			return nil
		}
		payload["id"] = item["id"]
		return payload
	}

	switch format {
	case sml.EncodingGeoJSON, "geojson":
		if payload := pick("geojson"); payload != nil {
			return payload
		}
	case sml.EncodingSensorML, "sml":
		if payload := pick("sml"); payload != nil {
			return payload
		}
	default:
		for _, key := range []string{"sml", "geojson", "json"} {
			if payload := pick(key); payload != nil {
				return payload
			}
		}
	}

	return item
}

func contentTypeOf(r *http.Request) string {
	contentType := r.Header.Get("Content-Type")
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.TrimSpace(contentType)
}

func decodeBody(r *http.Request) (map[string]any, error) {
	item := map[string]any{}
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		return nil, cserrors.NewInvalidQueryError(fmt.Sprintf("unable to decode request payload: %s", err.Error()))
	}
	return item, nil
}

func locationOf(r *http.Request, id string) string {
	return strings.TrimSuffix(r.URL.Path, "/") + "/" + id
}

func traceIDFrom(span trace.Span) string {
	if span.SpanContext().HasTraceID() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}

func respondJSON(ctx context.Context, w http.ResponseWriter, code int, body any) {
	encoded, err := json.Marshal(body)
	if err != nil {
		apierrors.ReportInternalError(w, err.Error(), "")
		return
	}

	w.Header().Add("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(encoded)
}

// reportProblem maps the provider error taxonomy to RFC7807 problem
// responses.
func reportProblem(ctx context.Context, w http.ResponseWriter, traceID string, err error) {
	validation := &cserrors.ValidationError{}

	switch {
	case errors.As(err, &validation):
		apierrors.ReportValidationFailure(w, validation.Violations, traceID)
	case errors.Is(err, cserrors.ErrNotFound):
		apierrors.ReportNotFound(w, err.Error(), traceID)
	case errors.Is(err, cserrors.ErrInvalidQuery):
		apierrors.ReportInvalidQuery(w, err.Error(), traceID)
	case errors.Is(err, cserrors.ErrAlreadyExists):
		apierrors.ReportAlreadyExists(w, err.Error(), traceID)
	case errors.Is(err, cserrors.ErrConflict):
		apierrors.ReportConflict(w, err.Error(), traceID)
	default:
		logging.GetFromContext(ctx).Error("request failed", "err", err.Error())
		apierrors.ReportInternalError(w, err.Error(), traceID)
	}
}
