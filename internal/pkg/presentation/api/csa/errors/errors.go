package errors

import (
	"encoding/json"
	"net/http"
)

// ProblemReportContentType as required by https://tools.ietf.org/html/rfc7807
const ProblemReportContentType string = "application/problem+json"

type problemDetails struct {
	Type       string   `json:"type"`
	Title      string   `json:"title"`
	Detail     string   `json:"detail"`
	Violations []string `json:"violations,omitempty"`
	TraceID    string   `json:"traceID,omitempty"`

	code int
}

func (p problemDetails) writeResponse(w http.ResponseWriter) {
	w.Header().Add("Content-Type", ProblemReportContentType)
	w.Header().Add("Content-Language", "en")
	w.WriteHeader(p.code)

	pdbytes, err := json.MarshalIndent(p, "", "  ")
	if err == nil {
		w.Write(pdbytes)
	}
}

// ReportNotFound reports that the requested resource does not exist.
func ReportNotFound(w http.ResponseWriter, detail, traceID string) {
	problemDetails{
		Type:    "https://www.opengis.net/def/exceptions/ogcapi-common/NotFound",
		Title:   "Not Found",
		Detail:  detail,
		TraceID: traceID,
		code:    http.StatusNotFound,
	}.writeResponse(w)
}

// ReportInvalidQuery reports an unparsable or unsupported request.
func ReportInvalidQuery(w http.ResponseWriter, detail, traceID string) {
	problemDetails{
		Type:    "https://www.opengis.net/def/exceptions/ogcapi-common/InvalidParameterValue",
		Title:   "Invalid Query",
		Detail:  detail,
		TraceID: traceID,
		code:    http.StatusBadRequest,
	}.writeResponse(w)
}

// ReportAlreadyExists reports an attempt to create an entity whose id
// or uid is taken.
func ReportAlreadyExists(w http.ResponseWriter, detail, traceID string) {
	problemDetails{
		Type:    "https://www.opengis.net/def/exceptions/ogcapi-common/AlreadyExists",
		Title:   "Already Exists",
		Detail:  detail,
		TraceID: traceID,
		code:    http.StatusConflict,
	}.writeResponse(w)
}

// ReportConflict reports an operation rejected by the current state of
// the stored data, such as a guarded delete.
func ReportConflict(w http.ResponseWriter, detail, traceID string) {
	problemDetails{
		Type:    "https://www.opengis.net/def/exceptions/ogcapi-common/Conflict",
		Title:   "Conflict",
		Detail:  detail,
		TraceID: traceID,
		code:    http.StatusConflict,
	}.writeResponse(w)
}

// ReportValidationFailure reports the individual violations found by
// the schema validator.
func ReportValidationFailure(w http.ResponseWriter, violations []string, traceID string) {
	problemDetails{
		Type:       "https://www.opengis.net/def/exceptions/ogcapi-common/ValidationFailed",
		Title:      "Validation Failed",
		Detail:     "the request payload failed schema validation",
		Violations: violations,
		TraceID:    traceID,
		code:       http.StatusBadRequest,
	}.writeResponse(w)
}

// ReportInternalError reports an unexpected backend failure.
func ReportInternalError(w http.ResponseWriter, detail, traceID string) {
	problemDetails{
		Type:    "https://www.opengis.net/def/exceptions/ogcapi-common/InternalError",
		Title:   "Internal Error",
		Detail:  detail,
		TraceID: traceID,
		code:    http.StatusInternalServerError,
	}.writeResponse(w)
}
