package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/draftforge/content-gateway/internal/domain"
)

// successEnvelope wraps handler data for the wire.
type successEnvelope struct {
	Data          any            `json:"data"`
	CorrelationID string         `json:"correlationId"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

type errorEnvelope struct {
	Error         errorBody `json:"error"`
	CorrelationID string    `json:"correlationId"`
}

type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// WriteJSON writes data inside the standard success envelope.
func WriteJSON(w http.ResponseWriter, r *http.Request, status int, data any, metadata map[string]any) {
	rc := GetRequestContext(r.Context())
	env := successEnvelope{Data: data, Metadata: metadata}
	if rc != nil {
		env.CorrelationID = rc.CorrelationID
		w.Header().Set("X-Elapsed-Ms", strconv.FormatInt(time.Since(rc.StartTime).Milliseconds(), 10))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		slog.Error("encode response", slog.String("error", err.Error()))
	}
}

// WriteError translates err into the standard error envelope. Unknown error
// types are masked as internal errors so internals never leak to callers.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr, ok := domain.AsAPIError(err)
	if !ok {
		apiErr = domain.ErrServer("internal server error")
	}

	AddError(r.Context(), err)

	rc := GetRequestContext(r.Context())
	env := errorEnvelope{
		Error: errorBody{
			Code:    string(apiErr.Code),
			Message: apiErr.Message,
			Details: apiErr.Details,
		},
	}
	if rc != nil {
		env.CorrelationID = rc.CorrelationID
		w.Header().Set("X-Elapsed-Ms", strconv.FormatInt(time.Since(rc.StartTime).Milliseconds(), 10))
	}
	if apiErr.RetryAfter > 0 {
		secs := int(apiErr.RetryAfter.Round(time.Second) / time.Second)
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.HTTPStatusCode())
	if encodeErr := json.NewEncoder(w).Encode(env); encodeErr != nil {
		slog.Error("encode error response", slog.String("error", encodeErr.Error()))
	}
}
