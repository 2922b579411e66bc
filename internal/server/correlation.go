package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

// CorrelationMiddleware tags each request with a correlation ID. An inbound
// X-Correlation-ID header is honored so callers can trace a request across
// services; otherwise a fresh UUID is generated. The ID is stored in the
// request context and echoed in the response headers.
func CorrelationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := r.Header.Get("X-Correlation-ID")
		if correlationID == "" {
			correlationID = uuid.New().String()
		}
		rc := &RequestContext{CorrelationID: correlationID, StartTime: time.Now()}
		ctx := WithRequestContext(r.Context(), rc)
		w.Header().Set("X-Correlation-ID", correlationID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
