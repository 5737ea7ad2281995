package middleware

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"

	"github.com/zatekoja/shopdiscovery/internal/infrastructure/observability"
	"github.com/zatekoja/shopdiscovery/internal/telemetry"
)

// ObservabilityMiddleware adds OpenTelemetry tracing to HTTP requests and
// records each request into the telemetry aggregator. Responses of 500 and
// above count as failures.
func ObservabilityMiddleware(agg *telemetry.Aggregator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Use route pattern instead of raw path to avoid high cardinality
			route := r.Pattern
			if route == "" {
				route = r.URL.Path
			}

			ctx, span := observability.StartSpan(r.Context(), "http "+r.Method+" "+r.URL.Path)
			defer span.End()

			observability.SetSpanAttributes(span,
				attribute.String("http.method", r.Method),
				attribute.String("http.route", route),
				attribute.String("http.user_agent", r.UserAgent()),
			)

			var timer *telemetry.Timer
			if agg != nil {
				timer = agg.StartTimer(telemetry.ServiceAPI)
			}

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r.WithContext(ctx))

			if timer != nil {
				timer.End(rw.statusCode < http.StatusInternalServerError, telemetry.SampleMeta{})
			}
			observability.SetSpanAttributes(span, attribute.Int("http.status_code", rw.statusCode))
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}
