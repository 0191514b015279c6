package middleware

import (
	"context"
	"net/http"

	"github.com/meterlane/billingdash-backend/pkg/logger"
)

// APICallRecorder counts one API call against the user's usage.
type APICallRecorder interface {
	RecordAPICall(ctx context.Context, userID string) error
}

// Metering counts authenticated requests against the caller's usage
// counters. A failed increment is logged and never blocks the request.
func Metering(recorder APICallRecorder, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if recorder != nil {
				if userID := UserIDFromContext(r.Context()); userID != "" {
					if err := recorder.RecordAPICall(r.Context(), userID); err != nil && logg != nil {
						logg.Warn(logg.WithUserID(r.Context(), userID), "usage metering increment failed")
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
