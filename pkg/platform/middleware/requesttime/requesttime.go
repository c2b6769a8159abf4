// Package requesttime pins a single "now" per request so audit records,
// instance timestamps and invitation expiry checks agree with each other.
package requesttime

import (
	"net/http"
	"time"

	"policykernel/pkg/requestcontext"
)

// Middleware captures the request start time.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
