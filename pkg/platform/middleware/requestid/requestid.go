// Package requestid propagates or assigns an X-Request-ID per request.
package requestid

import (
	"net/http"

	"github.com/google/uuid"

	"policykernel/pkg/requestcontext"
)

// Header is the request/response header carrying the id.
const Header = "X-Request-ID"

const maxLen = 128

// Middleware reuses a caller-supplied request id or generates one, and echoes
// it on the response.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(Header)
		if id == "" || len(id) > maxLen {
			id = uuid.NewString()
		}
		w.Header().Set(Header, id)
		next.ServeHTTP(w, r.WithContext(requestcontext.WithRequestID(r.Context(), id)))
	})
}
