// Package requestid assigns each request a correlation ID, honoring one
// supplied by the caller so IDs survive proxy hops.
package requestid

import (
	"net/http"

	"github.com/google/uuid"

	"enroll/pkg/requestcontext"
)

const headerName = "X-Request-ID"

// Middleware stores the request ID in the context and echoes it in the
// response header.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(headerName)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(headerName, requestID)
		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
