package middleware

import (
	"net/http"

	"go.uber.org/zap"

	"atstore-api/internal/logging"
	"atstore-api/pkg/apierror"
)

// NewRecovery returns a middleware that recovers from panics.
func NewRecovery(base *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					logging.FromContext(r.Context(), base).Error("panic recovered",
						zap.Any("panic", err),
						zap.String("path", r.URL.Path),
						zap.Stack("stack"))

					writeError(w, apierror.InternalError("internal server error"))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
