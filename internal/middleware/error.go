package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go-classifieds-app/internal/apperr"
	"go-classifieds-app/internal/logger"
)

// AppHandler is a handler function that returns a classified error
// instead of writing error responses itself.
type AppHandler func(http.ResponseWriter, *http.Request) error

// Error is a middleware that converts handler errors into stable JSON
// error responses. Each taxonomy kind maps to one status code, so the
// transport never inspects error text. Unexpected errors are logged in
// full; the client only sees the kind.
func Error(log logger.Logger) func(AppHandler) http.Handler {
	return func(next AppHandler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					err, ok := rec.(error)
					if !ok {
						err = fmt.Errorf("%v", rec)
					}
					log.Error(err, "Panic recovered")
					writeError(w, apperr.Unexpected, "internal error")
				}
			}()

			err := next(w, r)
			if err == nil {
				return
			}

			kind := apperr.KindOf(err)
			if kind == apperr.Unexpected {
				log.Error(err, "Unhandled error")
				writeError(w, kind, "internal error")
				return
			}
			writeError(w, kind, err.Error())
		})
	}
}

func writeError(w http.ResponseWriter, kind apperr.Kind, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(kind.HTTPStatus())
	_ = json.NewEncoder(w).Encode(map[string]string{
		"kind":  kind.String(),
		"error": msg,
	})
}
