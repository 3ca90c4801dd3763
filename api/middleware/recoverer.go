package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/angelmondragon/fulfillment-backend/api/responses"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
)

// Recoverer converts a handler panic into a 500 envelope. If the handler had
// already started the response only the log line is written. http.ErrAbortHandler
// is re-raised so net/http still drops the connection.
func Recoverer(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := wrapWriter(w, r)
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}
				handlePanic(ww, r, logg, rec, debug.Stack())
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

func handlePanic(ww chimw.WrapResponseWriter, r *http.Request, logg *logger.Logger, rec any, stack []byte) {
	ctx := r.Context()
	err := pkgerrors.Wrap(pkgerrors.CodeInternal, fmt.Errorf("panic: %v", rec), "panic")
	if logg != nil {
		ctx = logg.WithFields(ctx, map[string]any{
			"panic":       fmt.Sprint(rec),
			"panic_stack": string(stack),
			"method":      r.Method,
			"path":        r.URL.Path,
		})
	}
	if ww.Status() != 0 {
		if logg != nil {
			logg.Error(ctx, "panic after response started", err)
		}
		return
	}
	responses.WriteError(ctx, logg, ww, err)
}
