package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/angelmondragon/settlez-backend/api/responses"
	pkgerrors "github.com/angelmondragon/settlez-backend/pkg/errors"
	"github.com/angelmondragon/settlez-backend/pkg/logger"
)

// Recoverer turns a handler panic into a 500 envelope. http.ErrAbortHandler
// is re-raised so net/http can drop the connection quietly. When the handler
// had already started its response only the log line is written.
func Recoverer(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tw := &writeTracker{ResponseWriter: w}
			defer func() {
				rec := recover()
				switch {
				case rec == nil:
					return
				case rec == http.ErrAbortHandler:
					panic(rec)
				}

				err := pkgerrors.Newf(pkgerrors.CodeInternal, "recovered panic: %v", rec)
				ctx := logg.WithFields(r.Context(), map[string]any{
					"method":           r.Method,
					"path":             r.URL.Path,
					"stack":            string(debug.Stack()),
					"response_started": tw.started,
				})
				logg.Error(ctx, "panic.recovered", err)
				if !tw.started {
					responses.WriteError(ctx, nil, w, err)
				}
			}()
			next.ServeHTTP(tw, r)
		})
	}
}

type writeTracker struct {
	http.ResponseWriter
	started bool
}

func (t *writeTracker) WriteHeader(code int) {
	t.started = true
	t.ResponseWriter.WriteHeader(code)
}

func (t *writeTracker) Write(b []byte) (int, error) {
	t.started = true
	return t.ResponseWriter.Write(b)
}

func (t *writeTracker) Unwrap() http.ResponseWriter { return t.ResponseWriter }
