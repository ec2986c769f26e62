package httpmw

import (
	"net/http"
	"runtime/debug"

	"github.com/retailcore/rebates-api/internal/log"
	"github.com/retailcore/rebates-api/internal/xerrors"
)

// Recover converts handler panics into 500 responses. The panic value and
// goroutine stack are logged through the request-scoped logger, and onPanic
// (if non-nil) is called once per recovered panic.
func Recover(onPanic func()) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					// client went away mid-write, let net/http handle it
					panic(rec)
				}

				if onPanic != nil {
					onPanic()
				}

				L := log.FromContext(r.Context())
				L.Error(r.Context(), xerrors.Newf("panic: %v", rec), "handler panic",
					"goroutine_stack", string(debug.Stack()),
				)

				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(`{"error":"internal server error"}`))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
