package httpapi

import (
	"bytes"
	"net/http"
	"time"

	"go.uber.org/zap"

	"qarzhy.org/internal/apperr"
	"qarzhy.org/internal/auth"
	"qarzhy.org/internal/idempotency"
	"qarzhy.org/internal/obs"
)

const idempotencyKeyHeader = "Idempotency-Key"

// withIdempotency wraps a mutating handler with key deduplication. The claim
// is atomic in the store; a replay returns the recorded status and body
// verbatim. A successful response is persisted under the key after the
// handler runs; a failed attempt gives the key back instead, so handlers
// stay unaware of the mechanism either way.
func (a *API) withIdempotency(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(idempotencyKeyHeader)
		if err := idempotency.ValidateKey(key); err != nil {
			writeErr(w, r, err)
			return
		}
		principal, ok := auth.PrincipalFromContext(r.Context())
		if !ok {
			writeErr(w, r, apperr.Unauthorized())
			return
		}
		tenantID, _ := auth.TenantFromContext(r.Context())

		outcome, rec, err := idempotency.Resolve(
			r.Context(), a.idem, key, tenantID, principal.UserID, time.Now().UTC(), a.idemTTL)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		if outcome == idempotency.OutcomeReplay {
			obs.IncIdempotencyReplay()
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(rec.ResponseStatus)
			_, _ = w.Write(rec.ResponseBody)
			return
		}

		rw := &recordingWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rw, r)

		// Only a successful response is worth replaying. A failed attempt had
		// no effect, so the claim is released and a corrected retry with the
		// same key runs the handler again.
		if rw.code >= 200 && rw.code < 300 {
			if err := a.idem.SaveResponse(r.Context(), key, rw.code, rw.body.Bytes()); err != nil {
				// The response already went to the client; a failed save only
				// costs a 409 on the next replay attempt.
				obs.Logger().Error("idempotency response save failed",
					zap.String("key", key),
					zap.String("request_id", RequestIDFromContext(r.Context())),
					zap.Error(err),
				)
			}
			return
		}
		if err := a.idem.Release(r.Context(), key); err != nil {
			obs.Logger().Error("idempotency claim release failed",
				zap.String("key", key),
				zap.String("request_id", RequestIDFromContext(r.Context())),
				zap.Error(err),
			)
		}
	})
}

// recordingWriter tees the response so it can be persisted for replay.
type recordingWriter struct {
	http.ResponseWriter
	code int
	body bytes.Buffer
}

func (w *recordingWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	w.body.Write(p)
	return w.ResponseWriter.Write(p)
}
