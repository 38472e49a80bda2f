package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/owlivion-tech/owlivion-mail-sync/internal/common"
	"github.com/owlivion-tech/owlivion-mail-sync/internal/logging"
	"github.com/owlivion-tech/owlivion-mail-sync/internal/server/auth"
)

// Identity is the authenticated (user, device) pair extracted from the
// access token.
type Identity struct {
	UserID   string
	DeviceID string
}

type ctxKey int

const identityKey ctxKey = iota

// IdentityFromContext returns the request identity set by the auth middleware.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// withIdentity is used by tests to inject an identity without a token.
func withIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// authMiddleware validates the bearer token and stores the caller identity
// in the request context.
func authMiddleware(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get(common.AccessTokenHeaderName)
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				writeError(w, http.StatusUnauthorized, common.ErrUnauthorized.Error())
				return
			}

			userID, deviceID, err := auth.GetIdentityFromToken(token, secret)
			if err != nil {
				writeError(w, http.StatusUnauthorized, common.ErrInvalidToken.Error())
				return
			}

			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), Identity{UserID: userID, DeviceID: deviceID})))
		})
	}
}

// requestLogger logs one line per request with method, path, status and
// duration.
func requestLogger(logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			logger.Info(r.Context(), "request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration", time.Since(start).String(),
			)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
