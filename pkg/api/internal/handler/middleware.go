package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/UnAfraid/wg-gateway/pkg/auth"
	"github.com/UnAfraid/wg-gateway/pkg/user"
)

type contextKey struct {
	name string
}

var userCtxKey = &contextKey{"user"}

func UserFromContext(ctx context.Context) *user.User {
	u, _ := ctx.Value(userCtxKey).(*user.User)
	return u
}

// NoCache marks responses as not storable. Token and peer responses carry
// secrets.
func NoCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store, no-cache")
		w.Header().Set("Pragma", "no-cache")
		next.ServeHTTP(w, r)
	})
}

// RequireAuthentication rejects requests without a valid bearer access token
// and stores the authenticated user in the request context.
func RequireAuthentication(sessionService auth.SessionService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authorizationHeader := r.Header.Get("Authorization")
			if len(authorizationHeader) <= 7 || strings.ToUpper(authorizationHeader[0:6]) != "BEARER" {
				w.Header().Set("WWW-Authenticate", "Bearer")
				writeMessage(w, http.StatusUnauthorized, ErrAuthenticationRequired.Error(), "")
				return
			}

			u, err := sessionService.Authorize(r.Context(), authorizationHeader[7:])
			if err != nil {
				logrus.
					WithError(err).
					WithField("path", r.URL.Path).
					Debug("access token rejected")
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				writeMessage(w, http.StatusUnauthorized, ErrAuthenticationRequired.Error(), "")
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userCtxKey, u)))
		})
	}
}

func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startedAt := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		entry := logrus.
			WithField("method", r.Method).
			WithField("path", r.URL.Path).
			WithField("status", ww.Status()).
			WithField("bytes", ww.BytesWritten()).
			WithField("remoteAddr", r.RemoteAddr).
			WithField("duration", time.Since(startedAt).String())
		if requestId := middleware.GetReqID(r.Context()); requestId != "" {
			entry = entry.WithField("requestId", requestId)
		}

		switch {
		case ww.Status() >= http.StatusInternalServerError:
			entry.Error("request failed")
		case ww.Status() >= http.StatusBadRequest:
			entry.Warn("request rejected")
		default:
			entry.Debug("request served")
		}
	})
}
