package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"maidlink/internal/auth"
	"maidlink/internal/metrics"
	"maidlink/internal/service"

	"github.com/rs/zerolog"
)

type actorKey struct{}

func withActor(ctx context.Context, a service.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

func actorFrom(ctx context.Context) service.Actor {
	a, _ := ctx.Value(actorKey{}).(service.Actor)
	return a
}

// requireUser authenticates the bearer token and admits only the listed roles.
func (s *HTTPServer) requireUser(next http.HandlerFunc, roles ...string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := s.users.Parse(strings.TrimSpace(raw))
		if err != nil {
			if !errors.Is(err, auth.ErrInvalidToken) {
				s.log.Error().Err(err).Msg("token parse failed")
			}
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		allowed := len(roles) == 0
		for _, role := range roles {
			if claims.Role == role {
				allowed = true
				break
			}
		}
		if !allowed {
			writeError(w, http.StatusForbidden, "role not allowed")
			return
		}

		if !s.limiter.Allow("user:" + claims.Subject) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, r.WithContext(withActor(r.Context(), service.Actor{ID: claims.Subject, Role: claims.Role})))
	})
}

// requireKey admits operator clients holding permission.
func (s *HTTPServer) requireKey(next http.HandlerFunc, permission string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(s.keys.header)
		client, err := s.keys.authorize(key, permission)
		if err != nil {
			code := http.StatusUnauthorized
			if errors.Is(err, errPermissionDenied) {
				code = http.StatusForbidden
			}
			writeError(w, code, err.Error())
			return
		}
		if !s.limiter.Allow("key:" + key) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		s.log.Debug().Str("client", client.Name).Str("path", r.URL.Path).Msg("operator request")
		next(w, r)
	})
}

// limitByIP throttles unauthenticated endpoints.
func (s *HTTPServer) limitByIP(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow("ip:" + remoteHost(r)) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, r)
	})
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}

func loggingMiddleware(logger zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		endpoint := r.Pattern
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.IncHTTP(endpoint, strconv.Itoa(recorder.status))
		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
