// internal/api/middleware.go
package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"lead-funnel/internal/common/auth"
	"lead-funnel/internal/common/errors"
	"lead-funnel/internal/common/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type ctxKey int

const operatorKey ctxKey = iota

// Operator returns the authenticated operator, if any.
func Operator(ctx context.Context) *auth.TokenInfo {
	info, _ := ctx.Value(operatorKey).(*auth.TokenInfo)
	return info
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		metrics.HTTPRequestDuration.
			WithLabelValues(r.Method, route, strconv.Itoa(status/100)+"xx").
			Observe(elapsed.Seconds())

		s.logger.Debug("http request", map[string]interface{}{
			"method":     r.Method,
			"route":      route,
			"status":     status,
			"durationMs": elapsed.Milliseconds(),
			"requestId":  middleware.GetReqID(r.Context()),
		})
	})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				if p == http.ErrAbortHandler {
					panic(p)
				}
				s.publicError(w, r, errors.NewInternalError(fmt.Errorf("panic: %v", p)))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// operatorAuth requires a bearer token carrying the operator role. Without a
// token validator every request is let through.
func (s *Server) operatorAuth(next http.Handler) http.Handler {
	if s.deps.Tokens == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if header == "" || token == header {
			s.operatorError(w, r, errors.NewAuthenticationError("missing bearer token"))
			return
		}

		info, err := s.deps.Tokens.ValidateToken(r.Context(), token)
		if err != nil {
			s.operatorError(w, r, err)
			return
		}
		if !info.HasRole(s.deps.RequiredRole) {
			s.operatorError(w, r, errors.NewAuthenticationError("token lacks role "+s.deps.RequiredRole))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), operatorKey, info)))
	})
}
