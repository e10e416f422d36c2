package server

import (
	"context"
	"net/http"
	"strings"

	"vizdirector/core/auth"
	"vizdirector/logger"
)

type contextKey string

const operatorKey contextKey = "operator"

// AuthMiddleware checks the bearer token when a secret is configured. The
// websocket route also accepts the token as a query parameter since browsers
// cannot set headers on the upgrade request.
func (s *Server) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.secret == "" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.URL.Query().Get("token")
		if authHeader := r.Header.Get("Authorization"); authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
				return
			}
			token = parts[1]
		}
		if token == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		claims, err := auth.ParseToken(s.secret, token)
		if err != nil {
			logger.Warn("rejected control token", logger.String("path", r.URL.Path), logger.ErrorField(err))
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), operatorKey, claims.Operator)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// OperatorFromContext returns the operator of an authenticated request.
func OperatorFromContext(ctx context.Context) string {
	op, _ := ctx.Value(operatorKey).(string)
	return op
}
