package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/solarpull/solarpull/pkg/log"
)

// authMiddleware admits requests carrying a bearer ID token whose email is in
// collectEmails.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if s.bypassAuth {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			log.Ctx(ctx).WarnContext(ctx, "missing auth header")
			writeJSONError(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			log.Ctx(ctx).WarnContext(ctx, "invalid auth header")
			writeJSONError(w, "invalid auth header", http.StatusBadRequest)
			return
		}

		email, err := s.authenticateToken(ctx, strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "token validation failed", slog.Any("error", err))
			writeJSONError(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if !s.isCollectEmail(email) {
			log.Ctx(ctx).WarnContext(ctx, "email not allowed to collect", slog.String("email", email))
			writeJSONError(w, "forbidden", http.StatusForbidden)
			return
		}

		ctx = log.With(ctx, log.Ctx(ctx).With(slog.String("authEmail", email)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) isCollectEmail(email string) bool {
	if email == "" {
		return false
	}
	for _, allowed := range s.collectEmails {
		if subtle.ConstantTimeCompare([]byte(email), []byte(allowed)) == 1 {
			return true
		}
	}
	return false
}

func (s *Server) authenticateToken(ctx context.Context, token string) (string, error) {
	if s.oidcVerifier == nil {
		return "", errors.New("no audience configured")
	}
	idToken, err := s.oidcVerifier(ctx, token)
	if err != nil {
		return "", err
	}
	var claims struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return "", err
	}
	if !claims.EmailVerified {
		return "", errors.New("email not verified")
	}
	return claims.Email, nil
}
