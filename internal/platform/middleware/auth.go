package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type applicantIDKey struct{}

// FlowClaims are the claims carried by a flow access token. The subject is an
// opaque applicant UUID issued when the verification attempt starts; no PII is
// ever embedded in the token.
type FlowClaims struct {
	jwt.RegisteredClaims
}

// BearerAuth validates the Authorization bearer token on flow endpoints and
// places the applicant ID in the request context.
func BearerAuth(signingKey []byte, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				writeAuthError(w, "missing bearer token")
				return
			}

			raw := strings.TrimPrefix(header, "Bearer ")
			claims := &FlowClaims{}
			token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
				}
				return signingKey, nil
			})
			if err != nil || !token.Valid {
				logger.WarnContext(r.Context(), "unauthorized flow request",
					"error", err,
					"request_id", GetRequestID(r.Context()),
				)
				writeAuthError(w, "invalid token")
				return
			}

			if claims.Subject == "" {
				writeAuthError(w, "token missing subject")
				return
			}

			ctx := context.WithValue(r.Context(), applicantIDKey{}, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ApplicantID retrieves the authenticated applicant ID from the context.
func ApplicantID(ctx context.Context) string {
	if id, ok := ctx.Value(applicantIDKey{}).(string); ok {
		return id
	}
	return ""
}

func writeAuthError(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"unauthorized","error_description":"%s"}`, description))
}
