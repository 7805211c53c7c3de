package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// controlContextKey is the context key type for control-session values.
type controlContextKey string

const controlSubjectKey controlContextKey = "control_subject"

// jwtTokenTTL is the lifetime of a control API token.
const jwtTokenTTL = 24 * time.Hour

// ControlClaims holds the JWT claims for control API authentication.
type ControlClaims struct {
	jwt.RegisteredClaims
}

// GenerateControlToken creates a signed JWT for a control API login.
// subject is the local account ID the daemon runs as.
func GenerateControlToken(secret []byte, subject string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(jwtTokenTTL)

	claims := ControlClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    "wavelink",
			Subject:   subject,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, expiresAt, nil
}

// RequireControlAuth returns middleware that validates JWT bearer tokens on
// control API endpoints. On success it stores the token subject in the
// request context.
func RequireControlAuth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeEnvelopeError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				writeEnvelopeError(w, http.StatusUnauthorized, "invalid authorization header")
				return
			}

			tokenString := parts[1]

			claims := &ControlClaims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return secret, nil
			})
			if err != nil || !token.Valid {
				slog.Debug("control auth: invalid jwt", "error", err)
				writeEnvelopeError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			if claims.Subject == "" {
				writeEnvelopeError(w, http.StatusUnauthorized, "invalid token claims")
				return
			}

			ctx := context.WithValue(r.Context(), controlSubjectKey, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ControlSubjectFromContext retrieves the authenticated subject from the
// request context. Returns "" if not set.
func ControlSubjectFromContext(ctx context.Context) string {
	subject, _ := ctx.Value(controlSubjectKey).(string)
	return subject
}
