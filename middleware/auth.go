package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"autogramhandoff/pkg/logger"
	"autogramhandoff/store"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const SessionIDKey contextKey = "sessionID"

// CallbackAuth accepts only requests carrying a token the AGP signed with the shared API key.
// The token subject is the signing session it was issued for.
func CallbackAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if tokenString == "" {
				tokenString = r.URL.Query().Get("token")
			}

			if tokenString == "" {
				http.Error(w, "Unauthorized: No token provided", http.StatusUnauthorized)
				return
			}

			claims := &jwt.RegisteredClaims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				if secret == "" {
					return nil, fmt.Errorf("server is not configured to validate callback tokens")
				}
				return []byte(secret), nil
			},
				jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
				jwt.WithIssuer(store.CallbackIssuer),
				jwt.WithExpirationRequired(),
			)

			if err != nil || !token.Valid {
				logger.Sugar.Warnf("Invalid callback token: %v", err)
				http.Error(w, "Unauthorized: Invalid or expired token", http.StatusUnauthorized)
				return
			}

			if claims.Subject == "" {
				http.Error(w, "Unauthorized: Session (sub) claim is missing", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), SessionIDKey, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionID returns the session a callback token was issued for.
func SessionID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(SessionIDKey).(string)
	return id, ok
}
