package admin

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"settlement/internal/handler/http/response"
)

const adminRole = "admin"

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// RequireAdmin accepts HS256 bearer tokens signed with secret whose role claim
// is "admin". An empty secret rejects every request.
func RequireAdmin(secret string) func(http.Handler) http.Handler {
	key := []byte(secret)
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(key) == 0 {
				response.Error(w, http.StatusUnauthorized, response.CodeUnauthorized, "admin access is not configured", nil)
				return
			}

			parts := strings.Fields(r.Header.Get("Authorization"))
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				response.Error(w, http.StatusUnauthorized, response.CodeUnauthorized, "missing bearer token", nil)
				return
			}

			var claims Claims
			token, err := parser.ParseWithClaims(parts[1], &claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
				}
				return key, nil
			})
			if err != nil || !token.Valid {
				response.Error(w, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token", nil)
				return
			}
			if claims.Role != adminRole {
				response.Error(w, http.StatusForbidden, response.CodeUnauthorized, "admin role required", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
