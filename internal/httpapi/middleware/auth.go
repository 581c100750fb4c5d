package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/nutrilog/nutrilog/internal/common"
)

const UserIDKey = "user_id"

// devBypassUserID is the fixed identity used when the local-development
// auth bypass is enabled.
const devBypassUserID uint64 = 1

// AuthRequired resolves the caller from an HS256 bearer token whose
// subject is the numeric user id. With devBypass set, every request runs
// as the fixed local user — development only.
func AuthRequired(secret string, devBypass bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if devBypass {
			c.Set(UserIDKey, devBypassUserID)
			c.Next()
			return
		}

		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
			c.Abort()
			return
		}
		raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))

		claims := &jwt.RegisteredClaims{}
		tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			if t.Method != jwt.SigningMethodHS256 {
				return nil, jwt.ErrTokenSignatureInvalid
			}
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || tok == nil || !tok.Valid {
			common.Fail(c, http.StatusUnauthorized, 40102, "invalid token")
			c.Abort()
			return
		}

		uid, err := strconv.ParseUint(claims.Subject, 10, 64)
		if err != nil || uid == 0 {
			common.Fail(c, http.StatusUnauthorized, 40103, "invalid subject")
			c.Abort()
			return
		}

		c.Set(UserIDKey, uid)
		c.Next()
	}
}
