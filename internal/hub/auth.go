// internal/hub/auth.go
package hub

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	appErrors "github.com/unclebandit/courier-backend/internal/errors"
)

// TokenVerifier checks a handshake token against the tenant the client
// claims to belong to.
type TokenVerifier interface {
	Verify(token string, tenantID int) (userID string, err error)
}

// JWTVerifier accepts HS256 tokens carrying tenant_id and sub claims.
type JWTVerifier struct {
	Secret []byte
}

func (v *JWTVerifier) Verify(token string, tenantID int) (string, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.Secret, nil
	})
	if err != nil {
		return "", appErrors.NewConnectionAuth("invalid token: " + err.Error())
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", appErrors.NewConnectionAuth("unexpected claims type")
	}

	claimedTenant, ok := claims["tenant_id"].(float64)
	if !ok || int(claimedTenant) != tenantID {
		return "", appErrors.NewConnectionAuth("token does not belong to this tenant")
	}

	userID, _ := claims["sub"].(string)
	if userID == "" {
		return "", appErrors.NewConnectionAuth("token has no subject")
	}
	return userID, nil
}

// SignToken mints a token the verifier accepts. Used by the seeder and by
// tests; real session issuance lives in the auth service.
func SignToken(secret []byte, tenantID int, userID string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":       userID,
		"tenant_id": tenantID,
		"exp":       time.Now().Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

var _ TokenVerifier = (*JWTVerifier)(nil)
