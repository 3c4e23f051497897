package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const userIDKey contextKey = "authUserID"

// GetUserID retrieves the authenticated subject from context.
func GetUserID(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if value, ok := ctx.Value(userIDKey).(string); ok && value != "" {
		return value, true
	}
	return "", false
}

// Verifier validates HS256/384/512 bearer tokens.
type Verifier struct {
	secret   []byte
	audience string
}

// NewVerifier returns a verifier. An empty audience accepts any audience.
func NewVerifier(secret, audience string) *Verifier {
	return &Verifier{
		secret:   []byte(strings.TrimSpace(secret)),
		audience: strings.TrimSpace(audience),
	}
}

// Enabled reports whether a secret is configured.
func (v *Verifier) Enabled() bool {
	return len(v.secret) > 0
}

// Subject validates tokenString and returns its subject claim.
func (v *Verifier) Subject(tokenString string) (string, error) {
	if !v.Enabled() {
		return "", errors.New("missing JWT secret")
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return "", errors.New("invalid token")
	}

	if v.audience != "" && !containsAudience(claims.Audience, v.audience) {
		return "", errors.New("invalid audience")
	}
	if claims.Subject == "" {
		return "", errors.New("missing subject")
	}
	return claims.Subject, nil
}

// JWTMiddleware validates bearer tokens and injects user identity. Requests
// without a valid token are rejected with 401.
func JWTMiddleware(secret, audience string) gin.HandlerFunc {
	verifier := NewVerifier(secret, audience)

	return func(c *gin.Context) {
		tokenString, err := extractBearerToken(c.Request.Header.Get("Authorization"))
		if err != nil {
			unauthorized(c, err.Error())
			return
		}

		subject, err := verifier.Subject(tokenString)
		if err != nil {
			unauthorized(c, err.Error())
			return
		}

		setSubject(c, subject)
		c.Next()
	}
}

// OptionalJWTMiddleware injects the user identity when a bearer token is
// present. Anonymous requests pass through; a present but invalid token is
// still rejected.
func OptionalJWTMiddleware(secret, audience string) gin.HandlerFunc {
	verifier := NewVerifier(secret, audience)

	return func(c *gin.Context) {
		header := c.Request.Header.Get("Authorization")
		if header == "" || !verifier.Enabled() {
			c.Next()
			return
		}

		tokenString, err := extractBearerToken(header)
		if err != nil {
			unauthorized(c, err.Error())
			return
		}
		subject, err := verifier.Subject(tokenString)
		if err != nil {
			unauthorized(c, err.Error())
			return
		}

		setSubject(c, subject)
		c.Next()
	}
}

func setSubject(c *gin.Context, subject string) {
	ctx := context.WithValue(c.Request.Context(), userIDKey, subject)
	c.Request = c.Request.WithContext(ctx)
	c.Set(string(userIDKey), subject)
}

func extractBearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("authorization header required")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("token missing")
	}
	return token, nil
}

func unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": message})
}

func containsAudience(claims jwt.ClaimStrings, expected string) bool {
	for _, aud := range claims {
		if aud == expected {
			return true
		}
	}
	return false
}
