package gotrue

import (
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

var accessTokenAlgs = []jose.SignatureAlgorithm{jose.HS256, jose.RS256, jose.ES256}

type accessClaims struct {
	Subject   string
	Email     string
	ExpiresAt time.Time
}

// decodeClaims reads the claims of an access token without verifying its
// signature. Tokens come straight from the backend over TLS and are only used
// to fill gaps in its response.
func decodeClaims(token string) (accessClaims, error) {
	parsed, err := jwt.ParseSigned(token, accessTokenAlgs)
	if err != nil {
		return accessClaims{}, fmt.Errorf("parsing access token: %w", err)
	}

	var (
		std    jwt.Claims
		custom struct {
			Email string `json:"email"`
		}
	)
	if err := parsed.UnsafeClaimsWithoutVerification(&std, &custom); err != nil {
		return accessClaims{}, fmt.Errorf("reading access token claims: %w", err)
	}

	claims := accessClaims{Subject: std.Subject, Email: custom.Email}
	if std.Expiry != nil {
		claims.ExpiresAt = std.Expiry.Time()
	}

	return claims, nil
}
