package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/haasonsaas/steward/pkg/models"
)

// Verifier validates bearer credentials issued by the identity service.
// It only verifies; token issuance lives with that service.
type Verifier struct {
	secret   []byte
	issuer   string
	audience string
	leeway   time.Duration
}

// NewVerifier builds a verifier with the shared HMAC secret. Issuer and
// audience are enforced only when non-empty.
func NewVerifier(secret, issuer, audience string) *Verifier {
	return &Verifier{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		leeway:   30 * time.Second,
	}
}

// Claims is the subset of registered claims the identity service signs.
type Claims struct {
	jwt.RegisteredClaims
}

// Verify parses and validates a bearer token and returns the identity it
// carries. Expired tokens map to KindAuthExpired; everything else that
// fails maps to KindAuthInvalid.
func (v *Verifier) Verify(token string) (*Identity, error) {
	if v == nil || len(v.secret) == 0 {
		return nil, models.NewDomainError(models.KindInternalError, "").
			WithCause(errors.New("verifier not configured"))
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, models.NewDomainError(models.KindAuthInvalid, "")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, models.NewDomainError(models.KindAuthExpired, "").WithCause(err)
		}
		return nil, models.NewDomainError(models.KindAuthInvalid, "").WithCause(err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, models.NewDomainError(models.KindAuthInvalid, "")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, models.NewDomainError(models.KindAuthInvalid, "")
	}

	return &Identity{UserID: claims.Subject, Token: token}, nil
}

// BearerToken extracts the credential from an Authorization header value.
func BearerToken(header string) (string, bool) {
	if len(header) < len("bearer ") {
		return "", false
	}
	if !strings.EqualFold(header[:len("bearer ")], "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(header[len("bearer "):])
	return token, token != ""
}
