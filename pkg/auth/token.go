package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/fulfillment-backend/pkg/config"
)

// clockSkew tolerates small clock drift between the issuer and this API.
const clockSkew = 30 * time.Second

var signingMethod = jwt.SigningMethodHS256

var (
	ErrInvalidRole     = errors.New("auth: token role is not recognised")
	ErrMissingUser     = errors.New("auth: token carries no user id")
	ErrSubjectMismatch = errors.New("auth: token subject does not match user id")
)

func checkConfig(cfg config.JWTConfig, minting bool) error {
	switch {
	case cfg.Secret == "":
		return errors.New("jwt secret is required")
	case minting && cfg.Issuer == "":
		return errors.New("jwt issuer is required")
	case minting && cfg.ExpirationMinutes <= 0:
		return errors.New("jwt expiration minutes must be positive")
	}
	return nil
}

// MintAccessToken signs an HS256 token for payload that expires after the
// configured number of minutes. Tokens are normally issued by the identity
// service; this is used by tooling and tests.
func MintAccessToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	if err := checkConfig(cfg, true); err != nil {
		return "", err
	}
	if !payload.Role.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, payload.Role)
	}
	jti := strings.TrimSpace(payload.JTI)
	if jti == "" {
		jti = uuid.NewString()
	}

	ttl := time.Duration(cfg.ExpirationMinutes) * time.Minute
	claims := AccessTokenClaims{
		UserID: payload.UserID,
		Role:   payload.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    cfg.Issuer,
			Subject:   payload.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}

// ParseAccessToken verifies signature, issuer and expiry, then checks the
// custom claims. jwt sentinel errors (jwt.ErrTokenExpired, ...) stay
// reachable through errors.Is.
func ParseAccessToken(cfg config.JWTConfig, raw string) (*AccessTokenClaims, error) {
	if err := checkConfig(cfg, false); err != nil {
		return nil, err
	}

	claims := &AccessTokenClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
	)
	if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	}); err != nil {
		return nil, err
	}

	switch {
	case !claims.Role.IsValid():
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, claims.Role)
	case claims.UserID == uuid.Nil:
		return nil, ErrMissingUser
	case claims.Subject != "" && claims.Subject != claims.UserID.String():
		return nil, ErrSubjectMismatch
	}
	return claims, nil
}
