package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/quotehub-backend/pkg/config"
)

const clockSkew = 30 * time.Second

var (
	ErrSecretRequired = errors.New("jwt secret is required")
	ErrMissingUserID  = errors.New("token missing user_id claim")
	ErrUnknownRole    = errors.New("token carries an unknown role")

	signingMethod = jwt.SigningMethodHS256
)

// KnownRole reports whether role is empty or one the API authorizes against.
func KnownRole(role string) bool {
	switch role {
	case "", RoleDistributor, RoleSupplier:
		return true
	}
	return false
}

// MintAccessToken signs an HS256 access token valid for cfg.ExpirationMinutes
// from now. Production sessions come from the identity service; tooling and
// tests mint their own.
func MintAccessToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	switch {
	case cfg.Secret == "":
		return "", ErrSecretRequired
	case cfg.Issuer == "":
		return "", errors.New("jwt issuer is required")
	case cfg.ExpirationMinutes <= 0:
		return "", errors.New("jwt expiration minutes must be positive")
	case payload.UserID == uuid.Nil:
		return "", errors.New("user id is required")
	}
	role := strings.TrimSpace(payload.Role)
	if !KnownRole(role) {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	jti := strings.TrimSpace(payload.JTI)
	if jti == "" {
		jti = uuid.NewString()
	}

	claims := AccessTokenClaims{
		UserID: payload.UserID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    cfg.Issuer,
			Subject:   payload.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(cfg.ExpirationMinutes) * time.Minute)),
		},
	}
	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}

// ParseAccessToken verifies signature, issuer and expiry and returns the
// typed claims. Tokens without a user id or with an unknown role are rejected.
func ParseAccessToken(cfg config.JWTConfig, raw string) (*AccessTokenClaims, error) {
	if cfg.Secret == "" {
		return nil, ErrSecretRequired
	}

	claims := &AccessTokenClaims{}
	keyFunc := func(*jwt.Token) (any, error) { return []byte(cfg.Secret), nil }
	if _, err := jwt.ParseWithClaims(raw, claims, keyFunc,
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithLeeway(clockSkew),
	); err != nil {
		return nil, err
	}
	if claims.UserID == uuid.Nil {
		return nil, ErrMissingUserID
	}
	if !KnownRole(claims.Role) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, claims.Role)
	}
	return claims, nil
}
