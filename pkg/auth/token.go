package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/voucherz-backend/pkg/config"
)

var (
	jwtSigningMethod = jwt.SigningMethodHS256

	errNoSecret = errors.New("jwt secret is required")
)

// clockSkew tolerates small drift between the identity provider and the API.
const clockSkew = 30 * time.Second

// Verifier checks access tokens against one JWT configuration.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewVerifier builds a Verifier. Tokens must be HS256, carry the configured
// issuer and an expiry.
func NewVerifier(cfg config.JWTConfig) *Verifier {
	return &Verifier{
		secret: []byte(cfg.Secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwtSigningMethod.Alg()}),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(clockSkew),
		),
	}
}

// Parse verifies tokenString and returns its typed claims. Expired tokens
// fail with an error matching jwt.ErrTokenExpired.
func (v *Verifier) Parse(tokenString string) (*AccessTokenClaims, error) {
	if len(v.secret) == 0 {
		return nil, errNoSecret
	}
	claims := &AccessTokenClaims{}
	if _, err := v.parser.ParseWithClaims(tokenString, claims, v.key); err != nil {
		return nil, err
	}
	return claims, nil
}

func (v *Verifier) key(token *jwt.Token) (any, error) {
	if token.Method != jwtSigningMethod {
		return nil, fmt.Errorf("unexpected signing method %s", token.Header["alg"])
	}
	return v.secret, nil
}

// ParseAccessToken is a one-shot Verifier.Parse.
func ParseAccessToken(cfg config.JWTConfig, tokenString string) (*AccessTokenClaims, error) {
	return NewVerifier(cfg).Parse(tokenString)
}

// MintAccessToken signs payload with the configured secret and TTL. The API
// only verifies tokens; minting exists for tooling and tests.
func MintAccessToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	switch {
	case cfg.Secret == "":
		return "", errNoSecret
	case cfg.Issuer == "":
		return "", errors.New("jwt issuer is required")
	case cfg.ExpirationMinutes <= 0:
		return "", errors.New("jwt expiration minutes must be positive")
	}

	jti := strings.TrimSpace(payload.JTI)
	if jti == "" {
		jti = uuid.NewString()
	}
	claims := AccessTokenClaims{
		SubjectID: payload.SubjectID,
		Role:      payload.Role,
		PartnerID: payload.PartnerID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   payload.SubjectID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(cfg.ExpirationMinutes) * time.Minute)),
			ID:        jti,
		},
	}
	if err := claims.Validate(); err != nil {
		return "", err
	}

	signed, err := jwt.NewWithClaims(jwtSigningMethod, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}
