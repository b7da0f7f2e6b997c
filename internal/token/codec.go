package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"go-identity-service/internal/clock"
	"go-identity-service/internal/model"
)

type Config struct {
	Secret string
	Issuer string
	// Leeway widens expiry comparisons to tolerate clock skew between the
	// issuer and the validator. Zero means no grace window.
	Leeway time.Duration
}

// Codec issues and validates signed identity claims. Validation is fully
// self-contained: a token, the secret and the clock decide the outcome, no
// store is consulted.
type Codec struct {
	secret []byte
	issuer string
	leeway time.Duration
	clock  clock.Clock
}

func NewCodec(cfg Config, clk clock.Clock) (*Codec, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, fmt.Errorf("token secret is required")
	}
	if clk == nil {
		clk = clock.System{}
	}

	return &Codec{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		leeway: cfg.Leeway,
		clock:  clk,
	}, nil
}

func (c *Codec) Issue(subject string, role model.Role, ttl time.Duration) (string, error) {
	now := c.clock.Now()
	claims := jwt.MapClaims{
		"sub":  subject,
		"role": string(role),
		"iss":  c.issuer,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (c *Codec) Validate(tokenString string) (*model.Claims, error) {
	parsed, err := jwt.Parse(tokenString,
		func(t *jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.clock.Now),
		jwt.WithLeeway(c.leeway),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, model.ErrTokenMalformed
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, model.ErrTokenSignatureInvalid
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, model.ErrTokenExpired
		default:
			return nil, model.ErrTokenMalformed
		}
	}

	claimsMap, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, model.ErrTokenMalformed
	}

	subject, _ := claimsMap["sub"].(string)
	if subject == "" {
		return nil, model.ErrTokenMalformed
	}

	rawRole, _ := claimsMap["role"].(string)
	role, err := model.ParseRole(rawRole)
	if err != nil || rawRole == "" {
		return nil, model.ErrTokenMalformed
	}

	claims := &model.Claims{Subject: subject, Role: role}
	claims.Issuer, _ = claimsMap["iss"].(string)
	if iat, ok := claimsMap["iat"].(float64); ok {
		claims.IssuedAt = time.Unix(int64(iat), 0).UTC()
	}
	if exp, ok := claimsMap["exp"].(float64); ok {
		claims.ExpiresAt = time.Unix(int64(exp), 0).UTC()
	}

	return claims, nil
}
