package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	UserRolesKey contextKey = "user_roles"
)

// Roles carried in access tokens.
const (
	RolePatient      = "patient"
	RolePsychologist = "psychologist"
	RoleAdmin        = "admin"
)

type Claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles"`
}

type JWTConfig struct {
	Issuer     string
	Audience   string
	SigningKey []byte
}

func (cfg JWTConfig) parserOptions() []jwt.ParserOption {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return opts
}

// ParseToken validates a bearer token and returns its claims.
func ParseToken(cfg JWTConfig, tokenStr string) (*Claims, error) {
	if len(cfg.SigningKey) == 0 {
		return nil, fmt.Errorf("no signing key configured")
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return cfg.SigningKey, nil
	}, cfg.parserOptions()...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// IssueToken signs an HS256 token for subject with the given roles.
func IssueToken(cfg JWTConfig, subject string, roles []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Roles: roles,
	}
	if cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{cfg.Audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cfg.SigningKey)
}

func bearerToken(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
	}
	return parts[1], nil
}

func withIdentity(c echo.Context, subject string, roles []string) {
	ctx := c.Request().Context()
	ctx = context.WithValue(ctx, UserIDKey, subject)
	ctx = context.WithValue(ctx, UserRolesKey, roles)
	c.SetRequest(c.Request().WithContext(ctx))
}

func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenStr, err := bearerToken(c)
			if err != nil {
				return err
			}
			claims, err := ParseToken(cfg, tokenStr)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			withIdentity(c, claims.Subject, claims.Roles)
			return next(c)
		}
	}
}

// DevAuthMiddleware is a permissive middleware for development that allows
// unauthenticated requests as an admin. A presented token is still validated
// when a signing key is configured.
func DevAuthMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	strict := JWTMiddleware(cfg)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		validated := strict(next)
		return func(c echo.Context) error {
			if c.Request().Header.Get("Authorization") != "" && len(cfg.SigningKey) > 0 {
				return validated(c)
			}
			withIdentity(c, "dev-user", []string{RoleAdmin})
			return next(c)
		}
	}
}

func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

// UserUUIDFromContext returns the token subject as a UUID, or uuid.Nil when
// the subject is absent or not a UUID.
func UserUUIDFromContext(ctx context.Context) uuid.UUID {
	id, err := uuid.Parse(UserIDFromContext(ctx))
	if err != nil {
		return uuid.Nil
	}
	return id
}

func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(UserRolesKey).([]string)
	return roles
}
