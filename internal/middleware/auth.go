package middleware

import (
	"crypto/subtle"
	"fmt"
	"log"
	"strings"
	"time"

	"findixi/internal/common"
	"findixi/internal/config"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
)

const adminSecretHeader = "X-Admin-Secret"

// OptionalUser resolves the caller's auth user id from a bearer token when one
// is present and valid. Missing or invalid tokens continue anonymously.
// With neither a JWT secret nor a JWKS URL configured it is a no-op.
func OptionalUser(cfg config.AuthConfig) (echo.MiddlewareFunc, error) {
	keyFunc, err := newKeyFunc(cfg)
	if err != nil {
		return nil, err
	}
	if keyFunc == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }, nil
	}

	return echojwt.WithConfig(echojwt.Config{
		KeyFunc:                keyFunc,
		ContinueOnIgnoredError: true,
		SuccessHandler: func(c echo.Context) {
			token, ok := c.Get("user").(*jwt.Token)
			if !ok {
				return
			}
			if userID, ok := subjectUserID(token); ok {
				c.SetRequest(c.Request().WithContext(common.WithUserID(c.Request().Context(), userID)))
			}
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return nil
		},
	}), nil
}

func newKeyFunc(cfg config.AuthConfig) (jwt.Keyfunc, error) {
	if cfg.JWKSURL != "" {
		jwks, err := keyfunc.Get(cfg.JWKSURL, keyfunc.Options{
			RefreshInterval:   time.Hour,
			RefreshRateLimit:  5 * time.Minute,
			RefreshUnknownKID: true,
			RefreshErrorHandler: func(err error) {
				log.Printf("WARN: [auth] JWKS refresh failed: %v", err)
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to load JWKS: %w", err)
		}
		return jwks.Keyfunc, nil
	}
	if cfg.JWTSecret != "" {
		secret := []byte(cfg.JWTSecret)
		return func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
			}
			return secret, nil
		}, nil
	}
	return nil, nil
}

func subjectUserID(token *jwt.Token) (uuid.UUID, bool) {
	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, false
	}
	return userID, true
}

// AdminSecret guards maintenance endpoints. The secret is read from the
// X-Admin-Secret header or a bearer token. An empty secret leaves routes open.
func AdminSecret(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if secret == "" {
				return next(c)
			}
			provided := c.Request().Header.Get(adminSecretHeader)
			if provided == "" {
				provided = strings.TrimPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer ")
			}
			if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
				return common.SendError(c, common.NewUnauthorizedError("unauthorized"))
			}
			return next(c)
		}
	}
}
