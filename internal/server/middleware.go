package server

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/digityx/insightd/internal/logger"
	"github.com/digityx/insightd/internal/metrics"
)

// Identity is the authenticated caller. Service identities act across all
// tenants; user identities are confined to their own.
type Identity struct {
	Service bool
	UserID  string
}

const identityKey = "identity"

func identityFrom(c echo.Context) Identity {
	if id, ok := c.Get(identityKey).(Identity); ok {
		return id
	}
	return Identity{}
}

// userClaims is the JWT payload issued by the auth frontend. Only the
// subject matters here; it carries the tenant id.
type userClaims struct {
	jwt.RegisteredClaims
}

// authMiddleware authenticates the request from the Authorization header.
// The privileged service token is compared in constant time; anything else
// must be a valid HMAC-signed user JWT.
func (s *Server) authMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get("Authorization")
		if header == "" {
			metrics.RecordAuthError()
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authorization required"})
		}
		if !strings.HasPrefix(header, "Bearer ") {
			metrics.RecordAuthError()
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "bearer token required"})
		}
		token := strings.TrimSpace(header[len("Bearer "):])

		if s.serviceToken != "" &&
			subtle.ConstantTimeCompare([]byte(token), []byte(s.serviceToken)) == 1 {
			c.Set(identityKey, Identity{Service: true})
			return next(c)
		}

		claims, err := s.parseUserToken(token)
		if err != nil {
			metrics.RecordAuthError()
			logger.GetLogger().Warn("rejected bearer token", zap.Error(err))
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
		}

		c.Set(identityKey, Identity{UserID: claims.Subject})
		return next(c)
	}
}

func (s *Server) parseUserToken(token string) (*userClaims, error) {
	if s.jwtSecret == "" {
		return nil, fmt.Errorf("no JWT secret configured")
	}

	parsed, err := jwt.ParseWithClaims(token, &userClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*userClaims)
	if !ok || !parsed.Valid {
		return nil, jwt.ErrSignatureInvalid
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}
	return claims, nil
}

// metricsMiddleware records request counts and latencies per route.
func metricsMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)

		status := c.Response().Status
		if err != nil {
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
		}

		if metrics.HTTPRequestsTotal != nil {
			labels := []string{c.Request().Method, c.Path(), strconv.Itoa(status)}
			metrics.HTTPRequestsTotal.WithLabelValues(labels...).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
		}
		return err
	}
}
