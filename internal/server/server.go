// Package server exposes the HTTP surface: the batch trigger, insight
// listing, the HTML digest and client stat recomputation.
package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/digityx/insightd/internal/batch"
	"github.com/digityx/insightd/internal/config"
	"github.com/digityx/insightd/internal/database"
	"github.com/digityx/insightd/internal/logger"
)

// Server wires the echo router to the database and batch runner.
type Server struct {
	echo         *echo.Echo
	db           *database.DB
	runner       *batch.Runner
	jwtSecret    string
	serviceToken string
	port         int
}

// New creates the server and registers all routes.
func New(cfg *config.Config, db *database.DB, runner *batch.Runner) *Server {
	s := &Server{
		db:           db,
		runner:       runner,
		jwtSecret:    cfg.JWTSecret(),
		serviceToken: cfg.ServiceToken(),
		port:         cfg.Server.Port,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.Server.CORSOrigins,
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
	}))
	e.Use(metricsMiddleware)

	e.GET("/health", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api", s.authMiddleware)
	api.POST("/insights/generate", s.handleGenerate)
	api.GET("/insights", s.handleListInsights)
	api.GET("/insights/digest", s.handleDigest)
	api.POST("/clients/:id/stats", s.handleClientStats)

	s.echo = e
	return s
}

// Start blocks serving HTTP until the listener fails.
func (s *Server) Start() error {
	logger.GetLogger().Info("starting server", zap.Int("port", s.port))
	return s.echo.Start(fmt.Sprintf(":%d", s.port))
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

// handleGenerate triggers a detection run. A service identity runs every
// tenant; a user identity runs only its own.
func (s *Server) handleGenerate(c echo.Context) error {
	identity := identityFrom(c)
	ctx := c.Request().Context()

	var stats *batch.Stats
	var err error
	if identity.Service {
		stats, err = s.runner.Run(ctx)
	} else {
		stats, err = s.runner.RunForTenant(ctx, identity.UserID)
	}
	if err != nil {
		logger.GetLogger().Error("insight generation failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": fmt.Sprintf("Generated %d insights for %d users", stats.Total(), stats.UsersProcessed),
		"stats":   stats,
	})
}

// handleListInsights returns a tenant's insights, newest first. Service
// callers select the tenant with ?user_id=.
func (s *Server) handleListInsights(c echo.Context) error {
	userID, err := s.resolveTenant(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid limit"})
		}
		limit = parsed
	}

	insights, err := s.db.ListInsights(userID, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	if insights == nil {
		insights = []database.Insight{}
	}
	return c.JSON(http.StatusOK, echo.Map{"insights": insights})
}

// handleDigest renders the tenant's open insights as an HTML digest.
func (s *Server) handleDigest(c echo.Context) error {
	userID, err := s.resolveTenant(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	insights, err := s.db.ListInsights(userID, 0)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}

	html, err := renderDigest(insights)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	return c.HTML(http.StatusOK, html)
}

type clientStatsRequest struct {
	UpdateType string `json:"update_type"`
}

// handleClientStats recomputes a client's derived columns (total revenue
// and/or last contact date).
func (s *Server) handleClientStats(c echo.Context) error {
	identity := identityFrom(c)

	var req clientStatsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if req.UpdateType == "" {
		req.UpdateType = database.UpdateAll
	}

	client, err := s.db.GetClient(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	if client == nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "client not found"})
	}
	if !identity.Service && client.UserID != identity.UserID {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "client belongs to another tenant"})
	}

	if err := s.db.RecomputeClientStats(client.ID, req.UpdateType); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	updated, err := s.db.GetClient(client.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":              true,
		"ca_total_genere":      updated.CATotalGenere,
		"date_dernier_contact": updated.DateDernierContact,
	})
}

// resolveTenant picks the tenant a read operates on: user identities always
// read their own data, service identities must name one.
func (s *Server) resolveTenant(c echo.Context) (string, error) {
	identity := identityFrom(c)
	if !identity.Service {
		return identity.UserID, nil
	}
	userID := c.QueryParam("user_id")
	if userID == "" {
		return "", fmt.Errorf("user_id query parameter required for service calls")
	}
	return userID, nil
}
