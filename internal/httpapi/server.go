package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"horse.fit/mkquotes/internal/db"
	"horse.fit/mkquotes/internal/dedup"
	"horse.fit/mkquotes/internal/globaltime"
	"horse.fit/mkquotes/internal/ratelimit"
)

const (
	defaultPageSize = dedup.DefaultPageSize
	maxPageSize     = 200
	maxBodyBytes    = "64K"
)

// CommentService is the dedup core as seen by the HTTP layer.
type CommentService interface {
	CheckForDuplicates(ctx context.Context, subjectID int64, content, sourceURL string) (dedup.CheckResult, error)
	CreateComment(ctx context.Context, input dedup.NewComment) (*db.Comment, error)
	GetPrimaryComments(ctx context.Context, subjectID int64, limit int) ([]dedup.PrimaryComment, error)
	ListPrimaryComments(ctx context.Context, filter dedup.ListFilter) (dedup.PrimaryPage, error)
	SetVerified(ctx context.Context, commentID int64, verified bool) (*db.Comment, error)
	DeleteComment(ctx context.Context, commentID int64) (db.DeleteCommentResult, error)
}

// CatalogStore serves subjects and stats straight from the database.
type CatalogStore interface {
	ListSubjects(ctx context.Context) ([]db.SubjectSummary, error)
	CreateSubject(ctx context.Context, displayName string, faction *string) (*db.Subject, error)
	QueryDedupStats(ctx context.Context, since time.Time) (*db.DedupStats, error)
	QueryHealthSnapshot(ctx context.Context) (*db.HealthSnapshot, error)
}

type Options struct {
	Host               string
	Port               int
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	ShutdownTimeout    time.Duration
	CORSAllowedOrigins []string
}

type Server struct {
	comments CommentService
	catalog  CatalogStore
	limiter  ratelimit.Limiter
	logger   zerolog.Logger
	opts     Options
}

func NewServer(comments CommentService, catalog CatalogStore, limiter ratelimit.Limiter, logger zerolog.Logger, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := opts.Port
	if port <= 0 {
		port = 8090
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	origins := opts.CORSAllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}

	return &Server{
		comments: comments,
		catalog:  catalog,
		limiter:  limiter,
		logger:   logger,
		opts: Options{
			Host:               host,
			Port:               port,
			ReadTimeout:        readTimeout,
			WriteTimeout:       writeTimeout,
			ShutdownTimeout:    shutdownTimeout,
			CORSAllowedOrigins: origins,
		},
	}
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.comments == nil || s.catalog == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := s.newEcho()

	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("mkquotes api server started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("mkquotes api server stopped")
	return nil
}

func (s *Server) newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit(maxBodyBytes))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: s.opts.CORSAllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       3600,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Err(v.Error).
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Str("remote_ip", v.RemoteIP).
					Str("request_id", v.RequestID).
					Msg("http request failed")
				return nil
			}

			s.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	api := e.Group("/api/v1")
	api.GET("/health", s.handleHealth)
	api.GET("/stats", s.handleStats)
	api.GET("/subjects", s.handleSubjects)
	api.POST("/subjects", s.handleCreateSubject)
	api.GET("/subjects/:subject_id/comments", s.handleSubjectComments)
	api.GET("/comments", s.handleComments)
	api.POST("/comments", s.handleCreateComment, s.rateLimit("create_comment"))
	api.POST("/comments/check", s.handleCheckComment)
	api.PATCH("/comments/:comment_id/verification", s.handleSetVerification)
	api.DELETE("/comments/:comment_id", s.handleDeleteComment)

	return e
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		switch v := he.Message.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				message = v
			}
		default:
			if text := strings.TrimSpace(http.StatusText(status)); text != "" {
				message = text
			}
		}
	} else if err != nil {
		message = err.Error()
	}

	if status >= 500 {
		_ = internalError(c, "Internal server error")
		return
	}
	_ = fail(c, status, message, nil)
}

// writeServiceError maps dedup errors onto jsend responses.
func (s *Server) writeServiceError(c echo.Context, err error, action string) error {
	var validationErr *dedup.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return failValidation(c, validationErr.Fields)
	case errors.Is(err, dedup.ErrInvalidInput):
		return failValidation(c, map[string]string{"payload": err.Error()})
	case errors.Is(err, dedup.ErrCommentNotFound):
		return failNotFound(c, "Comment not found")
	case errors.Is(err, dedup.ErrSubjectNotFound):
		return failNotFound(c, "Subject not found")
	case errors.Is(err, dedup.ErrConflict):
		return failConflict(c, "Comment was stored concurrently, retry the request")
	}

	s.logger.Error().Err(err).Str("action", action).Msg("request failed")
	return internalError(c, "Failed to "+action)
}

func (s *Server) handleHealth(c echo.Context) error {
	snapshot, err := s.catalog.QueryHealthSnapshot(c.Request().Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("health snapshot failed")
		return failUnavailable(c, "Database unavailable")
	}
	return success(c, map[string]any{
		"service":           "mkquotes",
		"time":              globaltime.UTC(),
		"subjects":          snapshot.Subjects,
		"comments":          snapshot.Comments,
		"primaries":         snapshot.Primaries,
		"latest_comment_at": snapshot.LatestCommentAt,
	})
}

func (s *Server) handleStats(c echo.Context) error {
	since, err := parseTimeFilter(c.QueryParam("since"), false)
	if err != nil {
		return failValidation(c, map[string]string{"since": "must be RFC3339 or YYYY-MM-DD"})
	}
	if since == nil {
		day := globaltime.StartOfDayUTC()
		since = &day
	}

	stats, err := s.catalog.QueryDedupStats(c.Request().Context(), *since)
	if err != nil {
		s.logger.Error().Err(err).Msg("query stats failed")
		return internalError(c, "Failed to load stats")
	}
	return success(c, stats)
}

func parsePositiveInt(raw string, defaultValue, minValue, maxValue int) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("must be an integer")
	}
	if value < minValue || value > maxValue {
		return 0, fmt.Errorf("must be between %d and %d", minValue, maxValue)
	}
	return value, nil
}

func parseID(raw string) (int64, error) {
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("must be a positive integer")
	}
	return value, nil
}

func parseTimeFilter(raw string, endOfDay bool) (*time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}

	if ts, err := time.Parse(time.RFC3339, trimmed); err == nil {
		utc := ts.UTC()
		return &utc, nil
	}

	if day, err := time.Parse("2006-01-02", trimmed); err == nil {
		utc := day.UTC()
		if endOfDay {
			utc = utc.Add(24 * time.Hour)
		}
		return &utc, nil
	}

	return nil, fmt.Errorf("invalid time format")
}

func parseBoolFilter(raw string) (*bool, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}
	value, err := strconv.ParseBool(trimmed)
	if err != nil {
		return nil, fmt.Errorf("must be true or false")
	}
	return &value, nil
}
