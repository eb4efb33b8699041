package transport

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/anime-shed/olive-inspector-go/internal/catalog"
	apperrors "github.com/anime-shed/olive-inspector-go/internal/errors"
	"github.com/anime-shed/olive-inspector-go/internal/logger"
	"github.com/anime-shed/olive-inspector-go/internal/service"
	"github.com/anime-shed/olive-inspector-go/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SettingsService is the part of the settings service the API exposes
type SettingsService interface {
	Get(ctx context.Context) models.Settings
	SetServerAddress(ctx context.Context, address string) (models.Settings, error)
	SetDarkMode(ctx context.Context, enabled bool) (models.Settings, error)
	SetNotifications(ctx context.Context, enabled bool) (models.Settings, error)
	SetLanguage(ctx context.Context, language string) (models.Settings, error)
	Apply(ctx context.Context, patch models.SettingsPatchRequest) (models.Settings, error)
}

// Options configures the HTTP handler
type Options struct {
	MaxRequestBodySize int64
	Metrics            http.Handler
	Version            string
}

type api struct {
	detection service.DetectionService
	settings  SettingsService
	version   string
}

// NewHandler builds the local API router
func NewHandler(detection service.DetectionService, settings SettingsService, opts Options) http.Handler {
	r := gin.New()

	r.Use(
		gin.Recovery(),
		requestLogger(),
		requestSizeLimiter(opts.MaxRequestBodySize),
		errorHandler(),
	)

	a := &api{detection: detection, settings: settings, version: opts.Version}
	if a.version == "" {
		a.version = "1.0.0"
	}

	r.GET("/health", a.healthCheck)
	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	sessionRoutes := r.Group("/api/session")
	sessionRoutes.GET("", a.getSession)
	sessionRoutes.PUT("/image", a.selectImage)
	sessionRoutes.POST("/analyze", a.analyze)
	sessionRoutes.POST("/save", a.saveToHistory)
	sessionRoutes.DELETE("", a.resetSession)

	historyRoutes := r.Group("/api/history")
	historyRoutes.GET("", a.listHistory)
	historyRoutes.GET("/:id", a.getHistoryEntry)
	historyRoutes.DELETE("/:id", a.deleteHistoryEntry)
	historyRoutes.DELETE("", a.clearHistory)

	settingsRoutes := r.Group("/api/settings")
	settingsRoutes.GET("", a.getSettings)
	settingsRoutes.PUT("/server", a.setServerAddress)
	settingsRoutes.PATCH("", a.patchSettings)

	return r
}

func (a *api) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "available",
		"version": a.version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *api) getSession(c *gin.Context) {
	c.JSON(http.StatusOK, sessionResponse(a.detection.Session()))
}

func (a *api) selectImage(c *gin.Context) {
	var req models.SelectImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewValidationError("invalid request format", err))
		return
	}

	if err := a.detection.PickImage(c.Request.Context(), req.ImageRef); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionResponse(a.detection.Session()))
}

func (a *api) analyze(c *gin.Context) {
	startTime := time.Now()

	res, err := a.detection.Analyze(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	resp := catalog.Describe(res.ImageRef, res.Outcome.Status, res.Outcome.Result)
	resp.Discarded = res.Discarded

	logger.WithFields(logrus.Fields{
		"image_ref":          res.ImageRef,
		"status":             resp.Status,
		"leaf_count":         resp.LeafCount,
		"discarded":          resp.Discarded,
		"processing_time_ms": time.Since(startTime).Milliseconds(),
	}).Info("Analyze request completed")

	c.JSON(http.StatusOK, resp)
}

func (a *api) saveToHistory(c *gin.Context) {
	entry, err := a.detection.SaveToHistory(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (a *api) resetSession(c *gin.Context) {
	if err := a.detection.ResetSession(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *api) listHistory(c *gin.Context) {
	entries := a.detection.History(c.Request.Context())
	c.JSON(http.StatusOK, models.HistoryListResponse{Count: len(entries), Entries: entries})
}

func (a *api) getHistoryEntry(c *gin.Context) {
	id, ok := historyID(c)
	if !ok {
		return
	}
	entry, err := a.detection.HistoryEntry(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (a *api) deleteHistoryEntry(c *gin.Context) {
	id, ok := historyID(c)
	if !ok {
		return
	}
	if err := a.detection.DeleteHistoryEntry(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *api) clearHistory(c *gin.Context) {
	if err := a.detection.ClearHistory(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *api) getSettings(c *gin.Context) {
	c.JSON(http.StatusOK, a.settings.Get(c.Request.Context()))
}

func (a *api) setServerAddress(c *gin.Context) {
	var req models.ServerAddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewValidationError("invalid request format", err))
		return
	}

	settings, err := a.settings.SetServerAddress(c.Request.Context(), req.ServerAddress)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (a *api) patchSettings(c *gin.Context) {
	var req models.SettingsPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewValidationError("invalid request format", err))
		return
	}

	settings, err := a.settings.Apply(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func sessionResponse(state models.SessionState) models.SessionResponse {
	resp := models.SessionResponse{ImageRef: state.Image}
	if state.Result != nil {
		ref := ""
		if state.Image != nil {
			ref = *state.Image
		}
		view := catalog.Describe(ref, catalog.StatusOf(state.Result), state.Result)
		resp.Result = &view
	}
	return resp
}

func historyID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, apperrors.NewValidationError("history id must be an integer", err))
		return 0, false
	}
	return id, true
}

// Middleware and helper functions
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.WithFields(logrus.Fields{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status_code": c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"ip":          c.ClientIP(),
		}).Debug("Request handled")
	}
}

func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

func errorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			respondError(c, c.Errors.Last().Err)
		}
	}
}

func determineStatusCode(err error) int {
	if appErr, ok := apperrors.As(err); ok {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	code := determineStatusCode(err)

	resp := models.ErrorResponse{
		Error:   http.StatusText(code),
		Message: err.Error(),
	}
	if appErr, ok := apperrors.As(err); ok {
		resp.Type = string(appErr.Type)
		resp.Message = appErr.Message
		resp.Details = appErr.Details
	}

	entry := logger.WithError(err).WithFields(logrus.Fields{
		"status_code": code,
		"error_type":  resp.Type,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
	})
	if code >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Warn("Request rejected")
	}

	c.AbortWithStatusJSON(code, resp)
}
