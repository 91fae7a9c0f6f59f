package api

import (
	"crypto/subtle"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/playsignal/tracker/internal/auth"
	"github.com/playsignal/tracker/internal/history"
	"github.com/playsignal/tracker/internal/middleware"
	"github.com/playsignal/tracker/internal/notify"
	"github.com/playsignal/tracker/internal/tracker"
	"github.com/playsignal/tracker/pkg/queue"
	"github.com/playsignal/tracker/pkg/response"
)

const defaultListLimit = 50

// Handler serves the read-only operational surface: live activity, history,
// and the notification delivery log.
type Handler struct {
	engine     *tracker.Engine
	histRepo   *history.Repository
	notifyRepo *notify.LogRepository
	dlq        *queue.DeadLetter
	writer     *history.Writer
	dispatcher *notify.Dispatcher
	jwtService *auth.Service
	apiKey     string
	logger     *zap.Logger
}

// NewHandler creates the operational API handler.
func NewHandler(
	engine *tracker.Engine,
	histRepo *history.Repository,
	notifyRepo *notify.LogRepository,
	dlq *queue.DeadLetter,
	writer *history.Writer,
	dispatcher *notify.Dispatcher,
	jwtService *auth.Service,
	apiKey string,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		engine:     engine,
		histRepo:   histRepo,
		notifyRepo: notifyRepo,
		dlq:        dlq,
		writer:     writer,
		dispatcher: dispatcher,
		jwtService: jwtService,
		apiKey:     apiKey,
		logger:     logger,
	}
}

type tokenRequest struct {
	APIKey string `json:"api_key" binding:"required"`
}

// IssueToken handles POST /auth/token: exchanges the configured API key for a JWT.
func (h *Handler) IssueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "api_key is required")
		return
	}
	if h.apiKey == "" || subtle.ConstantTimeCompare([]byte(req.APIKey), []byte(h.apiKey)) != 1 {
		response.Unauthorized(c, "invalid api key")
		return
	}
	token, err := h.jwtService.Generate()
	if err != nil {
		response.Internal(c, "failed to issue token")
		return
	}
	response.OK(c, gin.H{"token": token})
}

// GetActivity handles GET /activity: the live session projection.
func (h *Handler) GetActivity(c *gin.Context) {
	sessions := h.engine.Sessions()
	response.OK(c, gin.H{"count": len(sessions), "sessions": sessions})
}

// GetStats handles GET /activity/stats: operational counters.
func (h *Handler) GetStats(c *gin.Context) {
	delivered, failed := h.dispatcher.Counters()
	response.OK(c, gin.H{
		"engine": h.engine.Stats(),
		"history": gin.H{
			"writes":   h.writer.Writes(),
			"failures": h.writer.Failures(),
		},
		"notifications": gin.H{
			"delivered": delivered,
			"failed":    failed,
		},
	})
}

// GetHistory handles GET /history: recent play history rows.
func (h *Handler) GetHistory(c *gin.Context) {
	limit := parseLimit(c.Query("limit"))
	if key := c.Query("session_key"); key != "" {
		rec, err := h.histRepo.GetBySessionKey(c.Request.Context(), key)
		if err != nil {
			response.Internal(c, "failed to load history")
			return
		}
		if rec == nil {
			response.NotFound(c, "no history for session key")
			return
		}
		response.OK(c, gin.H{"record": rec})
		return
	}
	list, err := h.histRepo.ListRecent(c.Request.Context(), limit)
	if err != nil {
		response.Internal(c, "failed to list history")
		return
	}
	response.OK(c, gin.H{"history": list})
}

// GetNotificationLog handles GET /notifications/log: the delivery outcome feed.
func (h *Handler) GetNotificationLog(c *gin.Context) {
	list, err := h.notifyRepo.ListRecent(c.Request.Context(), parseLimit(c.Query("limit")))
	if err != nil {
		response.Internal(c, "failed to list notification log")
		return
	}
	response.OK(c, gin.H{"log": list})
}

// GetDeadLetters handles GET /notifications/dlq: abandoned deliveries.
func (h *Handler) GetDeadLetters(c *gin.Context) {
	entries, err := h.dlq.Peek(c.Request.Context(), parseLimit(c.Query("limit")))
	if err != nil {
		response.Internal(c, "failed to read dead letters")
		return
	}
	response.OK(c, gin.H{"entries": entries})
}

// Register wires the handler's routes onto the router.
func (h *Handler) Register(router *gin.Engine) {
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })
	router.POST("/auth/token", h.IssueToken)

	api := router.Group("")
	api.Use(middleware.JWT(h.jwtService))
	{
		api.GET("/activity", h.GetActivity)
		api.GET("/activity/stats", h.GetStats)
		api.GET("/history", h.GetHistory)
		api.GET("/notifications/log", h.GetNotificationLog)
		api.GET("/notifications/dlq", h.GetDeadLetters)
	}
}

func parseLimit(raw string) int {
	if raw == "" {
		return defaultListLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > 500 {
		return defaultListLimit
	}
	return n
}
