package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"urban-issue-service/internal/config"
	"urban-issue-service/internal/logging"
	"urban-issue-service/internal/models"
)

func NewRouter(deps Deps, logger *logging.Logger, cfg config.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLoggingMiddleware(logger))

	h := NewHandler(deps, logger, cfg)
	api := r.Group(cfg.API.BasePath)
	{
		// Inference
		api.POST("/predict", h.Predict)
		api.POST("/predict-hotspots", h.PredictHotspots)

		if deps.Store != nil && deps.Auth != nil {
			// Accounts
			api.POST("/auth/register", h.Register)
			api.POST("/auth/login", h.Login)

			// Issues
			authed := api.Group("", AuthMiddleware(deps.Auth))
			authed.POST("/issues", h.CreateIssue)
			authed.GET("/issues/my", h.MyIssues)
			authed.GET("/issues/:id", h.GetIssue)

			admin := authed.Group("", RequireRole(models.RoleAdmin))
			admin.GET("/issues", h.ListIssues)
			admin.PATCH("/issues/:id/status", h.UpdateIssueStatus)

			// Analytics
			admin.GET("/analytics/summary", h.Summary)
			admin.GET("/analytics/monthly", h.Monthly)
			if deps.Hotspots != nil {
				admin.GET("/analytics/hotspots", h.Hotspots)
			}
		} else if deps.Store != nil {
			logger.Warnf("Store configured without token auth, issue routes disabled")
		}
	}

	if deps.Hub != nil {
		if deps.Auth != nil {
			r.GET("/ws/alerts", AuthMiddleware(deps.Auth), RequireRole(models.RoleAdmin), h.Alerts)
		} else {
			r.GET("/ws/alerts", h.Alerts)
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return r
}
