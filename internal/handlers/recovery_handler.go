package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/storeops/cart-recovery/internal/abandonment"
	"github.com/storeops/cart-recovery/internal/validation"
)

// RegisterRecoveryRoutes registers the operator-facing recovery
// tooling: log listing, status updates and message dispatch.
func RegisterRecoveryRoutes(r *gin.Engine, cfg HandlerConfig) {
	v := validation.New()

	r.GET("/recovery/logs", func(c *gin.Context) {
		filter := abandonment.Filter{
			Recovery: c.Query("status"),
			Type:     c.Query("type"),
		}
		if raw := c.Query("min_value"); raw != "" {
			mv, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_min_value"})
				return
			}
			filter.MinValue = mv
		}
		for param, dst := range map[string]*time.Time{"since": &filter.Since, "until": &filter.Until} {
			if raw := c.Query(param); raw != "" {
				ts, err := time.Parse(time.RFC3339, raw)
				if err != nil {
					c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_" + param})
					return
				}
				*dst = ts
			}
		}

		logs, err := cfg.Logs.Query(c.Request.Context(), filter)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "query_failed", "msg": err.Error()})
			return
		}
		if logs == nil {
			logs = []abandonment.Log{}
		}
		c.JSON(http.StatusOK, gin.H{"logs": logs})
	})

	r.GET("/recovery/logs/:id", func(c *gin.Context) {
		log, err := cfg.Logs.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup_failed", "msg": err.Error()})
			return
		}
		if log == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		c.JSON(http.StatusOK, log)
	})

	r.PATCH("/recovery/logs/:id", func(c *gin.Context) {
		var req validation.UpdateLogRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		if req.Status == nil && req.Notes == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "empty_patch"})
			return
		}

		log, err := cfg.Logs.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup_failed", "msg": err.Error()})
			return
		}
		if log == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}

		updated, err := cfg.Logs.Update(c.Request.Context(), log.ID, abandonment.Patch{
			Recovery: req.Status,
			Notes:    req.Notes,
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "update_failed", "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, updated)
	})

	r.GET("/recovery/logs/:id/templates", func(c *gin.Context) {
		log, err := cfg.Logs.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup_failed", "msg": err.Error()})
			return
		}
		if log == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}

		all, err := cfg.Templates.Templates(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "templates_unavailable", "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"templates": cfg.Composer.AvailableTemplates(*log, all)})
	})

	r.POST("/recovery/logs/:id/dispatch", func(c *gin.Context) {
		var req validation.DispatchRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		msg, err := cfg.Dispatcher.Dispatch(c.Request.Context(), c.Param("id"), req.Template)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "dispatch_failed", "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, msg)
	})
}
