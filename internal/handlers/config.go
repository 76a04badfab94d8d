package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/storeops/cart-recovery/internal/abandonment"
	"github.com/storeops/cart-recovery/internal/carts"
	"github.com/storeops/cart-recovery/internal/checkouts"
	"github.com/storeops/cart-recovery/internal/recovery"
)

// HandlerConfig groups dependencies for all route groups.
type HandlerConfig struct {
	Carts      *carts.Store
	Checkouts  *checkouts.Store
	Logs       abandonment.LogRepo
	Composer   *recovery.Composer
	Dispatcher *recovery.Dispatcher
	Templates  recovery.TemplateProvider
	Shipping   checkouts.ShippingRater
	Logger     *slog.Logger
}

// writeStoreError maps the core error taxonomy onto HTTP statuses.
func writeStoreError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, carts.ErrNotFound), errors.Is(err, checkouts.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "msg": err.Error()})
	case errors.Is(err, carts.ErrInvalidTransition), errors.Is(err, checkouts.ErrInvalidTransition), errors.Is(err, checkouts.ErrStepBackwards):
		c.JSON(http.StatusConflict, gin.H{"error": "invalid_transition", "msg": err.Error()})
	case errors.Is(err, checkouts.ErrEmptyCart):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "empty_cart", "msg": err.Error()})
	case errors.Is(err, checkouts.ErrExternalCall):
		c.JSON(http.StatusBadGateway, gin.H{"error": "external_call_failed", "msg": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "msg": err.Error()})
	}
}
