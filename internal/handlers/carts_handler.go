package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/storeops/cart-recovery/internal/carts"
	"github.com/storeops/cart-recovery/internal/validation"
)

// RegisterCartRoutes registers the cart mutation entry points used by
// the storefront UI.
func RegisterCartRoutes(r *gin.Engine, cfg HandlerConfig) {
	v := validation.New()

	r.POST("/carts", func(c *gin.Context) {
		var req validation.CreateCartRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		items := make([]carts.Item, 0, len(req.Items))
		for _, it := range req.Items {
			items = append(items, carts.Item{
				ProductID: it.ProductID,
				Name:      it.Name,
				Quantity:  it.Quantity,
				UnitPrice: it.UnitPrice,
			})
		}
		var attribution *carts.Attribution
		if req.Source != "" || req.Campaign != "" {
			attribution = &carts.Attribution{Source: req.Source, Campaign: req.Campaign}
		}

		cart := cfg.Carts.CreateFromSeed(req.SessionID, items, attribution)
		c.JSON(http.StatusCreated, cart)
	})

	r.GET("/carts/:id", func(c *gin.Context) {
		cart, err := cfg.Carts.Get(c.Param("id"))
		if err != nil {
			writeStoreError(c, err)
			return
		}
		c.JSON(http.StatusOK, cart)
	})

	r.POST("/carts/:id/touch", func(c *gin.Context) {
		if err := cfg.Carts.Touch(c.Param("id")); err != nil {
			writeStoreError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	r.PUT("/carts/:id/items/:itemId", func(c *gin.Context) {
		var req validation.SetQuantityRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		cartID := c.Param("id")
		itemID := strings.TrimSpace(c.Param("itemId"))
		if err := cfg.Carts.SetItemQuantity(cartID, itemID, *req.Quantity); err != nil {
			writeStoreError(c, err)
			return
		}
		cart, err := cfg.Carts.Get(cartID)
		if err != nil {
			writeStoreError(c, err)
			return
		}
		c.JSON(http.StatusOK, cart)
	})
}
