package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/storeops/cart-recovery/internal/checkouts"
	"github.com/storeops/cart-recovery/internal/validation"
)

// RegisterCheckoutRoutes registers the funnel entry points.
func RegisterCheckoutRoutes(r *gin.Engine, cfg HandlerConfig) {
	v := validation.New()

	r.POST("/checkouts", func(c *gin.Context) {
		var req validation.StartCheckoutRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		checkout, err := cfg.Checkouts.Start(c.Request.Context(), req.CartID,
			customerFromPayload(req.Customer),
			checkouts.Consent{
				Transactional: *req.Consent.Transactional,
				Marketing:     *req.Consent.Marketing,
			},
		)
		if err != nil {
			writeStoreError(c, err)
			return
		}
		c.Header("Location", "/checkouts/"+checkout.ID)
		c.JSON(http.StatusCreated, checkout)
	})

	r.GET("/checkouts/:id", func(c *gin.Context) {
		checkout, err := cfg.Checkouts.Get(c.Param("id"))
		if err != nil {
			writeStoreError(c, err)
			return
		}
		c.JSON(http.StatusOK, checkout)
	})

	r.POST("/checkouts/:id/advance", func(c *gin.Context) {
		var req validation.AdvanceRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		if err := cfg.Checkouts.Advance(c.Param("id"), customerFromPayload(req.Customer), req.Step); err != nil {
			writeStoreError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	r.POST("/checkouts/:id/offers", func(c *gin.Context) {
		var req validation.AddOfferRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		id := c.Param("id")
		if err := cfg.Checkouts.AddOffer(id, checkouts.Offer{ID: req.ID, Name: req.Name, Price: req.Price}); err != nil {
			writeStoreError(c, err)
			return
		}
		checkout, err := cfg.Checkouts.Get(id)
		if err != nil {
			writeStoreError(c, err)
			return
		}
		c.JSON(http.StatusOK, checkout)
	})

	r.POST("/checkouts/:id/complete", func(c *gin.Context) {
		if err := cfg.Checkouts.Complete(c.Param("id")); err != nil {
			writeStoreError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	r.POST("/checkouts/:id/payment-failed", func(c *gin.Context) {
		if err := cfg.Checkouts.FailPayment(c.Param("id")); err != nil {
			writeStoreError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	r.POST("/checkouts/:id/interact", func(c *gin.Context) {
		var req validation.InteractRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		if err := cfg.Checkouts.Interact(c.Param("id"), req.Step); err != nil {
			writeStoreError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	r.GET("/checkouts/:id/shipping-rates", func(c *gin.Context) {
		id := c.Param("id")
		if _, err := cfg.Checkouts.Get(id); err != nil {
			writeStoreError(c, err)
			return
		}
		postalCode := c.Query("postal_code")
		if postalCode == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing_postal_code"})
			return
		}

		rates, err := cfg.Shipping.Rates(c.Request.Context(), id, postalCode)
		if err != nil || rates == nil {
			rates = []checkouts.ShippingRate{}
		}
		c.JSON(http.StatusOK, gin.H{"rates": rates})
	})
}

func customerFromPayload(p validation.CustomerPayload) checkouts.Customer {
	return checkouts.Customer{
		Name:     p.Name,
		Email:    p.Email,
		Phone:    p.Phone,
		Document: p.Document,
	}
}
