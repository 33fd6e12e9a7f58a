package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const claimsKey = "claims"

// NewRouter wires the Gin engine with the API routes and middlewares.
func NewRouter(h *Handler, logger zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(zerologMiddleware(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.POST("/api/login", h.Login)

	authed := r.Group("/", h.requireAuth)
	authed.GET("/supplies_reportgenerator", h.InventoryList)

	api := authed.Group("/api")
	api.GET("/items", h.ListItems)
	api.POST("/items", h.AddItem)
	api.DELETE("/items", h.DeleteItems)
	api.GET("/items/availability", h.Availability)
	api.PATCH("/items/:id", h.UpdateItem)
	api.GET("/items/:id/history", h.ItemHistory)

	api.GET("/equipment", h.ListEquipment)
	api.POST("/equipment", h.AddEquipment)
	api.DELETE("/equipment", h.DeleteEquipment)
	api.PATCH("/equipment/:id", h.UpdateEquipment)

	api.GET("/reports/summary", h.Summary)
	api.GET("/reports/charts/quantities.png", h.QuantityChart)
	api.GET("/reports/charts/status.png", h.StatusChart)
	api.GET("/supplies_reportgenerator", h.SuppliesReport)
	api.GET("/equipments_reportgenertor", h.EquipmentReport)

	api.GET("/stream", h.Stream)

	logger.Info().Msg("router initialized")
	return r
}

// requireAuth accepts a Bearer token, or ?token= for EventSource clients
// that cannot set headers.
func (h *Handler) requireAuth(c *gin.Context) {
	token := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
	if token == "" {
		token = c.Query("token")
	}
	if token == "" {
		h.fail(c, http.StatusUnauthorized, "missing bearer token")
		return
	}
	claims, err := h.auth.Verify(token)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Set(claimsKey, claims)
	c.Next()
}

func zerologMiddleware(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("request completed")
	}
}
