package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"inventuri/internal/auth"
	"inventuri/internal/inventory"
	"inventuri/internal/report"
	"inventuri/internal/storage"
	"inventuri/internal/stream"
	"inventuri/internal/trend"
)

// Inventory is the editing surface used by the API.
type Inventory interface {
	ListItems(ctx context.Context, search string) ([]storage.Item, error)
	AddItem(ctx context.Context, in inventory.ItemInput) (storage.Item, bool, error)
	UpdateItem(ctx context.Context, id int64, patch storage.ItemPatch) (storage.Item, error)
	DeleteItems(ctx context.Context, ids []int64) (int64, error)
	Availability(ctx context.Context, search string) (inventory.Availability, error)
	ItemHistory(ctx context.Context, id int64) ([]storage.HistoryRecord, error)
	ListEquipment(ctx context.Context, search, status, department string) ([]storage.Equipment, error)
	AddEquipment(ctx context.Context, in inventory.EquipmentInput) (storage.Equipment, bool, error)
	UpdateEquipment(ctx context.Context, id int64, patch storage.EquipmentPatch) (storage.Equipment, error)
	DeleteEquipment(ctx context.Context, ids []int64) (int64, error)
}

// Reports renders dashboards and documents.
type Reports interface {
	Summary(ctx context.Context) (report.Summary, error)
	SuppliesReport(ctx context.Context) (report.Document, error)
	EquipmentReport(ctx context.Context) (report.Document, error)
	InventoryList(ctx context.Context) (report.Document, error)
}

// Authenticator checks logins and session tokens.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (auth.Session, error)
	Verify(token string) (*auth.Claims, error)
}

// Handler adapts the services to HTTP.
type Handler struct {
	inventory Inventory
	reports   Reports
	auth      Authenticator
	hub       *stream.Hub
	keepAlive time.Duration
	logger    zerolog.Logger
}

// NewHandler constructs the HTTP handler set. hub may be nil to disable streaming.
func NewHandler(inv Inventory, reports Reports, authn Authenticator, hub *stream.Hub, logger zerolog.Logger) *Handler {
	return &Handler{
		inventory: inv,
		reports:   reports,
		auth:      authn,
		hub:       hub,
		keepAlive: 25 * time.Second,
		logger:    logger.With().Str("component", "http").Logger(),
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type idsRequest struct {
	IDs []int64 `json:"ids"`
}

// Login exchanges credentials for a session token.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	session, err := h.auth.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok(c, http.StatusOK, session)
}

// ListItems lists supplies, optionally filtered by ?search=.
func (h *Handler) ListItems(c *gin.Context) {
	items, err := h.inventory.ListItems(c.Request.Context(), c.Query("search"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok(c, http.StatusOK, items)
}

// AddItem creates a supply or merges stock into an existing one.
func (h *Handler) AddItem(c *gin.Context) {
	var in inventory.ItemInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	item, created, err := h.inventory.AddItem(c.Request.Context(), in)
	if err != nil {
		h.writeError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	ok(c, status, item)
}

// UpdateItem patches a supply.
func (h *Handler) UpdateItem(c *gin.Context) {
	id, good := h.pathID(c)
	if !good {
		return
	}
	var patch storage.ItemPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		h.fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	item, err := h.inventory.UpdateItem(c.Request.Context(), id, patch)
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok(c, http.StatusOK, item)
}

// DeleteItems removes the supplies listed in {"ids": [...]}.
func (h *Handler) DeleteItems(c *gin.Context) {
	var req idsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	n, err := h.inventory.DeleteItems(c.Request.Context(), req.IDs)
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"deleted": n})
}

// Availability splits supplies into in-stock and out-of-stock.
func (h *Handler) Availability(c *gin.Context) {
	out, err := h.inventory.Availability(c.Request.Context(), c.Query("search"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}

// ItemHistory returns the quantity history of one supply and its trend.
func (h *Handler) ItemHistory(c *gin.Context) {
	id, good := h.pathID(c)
	if !good {
		return
	}
	records, err := h.inventory.ItemHistory(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	obs := storage.Observations(records)
	ok(c, http.StatusOK, gin.H{
		"item_id":    id,
		"history":    records,
		"trend":      trend.Classify(obs),
		"change_pct": trend.WindowChange(obs).StringFixed(2),
	})
}

// ListEquipment lists equipment filtered by ?search=, ?status= and ?department=.
func (h *Handler) ListEquipment(c *gin.Context) {
	out, err := h.inventory.ListEquipment(c.Request.Context(), c.Query("search"), c.Query("status"), c.Query("department"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}

// AddEquipment creates equipment or merges the count into a matching row.
func (h *Handler) AddEquipment(c *gin.Context) {
	var in inventory.EquipmentInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	eq, created, err := h.inventory.AddEquipment(c.Request.Context(), in)
	if err != nil {
		h.writeError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	ok(c, status, eq)
}

// UpdateEquipment patches equipment.
func (h *Handler) UpdateEquipment(c *gin.Context) {
	id, good := h.pathID(c)
	if !good {
		return
	}
	var patch storage.EquipmentPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		h.fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	eq, err := h.inventory.UpdateEquipment(c.Request.Context(), id, patch)
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok(c, http.StatusOK, eq)
}

// DeleteEquipment removes the equipment listed in {"ids": [...]}.
func (h *Handler) DeleteEquipment(c *gin.Context) {
	var req idsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	n, err := h.inventory.DeleteEquipment(c.Request.Context(), req.IDs)
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"deleted": n})
}

// Summary returns dashboard aggregates.
func (h *Handler) Summary(c *gin.Context) {
	sum, err := h.reports.Summary(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok(c, http.StatusOK, sum)
}

// SuppliesReport downloads the trend-enriched supplies document.
func (h *Handler) SuppliesReport(c *gin.Context) {
	h.document(c, h.reports.SuppliesReport)
}

// EquipmentReport downloads the equipment document.
func (h *Handler) EquipmentReport(c *gin.Context) {
	h.document(c, h.reports.EquipmentReport)
}

// InventoryList downloads the plain supplies list.
func (h *Handler) InventoryList(c *gin.Context) {
	h.document(c, h.reports.InventoryList)
}

func (h *Handler) document(c *gin.Context, build func(context.Context) (report.Document, error)) {
	doc, err := build(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+doc.Filename)
	c.Data(http.StatusOK, report.ContentType, doc.Content)
}

// QuantityChart renders item quantities as a PNG bar chart.
func (h *Handler) QuantityChart(c *gin.Context) {
	h.chart(c, func(w io.Writer, sum report.Summary) error {
		return report.RenderQuantityChart(w, sum.Items)
	})
}

// StatusChart renders equipment conditions as a PNG pie chart.
func (h *Handler) StatusChart(c *gin.Context) {
	h.chart(c, func(w io.Writer, sum report.Summary) error {
		return report.RenderStatusChart(w, sum.EquipmentByStatus)
	})
}

func (h *Handler) chart(c *gin.Context, draw func(io.Writer, report.Summary) error) {
	sum, err := h.reports.Summary(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	var buf bytes.Buffer
	if err := draw(&buf, sum); err != nil {
		h.writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

// Stream relays change events as server-sent events until the client leaves.
func (h *Handler) Stream(c *gin.Context) {
	if h.hub == nil {
		h.fail(c, http.StatusServiceUnavailable, "realtime updates disabled")
		return
	}
	sub := h.hub.Subscribe()
	defer h.hub.Unsubscribe(sub)

	// Streams outlive the server write timeout.
	_ = http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{})

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	c.SSEvent("ready", gin.H{"subscribers": h.hub.Subscribers()})
	c.Writer.Flush()

	c.Stream(func(io.Writer) bool {
		select {
		case ev, open := <-sub.C:
			if !open {
				return false
			}
			c.SSEvent("change", ev)
			return true
		case <-ticker.C:
			c.SSEvent("ping", time.Now().UTC().Format(time.RFC3339))
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func (h *Handler) pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		h.fail(c, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

// writeError maps service errors onto HTTP statuses.
func (h *Handler) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, inventory.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		status = http.StatusUnauthorized
	case errors.Is(err, report.ErrNoData), errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, storage.ErrNotConfigured):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	h.fail(c, status, err.Error())
}

func (h *Handler) fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": msg})
}

func ok(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}
