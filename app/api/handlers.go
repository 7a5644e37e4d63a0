package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/htbwatch/htb-relay/app/database"
)

func NewHandler(deliveryRepo database.DeliveryRepository, itemRepo database.ItemRepository,
	maxAttempts int, version string) *Handler {
	return &Handler{
		deliveryRepo: deliveryRepo,
		itemRepo:     itemRepo,
		maxAttempts:  maxAttempts,
		version:      version,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
	}

	if itemCount, err := h.itemRepo.GetItemCount(); err == nil {
		health["items"] = itemCount
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.deliveryRepo.GetStats()
	if err != nil {
		slog.Error("Database error", "operation", "get_stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	stuck, err := h.deliveryRepo.GetStuck(h.maxAttempts)
	if err != nil {
		slog.Error("Database error", "operation", "get_stuck", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	stuckInfo := make([]map[string]interface{}, 0, len(stuck))
	for _, d := range stuck {
		stuckInfo = append(stuckInfo, map[string]interface{}{
			"kind":       d.Kind,
			"item_key":   d.ItemKey,
			"channel":    d.ChannelKind,
			"attempts":   d.Attempts,
			"last_error": d.LastError,
		})
	}

	response := map[string]interface{}{
		"deliveries": map[string]interface{}{
			"sent":    stats.Sent,
			"failed":  stats.Failed,
			"pending": stats.Pending,
		},
		"stuck": stuckInfo,
	}

	if itemCount, err := h.itemRepo.GetItemCount(); err == nil {
		response["items"] = itemCount
	}

	c.JSON(http.StatusOK, response)
}

// GetCalendar serves upcoming and recently released items as an iCalendar
// document for subscription by calendar clients.
func (h *Handler) GetCalendar(c *gin.Context) {
	now := time.Now().UTC()

	// Keep a month of history so releases do not vanish from subscribed
	// calendars the moment they go live.
	items, err := h.itemRepo.GetReleasedSince(now.AddDate(0, 0, -30))
	if err != nil {
		slog.Error("Database error", "operation", "get_released_since", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	body := buildCalendar(items, now)

	c.Header("Content-Type", "text/calendar; charset=utf-8")
	c.Header("Cache-Control", "public, max-age=300")
	c.String(http.StatusOK, body)
}
