// api/handlers/analytics_handlers.go
package handlers

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"poplift/api/models"
	"poplift/api/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AnalyticsSink is the slice of the analytics store the handlers need.
// Narrowed to an interface so handler tests can run without ClickHouse.
type AnalyticsSink interface {
	InsertAnalyticsEvents(ctx context.Context, events []models.AnalyticsEvent) error
	GetEventCountsOverTime(ctx context.Context, ownerID, interval string, start, end time.Time, eventTypeFilter string) ([]store.EventCountByTime, error)
	GetUniqueVisitorsOverTime(ctx context.Context, ownerID, interval string, start, end time.Time) ([]store.EventCountByTime, error)
	GetTopPages(ctx context.Context, ownerID string, start, end time.Time, limit uint64) ([]models.TopPageResult, error)
}

type AnalyticsHandlers struct {
	AnalyticsStore AnalyticsSink
}

func NewAnalyticsHandlers(s AnalyticsSink) *AnalyticsHandlers {
	return &AnalyticsHandlers{
		AnalyticsStore: s,
	}
}

// Ingest accepts a single pixel analytics event. Validation failures are
// the only client-visible errors; once an event passes validation the
// response is success-shaped even if persistence fails, so the pixel
// never sees (or retries on) a collector-side problem.
func (h *AnalyticsHandlers) Ingest(c *gin.Context) {
	var event models.AnalyticsEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		log.Printf("Error binding incoming analytics JSON: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if event.UserID == "" || event.SessionID == "" || event.VisitorID == "" || event.PageURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id, session_id, visitor_id and page_url are required"})
		return
	}
	if !models.IsValidEventType(event.EventType) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unrecognized event_type"})
		return
	}

	event.EventID = uuid.New().String()
	event.IPAddress = c.ClientIP()
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	if err := h.AnalyticsStore.InsertAnalyticsEvents(ctx, []models.AnalyticsEvent{event}); err != nil {
		// Intentionally still success-shaped: a tracking failure must
		// never be signaled back to the host page.
		log.Printf("Error inserting analytics event into ClickHouse: %v", err)
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// parseTimeRange reads optional RFC3339 'start'/'end' query parameters,
// defaulting to the last 7 days. The bool result is false when a 400 was
// already written.
func parseTimeRange(c *gin.Context) (time.Time, time.Time, bool) {
	var start, end time.Time
	var err error

	startParam := c.Query("start")
	if startParam != "" {
		start, err = time.Parse(time.RFC3339, startParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'start' timestamp format. Use RFC3339 (e.g., 2006-01-02T15:04:05Z)"})
			return start, end, false
		}
	} else {
		start = time.Now().UTC().Add(-7 * 24 * time.Hour)
	}

	endParam := c.Query("end")
	if endParam != "" {
		end, err = time.Parse(time.RFC3339, endParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'end' timestamp format. Use RFC3339 (e.g., 2006-01-02T15:04:05Z)"})
			return start, end, false
		}
	} else {
		end = time.Now().UTC()
	}

	return start, end, true
}

// ownerIDFromContext converts the authenticated user id set by the auth
// middleware into the string owner id used by the event tables.
func ownerIDFromContext(c *gin.Context) string {
	return strconv.Itoa(c.MustGet("user_id").(int))
}

func (h *AnalyticsHandlers) GetEventCountsOverTime(c *gin.Context) {
	interval := c.Query("interval")
	if interval == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "interval query parameter is required (e.g., 'Day', 'Hour')"})
		return
	}

	eventTypeFilter := c.Query("eventType")

	start, end, ok := parseTimeRange(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	results, err := h.AnalyticsStore.GetEventCountsOverTime(ctx, ownerIDFromContext(c), interval, start, end, eventTypeFilter)
	if err != nil {
		log.Printf("Error getting event counts over time: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve event statistics"})
		return
	}

	c.JSON(http.StatusOK, results)
}

func (h *AnalyticsHandlers) GetUniqueVisitorsOverTime(c *gin.Context) {
	interval := c.Query("interval")
	if interval == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "interval query parameter is required (e.g., 'Day', 'Hour')"})
		return
	}

	start, end, ok := parseTimeRange(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	results, err := h.AnalyticsStore.GetUniqueVisitorsOverTime(ctx, ownerIDFromContext(c), interval, start, end)
	if err != nil {
		log.Printf("Error getting unique visitors over time: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve unique visitor statistics"})
		return
	}

	c.JSON(http.StatusOK, results)
}

func (h *AnalyticsHandlers) GetTopPages(c *gin.Context) {
	start, end, ok := parseTimeRange(c)
	if !ok {
		return
	}

	var limit uint64 = 10
	limitParam := c.Query("limit")
	if limitParam != "" {
		parsedLimit, err := strconv.ParseUint(limitParam, 10, 64)
		if err != nil || parsedLimit == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'limit' parameter. Must be a positive integer."})
			return
		}
		limit = parsedLimit
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	results, err := h.AnalyticsStore.GetTopPages(ctx, ownerIDFromContext(c), start, end, limit)
	if err != nil {
		log.Printf("Error getting top pages: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve top page statistics"})
		return
	}

	c.JSON(http.StatusOK, results)
}
