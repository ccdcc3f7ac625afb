// api/handlers/track_handlers.go
package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"poplift/api/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CampaignSink is the slice of the campaign store the handlers need.
type CampaignSink interface {
	InsertCampaignEvents(ctx context.Context, events []models.CampaignEvent) error
	GetPopupFunnel(ctx context.Context, popupIDs []string, start, end time.Time) ([]models.PopupFunnelResult, error)
}

// PopupLister resolves which popups belong to an owner, used to scope
// funnel queries.
type PopupLister interface {
	ListPopups(ctx context.Context, ownerID string) ([]models.Popup, error)
}

type TrackHandlers struct {
	CampaignStore CampaignSink
	PopupStore    PopupLister
}

func NewTrackHandlers(campaignStore CampaignSink, popupStore PopupLister) *TrackHandlers {
	return &TrackHandlers{
		CampaignStore: campaignStore,
		PopupStore:    popupStore,
	}
}

// Track accepts one popup engagement event on the lightweight channel.
// Like analytics ingestion, persistence failures stay server-side.
func (h *TrackHandlers) Track(c *gin.Context) {
	var event models.CampaignEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		log.Printf("Error binding incoming campaign JSON: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if event.PopupID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "popup_id is required"})
		return
	}
	if !models.IsValidCampaignEventType(event.EventType) {
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

	if err := h.CampaignStore.InsertCampaignEvents(ctx, []models.CampaignEvent{event}); err != nil {
		log.Printf("Error inserting campaign event into ClickHouse: %v", err)
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GetPopupFunnel returns impression/click/close counts for every popup
// of the authenticated owner.
func (h *TrackHandlers) GetPopupFunnel(c *gin.Context) {
	start, end, ok := parseTimeRange(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	popups, err := h.PopupStore.ListPopups(ctx, ownerIDFromContext(c))
	if err != nil {
		log.Printf("Error listing popups for funnel: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve popup funnel statistics"})
		return
	}

	popupIDs := make([]string, 0, len(popups))
	for _, p := range popups {
		popupIDs = append(popupIDs, p.ID)
	}

	results, err := h.CampaignStore.GetPopupFunnel(ctx, popupIDs, start, end)
	if err != nil {
		log.Printf("Error getting popup funnel: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve popup funnel statistics"})
		return
	}

	c.JSON(http.StatusOK, results)
}
