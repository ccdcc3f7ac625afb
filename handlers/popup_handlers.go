// api/handlers/popup_handlers.go
package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"poplift/api/models"

	"github.com/gin-gonic/gin"
)

// PopupStore is the slice of the popup store the handlers need.
type PopupStore interface {
	ListActivePopups(ctx context.Context, ownerID string) ([]models.Popup, error)
	ListPopups(ctx context.Context, ownerID string) ([]models.Popup, error)
	CreatePopup(ctx context.Context, ownerID string, p models.Popup) (*models.Popup, error)
	UpdatePopup(ctx context.Context, ownerID, popupID string, p models.Popup) (*models.Popup, error)
	DeletePopup(ctx context.Context, ownerID, popupID string) error
}

type PopupHandlers struct {
	PopupStore PopupStore
}

func NewPopupHandlers(s PopupStore) *PopupHandlers {
	return &PopupHandlers{PopupStore: s}
}

// ListForPixel is the public endpoint the pixel polls at page load:
// GET /api/popups/:ownerId -> {"popups": [...]} or {"error": "..."}.
func (h *PopupHandlers) ListForPixel(c *gin.Context) {
	ownerID := c.Param("ownerId")
	if ownerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "owner id is required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	popups, err := h.PopupStore.ListActivePopups(ctx, ownerID)
	if err != nil {
		log.Printf("Error listing popups for owner %s: %v", ownerID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load popups"})
		return
	}
	if popups == nil {
		popups = []models.Popup{}
	}

	c.JSON(http.StatusOK, gin.H{"popups": popups})
}

// List returns all popups of the authenticated owner for the dashboard.
func (h *PopupHandlers) List(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	popups, err := h.PopupStore.ListPopups(ctx, ownerIDFromContext(c))
	if err != nil {
		log.Printf("Error listing popups: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load popups"})
		return
	}
	if popups == nil {
		popups = []models.Popup{}
	}

	c.JSON(http.StatusOK, gin.H{"popups": popups})
}

// Create adds a popup campaign for the authenticated owner.
func (h *PopupHandlers) Create(c *gin.Context) {
	var popup models.Popup
	if err := c.ShouldBindJSON(&popup); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if popup.Headline == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "headline is required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	created, err := h.PopupStore.CreatePopup(ctx, ownerIDFromContext(c), popup)
	if err != nil {
		log.Printf("Error creating popup: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create popup"})
		return
	}

	c.JSON(http.StatusCreated, created)
}

// Update rewrites a popup campaign owned by the authenticated owner.
func (h *PopupHandlers) Update(c *gin.Context) {
	popupID := c.Param("popupId")

	var popup models.Popup
	if err := c.ShouldBindJSON(&popup); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	updated, err := h.PopupStore.UpdatePopup(ctx, ownerIDFromContext(c), popupID, popup)
	if err != nil {
		log.Printf("Error updating popup %s: %v", popupID, err)
		c.JSON(http.StatusNotFound, gin.H{"error": "Popup not found"})
		return
	}

	c.JSON(http.StatusOK, updated)
}

// Delete removes a popup campaign owned by the authenticated owner.
func (h *PopupHandlers) Delete(c *gin.Context) {
	popupID := c.Param("popupId")

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	if err := h.PopupStore.DeletePopup(ctx, ownerIDFromContext(c), popupID); err != nil {
		log.Printf("Error deleting popup %s: %v", popupID, err)
		c.JSON(http.StatusNotFound, gin.H{"error": "Popup not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Popup deleted"})
}
