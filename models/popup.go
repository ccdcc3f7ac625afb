// api/models/popup.go
package models

import "time"

// Popup trigger types. Unknown types fall back to a fixed short delay.
const (
	PopupExitIntent = "exit_intent"
	PopupScroll     = "scroll"
	PopupTimeBased  = "time_based"
	PopupUrgency    = "urgency"
	PopupGift       = "gift"
	PopupStandard   = "standard"
	PopupSpinwheel  = "spinwheel"
)

// Defaults applied to popups with missing or out-of-range trigger
// parameters. A malformed definition is repaired, never rejected.
const (
	DefaultScrollPercent = 50
	DefaultDelaySeconds  = 5
	DefaultPosition      = "center"
	DefaultCTAText       = "Learn more"
)

// Popup is a popup campaign definition. Owned by the backend; the pixel
// only reads it.
type Popup struct {
	ID            string    `json:"id"`
	OwnerID       string    `json:"owner_id"`
	Type          string    `json:"type"`
	Position      string    `json:"position,omitempty"`
	ScrollPercent int       `json:"scroll_percent,omitempty"`
	DelaySeconds  int       `json:"delay_seconds,omitempty"`
	Headline      string    `json:"headline"`
	Subtext       string    `json:"subtext,omitempty"`
	CTAText       string    `json:"cta_text,omitempty"`
	CTAURL        string    `json:"cta_url,omitempty"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at,omitempty"`
	UpdatedAt     time.Time `json:"updated_at,omitempty"`
}

// ApplyDefaults fills every optional field with its defensive default so
// downstream code never has to re-check for zero values.
func (p *Popup) ApplyDefaults() {
	if p.Type == "" {
		p.Type = PopupStandard
	}
	if p.Position == "" {
		p.Position = DefaultPosition
	}
	if p.ScrollPercent <= 0 || p.ScrollPercent > 100 {
		p.ScrollPercent = DefaultScrollPercent
	}
	if p.DelaySeconds <= 0 {
		p.DelaySeconds = DefaultDelaySeconds
	}
	if p.CTAText == "" {
		p.CTAText = DefaultCTAText
	}
}
