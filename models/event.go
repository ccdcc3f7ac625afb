// api/models/event.go
package models

import "time"

// Analytics event types accepted by the collector.
const (
	EventPageView     = "pageview"
	EventScroll       = "scroll"
	EventExit         = "exit"
	EventHeartbeat    = "heartbeat"
	EventSessionStart = "session_start"
	EventSessionEnd   = "session_end"
)

// Campaign event types accepted by the lightweight tracking channel.
const (
	CampaignImpression = "impression"
	CampaignClick      = "click"
	CampaignClose      = "close"
)

// AnalyticsEvent is a single page-analytics event produced by the pixel.
// user_id identifies the site owner, visitor_id the browser profile and
// session_id the current activity window.
type AnalyticsEvent struct {
	EventID      string    `json:"event_id,omitempty"`
	EventType    string    `json:"event_type"`
	UserID       string    `json:"user_id"`
	SessionID    string    `json:"session_id"`
	VisitorID    string    `json:"visitor_id"`
	Timestamp    time.Time `json:"timestamp"`
	PageURL      string    `json:"page_url"`
	PageTitle    string    `json:"page_title,omitempty"`
	Referrer     string    `json:"referrer,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	IPAddress    string    `json:"ip_address,omitempty"`
	ScreenWidth  int       `json:"screen_width,omitempty"`
	ScreenHeight int       `json:"screen_height,omitempty"`
	ScrollDepth  int       `json:"scroll_depth,omitempty"`
	TimeOnPage   int64     `json:"time_on_page,omitempty"`
	UTMSource    string    `json:"utm_source,omitempty"`
	UTMMedium    string    `json:"utm_medium,omitempty"`
	UTMCampaign  string    `json:"utm_campaign,omitempty"`
}

// IsValidEventType reports whether t is one of the six recognized
// analytics event types.
func IsValidEventType(t string) bool {
	switch t {
	case EventPageView, EventScroll, EventExit, EventHeartbeat, EventSessionStart, EventSessionEnd:
		return true
	default:
		return false
	}
}

// CampaignEvent is a popup engagement event. It deliberately carries no
// page/session analytics payload; engagement-funnel metrics and site
// analytics are separate backend concerns.
type CampaignEvent struct {
	EventID   string    `json:"event_id,omitempty"`
	PopupID   string    `json:"popup_id"`
	EventType string    `json:"event_type"`
	URL       string    `json:"url"`
	UserAgent string    `json:"user_agent,omitempty"`
	IPAddress string    `json:"ip_address,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// IsValidCampaignEventType reports whether t is a recognized popup
// engagement event type.
func IsValidCampaignEventType(t string) bool {
	switch t {
	case CampaignImpression, CampaignClick, CampaignClose:
		return true
	default:
		return false
	}
}

// TopPageResult is one row of the top-pages stats query.
type TopPageResult struct {
	PageURL string `json:"pageUrl"`
	Count   uint64 `json:"count"`
}

// PopupFunnelResult aggregates engagement counts for a single popup.
type PopupFunnelResult struct {
	PopupID     string `json:"popupId"`
	Impressions uint64 `json:"impressions"`
	Clicks      uint64 `json:"clicks"`
	Closes      uint64 `json:"closes"`
}
