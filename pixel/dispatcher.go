package pixel

import (
	"encoding/json"
	"net/url"
	"sync"
	"time"

	"poplift/api/models"
)

const defaultHeartbeatEvery = 15 * time.Second

// Dispatcher constructs analytics and campaign events and hands them to
// the beacon-first transports. Nothing here blocks the host page and no
// failure propagates past this type.
type Dispatcher struct {
	ownerID   string
	page      PageInfo
	identity  *Identity
	clock     Clock
	analytics Transport
	campaign  Transport

	heartbeatEvery time.Duration

	mu             sync.Mutex
	enteredAt      time.Time
	maxScrollDepth int
	hbTimer        Timer
	exited         bool
}

func newDispatcher(ownerID string, page PageInfo, identity *Identity, clock Clock, analytics, campaign Transport, heartbeatEvery time.Duration) *Dispatcher {
	if heartbeatEvery <= 0 {
		heartbeatEvery = defaultHeartbeatEvery
	}
	return &Dispatcher{
		ownerID:        ownerID,
		page:           page,
		identity:       identity,
		clock:          clock,
		analytics:      analytics,
		campaign:       campaign,
		heartbeatEvery: heartbeatEvery,
		enteredAt:      clock.Now(),
	}
}

// baseEvent fills the fields shared by every analytics event, including
// UTM attribution parsed from the page URL (only when non-empty).
func (d *Dispatcher) baseEvent(eventType string) models.AnalyticsEvent {
	evt := models.AnalyticsEvent{
		EventType:    eventType,
		UserID:       d.ownerID,
		SessionID:    d.identity.SessionID(),
		VisitorID:    d.identity.VisitorID(),
		Timestamp:    d.clock.Now(),
		PageURL:      d.page.URL,
		PageTitle:    d.page.Title,
		Referrer:     d.page.Referrer,
		UserAgent:    d.page.UserAgent,
		ScreenWidth:  d.page.ScreenWidth,
		ScreenHeight: d.page.ScreenHeight,
	}
	if u, err := url.Parse(d.page.URL); err == nil {
		q := u.Query()
		evt.UTMSource = q.Get("utm_source")
		evt.UTMMedium = q.Get("utm_medium")
		evt.UTMCampaign = q.Get("utm_campaign")
	}
	return evt
}

func (d *Dispatcher) sendAnalytics(evt models.AnalyticsEvent) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return
	}
	d.analytics.deliver(payload)
}

// SessionStart emits a session_start event for a freshly minted session.
func (d *Dispatcher) SessionStart() {
	d.sendAnalytics(d.baseEvent(models.EventSessionStart))
}

// PageView emits the page view for the current page instance.
func (d *Dispatcher) PageView() {
	d.sendAnalytics(d.baseEvent(models.EventPageView))
}

// scrollMilestones are the watermark depths that emit a scroll event.
var scrollMilestones = [...]int{25, 50, 75, 100}

// ObserveScroll updates the max-scroll-depth watermark. The watermark is
// monotonically non-decreasing and never reset within a page view. A
// scroll event is emitted once per crossed quartile milestone.
func (d *Dispatcher) ObserveScroll(percent float64) {
	depth := int(percent)
	if depth > 100 {
		depth = 100
	}

	d.mu.Lock()
	prev := d.maxScrollDepth
	if depth > prev {
		d.maxScrollDepth = depth
	}
	exited := d.exited
	d.mu.Unlock()

	if exited || depth <= prev {
		return
	}
	for _, milestone := range scrollMilestones {
		if prev < milestone && depth >= milestone {
			evt := d.baseEvent(models.EventScroll)
			evt.ScrollDepth = depth
			evt.TimeOnPage = d.timeOnPage()
			d.sendAnalytics(evt)
			break
		}
	}
}

// StartHeartbeat schedules the recurring heartbeat. Each beat carries
// cumulative time on page and the scroll watermark.
func (d *Dispatcher) StartHeartbeat() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.exited || d.hbTimer != nil {
		return
	}
	d.hbTimer = d.clock.AfterFunc(d.heartbeatEvery, d.heartbeatTick)
}

func (d *Dispatcher) heartbeatTick() {
	d.mu.Lock()
	if d.exited {
		d.mu.Unlock()
		return
	}
	depth := d.maxScrollDepth
	d.hbTimer = d.clock.AfterFunc(d.heartbeatEvery, d.heartbeatTick)
	d.mu.Unlock()

	evt := d.baseEvent(models.EventHeartbeat)
	evt.ScrollDepth = depth
	evt.TimeOnPage = d.timeOnPage()
	d.sendAnalytics(evt)
}

func (d *Dispatcher) timeOnPage() int64 {
	return int64(d.clock.Now().Sub(d.enteredAt) / time.Second)
}

// Exit handles beforeunload, pagehide and visibility-hidden. It is safe
// to call any number of times; duplicate exit events are tolerated
// server-side. The heartbeat is canceled exactly once, on the first call.
func (d *Dispatcher) Exit() {
	d.mu.Lock()
	if !d.exited {
		d.exited = true
		if d.hbTimer != nil {
			d.hbTimer.Stop()
			d.hbTimer = nil
		}
	}
	depth := d.maxScrollDepth
	d.mu.Unlock()

	exit := d.baseEvent(models.EventExit)
	exit.ScrollDepth = depth
	exit.TimeOnPage = d.timeOnPage()
	d.sendAnalytics(exit)

	end := d.baseEvent(models.EventSessionEnd)
	end.TimeOnPage = exit.TimeOnPage
	d.sendAnalytics(end)
}

// stopHeartbeat cancels the heartbeat without emitting exit events.
func (d *Dispatcher) stopHeartbeat() {
	d.mu.Lock()
	d.exited = true
	if d.hbTimer != nil {
		d.hbTimer.Stop()
		d.hbTimer = nil
	}
	d.mu.Unlock()
}

// TrackCampaign emits a popup engagement event on the lightweight
// campaign channel.
func (d *Dispatcher) TrackCampaign(popupID, eventType string) {
	evt := models.CampaignEvent{
		PopupID:   popupID,
		EventType: eventType,
		URL:       d.page.URL,
		UserAgent: d.page.UserAgent,
		Timestamp: d.clock.Now(),
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return
	}
	d.campaign.deliver(payload)
}
