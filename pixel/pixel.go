package pixel

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"poplift/api/models"
)

// Config wires one Pixel instance. Only OwnerID is mandatory; every
// capability left nil gets a sensible default (memory storage, system
// clock, HTTP fallback transports derived from APIBase).
type Config struct {
	OwnerID string
	APIBase string
	Page    PageInfo

	Storage Storage
	Clock   Clock
	Surface Surface

	Analytics Transport
	Campaign  Transport

	HTTPClient *http.Client

	// EnableAnalytics mirrors the analytics={true|false} bootstrap flag:
	// when false only popup triggers and campaign events are active.
	EnableAnalytics bool

	HeartbeatEvery   time.Duration
	Cooldown         time.Duration
	ExitScrollStreak int

	FetchTimeout    time.Duration
	FetchAttempts   int
	FetchRetryDelay time.Duration
}

// Pixel is the embeddable tracking client as one explicit instance: no
// package-level state, constructed once at bootstrap and handed to the
// embedding bridge, which feeds it page signals via the Observe methods.
type Pixel struct {
	cfg        Config
	identity   *Identity
	dispatcher *Dispatcher
	renderer   *Renderer
	fetcher    *PopupFetcher

	mu        sync.Mutex
	started   bool
	triggers  []Trigger
	onScroll  []scrollObserver
	onPointer []pointerObserver
}

// New builds a Pixel from cfg. It never fails: missing capabilities
// degrade (memory storage, no surface) rather than erroring, because the
// pixel must never break the host page.
func New(cfg Config) *Pixel {
	if cfg.Clock == nil {
		cfg.Clock = SystemClock()
	}
	if cfg.Storage == nil {
		cfg.Storage = NewMemoryStorage()
	}
	if cfg.Analytics == (Transport{}) && cfg.APIBase != "" {
		cfg.Analytics = Transport{Fallback: NewHTTPSender(cfg.HTTPClient, cfg.APIBase+"/api/analytics")}
	}
	if cfg.Campaign == (Transport{}) && cfg.APIBase != "" {
		cfg.Campaign = Transport{Fallback: NewHTTPSender(cfg.HTTPClient, cfg.APIBase+"/api/track")}
	}

	p := &Pixel{cfg: cfg}
	p.identity = newIdentity(cfg.OwnerID, cfg.Storage, cfg.Clock, cfg.Cooldown)
	p.dispatcher = newDispatcher(cfg.OwnerID, cfg.Page, p.identity, cfg.Clock, cfg.Analytics, cfg.Campaign, cfg.HeartbeatEvery)
	p.renderer = newRenderer(cfg.Surface, cfg.Clock, p.dispatcher.TrackCampaign)
	p.fetcher = newPopupFetcher(cfg.HTTPClient, cfg.APIBase, cfg.OwnerID, cfg.FetchTimeout, cfg.FetchAttempts, cfg.FetchRetryDelay)
	return p
}

// Start initializes identity, reports the page view, fetches the popup
// list and arms one trigger per eligible popup. A failed popup fetch is
// logged and swallowed; the popup system simply stays inactive for this
// page view.
func (p *Pixel) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return errors.New("pixel already started")
	}
	p.started = true
	p.mu.Unlock()

	if p.cfg.EnableAnalytics {
		p.identity.SessionID()
		if p.identity.SessionIsNew() {
			p.dispatcher.SessionStart()
		}
		p.dispatcher.PageView()
		p.dispatcher.StartHeartbeat()
	}

	if p.cfg.APIBase == "" {
		return nil
	}

	popups, err := p.fetcher.Fetch(ctx)
	if err != nil {
		log.Printf("poplift pixel: %v", err)
		return nil
	}
	p.armPopups(popups)
	return nil
}

func (p *Pixel) armPopups(popups []models.Popup) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range popups {
		popup := popups[i]
		// Non-expired registry entries start suppressed: never armed.
		if p.identity.WasShown(popup.ID) {
			continue
		}
		trigger := newTrigger(popup, p.cfg.Clock, p.cfg.Page.CoarsePointer, p.cfg.ExitScrollStreak, func() {
			p.firePopup(popup)
		})
		p.triggers = append(p.triggers, trigger)
		if so, ok := trigger.(scrollObserver); ok {
			p.onScroll = append(p.onScroll, so)
		}
		if po, ok := trigger.(pointerObserver); ok {
			p.onPointer = append(p.onPointer, po)
		}
		trigger.Arm()
	}
}

// firePopup is the single fire path for all trigger kinds. The registry
// check at fire time resolves races between trigger types for the same
// popup and keeps the shown state idempotent: first to fire wins, order
// undefined.
func (p *Pixel) firePopup(popup models.Popup) {
	p.mu.Lock()
	if p.identity.WasShown(popup.ID) {
		p.mu.Unlock()
		return
	}
	p.identity.MarkShown(popup.ID)
	p.mu.Unlock()

	p.renderer.Show(popup)
	p.dispatcher.TrackCampaign(popup.ID, models.CampaignImpression)
}

// ObserveScroll feeds one scroll signal from the embedding page. The
// bridge is expected to batch raw scroll events per animation frame.
func (p *Pixel) ObserveScroll(scrollTop, documentHeight, viewportHeight float64) {
	sample := scrollSample{top: scrollTop, docH: documentHeight, viewport: viewportHeight}
	if p.cfg.EnableAnalytics {
		p.dispatcher.ObserveScroll(sample.percent())
	}
	p.mu.Lock()
	observers := make([]scrollObserver, len(p.onScroll))
	copy(observers, p.onScroll)
	p.mu.Unlock()
	for _, o := range observers {
		o.observeScroll(sample)
	}
}

// ObservePointerOut feeds a pointer-out signal (desktop exit intent).
func (p *Pixel) ObservePointerOut(clientY float64, hasRelatedTarget bool) {
	p.mu.Lock()
	observers := make([]pointerObserver, len(p.onPointer))
	copy(observers, p.onPointer)
	p.mu.Unlock()
	for _, o := range observers {
		o.observePointerOut(clientY, hasRelatedTarget)
	}
}

// ObservePageExit handles beforeunload, pagehide and visibility
// transitioning to hidden. All three are wired here and the handler
// tolerates repeated invocation.
func (p *Pixel) ObservePageExit() {
	if p.cfg.EnableAnalytics {
		p.dispatcher.Exit()
	}
}

// HandleCloseClick dismisses the visible popup (close button, overlay
// click and Escape all route here in the bridge).
func (p *Pixel) HandleCloseClick() {
	p.renderer.Close()
}

// HandleCTAClick activates the visible popup's call to action.
func (p *Pixel) HandleCTAClick() {
	p.renderer.CTA()
}

// VisitorID exposes the durable visitor id for debugging/inspection.
func (p *Pixel) VisitorID() string {
	return p.identity.VisitorID()
}

// Stop disarms every trigger and halts the heartbeat without emitting
// exit events. Used by bridges tearing down a pixel mid-page.
func (p *Pixel) Stop() {
	p.mu.Lock()
	triggers := p.triggers
	p.triggers = nil
	p.onScroll = nil
	p.onPointer = nil
	p.mu.Unlock()

	for _, t := range triggers {
		t.Disarm()
	}
	p.dispatcher.stopHeartbeat()
}
