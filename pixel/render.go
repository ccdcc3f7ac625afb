package pixel

import (
	"fmt"
	"html"
	"sync"
	"time"

	"poplift/api/models"
)

const (
	styleSheetID       = "poplift-style"
	transitionDuration = 300 * time.Millisecond
)

// popupCSS is the shared stylesheet, injected once per page.
const popupCSS = `.poplift-overlay{position:fixed;inset:0;background:rgba(15,23,42,.5);opacity:0;transition:opacity .3s ease;z-index:2147483646}
.poplift-popup{position:fixed;max-width:380px;background:#fff;border-radius:12px;box-shadow:0 20px 50px rgba(0,0,0,.25);padding:24px;opacity:0;transform:translateY(12px);transition:opacity .3s ease,transform .3s ease;z-index:2147483647}
.poplift-visible .poplift-overlay{opacity:1}
.poplift-visible .poplift-popup{opacity:1;transform:translateY(0)}
.poplift-popup h2{margin:0 0 8px;font-size:20px}
.poplift-popup p{margin:0 0 16px;color:#475569}
.poplift-cta{display:inline-block;background:#6d28d9;color:#fff;border:none;border-radius:8px;padding:10px 20px;cursor:pointer}
.poplift-close{position:absolute;top:8px;right:12px;background:none;border:none;font-size:18px;cursor:pointer;color:#94a3b8}
.poplift-pos-center{top:50%;left:50%;transform:translate(-50%,calc(-50% + 12px))}
.poplift-visible .poplift-pos-center{transform:translate(-50%,-50%)}
.poplift-pos-bottom-right{right:24px;bottom:24px}
.poplift-pos-bottom-left{left:24px;bottom:24px}
.poplift-pos-top{top:24px;left:50%;transform:translateX(-50%)}`

// Renderer mounts one popup at a time on the injected Surface and wires
// its interactive affordances back into the campaign event channel.
type Renderer struct {
	surface Surface
	clock   Clock
	track   func(popupID, eventType string)

	mu     sync.Mutex
	active *models.Popup
	closed bool
}

func newRenderer(surface Surface, clock Clock, track func(popupID, eventType string)) *Renderer {
	return &Renderer{surface: surface, clock: clock, track: track}
}

// Show mounts the popup and animates it in. The second animation frame
// guarantees the browser painted the initial state before transitioning,
// so the entrance never flashes.
func (r *Renderer) Show(p models.Popup) {
	if r.surface == nil {
		return
	}

	r.mu.Lock()
	if r.active != nil {
		r.mu.Unlock()
		return
	}
	popup := p
	r.active = &popup
	r.closed = false
	r.mu.Unlock()

	r.surface.EnsureStylesheet(styleSheetID, popupCSS)
	r.surface.Mount(popupMarkup(p))
	r.surface.SetScrollLock(true)
	r.surface.RequestFrame(func() {
		r.surface.RequestFrame(func() {
			r.surface.SetVisible(true)
		})
	})
}

// Showing reports whether a popup is currently mounted.
func (r *Renderer) Showing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != nil
}

// Close dismisses the active popup (close button, overlay click or
// Escape all land here) and emits a close event.
func (r *Renderer) Close() {
	r.dismiss(true)
}

// CTA handles the call-to-action click. With a cta_url the top-level
// page navigates there; without one it behaves exactly like Close,
// except the emitted event is the click, not a close.
func (r *Renderer) CTA() {
	r.mu.Lock()
	if r.active == nil || r.closed {
		r.mu.Unlock()
		return
	}
	popup := *r.active
	r.mu.Unlock()

	r.track(popup.ID, models.CampaignClick)
	if popup.CTAURL != "" {
		r.surface.Navigate(popup.CTAURL)
		return
	}
	r.dismiss(false)
}

func (r *Renderer) dismiss(emitClose bool) {
	r.mu.Lock()
	if r.active == nil || r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	popupID := r.active.ID
	r.mu.Unlock()

	if emitClose {
		r.track(popupID, models.CampaignClose)
	}
	r.surface.SetVisible(false)
	r.clock.AfterFunc(transitionDuration, func() {
		r.surface.Unmount()
		r.surface.SetScrollLock(false)
		r.mu.Lock()
		r.active = nil
		r.mu.Unlock()
	})
}

// popupMarkup renders the overlay and positioned container. Every
// owner-supplied text field is HTML-escaped before insertion; this is a
// mandatory invariant, not a styling choice.
func popupMarkup(p models.Popup) string {
	position := p.Position
	if position == "" {
		position = models.DefaultPosition
	}
	ctaText := p.CTAText
	if ctaText == "" {
		ctaText = models.DefaultCTAText
	}

	subtext := ""
	if p.Subtext != "" {
		subtext = fmt.Sprintf("<p>%s</p>", html.EscapeString(p.Subtext))
	}

	return fmt.Sprintf(
		`<div class="poplift-overlay" data-poplift-overlay></div>`+
			`<div class="poplift-popup poplift-pos-%s" role="dialog" aria-modal="true" data-poplift-popup="%s">`+
			`<button class="poplift-close" type="button" aria-label="Close" data-poplift-close>&times;</button>`+
			`<h2>%s</h2>%s`+
			`<button class="poplift-cta" type="button" data-poplift-cta>%s</button>`+
			`</div>`,
		html.EscapeString(position),
		html.EscapeString(p.ID),
		html.EscapeString(p.Headline),
		subtext,
		html.EscapeString(ctaText),
	)
}
