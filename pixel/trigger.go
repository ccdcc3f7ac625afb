package pixel

import (
	"time"

	"poplift/api/models"
)

const (
	// Fallback delay for urgency/gift/standard/spinwheel and unknown
	// popup types, independent of the time_based delay parameter.
	fallbackDelay = 3 * time.Second

	// Pointer-out above this viewport y coordinate counts as leaving
	// through the browser chrome.
	exitIntentTopEdge = 10

	// Mobile exit-intent heuristic: upward scrolls only count while the
	// page is already within this many pixels of the top.
	exitIntentNearTop = 100

	// Default number of consecutive upward near-top scrolls that fire
	// the mobile exit-intent heuristic. Tunable, not a contract.
	defaultExitScrollStreak = 3
)

// Trigger decides when a single popup is surfaced. Arm registers the
// trigger's condition; Disarm cancels any pending work. A trigger fires
// at most once.
type Trigger interface {
	Arm()
	Disarm()
}

// scrollSample is one scroll observation from the embedding page.
type scrollSample struct {
	top      float64
	docH     float64
	viewport float64
}

// percent is scrollTop / (documentHeight - viewportHeight) * 100. Pages
// shorter than the viewport count as fully scrolled.
func (s scrollSample) percent() float64 {
	span := s.docH - s.viewport
	if span <= 0 {
		return 100
	}
	return s.top / span * 100
}

// scrollObserver is implemented by triggers that consume scroll signals.
type scrollObserver interface {
	observeScroll(s scrollSample)
}

// pointerObserver is implemented by triggers that consume pointer-out
// signals.
type pointerObserver interface {
	observePointerOut(clientY float64, hasRelated bool)
}

// timeTrigger fires once after a fixed delay.
type timeTrigger struct {
	delay time.Duration
	clock Clock
	fire  func()
	timer Timer
}

func (t *timeTrigger) Arm() {
	t.timer = t.clock.AfterFunc(t.delay, t.fire)
}

func (t *timeTrigger) Disarm() {
	if t.timer != nil {
		t.timer.Stop()
	}
}

// scrollTrigger fires the first time the scroll percentage strictly
// exceeds the threshold, then becomes a no-op.
type scrollTrigger struct {
	threshold float64
	fire      func()
	armed     bool
	fired     bool
}

func (t *scrollTrigger) Arm()    { t.armed = true }
func (t *scrollTrigger) Disarm() { t.armed = false }

func (t *scrollTrigger) observeScroll(s scrollSample) {
	if !t.armed || t.fired {
		return
	}
	if s.percent() > t.threshold {
		t.fired = true
		t.fire()
	}
}

// exitIntentTrigger fires when the pointer leaves through the top edge of
// the viewport. On coarse-pointer devices it substitutes a heuristic:
// streakNeeded consecutive upward scrolls while already near the top.
type exitIntentTrigger struct {
	coarse       bool
	streakNeeded int
	fire         func()

	armed   bool
	fired   bool
	lastTop float64
	tracked bool
	streak  int
}

func (t *exitIntentTrigger) Arm()    { t.armed = true }
func (t *exitIntentTrigger) Disarm() { t.armed = false }

func (t *exitIntentTrigger) observePointerOut(clientY float64, hasRelated bool) {
	if t.coarse || !t.armed || t.fired {
		return
	}
	if clientY < exitIntentTopEdge && !hasRelated {
		t.fired = true
		t.fire()
	}
}

func (t *exitIntentTrigger) observeScroll(s scrollSample) {
	if !t.coarse || !t.armed || t.fired {
		return
	}
	if t.tracked && s.top < t.lastTop && s.top <= exitIntentNearTop {
		t.streak++
	} else {
		t.streak = 0
	}
	t.lastTop = s.top
	t.tracked = true
	if t.streak >= t.streakNeeded {
		t.fired = true
		t.fire()
	}
}

// newTrigger builds the trigger variant for a popup definition. Unknown
// types get the fixed-delay fallback; spinwheel differs from standard
// only visually, not behaviorally.
func newTrigger(p models.Popup, clock Clock, coarsePointer bool, exitStreak int, fire func()) Trigger {
	switch p.Type {
	case models.PopupTimeBased:
		delay := time.Duration(p.DelaySeconds) * time.Second
		if p.DelaySeconds <= 0 {
			delay = time.Duration(models.DefaultDelaySeconds) * time.Second
		}
		return &timeTrigger{delay: delay, clock: clock, fire: fire}
	case models.PopupScroll:
		threshold := float64(p.ScrollPercent)
		if p.ScrollPercent <= 0 || p.ScrollPercent > 100 {
			threshold = models.DefaultScrollPercent
		}
		return &scrollTrigger{threshold: threshold, fire: fire}
	case models.PopupExitIntent:
		if exitStreak <= 0 {
			exitStreak = defaultExitScrollStreak
		}
		return &exitIntentTrigger{coarse: coarsePointer, streakNeeded: exitStreak, fire: fire}
	default:
		return &timeTrigger{delay: fallbackDelay, clock: clock, fire: fire}
	}
}
