package pixel

import (
	"strings"
	"testing"
	"time"

	"poplift/api/models"
)

// fakeSurface records renderer interactions. RequestFrame callbacks are
// queued so tests control when animation frames run.
type fakeSurface struct {
	sheets     map[string]string
	mounted    string
	mountCount int
	visible    bool
	unmounted  int
	frames     []func()
	navigated  string
	scrollLock bool
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{sheets: make(map[string]string)}
}

func (s *fakeSurface) EnsureStylesheet(id, css string) {
	if _, ok := s.sheets[id]; !ok {
		s.sheets[id] = css
	}
}

func (s *fakeSurface) Mount(markup string) {
	s.mounted = markup
	s.mountCount++
}

func (s *fakeSurface) SetVisible(visible bool) { s.visible = visible }

func (s *fakeSurface) Unmount() {
	s.mounted = ""
	s.unmounted++
}

func (s *fakeSurface) RequestFrame(fn func()) { s.frames = append(s.frames, fn) }

func (s *fakeSurface) Navigate(url string) { s.navigated = url }

func (s *fakeSurface) SetScrollLock(locked bool) { s.scrollLock = locked }

// runFrames drains the queued animation frame callbacks, including ones
// scheduled by earlier callbacks.
func (s *fakeSurface) runFrames() {
	for len(s.frames) > 0 {
		fn := s.frames[0]
		s.frames = s.frames[1:]
		fn()
	}
}

type trackRecord struct {
	popupID   string
	eventType string
}

func testRenderer() (*Renderer, *fakeSurface, *fakeClock, *[]trackRecord) {
	surface := newFakeSurface()
	clock := newFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	var tracked []trackRecord
	r := newRenderer(surface, clock, func(popupID, eventType string) {
		tracked = append(tracked, trackRecord{popupID, eventType})
	})
	return r, surface, clock, &tracked
}

func TestShowMountsAfterTwoFrames(t *testing.T) {
	r, surface, _, _ := testRenderer()

	r.Show(models.Popup{ID: "p1", Headline: "Wait!"})

	if surface.mounted == "" {
		t.Fatal("popup markup should be mounted immediately")
	}
	if !surface.scrollLock {
		t.Fatal("background scroll should be locked while the popup is mounted")
	}
	if surface.visible {
		t.Fatal("popup must not be visible before the animation frames run")
	}
	surface.runFrames()
	if !surface.visible {
		t.Fatal("popup should become visible after the double animation frame")
	}
}

func TestShowInjectsStylesheetOnce(t *testing.T) {
	r, surface, clock, _ := testRenderer()

	r.Show(models.Popup{ID: "p1", Headline: "A"})
	surface.runFrames()
	r.Close()
	clock.Advance(transitionDuration)

	r.Show(models.Popup{ID: "p2", Headline: "B"})
	if len(surface.sheets) != 1 {
		t.Fatalf("expected a single shared stylesheet, got %d", len(surface.sheets))
	}
	if _, ok := surface.sheets[styleSheetID]; !ok {
		t.Fatalf("stylesheet registered under the wrong id: %v", surface.sheets)
	}
}

func TestOnePopupAtATime(t *testing.T) {
	r, surface, _, _ := testRenderer()

	r.Show(models.Popup{ID: "p1", Headline: "First"})
	r.Show(models.Popup{ID: "p2", Headline: "Second"})

	if surface.mountCount != 1 {
		t.Fatalf("only one popup may be mounted at a time, got %d mounts", surface.mountCount)
	}
	if !strings.Contains(surface.mounted, "First") {
		t.Fatal("the first popup should stay mounted")
	}
}

func TestMarkupEscapesOwnerText(t *testing.T) {
	r, surface, _, _ := testRenderer()

	r.Show(models.Popup{
		ID:       "p1",
		Headline: `<script>alert(1)</script>`,
		Subtext:  `<img src=x onerror=alert(1)>`,
		CTAText:  `">ha`,
	})

	if strings.Contains(surface.mounted, "<script>") || strings.Contains(surface.mounted, "<img") {
		t.Fatalf("owner text must be escaped before insertion:\n%s", surface.mounted)
	}
	if !strings.Contains(surface.mounted, "&lt;script&gt;") {
		t.Fatalf("expected escaped headline in markup:\n%s", surface.mounted)
	}
}

func TestMarkupAppliesDefaults(t *testing.T) {
	r, surface, _, _ := testRenderer()

	r.Show(models.Popup{ID: "p1", Headline: "Hi"})

	if !strings.Contains(surface.mounted, "poplift-pos-"+models.DefaultPosition) {
		t.Fatalf("expected default position class in markup:\n%s", surface.mounted)
	}
	if !strings.Contains(surface.mounted, models.DefaultCTAText) {
		t.Fatalf("expected default CTA label in markup:\n%s", surface.mounted)
	}
	if strings.Contains(surface.mounted, "<p>") {
		t.Fatal("empty subtext should not render a paragraph")
	}
}

func TestCloseLifecycle(t *testing.T) {
	r, surface, clock, tracked := testRenderer()

	r.Show(models.Popup{ID: "p1", Headline: "Hi"})
	surface.runFrames()
	r.Close()

	if surface.visible {
		t.Fatal("close should hide the popup immediately")
	}
	if surface.unmounted != 0 {
		t.Fatal("unmount must wait for the exit transition")
	}
	clock.Advance(transitionDuration)
	if surface.unmounted != 1 {
		t.Fatalf("expected unmount after the transition, got %d", surface.unmounted)
	}
	if surface.scrollLock {
		t.Fatal("scroll lock should be released after dismissal")
	}

	if len(*tracked) != 1 || (*tracked)[0] != (trackRecord{"p1", models.CampaignClose}) {
		t.Fatalf("expected a single close event, got %v", *tracked)
	}

	// Repeated close calls (button then Escape) do nothing more.
	r.Close()
	if len(*tracked) != 1 {
		t.Fatalf("duplicate close should not emit again, got %v", *tracked)
	}
}

func TestCTANavigatesWhenURLPresent(t *testing.T) {
	r, surface, _, tracked := testRenderer()

	r.Show(models.Popup{ID: "p1", Headline: "Hi", CTAURL: "https://example.com/offer"})
	surface.runFrames()
	r.CTA()

	if surface.navigated != "https://example.com/offer" {
		t.Fatalf("expected navigation to the CTA url, got %q", surface.navigated)
	}
	if len(*tracked) != 1 || (*tracked)[0] != (trackRecord{"p1", models.CampaignClick}) {
		t.Fatalf("expected a single click event, got %v", *tracked)
	}
}

func TestCTAWithoutURLDismissesWithoutCloseEvent(t *testing.T) {
	r, surface, clock, tracked := testRenderer()

	r.Show(models.Popup{ID: "p1", Headline: "Hi"})
	surface.runFrames()
	r.CTA()
	clock.Advance(transitionDuration)

	if surface.navigated != "" {
		t.Fatal("CTA without a url must not navigate")
	}
	if surface.unmounted != 1 {
		t.Fatal("CTA without a url should dismiss the popup")
	}
	if len(*tracked) != 1 || (*tracked)[0] != (trackRecord{"p1", models.CampaignClick}) {
		t.Fatalf("expected only the click event, got %v", *tracked)
	}
}

func TestNilSurfaceIsInert(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	r := newRenderer(nil, clock, func(string, string) {})

	// No surface means headless mode; nothing to render, nothing to panic.
	r.Show(models.Popup{ID: "p1", Headline: "Hi"})
	r.Close()
	r.CTA()
}
