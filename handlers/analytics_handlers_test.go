package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"poplift/api/models"
	"poplift/api/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// authAs fakes the auth middleware for protected-route tests.
func authAs(userID int) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user_id", userID)
		c.Next()
	}
}

func performRequest(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// fakeAnalyticsSink records inserts and serves canned stats.
type fakeAnalyticsSink struct {
	inserted   []models.AnalyticsEvent
	insertErr  error
	counts     []store.EventCountByTime
	topPages   []models.TopPageResult
	lastOwner  string
	lastFilter string
}

func (f *fakeAnalyticsSink) InsertAnalyticsEvents(ctx context.Context, events []models.AnalyticsEvent) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, events...)
	return nil
}

func (f *fakeAnalyticsSink) GetEventCountsOverTime(ctx context.Context, ownerID, interval string, start, end time.Time, eventTypeFilter string) ([]store.EventCountByTime, error) {
	f.lastOwner = ownerID
	f.lastFilter = eventTypeFilter
	return f.counts, nil
}

func (f *fakeAnalyticsSink) GetUniqueVisitorsOverTime(ctx context.Context, ownerID, interval string, start, end time.Time) ([]store.EventCountByTime, error) {
	f.lastOwner = ownerID
	return f.counts, nil
}

func (f *fakeAnalyticsSink) GetTopPages(ctx context.Context, ownerID string, start, end time.Time, limit uint64) ([]models.TopPageResult, error) {
	f.lastOwner = ownerID
	return f.topPages, nil
}

func analyticsRouter(sink AnalyticsSink) *gin.Engine {
	h := NewAnalyticsHandlers(sink)
	r := gin.New()
	r.POST("/api/analytics", h.Ingest)
	stats := r.Group("/api/stats", authAs(42))
	stats.GET("/event-counts", h.GetEventCountsOverTime)
	stats.GET("/unique-visitors", h.GetUniqueVisitorsOverTime)
	stats.GET("/top-pages", h.GetTopPages)
	return r
}

const validAnalyticsBody = `{
	"event_type": "pageview",
	"user_id": "42",
	"session_id": "pls_abc",
	"visitor_id": "plv_def",
	"page_url": "https://example.com/"
}`

func TestIngestAcceptsValidEvent(t *testing.T) {
	sink := &fakeAnalyticsSink{}
	w := performRequest(analyticsRouter(sink), http.MethodPost, "/api/analytics", validAnalyticsBody)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(sink.inserted) != 1 {
		t.Fatalf("expected 1 inserted event, got %d", len(sink.inserted))
	}
	evt := sink.inserted[0]
	if evt.EventID == "" {
		t.Fatal("ingest should assign a server-side event id")
	}
	if evt.Timestamp.IsZero() {
		t.Fatal("ingest should default a missing timestamp")
	}
}

func TestIngestRejectsMissingFields(t *testing.T) {
	cases := map[string]string{
		"user_id":    `{"event_type":"pageview","session_id":"s","visitor_id":"v","page_url":"u"}`,
		"session_id": `{"event_type":"pageview","user_id":"42","visitor_id":"v","page_url":"u"}`,
		"visitor_id": `{"event_type":"pageview","user_id":"42","session_id":"s","page_url":"u"}`,
		"page_url":   `{"event_type":"pageview","user_id":"42","session_id":"s","visitor_id":"v"}`,
	}
	for missing, body := range cases {
		sink := &fakeAnalyticsSink{}
		w := performRequest(analyticsRouter(sink), http.MethodPost, "/api/analytics", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("missing %s: expected 400, got %d", missing, w.Code)
		}
		if len(sink.inserted) != 0 {
			t.Errorf("missing %s: nothing should be inserted", missing)
		}
	}
}

func TestIngestRejectsUnknownEventType(t *testing.T) {
	body := `{"event_type":"clickjack","user_id":"42","session_id":"s","visitor_id":"v","page_url":"u"}`
	w := performRequest(analyticsRouter(&fakeAnalyticsSink{}), http.MethodPost, "/api/analytics", body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown event type, got %d", w.Code)
	}
}

func TestIngestRejectsMalformedJSON(t *testing.T) {
	w := performRequest(analyticsRouter(&fakeAnalyticsSink{}), http.MethodPost, "/api/analytics", `{not json`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", w.Code)
	}
}

func TestIngestHidesStoreFailures(t *testing.T) {
	sink := &fakeAnalyticsSink{insertErr: errors.New("clickhouse down")}
	w := performRequest(analyticsRouter(sink), http.MethodPost, "/api/analytics", validAnalyticsBody)

	if w.Code != http.StatusOK {
		t.Fatalf("persistence failures must stay server-side, got %d", w.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if body["success"] != true {
		t.Fatalf("expected a success-shaped response, got %v", body)
	}
}

func TestEventCountsRequireInterval(t *testing.T) {
	w := performRequest(analyticsRouter(&fakeAnalyticsSink{}), http.MethodGet, "/api/stats/event-counts", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without interval, got %d", w.Code)
	}
}

func TestEventCountsScopedToAuthenticatedOwner(t *testing.T) {
	sink := &fakeAnalyticsSink{counts: []store.EventCountByTime{}}
	w := performRequest(analyticsRouter(sink), http.MethodGet, "/api/stats/event-counts?interval=Day&eventType=pageview", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if sink.lastOwner != "42" {
		t.Fatalf("stats must be scoped to the authenticated owner, got %q", sink.lastOwner)
	}
	if sink.lastFilter != "pageview" {
		t.Fatalf("event type filter not forwarded, got %q", sink.lastFilter)
	}
}

func TestStatsRejectBadTimestamps(t *testing.T) {
	w := performRequest(analyticsRouter(&fakeAnalyticsSink{}), http.MethodGet, "/api/stats/event-counts?interval=Day&start=yesterday", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a non-RFC3339 start, got %d", w.Code)
	}
}

func TestTopPagesRejectsBadLimit(t *testing.T) {
	for _, limit := range []string{"0", "-3", "lots"} {
		w := performRequest(analyticsRouter(&fakeAnalyticsSink{}), http.MethodGet, "/api/stats/top-pages?limit="+limit, "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("limit %q: expected 400, got %d", limit, w.Code)
		}
	}
}
