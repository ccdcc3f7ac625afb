// api/store/analytics_store.go
package store

import (
	"context"
	"fmt"
	"log"
	"time"

	"poplift/api/database"
	"poplift/api/models"
	"poplift/api/utils"
)

type AnalyticsStore struct {
	DB *database.ClickHouseClient
}

type EventCountByTime struct {
	Time      time.Time `json:"time"`
	EventType *string   `json:"eventType,omitempty"`
	Count     uint64    `json:"count"`
}

func NewAnalyticsStore(chClient *database.ClickHouseClient) *AnalyticsStore {
	return &AnalyticsStore{
		DB: chClient,
	}
}

func (s *AnalyticsStore) InsertAnalyticsEvents(ctx context.Context, events []models.AnalyticsEvent) error {
	if len(events) == 0 {
		return nil
	}

	// Column order must exactly match the analytics_events table schema.
	batch, err := s.DB.Conn.PrepareBatch(ctx, `
		INSERT INTO analytics_events (
			event_id, event_type, user_id, session_id, visitor_id, timestamp,
			page_url, page_title, referrer, user_agent, ip_address,
			screen_width, screen_height, scroll_depth, time_on_page,
			utm_source, utm_medium, utm_campaign
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch insert: %w", err)
	}

	for _, event := range events {
		err := batch.Append(
			event.EventID,
			event.EventType,
			event.UserID,
			event.SessionID,
			event.VisitorID,
			event.Timestamp,
			event.PageURL,
			event.PageTitle,
			event.Referrer,
			event.UserAgent,
			event.IPAddress,
			int32(event.ScreenWidth),
			int32(event.ScreenHeight),
			int32(event.ScrollDepth),
			event.TimeOnPage,
			event.UTMSource,
			event.UTMMedium,
			event.UTMCampaign,
		)
		if err != nil {
			log.Printf("Error appending event to batch (EventID: %s): %v", event.EventID, err)
		}
	}

	err = batch.Send()
	if err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	return nil
}

func (s *AnalyticsStore) GetEventCountsOverTime(ctx context.Context, ownerID, interval string, start, end time.Time, eventTypeFilter string) ([]EventCountByTime, error) {
	if !utils.IsValidInterval(interval) {
		return nil, fmt.Errorf("invalid interval: %s", interval)
	}

	args := []interface{}{ownerID, start, end}

	selectCols := fmt.Sprintf("toStartOf%s(timestamp) as time_bucket, count() as total_events", interval)
	groupByCols := "time_bucket"
	whereClause := "WHERE user_id = ? AND timestamp >= ? AND timestamp <= ?"
	orderByCols := "time_bucket ASC"
	isFilteringByType := eventTypeFilter != ""

	if isFilteringByType {
		selectCols += ", event_type"
		groupByCols += ", event_type"
		whereClause += " AND event_type = ?"
		args = append(args, eventTypeFilter)
		orderByCols += ", event_type ASC"
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM analytics_events
		%s
		GROUP BY %s
		ORDER BY %s
	`, selectCols, whereClause, groupByCols, orderByCols)

	rows, err := s.DB.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query event counts over time: %w", err)
	}
	defer rows.Close()

	var results []EventCountByTime
	for rows.Next() {
		var (
			timeBucket    time.Time
			count         uint64
			eventTypeDB   string
			currentResult EventCountByTime
		)

		if isFilteringByType {
			if err := rows.Scan(&timeBucket, &count, &eventTypeDB); err != nil {
				log.Printf("Error scanning row for event counts over time (with type filter): %v", err)
				continue
			}
			currentResult.EventType = &eventTypeDB
		} else {
			if err := rows.Scan(&timeBucket, &count); err != nil {
				log.Printf("Error scanning row for event counts over time (no type filter): %v", err)
				continue
			}
			currentResult.EventType = nil
		}

		currentResult.Time = timeBucket
		currentResult.Count = count
		results = append(results, currentResult)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during event counts over time query: %w", err)
	}

	return results, nil
}

func (s *AnalyticsStore) GetUniqueVisitorsOverTime(ctx context.Context, ownerID, interval string, start, end time.Time) ([]EventCountByTime, error) {
	if !utils.IsValidInterval(interval) {
		return nil, fmt.Errorf("invalid interval: %s", interval)
	}

	query := fmt.Sprintf(`
		SELECT toStartOf%s(timestamp) AS time_bucket, uniq(visitor_id) AS unique_visitors
		FROM analytics_events
		WHERE user_id = ? AND timestamp >= ? AND timestamp <= ?
		GROUP BY time_bucket
		ORDER BY time_bucket ASC
	`, interval)

	rows, err := s.DB.Conn.Query(ctx, query, ownerID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query unique visitors over time: %w", err)
	}
	defer rows.Close()

	var results []EventCountByTime
	for rows.Next() {
		var timeBucket time.Time
		var uniqueVisitors uint64
		if err := rows.Scan(&timeBucket, &uniqueVisitors); err != nil {
			log.Printf("Error scanning row for unique visitors: %v", err)
			continue
		}
		results = append(results, EventCountByTime{
			Time:  timeBucket,
			Count: uniqueVisitors,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows for unique visitors: %w", err)
	}

	return results, nil
}

func (s *AnalyticsStore) GetTopPages(ctx context.Context, ownerID string, start, end time.Time, limit uint64) ([]models.TopPageResult, error) {
	if limit == 0 {
		limit = 10
	}

	query := `
		SELECT page_url, count() as view_count
		FROM analytics_events
		WHERE user_id = ? AND event_type = 'pageview' AND timestamp >= ? AND timestamp <= ?
		GROUP BY page_url
		ORDER BY view_count DESC
		LIMIT ?
	`
	rows, err := s.DB.Conn.Query(ctx, query, ownerID, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top pages: %w", err)
	}
	defer rows.Close()

	var results []models.TopPageResult
	for rows.Next() {
		var pageURL string
		var count uint64
		if err := rows.Scan(&pageURL, &count); err != nil {
			log.Printf("Error scanning row for top pages: %v", err)
			continue
		}
		results = append(results, models.TopPageResult{
			PageURL: pageURL,
			Count:   count,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows for top pages: %w", err)
	}

	return results, nil
}
