// api/store/campaign_store.go
package store

import (
	"context"
	"fmt"
	"log"
	"time"

	"poplift/api/database"
	"poplift/api/models"
)

// CampaignStore persists popup engagement events (impression/click/close)
// in ClickHouse, separately from page analytics.
type CampaignStore struct {
	DB *database.ClickHouseClient
}

func NewCampaignStore(chClient *database.ClickHouseClient) *CampaignStore {
	return &CampaignStore{
		DB: chClient,
	}
}

func (s *CampaignStore) InsertCampaignEvents(ctx context.Context, events []models.CampaignEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := s.DB.Conn.PrepareBatch(ctx, `
		INSERT INTO campaign_events (
			event_id, popup_id, event_type, url, user_agent, ip_address, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch insert: %w", err)
	}

	for _, event := range events {
		err := batch.Append(
			event.EventID,
			event.PopupID,
			event.EventType,
			event.URL,
			event.UserAgent,
			event.IPAddress,
			event.Timestamp,
		)
		if err != nil {
			log.Printf("Error appending campaign event to batch (EventID: %s): %v", event.EventID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	return nil
}

// GetPopupFunnel aggregates impressions, clicks and closes per popup
// over the given window.
func (s *CampaignStore) GetPopupFunnel(ctx context.Context, popupIDs []string, start, end time.Time) ([]models.PopupFunnelResult, error) {
	if len(popupIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT popup_id,
			countIf(event_type = 'impression') AS impressions,
			countIf(event_type = 'click') AS clicks,
			countIf(event_type = 'close') AS closes
		FROM campaign_events
		WHERE popup_id IN (?) AND timestamp >= ? AND timestamp <= ?
		GROUP BY popup_id
		ORDER BY impressions DESC
	`
	rows, err := s.DB.Conn.Query(ctx, query, popupIDs, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query popup funnel: %w", err)
	}
	defer rows.Close()

	var results []models.PopupFunnelResult
	for rows.Next() {
		var r models.PopupFunnelResult
		if err := rows.Scan(&r.PopupID, &r.Impressions, &r.Clicks, &r.Closes); err != nil {
			log.Printf("Error scanning row for popup funnel: %v", err)
			continue
		}
		results = append(results, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows for popup funnel: %w", err)
	}

	return results, nil
}
