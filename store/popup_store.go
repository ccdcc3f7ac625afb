// api/store/popup_store.go
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"poplift/api/models"
)

// PopupStore persists popup campaign definitions in PostgreSQL. Owner
// supplied text fields are stripped of markup before they are stored; the
// pixel escapes them again at render time.
type PopupStore struct {
	db        *sql.DB
	sanitizer *bluemonday.Policy
}

// NewPopupStore creates a new PopupStore instance.
func NewPopupStore(db *sql.DB) *PopupStore {
	return &PopupStore{
		db:        db,
		sanitizer: bluemonday.StrictPolicy(),
	}
}

func (s *PopupStore) sanitize(p *models.Popup) {
	p.Headline = s.sanitizer.Sanitize(p.Headline)
	p.Subtext = s.sanitizer.Sanitize(p.Subtext)
	p.CTAText = s.sanitizer.Sanitize(p.CTAText)
}

// CreatePopup inserts a new popup definition for the owner.
func (s *PopupStore) CreatePopup(ctx context.Context, ownerID string, p models.Popup) (*models.Popup, error) {
	s.sanitize(&p)
	p.ApplyDefaults()
	p.ID = uuid.New().String()
	p.OwnerID = ownerID

	query := `
		INSERT INTO popups (
			id, owner_id, type, position, scroll_percent, delay_seconds,
			headline, subtext, cta_text, cta_url, active
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at;
	`
	err := s.db.QueryRowContext(ctx, query,
		p.ID, p.OwnerID, p.Type, p.Position, p.ScrollPercent, p.DelaySeconds,
		p.Headline, p.Subtext, p.CTAText, p.CTAURL, p.Active,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create popup: %w", err)
	}

	return &p, nil
}

// UpdatePopup rewrites an existing popup owned by ownerID.
func (s *PopupStore) UpdatePopup(ctx context.Context, ownerID, popupID string, p models.Popup) (*models.Popup, error) {
	s.sanitize(&p)
	p.ApplyDefaults()
	p.ID = popupID
	p.OwnerID = ownerID

	query := `
		UPDATE popups
		SET type = $3, position = $4, scroll_percent = $5, delay_seconds = $6,
			headline = $7, subtext = $8, cta_text = $9, cta_url = $10,
			active = $11, updated_at = NOW()
		WHERE id = $1 AND owner_id = $2
		RETURNING created_at, updated_at;
	`
	err := s.db.QueryRowContext(ctx, query,
		p.ID, p.OwnerID, p.Type, p.Position, p.ScrollPercent, p.DelaySeconds,
		p.Headline, p.Subtext, p.CTAText, p.CTAURL, p.Active,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("popup '%s' not found", popupID)
		}
		return nil, fmt.Errorf("failed to update popup: %w", err)
	}

	return &p, nil
}

// DeletePopup removes a popup owned by ownerID.
func (s *PopupStore) DeletePopup(ctx context.Context, ownerID, popupID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM popups WHERE id = $1 AND owner_id = $2;`, popupID, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete popup: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("popup '%s' not found", popupID)
	}
	return nil
}

// ListActivePopups returns the active popups served to the pixel for a
// site owner.
func (s *PopupStore) ListActivePopups(ctx context.Context, ownerID string) ([]models.Popup, error) {
	return s.list(ctx, ownerID, true)
}

// ListPopups returns every popup for a site owner, active or not.
func (s *PopupStore) ListPopups(ctx context.Context, ownerID string) ([]models.Popup, error) {
	return s.list(ctx, ownerID, false)
}

func (s *PopupStore) list(ctx context.Context, ownerID string, activeOnly bool) ([]models.Popup, error) {
	query := `
		SELECT id, owner_id, type, position, scroll_percent, delay_seconds,
			headline, subtext, cta_text, cta_url, active, created_at, updated_at
		FROM popups
		WHERE owner_id = $1
	`
	if activeOnly {
		query += ` AND active = TRUE`
	}
	query += ` ORDER BY created_at ASC;`

	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list popups: %w", err)
	}
	defer rows.Close()

	var popups []models.Popup
	for rows.Next() {
		var p models.Popup
		if err := rows.Scan(
			&p.ID, &p.OwnerID, &p.Type, &p.Position, &p.ScrollPercent, &p.DelaySeconds,
			&p.Headline, &p.Subtext, &p.CTAText, &p.CTAURL, &p.Active, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan popup row: %w", err)
		}
		p.ApplyDefaults()
		popups = append(popups, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating popup rows: %w", err)
	}

	return popups, nil
}
