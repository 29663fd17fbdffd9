package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/fintrack/fintrack-api/internal/domain"

	"github.com/google/uuid"
)

// ============================================================
// Alert settings — one row per user, created with defaults
// ============================================================

const (
	defaultUrgentWindowDays   = 3
	defaultUpcomingWindowDays = 30
)

// GetAlertSettings returns the user's obligation windows, creating the
// default row on first access.
func (c *Client) GetAlertSettings(ctx context.Context, userID string) (*domain.AlertSettings, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetAlertSettings")
	defer span.End()

	path := fmt.Sprintf("alert_settings?user_id=eq.%s&limit=1", userID)
	body, err := c.doRequest(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}

	var rows []domain.AlertSettings
	if body != nil {
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, fmt.Errorf("decode alert settings: %w", err)
		}
	}
	if len(rows) > 0 {
		return &rows[0], nil
	}

	settings := &domain.AlertSettings{
		ID:             uuid.NewString(),
		UserID:         userID,
		UrgentWindow:   defaultUrgentWindowDays,
		UpcomingWindow: defaultUpcomingWindowDays,
		Revision:       1,
	}
	payload, err := toPayload(settings)
	if err != nil {
		return nil, err
	}
	created, err := c.doPost(ctx, "alert_settings", payload)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(created, &rows); err != nil || len(rows) == 0 {
		return settings, nil
	}
	return &rows[0], nil
}

func (c *Client) UpdateAlertSettings(ctx context.Context, settings *domain.AlertSettings, fromRevision int) (*domain.AlertSettings, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateAlertSettings")
	defer span.End()

	payload, err := toPayload(settings, "id", "user_id")
	if err != nil {
		return nil, err
	}
	body, err := c.updateWithRevision(ctx, "alert_settings", settings.UserID, settings.ID, fromRevision, payload)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, &domain.ErrConflict{Message: "alert settings modified concurrently"}
	}

	var rows []domain.AlertSettings
	if err := json.Unmarshal(body, &rows); err != nil || len(rows) == 0 {
		return nil, fmt.Errorf("decode updated alert settings: %w", err)
	}
	return &rows[0], nil
}
