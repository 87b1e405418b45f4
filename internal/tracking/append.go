package tracking

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"insightify/internal/config"
	"insightify/internal/coreerrors"
	"insightify/internal/pkg/geoip"
	ua "insightify/internal/pkg/user_agent"
	"insightify/internal/visitors"
)

// AppendPageViews persists a batch of pageviews for one project in a single
// transaction, upserting the session rollups alongside. An empty batch is a
// no-op. Validation failures refuse the whole batch before any write.
func AppendPageViews(dbManager cartridge.DBManager, logger *slog.Logger, projectID uint, batch []PageViewInput) ([]PageView, error) {
	if len(batch) == 0 {
		return nil, nil
	}

	if err := validatePageViewBatch(batch); err != nil {
		return nil, err
	}

	cfg := config.GetConfig()
	now := time.Now().UTC()

	pageViews := make([]PageView, 0, len(batch))
	for _, input := range batch {
		ts := input.Timestamp
		if ts.IsZero() {
			ts = now
		}

		referrer := input.Referrer
		if referrer == "" {
			referrer = DirectReferrer
		}

		parsed := ua.ParseUserAgent(input.UserAgent)
		pageViews = append(pageViews, PageView{
			ProjectID:        projectID,
			SessionID:        input.SessionID,
			VisitorSignature: visitors.BuildUniqueVisitorId(fmt.Sprintf("project-%d", projectID), input.IPAddress, input.UserAgent, cfg.PrivateKey),
			PageURL:          input.PageURL,
			Referrer:         referrer,
			UserAgent:        input.UserAgent,
			DeviceType:       deviceTypeFromParsedUA(parsed),
			Browser:          parsed.Browser,
			OS:               parsed.OS,
			Country:          geoip.CountryCode(input.IPAddress),
			Timestamp:        ts,
			CreatedAt:        now,
		})
	}

	db := dbManager.GetConnection()
	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		if err := tx.Create(&pageViews).Error; err != nil {
			return fmt.Errorf("failed to store pageviews: %w", err)
		}
		for i := range pageViews {
			if err := upsertSessionForPageView(tx, &pageViews[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logger.Error("Failed to append pageviews",
			slog.Uint64("project_id", uint64(projectID)),
			slog.Int("batch_size", len(batch)),
			slog.Any("error", err))
		return nil, coreerrors.FromDBError("append pageviews", err)
	}

	return pageViews, nil
}

// AppendEvents persists a batch of custom events for one project in a single
// transaction, incrementing the session event counters alongside.
func AppendEvents(dbManager cartridge.DBManager, logger *slog.Logger, projectID uint, batch []EventInput) ([]Event, error) {
	if len(batch) == 0 {
		return nil, nil
	}

	if err := validateEventBatch(batch); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	events := make([]Event, 0, len(batch))
	for _, input := range batch {
		ts := input.Timestamp
		if ts.IsZero() {
			ts = now
		}

		payload := ""
		if input.Payload != nil {
			raw, err := json.Marshal(input.Payload)
			if err != nil {
				return nil, coreerrors.NewValidationError("payload", fmt.Sprintf("not serializable: %v", err))
			}
			payload = string(raw)
		}

		events = append(events, Event{
			ProjectID: projectID,
			SessionID: input.SessionID,
			EventType: input.EventType,
			Payload:   payload,
			PageURL:   input.PageURL,
			Timestamp: ts,
			CreatedAt: now,
		})
	}

	db := dbManager.GetConnection()
	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		if err := tx.Create(&events).Error; err != nil {
			return fmt.Errorf("failed to store events: %w", err)
		}
		for i := range events {
			if err := upsertSessionForEvent(tx, &events[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logger.Error("Failed to append events",
			slog.Uint64("project_id", uint64(projectID)),
			slog.Int("batch_size", len(batch)),
			slog.Any("error", err))
		return nil, coreerrors.FromDBError("append events", err)
	}

	return events, nil
}

func validatePageViewBatch(batch []PageViewInput) error {
	for i, input := range batch {
		if input.SessionID == "" {
			return coreerrors.NewValidationError("sessionId", fmt.Sprintf("missing in record %d", i))
		}
		if input.PageURL == "" {
			return coreerrors.NewValidationError("pageUrl", fmt.Sprintf("missing in record %d", i))
		}
	}
	return nil
}

func validateEventBatch(batch []EventInput) error {
	for i, input := range batch {
		if input.SessionID == "" {
			return coreerrors.NewValidationError("sessionId", fmt.Sprintf("missing in record %d", i))
		}
		if input.EventType == "" {
			return coreerrors.NewValidationError("eventType", fmt.Sprintf("missing in record %d", i))
		}
	}
	return nil
}

// upsertSessionForPageView merges one pageview into its session rollup. The
// first pageview opens the session with a null end time; every later one
// extends it, so a bounce stays page_view_count = 1 with EndTime null.
// Sessions opened by an event carry empty device fields until their first
// pageview fills them in.
func upsertSessionForPageView(tx *gorm.DB, pv *PageView) error {
	now := time.Now().UTC()
	query := `
		INSERT INTO sessions (project_id, session_id, start_time, end_time, page_view_count, event_count, device_type, browser, os, created_at, updated_at)
		VALUES (?, ?, ?, NULL, 1, 0, ?, ?, ?, ?, ?)
		ON CONFLICT (project_id, session_id) DO UPDATE SET
			page_view_count = sessions.page_view_count + 1,
			end_time = ?,
			device_type = CASE WHEN sessions.device_type = '' THEN excluded.device_type ELSE sessions.device_type END,
			browser = CASE WHEN sessions.browser = '' THEN excluded.browser ELSE sessions.browser END,
			os = CASE WHEN sessions.os = '' THEN excluded.os ELSE sessions.os END,
			updated_at = ?
	`
	err := tx.Exec(query,
		pv.ProjectID, pv.SessionID, pv.Timestamp,
		pv.DeviceType, pv.Browser, pv.OS, now, now,
		pv.Timestamp, now).Error
	if err != nil {
		return fmt.Errorf("failed to update session rollup: %w", err)
	}
	return nil
}

// upsertSessionForEvent bumps the event counter; an event arriving before
// any pageview still opens the session so the counter is never lost.
func upsertSessionForEvent(tx *gorm.DB, ev *Event) error {
	now := time.Now().UTC()
	query := `
		INSERT INTO sessions (project_id, session_id, start_time, end_time, page_view_count, event_count, device_type, browser, os, created_at, updated_at)
		VALUES (?, ?, ?, NULL, 0, 1, '', '', '', ?, ?)
		ON CONFLICT (project_id, session_id) DO UPDATE SET
			event_count = sessions.event_count + 1,
			updated_at = ?
	`
	err := tx.Exec(query, ev.ProjectID, ev.SessionID, ev.Timestamp, now, now, now).Error
	if err != nil {
		return fmt.Errorf("failed to update session rollup: %w", err)
	}
	return nil
}

func deviceTypeFromParsedUA(parsed ua.UserAgent) string {
	if parsed.Mobile {
		return DeviceMobile
	}
	if parsed.Tablet {
		return DeviceTablet
	}
	return DeviceDesktop
}
