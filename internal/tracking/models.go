package tracking

import "time"

// DirectReferrer is stored when a pageview arrives with no referrer.
const DirectReferrer = "direct"

// Device type values derived from the user agent at ingest time.
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
)

// PageView represents one browser page load. Rows are immutable once
// written; only the retention job deletes them.
type PageView struct {
	ID               uint   `gorm:"primaryKey;autoIncrement"`
	ProjectID        uint   `gorm:"index:idx_pageviews_project_timestamp;not null"`
	SessionID        string `gorm:"index;not null"`
	VisitorSignature string `gorm:"index;size:64;not null"`
	PageURL          string `gorm:"index;not null"`
	Referrer         string `gorm:"not null;default:direct"`
	UserAgent        string
	DeviceType       string    `gorm:"index"`
	Browser          string
	OS               string
	Country          string
	Timestamp        time.Time `gorm:"index:idx_pageviews_project_timestamp;not null"`
	CreatedAt        time.Time
}

// Event represents one custom or system interaction.
type Event struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	ProjectID uint   `gorm:"index:idx_events_project_timestamp;not null"`
	SessionID string `gorm:"index;not null"`
	EventType string `gorm:"index;not null"`
	Payload   string `gorm:"type:text"`
	PageURL   string
	Timestamp time.Time `gorm:"index:idx_events_project_timestamp;not null"`
	CreatedAt time.Time
}

// Session is the derived rollup of pageviews and events sharing one session
// id. It is upserted transactionally with every append; EndTime stays null
// until a second pageview for the session arrives.
type Session struct {
	ID            uint       `gorm:"primaryKey;autoIncrement"`
	ProjectID     uint       `gorm:"uniqueIndex:idx_sessions_unique;not null"`
	SessionID     string     `gorm:"uniqueIndex:idx_sessions_unique;not null"`
	StartTime     time.Time  `gorm:"index;not null"`
	EndTime       *time.Time
	PageViewCount int        `gorm:"not null;default:0"`
	EventCount    int        `gorm:"not null;default:0"`
	DeviceType    string     `gorm:"index"`
	Browser       string
	OS            string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PageViewInput is the pre-validated ingestion payload for one page load.
// Device, browser, OS, country and the visitor signature are derived here,
// not supplied by the snippet.
type PageViewInput struct {
	SessionID string
	PageURL   string
	Referrer  string
	UserAgent string
	IPAddress string
	Timestamp time.Time // zero means "assign at write time"
}

// EventInput is the ingestion payload for one custom event.
type EventInput struct {
	SessionID string
	EventType string
	Payload   map[string]any
	PageURL   string
	Timestamp time.Time
}
