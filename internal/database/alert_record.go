package database

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/redalert-desktop/redalert/internal/alerts"
)

// Source records which path delivered an alert first
type Source string

const (
	SourceStream Source = "stream"
	SourcePoll   Source = "poll"
)

// AlertRecord is one received alert kept for history
type AlertRecord struct {
	ID          string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Fingerprint string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"fingerprint"`
	AlertTypeID int       `gorm:"not null;index" json:"alert_type_id"`
	Name        string    `gorm:"type:varchar(255)" json:"name"`
	EnglishName string    `gorm:"type:varchar(255);index" json:"english_name"`
	AreaNameHe  string    `gorm:"type:varchar(255)" json:"area_name_he"`
	AreaNameEn  string    `gorm:"type:varchar(255)" json:"area_name_en"`
	IssuedAt    string    `gorm:"type:varchar(32)" json:"issued_at"`
	ReceivedAt  time.Time `gorm:"not null;index" json:"received_at"`
	Source      Source    `gorm:"type:varchar(16);not null" json:"source"`
	CreatedAt   time.Time `json:"created_at"`
}

func (AlertRecord) TableName() string {
	return "alert_records"
}

// BeforeCreate assigns a UUID when none is set
func (r *AlertRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// NewAlertRecord converts a received alert
func NewAlertRecord(a alerts.Alert, source Source, receivedAt time.Time) AlertRecord {
	return AlertRecord{
		Fingerprint: alerts.Fingerprint(a),
		AlertTypeID: int(a.AlertTypeID),
		Name:        a.Name,
		EnglishName: a.EnglishName,
		AreaNameHe:  a.AreaNameHe,
		AreaNameEn:  a.AreaNameEn,
		IssuedAt:    a.TimeStamp,
		ReceivedAt:  receivedAt,
		Source:      source,
	}
}

// Alert converts the record back to the wire shape
func (r AlertRecord) Alert() alerts.Alert {
	return alerts.Alert{
		AlertTypeID: alerts.AlertTypeID(r.AlertTypeID),
		Name:        r.Name,
		EnglishName: r.EnglishName,
		TimeStamp:   r.IssuedAt,
		AreaNameHe:  r.AreaNameHe,
		AreaNameEn:  r.AreaNameEn,
	}
}
