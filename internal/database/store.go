package database

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/redalert-desktop/redalert/internal/alerts"
)

// DefaultHistoryLimit bounds RecentAlerts when the caller asks for nothing
// or too much
const DefaultHistoryLimit = 100

// Store persists received alerts
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewStore wraps a migrated database
func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger, now: time.Now}
}

// SaveAlerts records alerts, skipping fingerprints already stored.
// It returns how many rows were inserted.
func (s *Store) SaveAlerts(ctx context.Context, batch []alerts.Alert, source Source) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}

	receivedAt := s.now().UTC()
	records := make([]AlertRecord, 0, len(batch))
	seen := make(map[string]struct{}, len(batch))
	for _, a := range batch {
		rec := NewAlertRecord(a, source, receivedAt)
		if _, dup := seen[rec.Fingerprint]; dup {
			continue
		}
		seen[rec.Fingerprint] = struct{}{}
		records = append(records, rec)
	}

	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "fingerprint"}}, DoNothing: true}).
		Create(&records)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to save alerts: %w", result.Error)
	}
	return int(result.RowsAffected), nil
}

// RecentAlerts returns the newest records first. limit <= 0 or above
// DefaultHistoryLimit is clamped to DefaultHistoryLimit.
func (s *Store) RecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	if limit <= 0 || limit > DefaultHistoryLimit {
		limit = DefaultHistoryLimit
	}

	var records []AlertRecord
	err := s.db.WithContext(ctx).
		Order("received_at DESC").
		Order("issued_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load alert history: %w", err)
	}
	return records, nil
}

// PruneOlderThan deletes records received before cutoff
func (s *Store) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("received_at < ?", cutoff.UTC()).
		Delete(&AlertRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to prune alert history: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		s.logger.Info("Pruned alert history",
			zap.Int64("deleted", result.RowsAffected),
			zap.Time("cutoff", cutoff),
		)
	}
	return result.RowsAffected, nil
}

// RunRetention prunes records older than retention once per interval until
// ctx is done.
func (s *Store) RunRetention(ctx context.Context, retention, interval time.Duration) {
	if retention <= 0 {
		return
	}
	prune := func() {
		if _, err := s.PruneOlderThan(ctx, s.now().Add(-retention)); err != nil && ctx.Err() == nil {
			s.logger.Warn("Alert history retention failed", zap.Error(err))
		}
	}

	prune()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}
