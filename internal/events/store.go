package events

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// insertBatchSize bounds the rows per INSERT statement inside one batch.
const insertBatchSize = 200

// Store writes queued events with gorm.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewStore creates a Store on db.
func NewStore(db *gorm.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// WriteBatch inserts page views and clicks in a single transaction,
// preserving slice order.
func (s *Store) WriteBatch(ctx context.Context, pageViews []AnalyticsEvent, clicks []ClickEvent) error {
	return sqlite.PerformWrite(s.logger, s.db.WithContext(ctx), func(tx *gorm.DB) error {
		if len(pageViews) > 0 {
			if err := tx.CreateInBatches(pageViews, insertBatchSize).Error; err != nil {
				return fmt.Errorf("insert analytics events: %w", err)
			}
		}
		if len(clicks) > 0 {
			if err := tx.CreateInBatches(clicks, insertBatchSize).Error; err != nil {
				return fmt.Errorf("insert click events: %w", err)
			}
		}
		return nil
	})
}
