// Package repo implements the interaction ledger. This file holds the
// context-aware ledger operations: append, the one-code-per-user eligibility
// check, on-demand analytics aggregation, paginated listing, and the
// administrative reset.
package repo

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-discount-agent/internal/domain"
)

// AppendInteraction inserts one ledger row. The ledger is append-only: rows
// are never updated, and the function never deduplicates — repeated
// pending_creator_info rows for the same user are expected to accumulate.
// A missing ID is filled with a fresh UUID.
func AppendInteraction(ctx context.Context, db *gorm.DB, rec *domain.InteractionRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	return db.WithContext(ctx).Create(rec).Error
}

// CanIssueCode reports whether (platform, userID) is still eligible for a
// code: true iff no completed row with a non-null issued code exists for the
// pair. Callers that need the check-then-append sequence to be atomic must
// hold the per-user lock owned by the agent service.
func CanIssueCode(ctx context.Context, db *gorm.DB, platform, userID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.InteractionRecord{}).
		Where("platform = ? AND user_id = ? AND conversation_status = ? AND discount_code_sent IS NOT NULL",
			platform, userID, string(domain.StatusCompleted)).
		Count(&n).Error
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// CreatorAnalytics recomputes the aggregate summary from the full record set.
// The summary is always a pure function of the rows: it is derived here with
// a full scan and never stored. Records without an identified creator fall
// into the "unknown" bucket.
func CreatorAnalytics(ctx context.Context, db *gorm.DB) (*domain.AnalyticsSummary, error) {
	var rows []domain.InteractionRecord
	if err := db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}

	summary := &domain.AnalyticsSummary{
		Creators: make(map[string]domain.CreatorStats),
	}
	for _, row := range rows {
		summary.TotalRequests++
		completed := row.Status == string(domain.StatusCompleted)
		if completed {
			summary.TotalCompleted++
		}

		creator := domain.UnknownCreator
		if row.Creator != nil && *row.Creator != "" {
			creator = *row.Creator
		}
		stats, ok := summary.Creators[creator]
		if !ok {
			stats = domain.CreatorStats{
				CreatorHandle: creator,
				Platforms:     make(map[string]domain.PlatformStats),
			}
		}
		stats.TotalRequests++
		if completed {
			stats.TotalCompleted++
		}

		ps := stats.Platforms[row.Platform]
		ps.Requests++
		if completed {
			ps.CodesSent++
		}
		stats.Platforms[row.Platform] = ps
		summary.Creators[creator] = stats
	}
	summary.TotalCreators = len(summary.Creators)
	return summary, nil
}

// CountInteractions returns the total ledger size for pagination.
func CountInteractions(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.InteractionRecord{}).Count(&n).Error
	return n, err
}

// ListInteractionsPage returns one page of ledger rows, newest first.
func ListInteractionsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.InteractionRecord, error) {
	var rows []domain.InteractionRecord
	err := db.WithContext(ctx).
		Order("timestamp DESC").
		Offset(offset).
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// ResetInteractions wipes the ledger wholesale (administrative reset, used
// for demo and test isolation).
func ResetInteractions(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&domain.InteractionRecord{}).Error
}
