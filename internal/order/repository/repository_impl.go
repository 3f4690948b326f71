package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qazaqsoft/kaspisync/internal/clock"
	"github.com/qazaqsoft/kaspisync/internal/order/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type store struct {
	db         *gorm.DB
	clock      clock.Clock
	staleAfter time.Duration
}

// Provide builds the gorm-backed reservation store. staleAfter bounds how long
// an orphaned claim blocks reprocessing after a worker crash.
func Provide(db *gorm.DB, clk clock.Clock, staleAfter time.Duration) domain.ReservationStore {
	if staleAfter <= 0 {
		staleAfter = 30 * time.Minute
	}
	return &store{db: db, clock: clk, staleAfter: staleAfter}
}

func (s *store) Reserve(ctx context.Context, orderCode string, kaspiOrderID, totalPrice int64) (domain.Reservation, error) {
	if orderCode == "" {
		return domain.Reservation{}, domain.ErrEmptyOrderCode
	}

	token := uuid.NewString()
	now := s.clock.Now()

	record := domain.SyncRecord{
		OrderCode:       orderCode,
		KaspiOrderID:    kaspiOrderID,
		TotalPrice:      totalPrice,
		ProcessingToken: &token,
		ProcessingAt:    &now,
		CreatedAt:       now,
	}
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_code"}},
			DoNothing: true,
		}).
		Create(&record)
	if result.Error != nil {
		return domain.Reservation{}, fmt.Errorf("reserve %s: %w", orderCode, result.Error)
	}
	if result.RowsAffected == 1 {
		return domain.Reservation{Claimed: true, Token: token}, nil
	}

	// The row already exists: either terminally synced, claimed elsewhere, or
	// released and retryable. Decide with a single conditional update so two
	// workers racing here cannot both win.
	existing, err := s.Get(ctx, orderCode)
	if err != nil {
		return domain.Reservation{}, err
	}
	if existing == nil {
		// Row vanished between the insert and the read; treat as in-flight.
		return domain.Reservation{}, nil
	}
	if existing.Synced() {
		return domain.Reservation{}, nil
	}

	staleCutoff := now.Add(-s.staleAfter)
	update := s.db.WithContext(ctx).Exec(
		`UPDATE sync_records
		 SET processing_token = ?, processing_at = ?, kaspi_order_id = ?, total_price = ?
		 WHERE order_code = ?
		   AND amo_lead_id = 0
		   AND (processing_token IS NULL OR processing_token = ? OR processing_at <= ?)`,
		token,
		now,
		kaspiOrderID,
		totalPrice,
		orderCode,
		token,
		staleCutoff,
	)
	if update.Error != nil {
		return domain.Reservation{}, fmt.Errorf("reserve %s: %w", orderCode, update.Error)
	}
	if update.RowsAffected == 0 {
		// Live claim held by another worker; skip this cycle.
		return domain.Reservation{}, nil
	}
	return domain.Reservation{Claimed: true, Token: token}, nil
}

func (s *store) Commit(ctx context.Context, orderCode string, amoLeadID, totalPrice int64, kaspiStatus string) error {
	result := s.db.WithContext(ctx).Exec(
		`UPDATE sync_records
		 SET amo_lead_id = ?, total_price = ?, kaspi_status = ?,
		     processing_token = NULL, processing_at = NULL
		 WHERE order_code = ?`,
		amoLeadID,
		totalPrice,
		kaspiStatus,
		orderCode,
	)
	if result.Error != nil {
		return fmt.Errorf("commit %s: %w", orderCode, result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *store) Release(ctx context.Context, orderCode, token string) error {
	if token == "" {
		return nil
	}
	return s.db.WithContext(ctx).Exec(
		`UPDATE sync_records
		 SET processing_token = NULL, processing_at = NULL
		 WHERE order_code = ? AND processing_token = ?`,
		orderCode,
		token,
	).Error
}

func (s *store) Get(ctx context.Context, orderCode string) (*domain.SyncRecord, error) {
	var record domain.SyncRecord
	err := s.db.WithContext(ctx).
		Where("order_code = ?", orderCode).
		Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (s *store) UpdateStatus(ctx context.Context, orderCode, kaspiStatus string) error {
	result := s.db.WithContext(ctx).Exec(
		`UPDATE sync_records SET kaspi_status = ? WHERE order_code = ?`,
		kaspiStatus,
		orderCode,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *store) UpdatePrice(ctx context.Context, orderCode string, totalPrice int64) error {
	result := s.db.WithContext(ctx).Exec(
		`UPDATE sync_records SET total_price = ? WHERE order_code = ?`,
		totalPrice,
		orderCode,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
