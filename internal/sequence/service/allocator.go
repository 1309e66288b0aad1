package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/invoicer/internal/invoice/format"
	"github.com/smallbiznis/invoicer/internal/observability/logger"
	"github.com/smallbiznis/invoicer/internal/observability/metrics"
	"github.com/smallbiznis/invoicer/internal/sequence/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	sourceAllocate  = "allocate"
	sourceReconcile = "reconcile"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	Metrics      *metrics.Metrics      `optional:"true"`
	StoreMetrics *metrics.StoreMetrics `optional:"true"`
}

type Allocator struct {
	db           *gorm.DB
	log          *zap.Logger
	metrics      *metrics.Metrics
	storeMetrics *metrics.StoreMetrics
	now          func() time.Time
}

func New(p Params) domain.Allocator {
	return NewAllocator(p)
}

func NewAllocator(p Params) *Allocator {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Allocator{
		db:           p.DB,
		log:          log.Named("sequence.allocator"),
		metrics:      p.Metrics,
		storeMetrics: p.StoreMetrics,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (a *Allocator) Preview(ctx context.Context, issueDate string) (string, error) {
	sequenceDate, err := format.SequenceDate(issueDate)
	if err != nil {
		return "", err
	}

	var row domain.DailySequence
	err = a.db.WithContext(ctx).Raw(
		`SELECT sequence_date, last_seq, created_at, updated_at
		 FROM daily_sequences WHERE sequence_date = ?`,
		sequenceDate,
	).Scan(&row).Error
	if err != nil {
		return "", fmt.Errorf("read daily sequence: %w", err)
	}
	if row.LastSeq >= format.MaxSequence {
		return "", domain.ErrSequenceExhausted
	}

	return format.FormatInvoiceNumber(sequenceDate, row.LastSeq+1)
}

func (a *Allocator) Allocate(ctx context.Context, tx *gorm.DB, issueDate string) (string, error) {
	sequenceDate, err := format.SequenceDate(issueDate)
	if err != nil {
		return "", err
	}

	row, err := a.lockRow(ctx, tx, sequenceDate)
	if err != nil {
		return "", err
	}

	var next int64
	if row == nil {
		created, err := a.insertRow(ctx, tx, sequenceDate, 1)
		if err != nil {
			return "", err
		}
		if created {
			next = 1
		} else {
			// Another transaction created the row between our read and
			// insert. Its insert is committed now, so the lock succeeds.
			row, err = a.lockRow(ctx, tx, sequenceDate)
			if err != nil {
				return "", err
			}
			if row == nil {
				return "", errors.New("daily sequence row vanished after conflict")
			}
		}
	}
	if row != nil {
		if row.LastSeq >= format.MaxSequence {
			logger.WithContext(ctx, a.log).Error("daily sequence exhausted",
				zap.String("sequence_date", sequenceDate),
				zap.Int64("last_seq", row.LastSeq),
			)
			a.metrics.RecordSequenceExhausted(ctx)
			return "", domain.ErrSequenceExhausted
		}
		next = row.LastSeq + 1
		if err := a.setLastSeq(ctx, tx, sequenceDate, next); err != nil {
			return "", err
		}
	}

	number, err := format.FormatInvoiceNumber(sequenceDate, next)
	if err != nil {
		return "", err
	}

	a.metrics.RecordSequenceAllocation(ctx, sourceAllocate)
	a.storeMetrics.IncCounterMove(sourceAllocate)
	logger.WithContext(ctx, a.log).Debug("allocated invoice number",
		zap.String("sequence_date", sequenceDate),
		zap.Int64("last_seq", next),
	)
	return number, nil
}

func (a *Allocator) Reconcile(ctx context.Context, tx *gorm.DB, issueDate, invoiceNumber string) error {
	sequenceDate, err := format.SequenceDate(issueDate)
	if err != nil {
		return nil
	}
	seq, ok := format.ParseSequenceSuffix(sequenceDate, invoiceNumber)
	if !ok {
		return nil
	}

	row, err := a.lockRow(ctx, tx, sequenceDate)
	if err != nil {
		return err
	}
	if row == nil {
		created, err := a.insertRow(ctx, tx, sequenceDate, seq)
		if err != nil {
			return err
		}
		if created {
			a.recordReconcile(ctx, sequenceDate, seq)
			return nil
		}
		row, err = a.lockRow(ctx, tx, sequenceDate)
		if err != nil {
			return err
		}
		if row == nil {
			return errors.New("daily sequence row vanished after conflict")
		}
	}

	if seq <= row.LastSeq {
		return nil
	}
	if err := a.setLastSeq(ctx, tx, sequenceDate, seq); err != nil {
		return err
	}
	a.recordReconcile(ctx, sequenceDate, seq)
	return nil
}

func (a *Allocator) recordReconcile(ctx context.Context, sequenceDate string, seq int64) {
	a.metrics.RecordSequenceAllocation(ctx, sourceReconcile)
	a.storeMetrics.IncCounterMove(sourceReconcile)
	logger.WithContext(ctx, a.log).Info("daily sequence advanced from supplied number",
		zap.String("sequence_date", sequenceDate),
		zap.Int64("last_seq", seq),
	)
}

// lockRow reads the counter row with SELECT ... FOR UPDATE. It returns nil
// when the row does not exist yet. SQLite has no row locks; its dialect
// drops the locking clause and the database write lock serializes callers.
func (a *Allocator) lockRow(ctx context.Context, tx *gorm.DB, sequenceDate string) (*domain.DailySequence, error) {
	start := time.Now()
	var rows []domain.DailySequence
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("sequence_date = ?", sequenceDate).
		Limit(1).
		Find(&rows).Error
	a.storeMetrics.ObserveDBLockWait(metrics.LockResourceDailySequence, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("lock daily sequence: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// insertRow creates the counter row unless a concurrent transaction already
// did. created reports whether this call inserted it.
func (a *Allocator) insertRow(ctx context.Context, tx *gorm.DB, sequenceDate string, lastSeq int64) (bool, error) {
	now := a.now()
	res := tx.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&domain.DailySequence{
			SequenceDate: sequenceDate,
			LastSeq:      lastSeq,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	if res.Error != nil {
		return false, fmt.Errorf("create daily sequence: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (a *Allocator) setLastSeq(ctx context.Context, tx *gorm.DB, sequenceDate string, lastSeq int64) error {
	err := tx.WithContext(ctx).Exec(
		`UPDATE daily_sequences SET last_seq = ?, updated_at = ? WHERE sequence_date = ?`,
		lastSeq,
		a.now(),
		sequenceDate,
	).Error
	if err != nil {
		return fmt.Errorf("update daily sequence: %w", err)
	}
	return nil
}
