package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// ErrSequenceExhausted is returned once a day has issued format.MaxSequence
// numbers.
var ErrSequenceExhausted = errors.New("sequence_exhausted")

// DailySequence is the per-day invoice counter. LastSeq never decreases.
type DailySequence struct {
	SequenceDate string    `gorm:"primaryKey;type:char(8)"`
	LastSeq      int64     `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (DailySequence) TableName() string { return "daily_sequences" }

// Allocator issues invoice numbers of the form YYYYMMDD + sequence.
//
// Allocate and Reconcile must run inside the caller's transaction: the
// counter row stays locked until that transaction ends, and a rollback
// undoes the counter movement together with the invoice.
type Allocator interface {
	// Preview returns the number the next Allocate would return for
	// issueDate. It never writes and is not a reservation.
	Preview(ctx context.Context, issueDate string) (string, error)
	Allocate(ctx context.Context, tx *gorm.DB, issueDate string) (string, error)
	// Reconcile advances the counter to the sequence embedded in a
	// caller supplied invoiceNumber when it is ahead of the counter.
	// Numbers of another day or with a non-numeric suffix are ignored.
	Reconcile(ctx context.Context, tx *gorm.DB, issueDate, invoiceNumber string) error
}
