package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/smallbiznis/invoicer/internal/invoice/format"
	"github.com/smallbiznis/invoicer/internal/sequence/domain"
	"github.com/smallbiznis/invoicer/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const issueDate = "2026-02-22"

func newTestAllocator(t *testing.T) (*Allocator, *gorm.DB) {
	t.Helper()
	db := testutil.OpenSQLite(t)
	return NewAllocator(Params{DB: db, Log: zap.NewNop()}), db
}

func allocate(t *testing.T, a *Allocator, db *gorm.DB, date string) string {
	t.Helper()
	var number string
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		number, err = a.Allocate(context.Background(), tx, date)
		return err
	})
	require.NoError(t, err)
	return number
}

func reconcile(t *testing.T, a *Allocator, db *gorm.DB, date, number string) {
	t.Helper()
	err := db.Transaction(func(tx *gorm.DB) error {
		return a.Reconcile(context.Background(), tx, date, number)
	})
	require.NoError(t, err)
}

func lastSeq(t *testing.T, db *gorm.DB, sequenceDate string) int64 {
	t.Helper()
	var rows []domain.DailySequence
	require.NoError(t, db.Where("sequence_date = ?", sequenceDate).Find(&rows).Error)
	if len(rows) == 0 {
		return 0
	}
	return rows[0].LastSeq
}

func TestPreviewDoesNotMutate(t *testing.T) {
	a, db := newTestAllocator(t)
	ctx := context.Background()

	first, err := a.Preview(ctx, issueDate)
	require.NoError(t, err)
	second, err := a.Preview(ctx, issueDate)
	require.NoError(t, err)

	assert.Equal(t, "2026022201", first)
	assert.Equal(t, first, second)
	assert.Equal(t, int64(0), lastSeq(t, db, "20260222"))

	var count int64
	require.NoError(t, db.Model(&domain.DailySequence{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestAllocateIncrementsPerDay(t *testing.T) {
	a, db := newTestAllocator(t)

	assert.Equal(t, "2026022201", allocate(t, a, db, issueDate))
	assert.Equal(t, "2026022202", allocate(t, a, db, issueDate))
	assert.Equal(t, "2026022301", allocate(t, a, db, "2026-02-23"))

	preview, err := a.Preview(context.Background(), issueDate)
	require.NoError(t, err)
	assert.Equal(t, "2026022203", preview)
}

func TestAllocatePastNinetyNine(t *testing.T) {
	a, db := newTestAllocator(t)
	now := time.Now().UTC()
	require.NoError(t, db.Create(&domain.DailySequence{
		SequenceDate: "20260222",
		LastSeq:      99,
		CreatedAt:    now,
		UpdatedAt:    now,
	}).Error)

	assert.Equal(t, "20260222100", allocate(t, a, db, issueDate))
	assert.Equal(t, "20260222101", allocate(t, a, db, issueDate))
}

func TestAllocateRejectsInvalidDate(t *testing.T) {
	a, db := newTestAllocator(t)

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := a.Allocate(context.Background(), tx, "22/02/2026")
		return err
	})
	assert.ErrorIs(t, err, format.ErrInvalidIssueDate)

	_, err = a.Preview(context.Background(), "2026-13-01")
	assert.ErrorIs(t, err, format.ErrInvalidIssueDate)
}

func TestRollbackUndoesAllocation(t *testing.T) {
	a, db := newTestAllocator(t)
	allocate(t, a, db, issueDate)

	err := db.Transaction(func(tx *gorm.DB) error {
		number, err := a.Allocate(context.Background(), tx, issueDate)
		require.NoError(t, err)
		require.Equal(t, "2026022202", number)
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	assert.Equal(t, int64(1), lastSeq(t, db, "20260222"))
	assert.Equal(t, "2026022202", allocate(t, a, db, issueDate))
}

func TestReconcileAdvancesCounter(t *testing.T) {
	a, db := newTestAllocator(t)
	ctx := context.Background()

	reconcile(t, a, db, issueDate, "20260222150")
	preview, err := a.Preview(ctx, issueDate)
	require.NoError(t, err)
	assert.Equal(t, "20260222151", preview)

	reconcile(t, a, db, issueDate, "20260222120")
	assert.Equal(t, int64(150), lastSeq(t, db, "20260222"))

	assert.Equal(t, "20260222151", allocate(t, a, db, issueDate))
}

func TestReconcileIgnoresForeignNumbers(t *testing.T) {
	a, db := newTestAllocator(t)
	allocate(t, a, db, issueDate)

	for _, number := range []string{
		"20260223009",
		"2026022201a",
		"20260222",
		"2026022200",
		"INV-42",
		"",
	} {
		reconcile(t, a, db, issueDate, number)
	}
	reconcile(t, a, db, "not-a-date", "20260222150")

	assert.Equal(t, int64(1), lastSeq(t, db, "20260222"))
	assert.Equal(t, int64(0), lastSeq(t, db, "20260223"))
}

func TestConcurrentAllocationsAreUnique(t *testing.T) {
	a, db := newTestAllocator(t)
	const n = 20

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers []string
		errs    []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var number string
			err := db.Transaction(func(tx *gorm.DB) error {
				var err error
				number, err = a.Allocate(context.Background(), tx, issueDate)
				return err
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			numbers = append(numbers, number)
		}()
	}
	wg.Wait()

	require.Empty(t, errs)
	require.Len(t, numbers, n)

	sort.Strings(numbers)
	for i, number := range numbers {
		expected, err := format.FormatInvoiceNumber("20260222", int64(i+1))
		require.NoError(t, err)
		assert.Equal(t, expected, number)
	}
	assert.Equal(t, int64(n), lastSeq(t, db, "20260222"))
}

func TestAllocateLocksRowOnPostgres(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "daily_sequences" WHERE sequence_date = \$1 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"sequence_date", "last_seq", "created_at", "updated_at"}).
			AddRow("20260222", 4, now, now))
	mock.ExpectExec(`UPDATE daily_sequences SET last_seq = \$1, updated_at = \$2 WHERE sequence_date = \$3`).
		WithArgs(int64(5), sqlmock.AnyArg(), "20260222").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	a := NewAllocator(Params{DB: db, Log: zap.NewNop()})
	var number string
	err = db.Transaction(func(tx *gorm.DB) error {
		var err error
		number, err = a.Allocate(context.Background(), tx, issueDate)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, "2026022205", number)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAllocateStopsAtMaxSequence(t *testing.T) {
	a, db := newTestAllocator(t)
	now := time.Now().UTC()
	require.NoError(t, db.Create(&domain.DailySequence{
		SequenceDate: "20260222",
		LastSeq:      format.MaxSequence - 1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}).Error)

	assert.Equal(t, "20260222999999999", allocate(t, a, db, issueDate))

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := a.Allocate(context.Background(), tx, issueDate)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrSequenceExhausted)
	assert.Equal(t, format.MaxSequence, lastSeq(t, db, "20260222"))

	_, err = a.Preview(context.Background(), issueDate)
	assert.ErrorIs(t, err, domain.ErrSequenceExhausted)

	assert.Equal(t, "2026022301", allocate(t, a, db, "2026-02-23"))
}

func TestReconcileIgnoresOversizedSuffix(t *testing.T) {
	a, db := newTestAllocator(t)
	allocate(t, a, db, issueDate)

	for _, number := range []string{
		"202602229223372036854775807",
		"2026022299999999999999999",
		"202602221000000000",
	} {
		reconcile(t, a, db, issueDate, number)
	}

	assert.Equal(t, int64(1), lastSeq(t, db, "20260222"))
	assert.Equal(t, "2026022202", allocate(t, a, db, issueDate))
}

func TestAllocateRelocksAfterInsertConflict(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	columns := []string{"sequence_date", "last_seq", "created_at", "updated_at"}
	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "daily_sequences" WHERE sequence_date = \$1 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows(columns))
	// A concurrent transaction created the row first.
	mock.ExpectExec(`INSERT INTO "daily_sequences" .*ON CONFLICT DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT \* FROM "daily_sequences" WHERE sequence_date = \$1 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows(columns).AddRow("20260222", 1, now, now))
	mock.ExpectExec(`UPDATE daily_sequences SET last_seq = \$1, updated_at = \$2 WHERE sequence_date = \$3`).
		WithArgs(int64(2), sqlmock.AnyArg(), "20260222").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	a := NewAllocator(Params{DB: db, Log: zap.NewNop()})
	var number string
	err = db.Transaction(func(tx *gorm.DB) error {
		var err error
		number, err = a.Allocate(context.Background(), tx, issueDate)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, "2026022202", number)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAllocateFailsWhenRowVanishesAfterConflict(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	columns := []string{"sequence_date", "last_seq", "created_at", "updated_at"}
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "daily_sequences"`).WillReturnRows(sqlmock.NewRows(columns))
	mock.ExpectExec(`INSERT INTO "daily_sequences"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT \* FROM "daily_sequences"`).WillReturnRows(sqlmock.NewRows(columns))
	mock.ExpectRollback()

	a := NewAllocator(Params{DB: db, Log: zap.NewNop()})
	err = db.Transaction(func(tx *gorm.DB) error {
		_, err := a.Allocate(context.Background(), tx, issueDate)
		return err
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vanished")
	require.NoError(t, mock.ExpectationsWereMet())
}
