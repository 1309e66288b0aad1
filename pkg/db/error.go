package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
)

// InvoiceNumberIndex is the unique index on invoices.invoice_number.
const InvoiceNumberIndex = "ux_invoices_invoice_number"

func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	if code, ok := sqlState(err); ok {
		return code == pgUniqueViolation
	}

	// PostgreSQL via a driver other than pgx
	if strings.Contains(err.Error(), "duplicate key value violates unique constraint") {
		return true
	}

	// MySQL (error code 1062)
	if strings.Contains(err.Error(), "Error 1062") {
		return true
	}

	// SQLite (error code 2067)
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return true
	}

	return false
}

// IsInvoiceNumberConflict reports a unique violation raised by
// InvoiceNumberIndex. Violations of any other unique constraint return
// false. PostgreSQL errors carry the constraint name; SQLite and MySQL
// name the column or index in the message.
func IsInvoiceNumberConflict(err error) bool {
	if !IsDuplicateKeyErr(err) {
		return false
	}
	if constraint, ok := violatedConstraint(err); ok {
		return constraint == InvoiceNumberIndex
	}
	msg := err.Error()
	return strings.Contains(msg, InvoiceNumberIndex) ||
		strings.Contains(msg, "invoices.invoice_number")
}

// IsRetryableErr reports lock waits, deadlocks and serialization failures.
// The whole transaction has been rolled back when these surface, so the
// caller may resubmit unchanged.
func IsRetryableErr(err error) bool {
	if err == nil {
		return false
	}

	if code, ok := sqlState(err); ok {
		switch code {
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
			return true
		}
		return false
	}

	msg := err.Error()
	switch {
	// MySQL lock wait timeout (1205) and deadlock (1213)
	case strings.Contains(msg, "Error 1205"), strings.Contains(msg, "Error 1213"):
		return true
	// SQLite BUSY / LOCKED
	case strings.Contains(msg, "database is locked"), strings.Contains(msg, "SQLITE_BUSY"):
		return true
	}
	return false
}

// sqlState extracts the PostgreSQL SQLSTATE from pgx (application queries)
// or lib/pq (migration runner) errors.
func sqlState(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), true
	}
	return "", false
}

func violatedConstraint(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.ConstraintName != "" {
		return pgErr.ConstraintName, true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Constraint != "" {
		return pqErr.Constraint, true
	}
	return "", false
}
