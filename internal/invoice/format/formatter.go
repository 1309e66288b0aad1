package format

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidIssueDate = errors.New("invalid_issue_date")

// SequenceDateLayout is the 8 digit calendar day that prefixes every
// generated invoice number.
const SequenceDateLayout = "20060102"

// MaxSequence is the largest per-day sequence value. Suffixes wider than
// MaxSequenceDigits are not treated as sequence values.
const (
	MaxSequence       int64 = 999_999_999
	MaxSequenceDigits       = 9
)

// ParseIssueDate validates a YYYY-MM-DD calendar date.
func ParseIssueDate(issueDate string) (time.Time, error) {
	issueDate = strings.TrimSpace(issueDate)
	if len(issueDate) != len(time.DateOnly) {
		return time.Time{}, ErrInvalidIssueDate
	}
	t, err := time.Parse(time.DateOnly, issueDate)
	if err != nil {
		return time.Time{}, ErrInvalidIssueDate
	}
	return t, nil
}

// SequenceDate turns 2026-02-22 into 20260222.
func SequenceDate(issueDate string) (string, error) {
	t, err := ParseIssueDate(issueDate)
	if err != nil {
		return "", err
	}
	return t.Format(SequenceDateLayout), nil
}

// FormatInvoiceNumber renders sequenceDate followed by seq. Values below
// 100 are zero padded to two digits; larger values keep their natural
// width, so the 100th invoice of 2026-02-22 is 20260222100.
//
// This function is PURE:
// - No side effects
// - No DB access
// - Fully deterministic
func FormatInvoiceNumber(sequenceDate string, seq int64) (string, error) {
	if len(sequenceDate) != len(SequenceDateLayout) || !isDigits(sequenceDate) {
		return "", fmt.Errorf("invalid sequence date %q", sequenceDate)
	}
	if seq <= 0 || seq > MaxSequence {
		return "", fmt.Errorf("invalid invoice sequence: %d", seq)
	}
	if seq < 100 {
		return fmt.Sprintf("%s%02d", sequenceDate, seq), nil
	}
	return sequenceDate + strconv.FormatInt(seq, 10), nil
}

// ParseSequenceSuffix extracts the sequence value embedded in an invoice
// number. ok is false when the number does not start with sequenceDate,
// has a non-digit suffix, or a suffix outside 1..MaxSequence.
func ParseSequenceSuffix(sequenceDate, invoiceNumber string) (seq int64, ok bool) {
	invoiceNumber = strings.TrimSpace(invoiceNumber)
	if sequenceDate == "" || !strings.HasPrefix(invoiceNumber, sequenceDate) {
		return 0, false
	}
	suffix := invoiceNumber[len(sequenceDate):]
	if suffix == "" || len(suffix) > MaxSequenceDigits || !isDigits(suffix) {
		return 0, false
	}
	value, err := strconv.ParseInt(suffix, 10, 64)
	if err != nil || value < 1 || value > MaxSequence {
		return 0, false
	}
	return value, true
}

// FormatCents renders integer cents as a decimal string with two
// fractional digits (1995 -> "19.95", -5 -> "-0.05").
func FormatCents(cents int64) string {
	sign := ""
	abs := uint64(cents)
	if cents < 0 {
		sign = "-"
		abs = uint64(-(cents + 1)) + 1
	}
	return fmt.Sprintf("%s%d.%02d", sign, abs/100, abs%100)
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
