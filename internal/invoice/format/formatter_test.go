package format

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatInvoiceNumber(t *testing.T) {
	cases := []struct {
		seq  int64
		want string
	}{
		{seq: 1, want: "2026022201"},
		{seq: 9, want: "2026022209"},
		{seq: 99, want: "2026022299"},
		{seq: 100, want: "20260222100"},
		{seq: 151, want: "20260222151"},
		{seq: 12345, want: "2026022212345"},
	}
	for _, tc := range cases {
		got, err := FormatInvoiceNumber("20260222", tc.seq)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}
}

func TestFormatInvoiceNumberRejectsInvalidInput(t *testing.T) {
	_, err := FormatInvoiceNumber("20260222", 0)
	assert.Error(t, err)
	_, err = FormatInvoiceNumber("2026-02-22", 1)
	assert.Error(t, err)
}

func TestSequenceDate(t *testing.T) {
	got, err := SequenceDate("2026-02-22")
	require.NoError(t, err)
	assert.Equal(t, "20260222", got)

	for _, bad := range []string{"", "2026-2-22", "2026-02-30", "22/02/2026", "2026-02-22T10:00"} {
		_, err := SequenceDate(bad)
		assert.ErrorIs(t, err, ErrInvalidIssueDate, bad)
	}
}

func TestParseSequenceSuffix(t *testing.T) {
	cases := []struct {
		number string
		want   int64
		ok     bool
	}{
		{number: "2026022201", want: 1, ok: true},
		{number: "20260222150", want: 150, ok: true},
		{number: " 2026022207 ", want: 7, ok: true},
		{number: "2026022200", ok: false},
		{number: "20260222", ok: false},
		{number: "20260222A1", ok: false},
		{number: "2026022301", ok: false},
		{number: "INV-0001", ok: false},
		{number: "20260222999999999", want: 999999999, ok: true},
		{number: "202602221000000000", ok: false},
		{number: "2026022299999999999999999", ok: false},
		{number: "202602229223372036854775807", ok: false},
		{number: "2026022212345678901234567890", ok: false},
	}
	for _, tc := range cases {
		got, ok := ParseSequenceSuffix("20260222", tc.number)
		assert.Equal(t, tc.ok, ok, tc.number)
		assert.Equal(t, tc.want, got, tc.number)
	}
}

func TestFormatCents(t *testing.T) {
	assert.Equal(t, "0.00", FormatCents(0))
	assert.Equal(t, "0.05", FormatCents(5))
	assert.Equal(t, "19.95", FormatCents(1995))
	assert.Equal(t, "3300.00", FormatCents(330000))
	assert.Equal(t, "-1.05", FormatCents(-105))
	assert.Equal(t, "-92233720368547758.08", FormatCents(math.MinInt64))
}
