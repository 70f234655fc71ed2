// Package admission assigns patient admission codes of the form ADM<YYYY><MM><NNNN>.
//
// The numeric suffix is a per-month sequence starting at 1. Codes are computed on
// the server at creation time and never change afterwards.
package admission

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

const (
	// CodePrefix starts every admission code.
	CodePrefix = "ADM"
	// MaxSequence is the largest suffix that fits the four digit field.
	MaxSequence = 9999

	codeLength = len(CodePrefix) + 4 + 2 + 4
)

var (
	// ErrUniquenessConflict means the computed code was already taken when the
	// patient was persisted. The whole creation may be retried.
	ErrUniquenessConflict = errors.New("admission code already in use")
	// ErrSequenceOverflow means more than MaxSequence admissions were requested in one month.
	ErrSequenceOverflow = errors.New("admission sequence exhausted for this month")
	// ErrMalformedCode is returned by Parse for strings that are not admission codes.
	ErrMalformedCode = errors.New("malformed admission code")
)

// Period is the calendar month an admission code is scoped to.
type Period struct {
	Year  int
	Month time.Month
}

// PeriodOf returns the period t falls in, using t's own location.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month()}
}

// Prefix returns "ADM" followed by the zero padded year and month.
func (p Period) Prefix() string {
	return fmt.Sprintf("%s%04d%02d", CodePrefix, p.Year, int(p.Month))
}

// Key returns the "YYYYMM" form used to key counters.
func (p Period) Key() string {
	return fmt.Sprintf("%04d%02d", p.Year, int(p.Month))
}

func (p Period) String() string {
	return p.Key()
}

// Format builds the admission code for sequence number n within p.
func Format(p Period, n int) (string, error) {
	if n < 1 {
		return "", fmt.Errorf("invalid admission sequence %d", n)
	}
	if n > MaxSequence {
		return "", fmt.Errorf("%w: period %s reached %d", ErrSequenceOverflow, p, n)
	}
	return fmt.Sprintf("%s%04d", p.Prefix(), n), nil
}

// Parse splits an admission code into its period and sequence number.
func Parse(code string) (Period, int, error) {
	if len(code) != codeLength || code[:len(CodePrefix)] != CodePrefix {
		return Period{}, 0, fmt.Errorf("%w: %q", ErrMalformedCode, code)
	}
	digits := code[len(CodePrefix):]
	year, err := strconv.Atoi(digits[0:4])
	if err != nil {
		return Period{}, 0, fmt.Errorf("%w: %q", ErrMalformedCode, code)
	}
	month, err := strconv.Atoi(digits[4:6])
	if err != nil || month < 1 || month > 12 {
		return Period{}, 0, fmt.Errorf("%w: %q", ErrMalformedCode, code)
	}
	n, err := strconv.Atoi(digits[6:10])
	if err != nil || n < 1 {
		return Period{}, 0, fmt.Errorf("%w: %q", ErrMalformedCode, code)
	}
	return Period{Year: year, Month: time.Month(month)}, n, nil
}
