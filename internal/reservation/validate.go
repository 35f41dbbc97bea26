// Package reservation holds the date rules shared by reservation creation,
// member edits and admin edits.
package reservation

import (
	"errors"
	"strings"
	"time"
)

// MaxActive is the number of active reservations a member may hold.
// The backend enforces it; pages only display it.
const MaxActive = 3

const dayLayout = "2006-01-02"

var (
	ErrMissingDates       = errors.New("Please select both borrow and pickup dates")
	ErrBorrowInPast       = errors.New("Borrow date cannot be earlier than today")
	ErrPickupBeforeBorrow = errors.New("Pick-up date cannot be earlier than borrow date")
)

// Day truncates t to midnight UTC of its calendar date as seen in t's own
// location. All date comparisons in this package happen on Day values.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today returns the Day of now as observed in loc.
func Today(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return Day(now.In(loc))
}

// ParseDay accepts YYYY-MM-DD or an RFC 3339 timestamp and returns the
// calendar date it names. Timestamps keep the date written in the string,
// so "2025-03-01T00:00:00.000Z" is March 1st regardless of server zone.
func ParseDay(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) > len(dayLayout) && s[len(dayLayout)] == 'T' {
		s = s[:len(dayLayout)]
	}
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

// FormatDay renders a date the way date inputs and the backend expect it.
func FormatDay(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dayLayout)
}

// Validate checks a proposed borrow/pickup pair against today. A zero time
// means the date is missing.
func Validate(borrow, pickup, today time.Time) error {
	if borrow.IsZero() || pickup.IsZero() {
		return ErrMissingDates
	}
	borrow, pickup, today = Day(borrow), Day(pickup), Day(today)
	if borrow.Before(today) {
		return ErrBorrowInPast
	}
	if pickup.Before(borrow) {
		return ErrPickupBeforeBorrow
	}
	return nil
}

// ValidateForm parses raw form values and validates them. Values that do not
// parse are treated as missing.
func ValidateForm(borrowStr, pickupStr string, today time.Time) (borrow, pickup time.Time, err error) {
	borrow, _ = ParseDay(borrowStr)
	pickup, _ = ParseDay(pickupStr)
	if err := Validate(borrow, pickup, today); err != nil {
		return time.Time{}, time.Time{}, err
	}
	return borrow, pickup, nil
}
