package filter

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/alextreichler/libreserve/internal/models"
	"github.com/alextreichler/libreserve/internal/reservation"
)

// Status is the derived lifecycle class of a reservation.
type Status string

const (
	StatusAll      Status = "all" // filter value only, never a classification
	StatusPast     Status = "past"
	StatusActive   Status = "active"
	StatusUpcoming Status = "upcoming"
)

// ParseStatus maps a query value to a Status filter; unknown values mean all.
func ParseStatus(s string) Status {
	switch Status(s) {
	case StatusPast, StatusActive, StatusUpcoming:
		return Status(s)
	default:
		return StatusAll
	}
}

// Label is the human name used in badges.
func (s Status) Label() string {
	switch s {
	case StatusPast:
		return "Completed"
	case StatusActive:
		return "Active"
	case StatusUpcoming:
		return "Upcoming"
	default:
		return "All"
	}
}

type SortField string

const (
	SortBorrowDate SortField = "borrowDate"
	SortPickupDate SortField = "pickupDate"
	SortCreatedAt  SortField = "createdAt"
	SortUser       SortField = "user"
	SortBook       SortField = "book"
)

// SortFields lists the selectable fields in display order.
var SortFields = []SortField{SortBorrowDate, SortPickupDate, SortCreatedAt, SortUser, SortBook}

// ParseSortField maps a query value to a SortField. The bool is false when
// the value is not a known field.
func ParseSortField(s string) (SortField, bool) {
	for _, f := range SortFields {
		if string(f) == s {
			return f, true
		}
	}
	return "", false
}

type SortOrder string

const (
	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"
)

func ParseSortOrder(s string) SortOrder {
	if SortOrder(s) == Asc {
		return Asc
	}
	return Desc
}

// ReservationCriteria selects and orders a reservation list.
// Zero values mean: no search, all statuses, borrow date descending.
type ReservationCriteria struct {
	Query     string
	Status    Status
	SortField SortField
	SortOrder SortOrder
}

func (c ReservationCriteria) withDefaults() ReservationCriteria {
	if c.Status == "" {
		c.Status = StatusAll
	}
	if c.SortField == "" {
		c.SortField = SortBorrowDate
	}
	if c.SortOrder == "" {
		c.SortOrder = Desc
	}
	return c
}

// Classify derives the status of r relative to today. Pastness is checked
// before activeness.
func Classify(r models.Reservation, today time.Time) Status {
	today = reservation.Day(today)
	borrow := reservation.Day(r.BorrowDate)
	pickup := reservation.Day(r.PickupDate)

	if pickup.Before(today) {
		return StatusPast
	}
	if !borrow.After(today) {
		return StatusActive
	}
	return StatusUpcoming
}

// Matches reports whether r passes the status filter and search query.
func (c ReservationCriteria) Matches(r models.Reservation, today time.Time) bool {
	c = c.withDefaults()
	if c.Status != StatusAll && Classify(r, today) != c.Status {
		return false
	}
	return matchesReservationQuery(r, c.Query)
}

func matchesReservationQuery(r models.Reservation, query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	fields := []string{r.User.Name, r.User.Email}
	if r.Book != nil {
		fields = append(fields, r.Book.Title, r.Book.Author)
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}

// Reservations returns a new, filtered and sorted slice. src is not modified.
// An unknown SortField is a programming error and panics.
func Reservations(src []models.Reservation, c ReservationCriteria, today time.Time) []models.Reservation {
	c = c.withDefaults()
	less := reservationLess(c.SortField)

	out := make([]models.Reservation, 0, len(src))
	for _, r := range src {
		if c.Matches(r, today) {
			out = append(out, r)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if c.SortOrder == Asc {
			return less(out[i], out[j])
		}
		return less(out[j], out[i])
	})
	return out
}

func reservationLess(field SortField) func(a, b models.Reservation) bool {
	switch field {
	case SortBorrowDate:
		return func(a, b models.Reservation) bool { return a.BorrowDate.Before(b.BorrowDate) }
	case SortPickupDate:
		return func(a, b models.Reservation) bool { return a.PickupDate.Before(b.PickupDate) }
	case SortCreatedAt:
		return func(a, b models.Reservation) bool { return createdOrBorrow(a).Before(createdOrBorrow(b)) }
	case SortUser:
		return func(a, b models.Reservation) bool {
			return strings.ToLower(a.User.Name) < strings.ToLower(b.User.Name)
		}
	case SortBook:
		return func(a, b models.Reservation) bool { return bookTitle(a) < bookTitle(b) }
	default:
		panic(fmt.Sprintf("filter: unknown reservation sort field %q", field))
	}
}

func createdOrBorrow(r models.Reservation) time.Time {
	if r.CreatedAt != nil && !r.CreatedAt.IsZero() {
		return *r.CreatedAt
	}
	return r.BorrowDate
}

func bookTitle(r models.Reservation) string {
	if r.Book == nil {
		return ""
	}
	return strings.ToLower(r.Book.Title)
}

// ReservationStats counts reservations per status.
type ReservationStats struct {
	Total    int
	Upcoming int
	Active   int
	Past     int
}

func Stats(src []models.Reservation, today time.Time) ReservationStats {
	stats := ReservationStats{Total: len(src)}
	for _, r := range src {
		switch Classify(r, today) {
		case StatusPast:
			stats.Past++
		case StatusActive:
			stats.Active++
		case StatusUpcoming:
			stats.Upcoming++
		}
	}
	return stats
}
