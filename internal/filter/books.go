package filter

import (
	"sort"
	"strings"

	"github.com/alextreichler/libreserve/internal/models"
)

type Availability string

const (
	AvailabilityAll         Availability = "all"
	AvailabilityAvailable   Availability = "available"
	AvailabilityUnavailable Availability = "unavailable"
)

func ParseAvailability(s string) Availability {
	switch Availability(s) {
	case AvailabilityAvailable, AvailabilityUnavailable:
		return Availability(s)
	default:
		return AvailabilityAll
	}
}

// BookCriteria defines filtering criteria for books.
// All filters are ANDed together; empty values match everything.
type BookCriteria struct {
	Query        string
	Publisher    string // exact match
	Availability Availability
}

// Matches returns true if the book matches all criteria.
func (c BookCriteria) Matches(b models.Book) bool {
	if q := strings.ToLower(strings.TrimSpace(c.Query)); q != "" {
		found := false
		for _, f := range []string{b.Title, b.Author, b.ISBN, b.Publisher} {
			if strings.Contains(strings.ToLower(f), q) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if c.Publisher != "" && b.Publisher != c.Publisher {
		return false
	}

	switch c.Availability {
	case AvailabilityAvailable:
		return b.AvailableAmount > 0
	case AvailabilityUnavailable:
		return b.AvailableAmount == 0
	}
	return true
}

// HasFilters returns true if any filter is active.
func (c BookCriteria) HasFilters() bool {
	return strings.TrimSpace(c.Query) != "" ||
		c.Publisher != "" ||
		(c.Availability != "" && c.Availability != AvailabilityAll)
}

// Books returns the matching books in their original order.
func Books(src []models.Book, c BookCriteria) []models.Book {
	out := make([]models.Book, 0, len(src))
	for _, b := range src {
		if c.Matches(b) {
			out = append(out, b)
		}
	}
	return out
}

// Publishers returns the distinct publishers of src, sorted.
func Publishers(src []models.Book) []string {
	seen := make(map[string]bool)
	var out []string
	for _, b := range src {
		if b.Publisher == "" || seen[b.Publisher] {
			continue
		}
		seen[b.Publisher] = true
		out = append(out, b.Publisher)
	}
	sort.Strings(out)
	return out
}
