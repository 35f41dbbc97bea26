package store

import (
	"context"
	"time"

	"github.com/alextreichler/libreserve/internal/filter"
	"github.com/alextreichler/libreserve/internal/models"
	"golang.org/x/sync/errgroup"
)

type DashboardStats struct {
	TotalBooks       int
	OutOfStock       int
	TotalCopies      int
	Reservations     filter.ReservationStats
	BooksByPublisher []PublisherCount
}

type PublisherCount struct {
	Publisher string
	Books     int
}

// GetDashboardStats fetches books and reservations concurrently and
// summarizes them for the admin dashboard.
func (s *Store) GetDashboardStats(ctx context.Context, token string, today time.Time) (*DashboardStats, error) {
	var (
		books        []models.Book
		reservations []models.Reservation
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		books, err = s.GetBooks(gctx, token)
		return err
	})
	g.Go(func() error {
		var err error
		reservations, err = s.GetReservations(gctx, token)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats := &DashboardStats{
		TotalBooks:   len(books),
		Reservations: filter.Stats(reservations, today),
	}
	counts := make(map[string]int)
	for _, b := range books {
		if b.AvailableAmount <= 0 {
			stats.OutOfStock++
		} else {
			stats.TotalCopies += b.AvailableAmount
		}
		counts[b.Publisher]++
	}
	for _, p := range filter.Publishers(books) {
		stats.BooksByPublisher = append(stats.BooksByPublisher, PublisherCount{Publisher: p, Books: counts[p]})
	}
	return stats, nil
}
