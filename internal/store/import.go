package store

import (
	"context"
	"log/slog"

	"github.com/alextreichler/libreserve/internal/models"
)

// ImportResult only carries counts; individual failures are logged.
type ImportResult struct {
	Succeeded int
	Failed    int
}

// ImportBooks creates each book in order. A failed create does not stop
// the rest of the batch.
func (s *Store) ImportBooks(ctx context.Context, token string, books []models.BookInput) ImportResult {
	var res ImportResult
	for _, b := range books {
		if ctx.Err() != nil {
			res.Failed++
			continue
		}
		if _, err := s.CreateBook(ctx, token, b); err != nil {
			slog.Warn("Book import failed", "title", b.Title, "isbn", b.ISBN, "error", err)
			res.Failed++
			continue
		}
		res.Succeeded++
	}
	slog.Info("Book import finished", "succeeded", res.Succeeded, "failed", res.Failed)
	return res
}
