package covers

import "github.com/alextreichler/libreserve/internal/models"

// Fallback is shown for any book without a cover URL.
const Fallback = "/static/covers/fallback.svg"

func Resolve(b models.Book) models.Book {
	if b.CoverPicture == "" {
		b.CoverPicture = Fallback
	}
	return b
}

// ResolvePtr is Resolve for optional books; nil stays nil.
func ResolvePtr(b *models.Book) *models.Book {
	if b == nil {
		return nil
	}
	resolved := Resolve(*b)
	return &resolved
}

func ResolveAll(books []models.Book) []models.Book {
	out := make([]models.Book, len(books))
	for i, b := range books {
		out[i] = Resolve(b)
	}
	return out
}

// ResolveReservations resolves the embedded book of every reservation
// without touching the input slice.
func ResolveReservations(rs []models.Reservation) []models.Reservation {
	out := make([]models.Reservation, len(rs))
	for i, r := range rs {
		r.Book = ResolvePtr(r.Book)
		out[i] = r
	}
	return out
}
