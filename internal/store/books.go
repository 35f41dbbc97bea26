package store

import (
	"context"
	"net/http"
	"net/url"

	"github.com/alextreichler/libreserve/internal/api"
	"github.com/alextreichler/libreserve/internal/models"
)

func bookPath(id string) string {
	return "/books/" + url.PathEscape(id)
}

// GetBooks lists the catalog. token may be empty for guests.
func (s *Store) GetBooks(ctx context.Context, token string) ([]models.Book, error) {
	var resp models.CollectionEnvelope[models.Book]
	err := s.API.Do(ctx, http.MethodGet, "/books", api.Options{Token: token, SkipAuth: token == ""}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return []models.Book{}, nil
	}
	return resp.Data, nil
}

func (s *Store) GetBookByID(ctx context.Context, token, id string) (*models.Book, error) {
	var resp models.Envelope[models.Book]
	if err := s.API.Do(ctx, http.MethodGet, bookPath(id), api.Options{Token: token, SkipAuth: token == ""}, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

func (s *Store) CreateBook(ctx context.Context, token string, in models.BookInput) (*models.Book, error) {
	var resp models.Envelope[models.Book]
	if err := s.API.Do(ctx, http.MethodPost, "/books", api.Options{Token: token, Body: in}, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

func (s *Store) UpdateBook(ctx context.Context, token, id string, in models.BookInput) (*models.Book, error) {
	var resp models.Envelope[models.Book]
	if err := s.API.Do(ctx, http.MethodPut, bookPath(id), api.Options{Token: token, Body: in}, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

func (s *Store) DeleteBook(ctx context.Context, token, id string) error {
	return s.API.Do(ctx, http.MethodDelete, bookPath(id), api.Options{Token: token}, nil)
}

// UpdateBookStock sets the available amount; negative values are clamped to 0.
func (s *Store) UpdateBookStock(ctx context.Context, token, id string, amount int) (*models.Book, error) {
	if amount < 0 {
		amount = 0
	}
	body := map[string]int{"availableAmount": amount}
	var resp models.Envelope[models.Book]
	if err := s.API.Do(ctx, http.MethodPut, bookPath(id)+"/stock", api.Options{Token: token, Body: body}, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}
