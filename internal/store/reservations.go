package store

import (
	"context"
	"net/http"
	"net/url"

	"github.com/alextreichler/libreserve/internal/api"
	"github.com/alextreichler/libreserve/internal/models"
)

func reservationPath(id string) string {
	return "/reservations/" + url.PathEscape(id)
}

// GetReservations returns the reservations visible to the token's owner:
// their own for members, all of them for admins.
func (s *Store) GetReservations(ctx context.Context, token string) ([]models.Reservation, error) {
	var resp models.CollectionEnvelope[models.Reservation]
	if err := s.API.Do(ctx, http.MethodGet, "/reservations", api.Options{Token: token}, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return []models.Reservation{}, nil
	}
	return resp.Data, nil
}

func (s *Store) GetReservationByID(ctx context.Context, token, id string) (*models.Reservation, error) {
	var resp models.Envelope[models.Reservation]
	if err := s.API.Do(ctx, http.MethodGet, reservationPath(id), api.Options{Token: token}, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

func (s *Store) CreateReservation(ctx context.Context, token string, in models.ReservationInput) (*models.Reservation, error) {
	var resp models.Envelope[models.Reservation]
	if err := s.API.Do(ctx, http.MethodPost, "/reservations", api.Options{Token: token, Body: in}, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

func (s *Store) UpdateReservation(ctx context.Context, token, id string, patch models.ReservationPatch) (*models.Reservation, error) {
	var resp models.Envelope[models.Reservation]
	if err := s.API.Do(ctx, http.MethodPut, reservationPath(id), api.Options{Token: token, Body: patch}, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

func (s *Store) DeleteReservation(ctx context.Context, token, id string) error {
	return s.API.Do(ctx, http.MethodDelete, reservationPath(id), api.Options{Token: token}, nil)
}
