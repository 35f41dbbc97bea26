package store

import (
	"context"
	"net/http"

	"github.com/alextreichler/libreserve/internal/api"
	"github.com/alextreichler/libreserve/internal/models"
)

func (s *Store) Login(ctx context.Context, email, password string) (*models.AuthResponse, error) {
	body := map[string]string{"email": email, "password": password}
	var resp models.AuthResponse
	if err := s.API.Do(ctx, http.MethodPost, "/auth/login", api.Options{SkipAuth: true, Body: body}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *Store) Register(ctx context.Context, in models.RegisterInput) (*models.AuthResponse, error) {
	var resp models.AuthResponse
	if err := s.API.Do(ctx, http.MethodPost, "/auth/register", api.Options{SkipAuth: true, Body: in}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *Store) GetProfile(ctx context.Context, token string) (*models.User, error) {
	var resp models.Envelope[models.User]
	if err := s.API.Do(ctx, http.MethodGet, "/auth/me", api.Options{Token: token}, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}
