package store

import (
	"log/slog"

	"github.com/alextreichler/libreserve/internal/api"
)

// Store is the typed accessor layer over the library backend. It keeps no
// state of its own; every call is a fresh read or write.
type Store struct {
	API *api.Client
}

func NewStore(baseURL string) *Store {
	client := api.NewClient(baseURL)
	slog.Info("Using library backend", "base_url", client.BaseURL)
	return &Store{API: client}
}
