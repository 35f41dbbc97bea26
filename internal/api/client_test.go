package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_TrimsTrailingSlash(t *testing.T) {
	c := NewClient("http://backend.test/api/v1/")
	assert.Equal(t, "http://backend.test/api/v1", c.BaseURL)
	assert.Equal(t, "http://backend.test/api/v1/books", c.url("books"))
	assert.Equal(t, "http://backend.test/api/v1/books", c.url("/books"))

	assert.Equal(t, DefaultBaseURL, NewClient("").BaseURL)
}

func TestDo_Headers(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()
	c := NewClient(srv.URL)

	t.Run("bearer token attached", func(t *testing.T) {
		require.NoError(t, c.Do(context.Background(), http.MethodGet, "/books", Options{Token: "tok"}, nil))
		assert.Equal(t, "Bearer tok", got.Get("Authorization"))
		assert.Equal(t, "application/json", got.Get("Content-Type"))
		assert.Equal(t, "application/json", got.Get("Accept"))
		assert.NotEmpty(t, got.Get("X-Request-Id"))
	})

	t.Run("skip auth", func(t *testing.T) {
		require.NoError(t, c.Do(context.Background(), http.MethodGet, "/books", Options{Token: "tok", SkipAuth: true}, nil))
		assert.Empty(t, got.Get("Authorization"))
	})

	t.Run("no token", func(t *testing.T) {
		require.NoError(t, c.Do(context.Background(), http.MethodGet, "/books", Options{}, nil))
		assert.Empty(t, got.Get("Authorization"))
	})
}

func TestDo_SendsAndDecodesJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/books/b1/stock", r.URL.Path)
		assert.Equal(t, float64(4), in["availableAmount"])
		w.Write([]byte(`{"success":true,"data":{"_id":"b1"}}`))
	}))
	defer srv.Close()

	var out struct {
		Data struct {
			ID string `json:"_id"`
		} `json:"data"`
	}
	err := NewClient(srv.URL).Do(context.Background(), http.MethodPut, "/books/b1/stock",
		Options{Token: "tok", Body: map[string]int{"availableAmount": 4}}, &out)
	require.NoError(t, err)
	assert.Equal(t, "b1", out.Data.ID)
}

func TestDo_EmptySuccessBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	var out map[string]any
	require.NoError(t, NewClient(srv.URL).Do(context.Background(), http.MethodDelete, "/books/1", Options{Token: "t"}, &out))
}

func TestDo_ErrorMessagePriority(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"error field wins", 400, `{"success":false,"error":"Book not found","message":"other"}`, "Book not found"},
		{"message field", 400, `{"success":false,"message":"Invalid dates"}`, "Invalid dates"},
		{"msg field", 401, `{"msg":"Not authorized"}`, "Not authorized"},
		{"success false marker", 400, `{"success":false}`, RejectedMessage},
		{"status text", 404, `{}`, "Not Found"},
		{"non json body", 500, `<html>oops</html>`, "Internal Server Error"},
		{"unknown status", 599, ``, "Request failed (599)"},
		{"non string error ignored", 400, `{"error":{"code":1},"success":false}`, RejectedMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			err := NewClient(srv.URL).Do(context.Background(), http.MethodGet, "/x", Options{}, nil)
			require.Error(t, err)
			var apiErr *Error
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.want, apiErr.Message)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.True(t, IsStatus(err, tt.status))
		})
	}
}

func TestDo_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := NewClient(url).Do(context.Background(), http.MethodGet, "/books", Options{}, nil)
	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 0, apiErr.Status)
	assert.Equal(t, "Unable to reach the library service", apiErr.Error())
	assert.NotNil(t, errors.Unwrap(err))
}
