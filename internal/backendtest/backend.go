// Package backendtest provides an in-memory stand-in for the library REST
// backend, for use in tests.
package backendtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/alextreichler/libreserve/internal/models"
	"github.com/go-chi/chi/v5"
)

type account struct {
	user     models.User
	password string
}

// Backend mimics the subset of the library API the front end calls.
type Backend struct {
	*httptest.Server

	mu           sync.Mutex
	seq          int
	accounts     map[string]*account // by token
	books        []models.Book
	reservations []models.Reservation

	// Requests records "METHOD /path" for every call received.
	Requests []string
}

func New() *Backend {
	b := &Backend{accounts: make(map[string]*account)}
	r := chi.NewRouter()
	r.Use(b.record)
	r.Post("/auth/login", b.login)
	r.Post("/auth/register", b.register)
	r.Get("/auth/me", b.me)
	r.Get("/books", b.listBooks)
	r.Post("/books", b.authed(b.createBook))
	r.Get("/books/{id}", b.getBook)
	r.Put("/books/{id}", b.authed(b.updateBook))
	r.Delete("/books/{id}", b.authed(b.deleteBook))
	r.Put("/books/{id}/stock", b.authed(b.updateStock))
	r.Get("/reservations", b.authed(b.listReservations))
	r.Post("/reservations", b.authed(b.createReservation))
	r.Get("/reservations/{id}", b.authed(b.getReservation))
	r.Put("/reservations/{id}", b.authed(b.updateReservation))
	r.Delete("/reservations/{id}", b.authed(b.deleteReservation))
	b.Server = httptest.NewServer(r)
	return b
}

func (b *Backend) nextID(prefix string) string {
	b.seq++
	return fmt.Sprintf("%s%d", prefix, b.seq)
}

// AddUser registers an account and returns its bearer token.
func (b *Backend) AddUser(name, email, password string, role models.Role) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addUserLocked(name, email, password, role)
}

func (b *Backend) addUserLocked(name, email, password string, role models.Role) string {
	id := b.nextID("u")
	token := "tok-" + id
	b.accounts[token] = &account{
		user:     models.User{ID: id, Name: name, Email: email, Role: role},
		password: password,
	}
	return token
}

func (b *Backend) AddBook(book models.Book) models.Book {
	b.mu.Lock()
	defer b.mu.Unlock()
	if book.ID == "" {
		book.ID = b.nextID("b")
	}
	b.books = append(b.books, book)
	return book
}

func (b *Backend) AddReservation(token, bookID string, borrow, pickup time.Time) models.Reservation {
	b.mu.Lock()
	defer b.mu.Unlock()
	acc := b.accounts[token]
	res := models.Reservation{
		ID:         b.nextID("r"),
		BorrowDate: borrow,
		PickupDate: pickup,
		User:       models.ReservationUser{ID: acc.user.ID, Name: acc.user.Name, Email: acc.user.Email, Role: acc.user.Role},
		Book:       b.findBook(bookID),
	}
	b.reservations = append(b.reservations, res)
	return res
}

func (b *Backend) Books() []models.Book {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.Book(nil), b.books...)
}

func (b *Backend) Reservations() []models.Reservation {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.Reservation(nil), b.reservations...)
}

func (b *Backend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.Requests = append(b.Requests, r.Method+" "+r.URL.Path)
		b.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

type authedHandler func(w http.ResponseWriter, r *http.Request, acc *account)

func (b *Backend) authed(h authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		b.mu.Lock()
		acc := b.accounts[token]
		b.mu.Unlock()
		if acc == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Not authorized to access this route"})
			return
		}
		h(w, r, acc)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func ok(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": data})
}

func (b *Backend) login(w http.ResponseWriter, r *http.Request) {
	var in struct{ Email, Password string }
	json.NewDecoder(r.Body).Decode(&in)
	b.mu.Lock()
	defer b.mu.Unlock()
	for token, acc := range b.accounts {
		if acc.user.Email == in.Email && acc.password == in.Password {
			writeJSON(w, http.StatusOK, models.AuthResponse{Success: true, ID: acc.user.ID, Name: acc.user.Name, Email: acc.user.Email, Token: token})
			return
		}
	}
	writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "msg": "Invalid credentials"})
}

func (b *Backend) register(w http.ResponseWriter, r *http.Request) {
	var in models.RegisterInput
	json.NewDecoder(r.Body).Decode(&in)
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, acc := range b.accounts {
		if acc.user.Email == in.Email {
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false})
			return
		}
	}
	role := in.Role
	if role == "" {
		role = models.RoleMember
	}
	token := b.addUserLocked(in.Name, in.Email, in.Password, role)
	acc := b.accounts[token]
	acc.user.Tel = in.Tel
	writeJSON(w, http.StatusOK, models.AuthResponse{Success: true, ID: acc.user.ID, Name: acc.user.Name, Email: acc.user.Email, Token: token})
}

func (b *Backend) me(w http.ResponseWriter, r *http.Request) {
	b.authed(func(w http.ResponseWriter, r *http.Request, acc *account) {
		ok(w, acc.user)
	})(w, r)
}

func (b *Backend) findBook(id string) *models.Book {
	for i := range b.books {
		if b.books[i].ID == id {
			book := b.books[i]
			return &book
		}
	}
	return nil
}

func (b *Backend) bookIndex(id string) int {
	for i := range b.books {
		if b.books[i].ID == id {
			return i
		}
	}
	return -1
}

func notFound(w http.ResponseWriter, what string) {
	writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "No " + what + " with that id"})
}

func (b *Backend) listBooks(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	books := append([]models.Book{}, b.books...)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "count": len(books), "data": books})
}

func (b *Backend) getBook(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	book := b.findBook(chi.URLParam(r, "id"))
	if book == nil {
		notFound(w, "book")
		return
	}
	ok(w, book)
}

func requireAdmin(w http.ResponseWriter, acc *account) bool {
	if acc.user.Role != models.RoleAdmin {
		writeJSON(w, http.StatusForbidden, map[string]any{"success": false, "message": "User role member is not authorized to access this route"})
		return false
	}
	return true
}

func (b *Backend) createBook(w http.ResponseWriter, r *http.Request, acc *account) {
	if !requireAdmin(w, acc) {
		return
	}
	var in models.BookInput
	json.NewDecoder(r.Body).Decode(&in)
	if in.Title == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "Please add a title"})
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	book := models.Book{
		ID: b.nextID("b"), Title: in.Title, Author: in.Author, ISBN: in.ISBN,
		Publisher: in.Publisher, AvailableAmount: in.AvailableAmount, CoverPicture: in.CoverPicture,
	}
	b.books = append(b.books, book)
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "data": book})
}

func (b *Backend) updateBook(w http.ResponseWriter, r *http.Request, acc *account) {
	if !requireAdmin(w, acc) {
		return
	}
	var in models.BookInput
	json.NewDecoder(r.Body).Decode(&in)
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.bookIndex(chi.URLParam(r, "id"))
	if i < 0 {
		notFound(w, "book")
		return
	}
	id := b.books[i].ID
	b.books[i] = models.Book{
		ID: id, Title: in.Title, Author: in.Author, ISBN: in.ISBN,
		Publisher: in.Publisher, AvailableAmount: in.AvailableAmount, CoverPicture: in.CoverPicture,
	}
	ok(w, b.books[i])
}

func (b *Backend) deleteBook(w http.ResponseWriter, r *http.Request, acc *account) {
	if !requireAdmin(w, acc) {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.bookIndex(chi.URLParam(r, "id"))
	if i < 0 {
		notFound(w, "book")
		return
	}
	id := b.books[i].ID
	b.books = append(b.books[:i], b.books[i+1:]...)
	for j := range b.reservations {
		if b.reservations[j].Book != nil && b.reservations[j].Book.ID == id {
			b.reservations[j].Book = nil
		}
	}
	ok(w, map[string]any{})
}

func (b *Backend) updateStock(w http.ResponseWriter, r *http.Request, acc *account) {
	if !requireAdmin(w, acc) {
		return
	}
	var in struct {
		AvailableAmount int `json:"availableAmount"`
	}
	json.NewDecoder(r.Body).Decode(&in)
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.bookIndex(chi.URLParam(r, "id"))
	if i < 0 {
		notFound(w, "book")
		return
	}
	b.books[i].AvailableAmount = in.AvailableAmount
	ok(w, b.books[i])
}

func visible(res models.Reservation, acc *account) bool {
	return acc.user.Role == models.RoleAdmin || res.User.ID == acc.user.ID
}

func (b *Backend) reservationIndex(id string, acc *account) int {
	for i := range b.reservations {
		if b.reservations[i].ID == id && visible(b.reservations[i], acc) {
			return i
		}
	}
	return -1
}

func (b *Backend) listReservations(w http.ResponseWriter, r *http.Request, acc *account) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := []models.Reservation{}
	for _, res := range b.reservations {
		if visible(res, acc) {
			out = append(out, res)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "count": len(out), "data": out})
}

func (b *Backend) getReservation(w http.ResponseWriter, r *http.Request, acc *account) {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.reservationIndex(chi.URLParam(r, "id"), acc)
	if i < 0 {
		notFound(w, "reservation")
		return
	}
	ok(w, b.reservations[i])
}

func parseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}

func (b *Backend) createReservation(w http.ResponseWriter, r *http.Request, acc *account) {
	var in models.ReservationInput
	json.NewDecoder(r.Body).Decode(&in)
	borrow, err1 := parseDate(in.BorrowDate)
	pickup, err2 := parseDate(in.PickupDate)
	if err1 != nil || err2 != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Invalid dates"})
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	book := b.findBook(in.Book)
	if book == nil {
		notFound(w, "book")
		return
	}
	count := 0
	for _, res := range b.reservations {
		if res.User.ID == acc.user.ID {
			count++
		}
	}
	if count >= 3 && acc.user.Role != models.RoleAdmin {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false,
			"message": fmt.Sprintf("The user with ID %s has already made 3 reservations", acc.user.ID)})
		return
	}
	now := time.Now().UTC()
	res := models.Reservation{
		ID: b.nextID("r"), BorrowDate: borrow, PickupDate: pickup, CreatedAt: &now,
		User: models.ReservationUser{ID: acc.user.ID, Name: acc.user.Name, Email: acc.user.Email, Role: acc.user.Role},
		Book: book,
	}
	b.reservations = append(b.reservations, res)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": res})
}

func (b *Backend) updateReservation(w http.ResponseWriter, r *http.Request, acc *account) {
	var in models.ReservationPatch
	json.NewDecoder(r.Body).Decode(&in)
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.reservationIndex(chi.URLParam(r, "id"), acc)
	if i < 0 {
		notFound(w, "reservation")
		return
	}
	if d, err := parseDate(in.BorrowDate); err == nil {
		b.reservations[i].BorrowDate = d
	}
	if d, err := parseDate(in.PickupDate); err == nil {
		b.reservations[i].PickupDate = d
	}
	ok(w, b.reservations[i])
}

func (b *Backend) deleteReservation(w http.ResponseWriter, r *http.Request, acc *account) {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.reservationIndex(chi.URLParam(r, "id"), acc)
	if i < 0 {
		notFound(w, "reservation")
		return
	}
	b.reservations = append(b.reservations[:i], b.reservations[i+1:]...)
	ok(w, map[string]any{})
}
