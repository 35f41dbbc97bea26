package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/alextreichler/libreserve/internal/auth"
	"github.com/alextreichler/libreserve/internal/covers"
	"github.com/alextreichler/libreserve/internal/csvimport"
	"github.com/alextreichler/libreserve/internal/filter"
	"github.com/alextreichler/libreserve/internal/models"
	"github.com/alextreichler/libreserve/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"
)

// MaxUploadSize caps CSV uploads.
const MaxUploadSize = 5 << 20

// ImportPath receives CSV uploads.
const ImportPath = "/admin/books/import"

type BookHandler struct {
	Store        *store.Store
	SessionStore *sessions.CookieStore
	Templates    *TemplateCache
}

func bookCriteria(r *http.Request) filter.BookCriteria {
	q := r.URL.Query()
	return filter.BookCriteria{
		Query:        strings.TrimSpace(q.Get("q")),
		Publisher:    q.Get("publisher"),
		Availability: filter.ParseAvailability(q.Get("availability")),
	}
}

// catalog loads, resolves covers, and filters the book list for a page.
func (h *BookHandler) catalog(r *http.Request) (map[string]any, error) {
	p := auth.FromContext(r.Context())
	books, err := h.Store.GetBooks(r.Context(), p.Token)
	if err != nil {
		return nil, err
	}
	books = covers.ResolveAll(books)
	criteria := bookCriteria(r)
	return map[string]any{
		"Books":      filter.Books(books, criteria),
		"Total":      len(books),
		"Criteria":   criteria,
		"Publishers": filter.Publishers(books),
	}, nil
}

// MemberList shows the catalog to any signed-in user.
func (h *BookHandler) MemberList(w http.ResponseWriter, r *http.Request) {
	session := getSession(h.SessionStore, r)
	data, err := h.catalog(r)
	if err != nil {
		backendFailed(w, r, h.Templates, session, err)
		return
	}
	render(w, r, h.Templates, session, http.StatusOK, "books.html", data)
}

func (h *BookHandler) AdminList(w http.ResponseWriter, r *http.Request) {
	session := getSession(h.SessionStore, r)
	data, err := h.catalog(r)
	if err != nil {
		backendFailed(w, r, h.Templates, session, err)
		return
	}
	data["Columns"] = strings.Join(csvimport.Columns, ", ")
	data["NewBook"] = models.BookInput{AvailableAmount: 1}
	render(w, r, h.Templates, session, http.StatusOK, "admin_books.html", data)
}

// parseBookForm reads the six book fields. problem is empty when the form
// is valid.
func parseBookForm(r *http.Request) (in models.BookInput, problem string) {
	in = models.BookInput{
		Title:        strings.TrimSpace(r.FormValue("title")),
		Author:       strings.TrimSpace(r.FormValue("author")),
		ISBN:         strings.TrimSpace(r.FormValue("isbn")),
		Publisher:    strings.TrimSpace(r.FormValue("publisher")),
		CoverPicture: strings.TrimSpace(r.FormValue("coverPicture")),
	}
	if in.Title == "" || in.Author == "" || in.ISBN == "" || in.Publisher == "" || in.CoverPicture == "" {
		return in, "Please fill in all book fields."
	}
	amount, err := strconv.Atoi(strings.TrimSpace(r.FormValue("availableAmount")))
	if err != nil || amount < 0 {
		return in, "Available amount must be a whole number of at least 0."
	}
	in.AvailableAmount = amount
	return in, ""
}

func (h *BookHandler) Create(w http.ResponseWriter, r *http.Request) {
	session := getSession(h.SessionStore, r)
	p := auth.FromContext(r.Context())

	in, problem := parseBookForm(r)
	if problem != "" {
		flashRedirect(w, r, session, "error", problem, "/admin/books")
		return
	}
	book, err := h.Store.CreateBook(r.Context(), p.Token, in)
	if err != nil {
		slog.Error("Error creating book", "title", in.Title, "error", err)
		flashRedirect(w, r, session, "error", errorText(err), "/admin/books")
		return
	}
	slog.Info("Book created", "book_id", book.ID, "title", book.Title)
	flashRedirect(w, r, session, "success", "Book created successfully!", "/admin/books")
}

func (h *BookHandler) EditForm(w http.ResponseWriter, r *http.Request) {
	session := getSession(h.SessionStore, r)
	p := auth.FromContext(r.Context())
	book, err := h.Store.GetBookByID(r.Context(), p.Token, chi.URLParam(r, "id"))
	if err != nil {
		backendFailed(w, r, h.Templates, session, err)
		return
	}
	render(w, r, h.Templates, session, http.StatusOK, "admin_book_edit.html", map[string]any{
		"Book": book,
	})
}

func (h *BookHandler) Update(w http.ResponseWriter, r *http.Request) {
	session := getSession(h.SessionStore, r)
	p := auth.FromContext(r.Context())
	id := chi.URLParam(r, "id")
	editURL := "/admin/books/" + id + "/edit"

	in, problem := parseBookForm(r)
	if problem != "" {
		flashRedirect(w, r, session, "error", problem, editURL)
		return
	}
	if _, err := h.Store.UpdateBook(r.Context(), p.Token, id, in); err != nil {
		slog.Error("Error updating book", "book_id", id, "error", err)
		flashRedirect(w, r, session, "error", errorText(err), editURL)
		return
	}
	flashRedirect(w, r, session, "success", "Book updated successfully!", "/admin/books")
}

// Stock moves the available amount one step up or down, never below zero.
func (h *BookHandler) Stock(w http.ResponseWriter, r *http.Request) {
	session := getSession(h.SessionStore, r)
	p := auth.FromContext(r.Context())
	id := chi.URLParam(r, "id")

	delta := 1
	if r.FormValue("direction") == "down" {
		delta = -1
	}
	book, err := h.Store.GetBookByID(r.Context(), p.Token, id)
	if err != nil {
		flashRedirect(w, r, session, "error", errorText(err), "/admin/books")
		return
	}
	next := max(0, book.AvailableAmount+delta)
	if _, err := h.Store.UpdateBookStock(r.Context(), p.Token, id, next); err != nil {
		slog.Error("Error updating stock", "book_id", id, "error", err)
		flashRedirect(w, r, session, "error", errorText(err), "/admin/books")
		return
	}
	flashRedirect(w, r, session, "success", fmt.Sprintf("Stock updated to %d", next), "/admin/books")
}

func (h *BookHandler) DeleteConfirm(w http.ResponseWriter, r *http.Request) {
	session := getSession(h.SessionStore, r)
	p := auth.FromContext(r.Context())
	book, err := h.Store.GetBookByID(r.Context(), p.Token, chi.URLParam(r, "id"))
	if err != nil {
		backendFailed(w, r, h.Templates, session, err)
		return
	}
	render(w, r, h.Templates, session, http.StatusOK, "confirm_delete.html", map[string]any{
		"Heading": "Delete book",
		"Message": fmt.Sprintf("Are you sure you want to delete %q?", book.Title),
		"Action":  "/admin/books/" + book.ID + "/delete",
		"Cancel":  "/admin/books",
	})
}

func (h *BookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	session := getSession(h.SessionStore, r)
	p := auth.FromContext(r.Context())
	id := chi.URLParam(r, "id")
	if err := h.Store.DeleteBook(r.Context(), p.Token, id); err != nil {
		slog.Error("Error deleting book", "book_id", id, "error", err)
		flashRedirect(w, r, session, "error", errorText(err), "/admin/books")
		return
	}
	slog.Info("Book deleted", "book_id", id)
	flashRedirect(w, r, session, "success", "Book deleted successfully!", "/admin/books")
}

// ImportPreview parses an uploaded CSV and shows the accepted rows for
// review. Nothing is created until the preview is confirmed.
func (h *BookHandler) ImportPreview(w http.ResponseWriter, r *http.Request) {
	session := getSession(h.SessionStore, r)

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		flashRedirect(w, r, session, "error", "Please choose a CSV file to upload.", "/admin/books")
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".csv") {
		flashRedirect(w, r, session, "error", "Please upload a CSV file", "/admin/books")
		return
	}

	result, err := csvimport.Parse(file)
	if err != nil {
		slog.Info("CSV import rejected", "file", header.Filename, "error", err)
		flashRedirect(w, r, session, "error", err.Error(), "/admin/books")
		return
	}
	if len(result.Books) == 0 {
		addFlash(session, "error", "No valid books found in CSV file")
	}
	render(w, r, h.Templates, session, http.StatusOK, "admin_import.html", map[string]any{
		"FileName": header.Filename,
		"Books":    result.Books,
		"Rejected": result.Rejected,
	})
}

// importRows rebuilds the edited preview rows. Rows marked as removed are
// left out; rows edited into an incomplete book are counted as skipped.
func importRows(r *http.Request) (books []models.BookInput, skipped int) {
	form := r.PostForm
	titles := form["title"]
	removed := make(map[int]bool)
	for _, v := range form["remove"] {
		if i, err := strconv.Atoi(v); err == nil {
			removed[i] = true
		}
	}
	at := func(field string, i int) string {
		values := form[field]
		if i < len(values) {
			return strings.TrimSpace(values[i])
		}
		return ""
	}

	books = make([]models.BookInput, 0, len(titles))
	for i := range titles {
		if removed[i] {
			continue
		}
		amount, err := strconv.Atoi(at("availableAmount", i))
		if err != nil || amount <= 0 {
			amount = 1
		}
		book := models.BookInput{
			Title:           at("title", i),
			Author:          at("author", i),
			ISBN:            at("isbn", i),
			Publisher:       at("publisher", i),
			AvailableAmount: amount,
			CoverPicture:    at("coverPicture", i),
		}
		if reason := csvimport.MissingField(book); reason != "" {
			slog.Info("Skipping edited import row", "row", i, "reason", reason)
			skipped++
			continue
		}
		books = append(books, book)
	}
	return books, skipped
}

func (h *BookHandler) ImportConfirm(w http.ResponseWriter, r *http.Request) {
	session := getSession(h.SessionStore, r)
	p := auth.FromContext(r.Context())

	if err := r.ParseForm(); err != nil {
		flashRedirect(w, r, session, "error", "Invalid form data.", "/admin/books")
		return
	}
	books, skipped := importRows(r)
	if skipped > 0 {
		addFlash(session, "error", fmt.Sprintf("Skipped %d incomplete book(s)", skipped))
	}
	if len(books) == 0 {
		flashRedirect(w, r, session, "error", "No books to import.", "/admin/books")
		return
	}

	res := h.Store.ImportBooks(r.Context(), p.Token, books)
	if res.Succeeded > 0 {
		addFlash(session, "success", fmt.Sprintf("Successfully imported %d book(s)", res.Succeeded))
	}
	if res.Failed > 0 {
		addFlash(session, "error", fmt.Sprintf("Failed to import %d book(s)", res.Failed))
	}
	redirect(w, r, session, "/admin/books")
}
