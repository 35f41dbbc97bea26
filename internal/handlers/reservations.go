package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alextreichler/libreserve/internal/auth"
	"github.com/alextreichler/libreserve/internal/covers"
	"github.com/alextreichler/libreserve/internal/filter"
	"github.com/alextreichler/libreserve/internal/models"
	"github.com/alextreichler/libreserve/internal/reservation"
	"github.com/alextreichler/libreserve/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"
	"golang.org/x/sync/errgroup"
)

// ReservationHandler serves one reservation area. The member and admin
// areas share it; Admin switches on the management view.
type ReservationHandler struct {
	Store        *store.Store
	SessionStore *sessions.CookieStore
	Templates    *TemplateCache
	Clock        Clock
	Prefix       string // "/member/reservations" or "/admin/reservations"
	Admin        bool
}

// ReservationRow is a reservation with its derived status.
type ReservationRow struct {
	models.Reservation
	Status filter.Status
}

func reservationRows(src []models.Reservation, c filter.ReservationCriteria, today time.Time) []ReservationRow {
	sorted := filter.Reservations(src, c, today)
	out := make([]ReservationRow, len(sorted))
	for i, r := range sorted {
		out[i] = ReservationRow{Reservation: r, Status: filter.Classify(r, today)}
	}
	return out
}

// reservationCriteria reads the list controls. An unknown sort field falls
// back to the default instead of failing the page.
func reservationCriteria(r *http.Request) filter.ReservationCriteria {
	q := r.URL.Query()
	field, ok := filter.ParseSortField(q.Get("sort"))
	if !ok {
		field = filter.SortBorrowDate
	}
	return filter.ReservationCriteria{
		Query:     strings.TrimSpace(q.Get("q")),
		Status:    filter.ParseStatus(q.Get("status")),
		SortField: field,
		SortOrder: filter.ParseSortOrder(q.Get("order")),
	}
}

func (h *ReservationHandler) List(w http.ResponseWriter, r *http.Request) {
	session := getSession(h.SessionStore, r)
	p := auth.FromContext(r.Context())
	today := h.Clock.Today()

	var (
		reservations []models.Reservation
		books        []models.Book
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		reservations, err = h.Store.GetReservations(ctx, p.Token)
		return err
	})
	if !h.Admin {
		g.Go(func() error {
			var err error
			books, err = h.Store.GetBooks(ctx, p.Token)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		backendFailed(w, r, h.Templates, session, err)
		return
	}
	reservations = covers.ResolveReservations(reservations)
	criteria := reservationCriteria(r)

	data := map[string]any{
		"Prefix":       h.Prefix,
		"Reservations": reservationRows(reservations, criteria, today),
		"Count":        len(reservations),
		"Criteria":     criteria,
		"Statuses":     []filter.Status{filter.StatusAll, filter.StatusUpcoming, filter.StatusActive, filter.StatusPast},
		"SortFields":   filter.SortFields,
		"Today":        reservation.FormatDay(today),
	}
	if h.Admin {
		data["Stats"] = filter.Stats(reservations, today)
		render(w, r, h.Templates, session, http.StatusOK, "admin_reservations.html", data)
		return
	}
	data["Books"] = covers.ResolveAll(books)
	data["MaxActive"] = reservation.MaxActive
	data["SelectedBook"] = r.URL.Query().Get("book")
	render(w, r, h.Templates, session, http.StatusOK, "member_reservations.html", data)
}

// Create validates the dates locally before asking the backend, which
// enforces the reservation limit.
func (h *ReservationHandler) Create(w http.ResponseWriter, r *http.Request) {
	session := getSession(h.SessionStore, r)
	p := auth.FromContext(r.Context())

	bookID := strings.TrimSpace(r.FormValue("book"))
	if bookID == "" {
		flashRedirect(w, r, session, "error", "Please select a book", h.Prefix)
		return
	}
	borrow, pickup, err := reservation.ValidateForm(r.FormValue("borrowDate"), r.FormValue("pickupDate"), h.Clock.Today())
	if err != nil {
		flashRedirect(w, r, session, "error", err.Error(), h.Prefix+"?book="+url.QueryEscape(bookID))
		return
	}

	res, err := h.Store.CreateReservation(r.Context(), p.Token, models.ReservationInput{
		Book:       bookID,
		BorrowDate: reservation.FormatDay(borrow),
		PickupDate: reservation.FormatDay(pickup),
	})
	if err != nil {
		slog.Info("Reservation rejected", "user_id", p.ID, "book_id", bookID, "error", err)
		flashRedirect(w, r, session, "error", errorText(err), h.Prefix)
		return
	}
	slog.Info("Reservation created", "reservation_id", res.ID, "user_id", p.ID)
	flashRedirect(w, r, session, "success", "Reservation created successfully!", h.Prefix)
}

func (h *ReservationHandler) EditForm(w http.ResponseWriter, r *http.Request) {
	session := getSession(h.SessionStore, r)
	p := auth.FromContext(r.Context())
	res, err := h.Store.GetReservationByID(r.Context(), p.Token, chi.URLParam(r, "id"))
	if err != nil {
		backendFailed(w, r, h.Templates, session, err)
		return
	}
	res.Book = covers.ResolvePtr(res.Book)
	render(w, r, h.Templates, session, http.StatusOK, "reservation_edit.html", map[string]any{
		"Prefix":      h.Prefix,
		"Reservation": res,
		"Today":       reservation.FormatDay(h.Clock.Today()),
	})
}

func (h *ReservationHandler) Update(w http.ResponseWriter, r *http.Request) {
	session := getSession(h.SessionStore, r)
	p := auth.FromContext(r.Context())
	id := chi.URLParam(r, "id")
	editURL := h.Prefix + "/" + id + "/edit"

	borrow, pickup, err := reservation.ValidateForm(r.FormValue("borrowDate"), r.FormValue("pickupDate"), h.Clock.Today())
	if err != nil {
		flashRedirect(w, r, session, "error", err.Error(), editURL)
		return
	}
	_, err = h.Store.UpdateReservation(r.Context(), p.Token, id, models.ReservationPatch{
		BorrowDate: reservation.FormatDay(borrow),
		PickupDate: reservation.FormatDay(pickup),
	})
	if err != nil {
		slog.Error("Error updating reservation", "reservation_id", id, "error", err)
		flashRedirect(w, r, session, "error", errorText(err), editURL)
		return
	}
	flashRedirect(w, r, session, "success", "Reservation updated successfully!", h.Prefix)
}

func (h *ReservationHandler) DeleteConfirm(w http.ResponseWriter, r *http.Request) {
	session := getSession(h.SessionStore, r)
	p := auth.FromContext(r.Context())
	res, err := h.Store.GetReservationByID(r.Context(), p.Token, chi.URLParam(r, "id"))
	if err != nil {
		backendFailed(w, r, h.Templates, session, err)
		return
	}
	title := "a deleted book"
	if res.Book != nil {
		title = fmt.Sprintf("%q", res.Book.Title)
	}
	render(w, r, h.Templates, session, http.StatusOK, "confirm_delete.html", map[string]any{
		"Heading": "Delete reservation",
		"Message": fmt.Sprintf("Are you sure you want to delete this reservation for %s (%s to %s)?",
			title, reservation.FormatDay(res.BorrowDate), reservation.FormatDay(res.PickupDate)),
		"Action": h.Prefix + "/" + res.ID + "/delete",
		"Cancel": h.Prefix,
	})
}

func (h *ReservationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	session := getSession(h.SessionStore, r)
	p := auth.FromContext(r.Context())
	id := chi.URLParam(r, "id")
	if err := h.Store.DeleteReservation(r.Context(), p.Token, id); err != nil {
		slog.Error("Error deleting reservation", "reservation_id", id, "error", err)
		flashRedirect(w, r, session, "error", errorText(err), h.Prefix)
		return
	}
	slog.Info("Reservation deleted", "reservation_id", id, "user_id", p.ID)
	flashRedirect(w, r, session, "success", "Reservation deleted successfully!", h.Prefix)
}
