package handlers

import (
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/alextreichler/libreserve/internal/models"
	"github.com/alextreichler/libreserve/internal/reservation"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Handlers groups every page handler the router serves.
type Handlers struct {
	Auth              *AuthHandler
	Home              *HomeHandler
	Books             *BookHandler
	Reservations      *ReservationHandler
	AdminReservations *ReservationHandler
	Admin             *AdminHandler
	Limiter           *RateLimiter
	Static            fs.FS
}

// Funcs are the template helpers every page can use.
func Funcs() template.FuncMap {
	return template.FuncMap{
		"day":     reservation.FormatDay,
		"date":    func(t time.Time) string { return t.Format("Jan 2, 2006") },
		"isAdmin": func(role models.Role) bool { return role == models.RoleAdmin },
	}
}

// Routes builds the application router. CSRF protection wraps it in main,
// inside BodyLimitMiddleware.
func (hs *Handlers) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(SecurityHeadersMiddleware)

	if hs.Static != nil {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(hs.Static))))
	}
	r.Get("/healthz", Healthz)

	r.Group(func(r chi.Router) {
		r.Use(hs.Auth.SessionMiddleware)

		r.Get("/", hs.Home.Index)
		r.Get("/demo", hs.Home.Demo)

		r.Get("/login", hs.Auth.LoginGet)
		r.Post("/login", hs.Limiter.Middleware(hs.Auth.LoginPost))
		r.Get("/register", hs.Auth.RegisterGet)
		r.Post("/register", hs.Limiter.Middleware(hs.Auth.RegisterPost))
		r.Get("/logout", hs.Auth.Logout)
		r.Post("/logout", hs.Auth.Logout)

		r.With(hs.Auth.Require("", "")).Get("/profile", hs.Auth.Profile)
		r.With(hs.Auth.Require("", "")).Get("/member/books", hs.Books.MemberList)

		r.Route("/member/reservations", func(r chi.Router) {
			r.Use(hs.Auth.Require(models.RoleMember, "/admin/reservations"))
			hs.reservationRoutes(r, hs.Reservations)
		})

		r.With(hs.Auth.Require(models.RoleAdmin, "/member/reservations")).Get("/admin", hs.Admin.Dashboard)

		r.Route("/admin/books", func(r chi.Router) {
			r.Use(hs.Auth.Require(models.RoleAdmin, "/member/books"))
			r.Get("/", hs.Books.AdminList)
			r.Post("/", hs.Books.Create)
			r.Post("/import", hs.Books.ImportPreview)
			r.Post("/import/confirm", hs.Books.ImportConfirm)
			r.Get("/{id}/edit", hs.Books.EditForm)
			r.Post("/{id}", hs.Books.Update)
			r.Post("/{id}/stock", hs.Books.Stock)
			r.Get("/{id}/delete", hs.Books.DeleteConfirm)
			r.Post("/{id}/delete", hs.Books.Delete)
		})

		r.Route("/admin/reservations", func(r chi.Router) {
			r.Use(hs.Auth.Require(models.RoleAdmin, "/member/reservations"))
			hs.reservationRoutes(r, hs.AdminReservations)
		})
	})

	return r
}

func (hs *Handlers) reservationRoutes(r chi.Router, h *ReservationHandler) {
	r.Get("/", h.List)
	r.Post("/", hs.Limiter.Middleware(h.Create))
	r.Get("/{id}/edit", h.EditForm)
	r.Post("/{id}", h.Update)
	r.Get("/{id}/delete", h.DeleteConfirm)
	r.Post("/{id}/delete", h.Delete)
}
