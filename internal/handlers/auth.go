package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/alextreichler/libreserve/internal/auth"
	"github.com/alextreichler/libreserve/internal/models"
	"github.com/alextreichler/libreserve/internal/store"
	"github.com/gorilla/sessions"
)

const (
	invalidLoginMessage   = "Invalid email or password"
	registerFailedMessage = "Registration failed. Please check your information or try a different email."
)

type AuthHandler struct {
	Store        *store.Store
	SessionStore *sessions.CookieStore
	Templates    *TemplateCache
	Clock        Clock
}

// SessionMiddleware places the signed-in principal, if any, in the request
// context. Expired principals are dropped from the session.
func (h *AuthHandler) SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := getSession(h.SessionStore, r)
		p, ok := session.Values[principalKey].(auth.Principal)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		if p.Expired(h.Clock.now()) {
			slog.Info("Session token expired", "user_id", p.ID)
			delete(session.Values, principalKey)
			if err := session.Save(r, w); err != nil {
				slog.Error("Failed to save session", "error", err)
			}
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), &p)))
	})
}

// Require gates a route group. An empty role only requires a signed-in user;
// a user with another role is redirected to mirror.
func (h *AuthHandler) Require(role models.Role, mirror string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := auth.FromContext(r.Context())
			d := auth.Decide(p, role, r.URL.RequestURI(), mirror, h.Clock.now())
			if !d.Allow {
				slog.Debug("Access denied", "path", r.URL.Path, "redirect", d.RedirectTo)
				http.Redirect(w, r, d.RedirectTo, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (h *AuthHandler) LoginGet(w http.ResponseWriter, r *http.Request) {
	callback := r.URL.Query().Get("callbackUrl")
	session := getSession(h.SessionStore, r)
	if auth.FromContext(r.Context()) != nil {
		redirect(w, r, session, auth.SafeCallback(callback))
		return
	}
	render(w, r, h.Templates, session, http.StatusOK, "login.html", map[string]any{
		"CallbackURL": callback,
	})
}

func (h *AuthHandler) LoginPost(w http.ResponseWriter, r *http.Request) {
	session := getSession(h.SessionStore, r)

	email := strings.TrimSpace(r.FormValue("email"))
	password := r.FormValue("password")
	callback := r.FormValue("callbackUrl")
	back := "/login"
	if callback != "" {
		back = auth.LoginURL(callback)
	}

	if email == "" || password == "" {
		flashRedirect(w, r, session, "error", invalidLoginMessage, back)
		return
	}

	resp, err := h.Store.Login(r.Context(), email, password)
	if err != nil || resp.Token == "" {
		slog.Info("Login failed", "email", email, "error", err)
		flashRedirect(w, r, session, "error", invalidLoginMessage, back)
		return
	}

	p := auth.Principal{
		ID:    resp.ID,
		Name:  resp.Name,
		Email: resp.Email,
		Role:  models.RoleMember,
		Token: resp.Token,
	}
	// Role comes from the profile; a failed lookup leaves the member role.
	if profile, err := h.Store.GetProfile(r.Context(), resp.Token); err != nil {
		slog.Warn("Profile lookup failed, assuming member role", "user_id", resp.ID, "error", err)
	} else {
		p.Role = models.ParseRole(string(profile.Role))
		if profile.Name != "" {
			p.Name = profile.Name
		}
	}
	if exp, ok := auth.TokenExpiry(resp.Token); ok {
		p.TokenExpiry = exp
		ttl := exp.Sub(h.Clock.now())
		if ttl <= 0 {
			slog.Warn("Backend issued an already expired token", "user_id", p.ID)
			flashRedirect(w, r, session, "error", invalidLoginMessage, back)
			return
		}
		session.Options.MaxAge = int(ttl.Seconds())
	}

	session.Values[principalKey] = p
	addFlash(session, "success", "Welcome, "+p.Name+"!")
	slog.Info("Login successful", "user_id", p.ID, "role", p.Role)
	redirect(w, r, session, auth.SafeCallback(callback))
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	session := getSession(h.SessionStore, r)
	delete(session.Values, principalKey)
	flashRedirect(w, r, session, "success", "Signed out successfully.", "/")
}

func (h *AuthHandler) RegisterGet(w http.ResponseWriter, r *http.Request) {
	session := getSession(h.SessionStore, r)
	render(w, r, h.Templates, session, http.StatusOK, "register.html", map[string]any{
		"Form": models.RegisterInput{Role: models.RoleMember},
	})
}

func (h *AuthHandler) RegisterPost(w http.ResponseWriter, r *http.Request) {
	session := getSession(h.SessionStore, r)
	in := models.RegisterInput{
		Name:     strings.TrimSpace(r.FormValue("name")),
		Email:    strings.TrimSpace(r.FormValue("email")),
		Tel:      strings.TrimSpace(r.FormValue("tel")),
		Password: r.FormValue("password"),
		Role:     models.ParseRole(r.FormValue("role")),
	}

	fail := func(message string) {
		form := in
		form.Password = ""
		render(w, r, h.Templates, session, http.StatusUnprocessableEntity, "register.html", map[string]any{
			"Form":  form,
			"Error": message,
		})
	}

	if in.Name == "" || in.Email == "" || in.Tel == "" || in.Password == "" {
		fail("Please fill in all fields.")
		return
	}

	if _, err := h.Store.Register(r.Context(), in); err != nil {
		message := errorText(err)
		if strings.Contains(message, "Request rejected") {
			message = registerFailedMessage
		}
		slog.Info("Registration failed", "email", in.Email, "error", err)
		fail(message)
		return
	}

	slog.Info("Registered user", "email", in.Email, "role", in.Role)
	flashRedirect(w, r, session, "success", "Registration successful. You can sign in now.", "/login")
}

func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	session := getSession(h.SessionStore, r)
	p := auth.FromContext(r.Context())
	user, err := h.Store.GetProfile(r.Context(), p.Token)
	if err != nil {
		backendFailed(w, r, h.Templates, session, err)
		return
	}
	render(w, r, h.Templates, session, http.StatusOK, "profile.html", map[string]any{
		"User": user,
	})
}
