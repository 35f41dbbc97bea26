package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alextreichler/libreserve/internal/api"
	"github.com/alextreichler/libreserve/internal/auth"
	"github.com/alextreichler/libreserve/internal/reservation"
	"github.com/gorilla/csrf"
	"github.com/gorilla/sessions"
)

const (
	sessionName  = "libreserve-session"
	principalKey = "principal"
)

// Clock supplies "today" for date validation and status classification.
type Clock struct {
	Now      func() time.Time
	Location *time.Location
}

func (c Clock) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

func (c Clock) Today() time.Time {
	loc := c.Location
	if loc == nil {
		loc = time.Local
	}
	return reservation.Today(c.now(), loc)
}

func getSession(ss *sessions.CookieStore, r *http.Request) *sessions.Session {
	session, err := ss.Get(r, sessionName)
	if err != nil {
		// A cookie signed with an old key; start over with a fresh session.
		slog.Debug("Discarding unreadable session", "error", err)
	}
	return session
}

// page builds the data every layout needs and consumes pending flashes.
func page(r *http.Request, session *sessions.Session, data map[string]any) map[string]any {
	if data == nil {
		data = make(map[string]any)
	}
	data["CsrfField"] = csrf.TemplateField(r)
	data["Flashes"] = GetFlash(session)
	data["Principal"] = auth.FromContext(r.Context())
	data["Path"] = r.URL.Path
	return data
}

func render(w http.ResponseWriter, r *http.Request, tc *TemplateCache, session *sessions.Session, status int, name string, data map[string]any) {
	data = page(r, session, data)
	if err := session.Save(r, w); err != nil {
		slog.Error("Failed to save session", "error", err)
	}
	tc.Render(w, status, name, data)
}

func redirect(w http.ResponseWriter, r *http.Request, session *sessions.Session, to string) {
	if err := session.Save(r, w); err != nil {
		slog.Error("Failed to save session", "error", err)
	}
	http.Redirect(w, r, to, http.StatusSeeOther)
}

// flashRedirect is the post/redirect/get tail of every form handler.
func flashRedirect(w http.ResponseWriter, r *http.Request, session *sessions.Session, kind, message, to string) {
	addFlash(session, kind, message)
	redirect(w, r, session, to)
}

// errorText is the message shown to the user for a failed backend call.
func errorText(err error) string {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return "Something went wrong. Please try again."
}

// backendFailed renders the error page for a failed read. A rejected token
// ends the session and sends the user back to sign in.
func backendFailed(w http.ResponseWriter, r *http.Request, tc *TemplateCache, session *sessions.Session, err error) {
	if api.IsStatus(err, http.StatusUnauthorized) {
		delete(session.Values, principalKey)
		addFlash(session, "error", "Your session has expired. Please sign in again.")
		redirect(w, r, session, auth.LoginURL(r.URL.RequestURI()))
		return
	}
	status := http.StatusBadGateway
	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		status = http.StatusNotFound
	}
	slog.Error("Backend call failed", "path", r.URL.Path, "error", err)
	render(w, r, tc, session, status, "error.html", map[string]any{"Message": errorText(err)})
}
