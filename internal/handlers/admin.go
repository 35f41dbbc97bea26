package handlers

import (
	"net/http"

	"github.com/alextreichler/libreserve/internal/auth"
	"github.com/alextreichler/libreserve/internal/store"
	"github.com/gorilla/sessions"
)

type AdminHandler struct {
	Store        *store.Store
	SessionStore *sessions.CookieStore
	Templates    *TemplateCache
	Clock        Clock
}

func (h *AdminHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	session := getSession(h.SessionStore, r)
	p := auth.FromContext(r.Context())

	stats, err := h.Store.GetDashboardStats(r.Context(), p.Token, h.Clock.Today())
	if err != nil {
		backendFailed(w, r, h.Templates, session, err)
		return
	}
	render(w, r, h.Templates, session, http.StatusOK, "admin.html", map[string]any{
		"Stats": stats,
	})
}
