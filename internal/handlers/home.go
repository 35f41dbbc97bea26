package handlers

import (
	"bytes"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/alextreichler/libreserve/internal/auth"
	"github.com/alextreichler/libreserve/internal/covers"
	"github.com/alextreichler/libreserve/internal/store"
	"github.com/gorilla/sessions"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

const highlightCount = 6

type HomeHandler struct {
	Store        *store.Store
	Templates    *TemplateCache
	SessionStore *sessions.CookieStore
	DemoPage     template.HTML
}

// RenderMarkdown converts the demo page source to HTML. The source is
// embedded in the binary, so raw HTML in it is trusted.
func RenderMarkdown(src []byte) (template.HTML, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	var buf bytes.Buffer
	if err := md.Convert(src, &buf); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

func (h *HomeHandler) Index(w http.ResponseWriter, r *http.Request) {
	session := getSession(h.SessionStore, r)

	token := ""
	if p := auth.FromContext(r.Context()); p != nil {
		token = p.Token
	}
	// The landing page still renders when the catalog is unreachable.
	books, err := h.Store.GetBooks(r.Context(), token)
	if err != nil {
		slog.Error("Error fetching books for home page", "error", err)
	}
	highlights := books
	if len(highlights) > highlightCount {
		highlights = highlights[:highlightCount]
	}

	render(w, r, h.Templates, session, http.StatusOK, "home.html", map[string]any{
		"TotalBooks":  len(books),
		"Highlights":  covers.ResolveAll(highlights),
		"Unreachable": err != nil,
	})
}

func (h *HomeHandler) Demo(w http.ResponseWriter, r *http.Request) {
	session := getSession(h.SessionStore, r)
	render(w, r, h.Templates, session, http.StatusOK, "demo.html", map[string]any{
		"Content": h.DemoPage,
	})
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}
