package handlers

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alextreichler/libreserve/internal/backendtest"
	"github.com/alextreichler/libreserve/internal/covers"
	"github.com/alextreichler/libreserve/internal/models"
	"github.com/alextreichler/libreserve/internal/store"
	"github.com/alextreichler/libreserve/web"
	"github.com/gorilla/sessions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

type testApp struct {
	t       *testing.T
	backend *backendtest.Backend
	server  *httptest.Server
	client  *http.Client
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	backend := backendtest.New()
	t.Cleanup(backend.Close)

	st := store.NewStore(backend.URL)
	ss := sessions.NewCookieStore([]byte("0123456789abcdef0123456789abcdef"))
	ss.Options.HttpOnly = true
	ss.Options.Path = "/"

	tc := NewTemplateCache()
	for name, fn := range Funcs() {
		tc.AddFunc(name, fn)
	}
	require.NoError(t, tc.Load(web.Templates, "templates"))

	clock := Clock{Now: func() time.Time { return testNow }, Location: time.UTC}
	hs := &Handlers{
		Auth:  &AuthHandler{Store: st, SessionStore: ss, Templates: tc, Clock: clock},
		Home:  &HomeHandler{Store: st, SessionStore: ss, Templates: tc, DemoPage: "<h1>Demo</h1>"},
		Books: &BookHandler{Store: st, SessionStore: ss, Templates: tc},
		Reservations: &ReservationHandler{Store: st, SessionStore: ss, Templates: tc, Clock: clock,
			Prefix: "/member/reservations"},
		AdminReservations: &ReservationHandler{Store: st, SessionStore: ss, Templates: tc, Clock: clock,
			Prefix: "/admin/reservations", Admin: true},
		Admin:   &AdminHandler{Store: st, SessionStore: ss, Templates: tc, Clock: clock},
		Limiter: NewRateLimiter(0),
		Static:  web.Static(),
	}
	server := httptest.NewServer(hs.Routes())
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &testApp{t: t, backend: backend, server: server, client: client}
}

func (a *testApp) do(req *http.Request) (*http.Response, string) {
	a.t.Helper()
	resp, err := a.client.Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(a.t, err)
	return resp, string(body)
}

func (a *testApp) get(path string) (*http.Response, string) {
	a.t.Helper()
	req, err := http.NewRequest(http.MethodGet, a.server.URL+path, nil)
	require.NoError(a.t, err)
	return a.do(req)
}

func (a *testApp) post(path string, form url.Values) (*http.Response, string) {
	a.t.Helper()
	req, err := http.NewRequest(http.MethodPost, a.server.URL+path, strings.NewReader(form.Encode()))
	require.NoError(a.t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return a.do(req)
}

// follow fetches the redirect target of resp.
func (a *testApp) follow(resp *http.Response) (*http.Response, string) {
	a.t.Helper()
	require.Equal(a.t, http.StatusSeeOther, resp.StatusCode)
	return a.get(resp.Header.Get("Location"))
}

func (a *testApp) login(name, email string, role models.Role) {
	a.t.Helper()
	a.backend.AddUser(name, email, "secret", role)
	resp, _ := a.post("/login", url.Values{"email": {email}, "password": {"secret"}})
	require.Equal(a.t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(a.t, "/", resp.Header.Get("Location"))
}

func TestGate(t *testing.T) {
	t.Run("guest is sent to login with callback", func(t *testing.T) {
		app := newTestApp(t)
		for path, want := range map[string]string{
			"/member/reservations": "/login?callbackUrl=%2Fmember%2Freservations",
			"/member/books":        "/login?callbackUrl=%2Fmember%2Fbooks",
			"/admin/books":         "/login?callbackUrl=%2Fadmin%2Fbooks",
			"/profile":             "/login?callbackUrl=%2Fprofile",
		} {
			resp, _ := app.get(path)
			assert.Equal(t, http.StatusSeeOther, resp.StatusCode, path)
			assert.Equal(t, want, resp.Header.Get("Location"), path)
		}
		assert.Empty(t, app.backend.Requests, "gate must run before any backend call")
	})

	t.Run("member is mirrored away from admin pages", func(t *testing.T) {
		app := newTestApp(t)
		app.login("Max", "max@example.com", models.RoleMember)
		for path, want := range map[string]string{
			"/admin":              "/member/reservations",
			"/admin/books":        "/member/books",
			"/admin/reservations": "/member/reservations",
		} {
			resp, _ := app.get(path)
			assert.Equal(t, want, resp.Header.Get("Location"), path)
		}
		resp, _ := app.get("/member/books")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("admin is mirrored away from member reservations", func(t *testing.T) {
		app := newTestApp(t)
		app.login("Ada", "ada@example.com", models.RoleAdmin)
		resp, _ := app.get("/member/reservations")
		assert.Equal(t, "/admin/reservations", resp.Header.Get("Location"))

		resp, _ = app.get("/member/books")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		resp, body := app.get("/admin")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, body, "Admin dashboard")
	})
}

func TestLogin(t *testing.T) {
	app := newTestApp(t)
	app.backend.AddUser("Ada", "ada@example.com", "secret", models.RoleAdmin)

	resp, _ := app.post("/login", url.Values{
		"email": {"ada@example.com"}, "password": {"nope"}, "callbackUrl": {"/admin/books"},
	})
	assert.Equal(t, "/login?callbackUrl=%2Fadmin%2Fbooks", resp.Header.Get("Location"))
	_, body := app.follow(resp)
	assert.Contains(t, body, "Invalid email or password")
	assert.Contains(t, body, `value="/admin/books"`)

	resp, _ = app.post("/login", url.Values{
		"email": {"ada@example.com"}, "password": {"secret"}, "callbackUrl": {"/admin/books"},
	})
	assert.Equal(t, "/admin/books", resp.Header.Get("Location"))
	_, body = app.follow(resp)
	assert.Contains(t, body, "Welcome, Ada!")
	assert.Contains(t, body, "Book management")

	t.Run("open redirect is refused", func(t *testing.T) {
		resp, _ := app.post("/login", url.Values{
			"email": {"ada@example.com"}, "password": {"secret"}, "callbackUrl": {"//evil.example"},
		})
		assert.Equal(t, "/", resp.Header.Get("Location"))
	})

	t.Run("logout clears the principal", func(t *testing.T) {
		resp, _ := app.get("/logout")
		assert.Equal(t, "/", resp.Header.Get("Location"))
		resp, _ = app.get("/admin")
		assert.Equal(t, "/login?callbackUrl=%2Fadmin", resp.Header.Get("Location"))
	})
}

func TestRegister(t *testing.T) {
	app := newTestApp(t)
	form := url.Values{
		"name": {"Max"}, "email": {"max@example.com"}, "tel": {"0812345678"},
		"password": {"pw"}, "role": {"member"},
	}

	resp, _ := app.post("/register", form)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
	_, body := app.follow(resp)
	assert.Contains(t, body, "Registration successful. You can sign in now.")

	resp, body = app.post("/register", form)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, "Registration failed. Please check your information or try a different email.")
	assert.Contains(t, body, `value="max@example.com"`)

	resp, body = app.post("/register", url.Values{"name": {"Max"}})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, "Please fill in all fields.")
}

func TestMemberReservations(t *testing.T) {
	app := newTestApp(t)
	app.login("Max", "max@example.com", models.RoleMember)
	book := app.backend.AddBook(models.Book{Title: "Dune", Author: "Herbert", AvailableAmount: 2})

	create := func(borrow, pickup string) string {
		resp, _ := app.post("/member/reservations", url.Values{
			"book": {book.ID}, "borrowDate": {borrow}, "pickupDate": {pickup},
		})
		_, body := app.follow(resp)
		return body
	}

	t.Run("validation runs before the backend", func(t *testing.T) {
		before := len(app.backend.Reservations())
		assert.Contains(t, create("", ""), "Please select both borrow and pickup dates")
		assert.Contains(t, create("2025-06-09", "2025-06-12"), "Borrow date cannot be earlier than today")
		assert.Contains(t, create("2025-06-12", "2025-06-11"), "Pick-up date cannot be earlier than borrow date")
		assert.Len(t, app.backend.Reservations(), before)
	})

	t.Run("create up to the limit", func(t *testing.T) {
		body := create("2025-06-10", "2025-06-10")
		assert.Contains(t, body, "Reservation created successfully!")
		assert.Contains(t, body, "My reservations (1/3)")
		assert.Contains(t, body, "Dune")

		create("2025-06-11", "2025-06-12")
		create("2025-06-12", "2025-06-13")
		body = create("2025-06-13", "2025-06-14")
		assert.Contains(t, body, "has already made 3 reservations")
		assert.Len(t, app.backend.Reservations(), 3)
	})

	t.Run("edit and delete", func(t *testing.T) {
		res := app.backend.Reservations()[0]

		resp, body := app.get("/member/reservations/" + res.ID + "/edit")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, body, `value="2025-06-10"`)

		resp, _ = app.post("/member/reservations/"+res.ID, url.Values{"borrowDate": {"2025-06-08"}, "pickupDate": {"2025-06-20"}})
		assert.Equal(t, "/member/reservations/"+res.ID+"/edit", resp.Header.Get("Location"))

		resp, _ = app.post("/member/reservations/"+res.ID, url.Values{"borrowDate": {"2025-06-15"}, "pickupDate": {"2025-06-20"}})
		_, body = app.follow(resp)
		assert.Contains(t, body, "Reservation updated successfully!")

		_, body = app.get("/member/reservations/" + res.ID + "/delete")
		assert.Contains(t, body, "Are you sure you want to delete this reservation")
		assert.Len(t, app.backend.Reservations(), 3, "confirmation page must not delete")

		resp, _ = app.post("/member/reservations/"+res.ID+"/delete", nil)
		_, body = app.follow(resp)
		assert.Contains(t, body, "Reservation deleted successfully!")
		assert.Len(t, app.backend.Reservations(), 2)
	})
}

func TestAdminReservations(t *testing.T) {
	app := newTestApp(t)
	app.login("Ada", "ada@example.com", models.RoleAdmin)
	member := app.backend.AddUser("Max", "max@example.com", "pw", models.RoleMember)
	dune := app.backend.AddBook(models.Book{Title: "Dune"})
	emma := app.backend.AddBook(models.Book{Title: "Emma"})
	day := func(d int) time.Time { return time.Date(2025, 6, d, 0, 0, 0, 0, time.UTC) }
	app.backend.AddReservation(member, dune.ID, day(1), day(2))
	app.backend.AddReservation(member, emma.ID, day(9), day(12))
	upcoming := app.backend.AddReservation(member, dune.ID, day(15), day(16))

	_, body := app.get("/admin/reservations")
	assert.Contains(t, body, "Showing 3 of 3 reservations")
	assert.Contains(t, body, "Completed")
	assert.Contains(t, body, "max@example.com")

	_, body = app.get("/admin/reservations?status=active")
	assert.Contains(t, body, "Showing 1 of 3 reservations")
	assert.Contains(t, body, "Emma")

	_, body = app.get("/admin/reservations?q=dune&sort=bogus&order=asc")
	assert.Contains(t, body, "Showing 2 of 3 reservations")
	assert.Less(t, strings.Index(body, "Jun 1, 2025"), strings.Index(body, "Jun 15, 2025"))

	t.Run("edit rejects a past borrow date", func(t *testing.T) {
		editURL := "/admin/reservations/" + upcoming.ID + "/edit"
		resp, _ := app.post("/admin/reservations/"+upcoming.ID, url.Values{
			"borrowDate": {"2025-06-09"},
			"pickupDate": {"2025-06-20"},
		})
		assert.Equal(t, editURL, resp.Header.Get("Location"))
		_, body := app.follow(resp)
		assert.Contains(t, body, "Borrow date cannot be earlier than today")

		for _, r := range app.backend.Reservations() {
			if r.ID == upcoming.ID {
				assert.True(t, r.BorrowDate.Equal(day(15)), "backend must not be updated")
			}
		}
	})
}

func TestAdminBooks(t *testing.T) {
	app := newTestApp(t)
	app.login("Ada", "ada@example.com", models.RoleAdmin)

	resp, _ := app.post("/admin/books", url.Values{"title": {"Dune"}})
	_, body := app.follow(resp)
	assert.Contains(t, body, "Please fill in all book fields.")
	assert.Empty(t, app.backend.Books())

	resp, _ = app.post("/admin/books", url.Values{
		"title": {"Dune"}, "author": {"Herbert"}, "isbn": {"978-0441013593"},
		"publisher": {"Ace"}, "availableAmount": {"1"}, "coverPicture": {"https://img/dune.jpg"},
	})
	_, body = app.follow(resp)
	assert.Contains(t, body, "Book created successfully!")
	require.Len(t, app.backend.Books(), 1)
	id := app.backend.Books()[0].ID

	t.Run("stock never goes below zero", func(t *testing.T) {
		resp, _ := app.post("/admin/books/"+id+"/stock", url.Values{"direction": {"down"}})
		_, body := app.follow(resp)
		assert.Contains(t, body, "Stock updated to 0")
		app.post("/admin/books/"+id+"/stock", url.Values{"direction": {"down"}})
		assert.Equal(t, 0, app.backend.Books()[0].AvailableAmount)

		app.post("/admin/books/"+id+"/stock", url.Values{"direction": {"up"}})
		assert.Equal(t, 1, app.backend.Books()[0].AvailableAmount)
	})

	t.Run("filters", func(t *testing.T) {
		app.backend.AddBook(models.Book{Title: "Emma", Publisher: "Penguin"})
		_, body := app.get("/admin/books?availability=unavailable")
		assert.Contains(t, body, "Showing 1 of 2 books")
		assert.Contains(t, body, covers.Fallback)
	})

	t.Run("update", func(t *testing.T) {
		resp, _ := app.post("/admin/books/"+id, url.Values{
			"title": {"Dune Messiah"}, "author": {"Herbert"}, "isbn": {"1"},
			"publisher": {"Ace"}, "availableAmount": {"3"}, "coverPicture": {"https://img/d.jpg"},
		})
		assert.Equal(t, "/admin/books", resp.Header.Get("Location"))
		assert.Equal(t, "Dune Messiah", app.backend.Books()[0].Title)
	})

	t.Run("delete after confirmation", func(t *testing.T) {
		_, body := app.get("/admin/books/" + id + "/delete")
		assert.Contains(t, body, "Are you sure you want to delete")
		resp, _ := app.post("/admin/books/"+id+"/delete", nil)
		_, body = app.follow(resp)
		assert.Contains(t, body, "Book deleted successfully!")
		assert.Len(t, app.backend.Books(), 1)
	})
}

func upload(t *testing.T, app *testApp, filename, content string) (*http.Response, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	fw.Write([]byte(content))
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, app.server.URL+"/admin/books/import", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return app.do(req)
}

func TestImport(t *testing.T) {
	app := newTestApp(t)
	app.login("Ada", "ada@example.com", models.RoleAdmin)

	resp, _ := upload(t, app, "books.txt", "whatever")
	_, body := app.follow(resp)
	assert.Contains(t, body, "Please upload a CSV file")

	resp, _ = upload(t, app, "books.csv", "title,author\nA,B\n")
	_, body = app.follow(resp)
	assert.Contains(t, body, "Missing required columns: isbn, publisher, availableamount, coverpicture")

	csv := "title,author,ISBN,publisher,availableAmount,coverPicture\n" +
		`"Dune, Deluxe",Herbert,1,Ace,2,https://img/1.jpg` + "\n" +
		`,Nobody,2,Ace,1,https://img/2.jpg` + "\n" +
		`Emma,Austen,3,Penguin,,https://img/3.jpg` + "\n"
	resp, body = upload(t, app, "books.csv", csv)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `value="Dune, Deluxe"`)
	assert.Contains(t, body, "Line 3: missing required field: title")
	assert.Empty(t, app.backend.Books(), "preview must not create books")

	resp, _ = app.post("/admin/books/import/confirm", url.Values{
		"title":           {"Dune, Deluxe", "Emma", "Skipped"},
		"author":          {"Herbert", "Austen", "X"},
		"isbn":            {"1", "3", "4"},
		"publisher":       {"Ace", "Penguin", "X"},
		"availableAmount": {"2", "1", "1"},
		"coverPicture":    {"https://img/1.jpg", "https://img/3.jpg", "https://img/4.jpg"},
		"remove":          {"2"},
	})
	_, body = app.follow(resp)
	assert.Contains(t, body, "Successfully imported 2 book(s)")
	books := app.backend.Books()
	require.Len(t, books, 2)
	assert.Equal(t, "Dune, Deluxe", books[0].Title)
	assert.Equal(t, 2, books[0].AvailableAmount)

	t.Run("rows blanked in the preview are skipped", func(t *testing.T) {
		before := len(app.backend.Requests)
		resp, _ := app.post("/admin/books/import/confirm", url.Values{
			"title":           {"", "Persuasion"},
			"author":          {"Nobody", "Austen"},
			"isbn":            {"5", "6"},
			"publisher":       {"X", "Penguin"},
			"availableAmount": {"1", "-3"},
			"coverPicture":    {"https://img/5.jpg", "https://img/6.jpg"},
		})
		_, body := app.follow(resp)
		assert.Contains(t, body, "Skipped 1 incomplete book(s)")
		assert.Contains(t, body, "Successfully imported 1 book(s)")
		assert.NotContains(t, body, "Failed to import")

		books := app.backend.Books()
		require.Len(t, books, 3)
		assert.Equal(t, "Persuasion", books[2].Title)
		assert.Equal(t, 1, books[2].AvailableAmount)
		creates := 0
		for _, req := range app.backend.Requests[before:] {
			if req == "POST /books" {
				creates++
			}
		}
		assert.Equal(t, 1, creates, "incomplete rows never reach the backend")
	})
}

func TestHomeAndDemo(t *testing.T) {
	app := newTestApp(t)
	for i := 0; i < 8; i++ {
		app.backend.AddBook(models.Book{Title: "Book " + string(rune('A'+i))})
	}

	resp, body := app.get("/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Browse 8 books")
	assert.Contains(t, body, "Book F")
	assert.NotContains(t, body, "Book G")
	assert.Contains(t, body, covers.Fallback)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	_, body = app.get("/demo")
	assert.Contains(t, body, "<h1>Demo</h1>")

	resp, _ = app.get("/static/covers/fallback.svg")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = app.get("/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body)
}

func TestProfile(t *testing.T) {
	app := newTestApp(t)
	app.login("Max", "max@example.com", models.RoleMember)
	resp, body := app.get("/profile")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "max@example.com")
	assert.Contains(t, body, "member")
}

func TestBackendDown(t *testing.T) {
	app := newTestApp(t)
	app.login("Max", "max@example.com", models.RoleMember)
	app.backend.Close()

	resp, body := app.get("/member/books")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, body, "Unable to reach the library service")

	resp, body = app.get("/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "The catalog is unavailable right now.")
}
