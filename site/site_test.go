package site

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"inkblog/auth"
	"inkblog/content"
	"inkblog/database"
	"inkblog/notify"
	"inkblog/session"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type fakeMailer struct {
	mu     sync.Mutex
	sent   []notify.Message
	result notify.Result
}

func (m *fakeMailer) Send(_ context.Context, msg notify.Message) notify.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return m.result
}

type testApp struct {
	db      *gorm.DB
	content *content.Service
	mailer  *fakeMailer
	server  *httptest.Server
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	db, err := database.Connect(":memory:", zerolog.Nop(), false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	sessions := session.NewGormStore(db)
	authSvc := auth.NewService(db, sessions, auth.Options{
		SessionTTL: time.Hour,
		BcryptCost: bcrypt.MinCost,
		Logger:     zerolog.Nop(),
	})
	contentSvc := content.NewService(db, zerolog.Nop())
	mailer := &fakeMailer{result: notify.SentResult()}

	srv := NewServer(Deps{
		DB:        db,
		Auth:      authSvc,
		Content:   contentSvc,
		Sessions:  sessions,
		Mailer:    mailer,
		Logger:    zerolog.Nop(),
		PublicURL: "http://blog.test",
	})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	return &testApp{db: db, content: contentSvc, mailer: mailer, server: ts}
}

type browser struct {
	t      *testing.T
	base   string
	client *http.Client
}

func (a *testApp) newBrowser(t *testing.T) *browser {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &browser{
		t:    t,
		base: a.server.URL,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

type page struct {
	status   int
	body     string
	location string
	header   http.Header
}

func (b *browser) do(req *http.Request) page {
	b.t.Helper()
	resp, err := b.client.Do(req)
	require.NoError(b.t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(b.t, err)
	return page{status: resp.StatusCode, body: string(body), location: resp.Header.Get("Location"), header: resp.Header}
}

func (b *browser) get(path string) page {
	b.t.Helper()
	req, err := http.NewRequest(http.MethodGet, b.base+path, nil)
	require.NoError(b.t, err)
	return b.do(req)
}

func (b *browser) post(path string, values url.Values) page {
	b.t.Helper()
	req, err := http.NewRequest(http.MethodPost, b.base+path, strings.NewReader(values.Encode()))
	require.NoError(b.t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.do(req)
}

var csrfPattern = regexp.MustCompile(`name="csrf_token" value="([^"]+)"`)

// submit loads formPath to pick up its CSRF token, then posts values to action.
func (b *browser) submit(formPath, action string, values url.Values) page {
	b.t.Helper()
	form := b.get(formPath)
	require.Equal(b.t, http.StatusOK, form.status, "loading %s", formPath)
	m := csrfPattern.FindStringSubmatch(form.body)
	require.Len(b.t, m, 2, "no csrf token on %s", formPath)
	values.Set("csrf_token", m[1])
	return b.post(action, values)
}

func (b *browser) register(email, password, name string) page {
	b.t.Helper()
	return b.submit("/register", "/register", url.Values{
		"email": {email}, "password": {password}, "name": {name},
	})
}

func (b *browser) login(email, password string) page {
	b.t.Helper()
	return b.submit("/login", "/login", url.Values{"email": {email}, "password": {password}})
}

func samplePostValues(title string) url.Values {
	return url.Values{
		"title":    {title},
		"subtitle": {"A subtitle"},
		"img_url":  {"https://images.example.com/cover.jpg"},
		"body":     {"Some **markdown** body."},
	}
}

func TestAliceScenario(t *testing.T) {
	app := newTestApp(t)
	alice := app.newBrowser(t)

	res := alice.register("a@x.com", "pw1", "Alice")
	require.Equal(t, http.StatusSeeOther, res.status)
	assert.Equal(t, "/", res.location)

	home := alice.get("/")
	assert.Contains(t, home.body, `href="/logout"`)
	assert.Contains(t, home.body, `href="/new-post"`, "first user is the administrator")

	res = alice.submit("/new-post", "/new-post", samplePostValues("Hello"))
	require.Equal(t, http.StatusSeeOther, res.status)
	assert.Equal(t, "/", res.location)

	posts, err := app.content.ListPosts(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 1)
	postPath := fmt.Sprintf("/post/%d", posts[0].ID)
	editPath := fmt.Sprintf("/edit-post/%d", posts[0].ID)

	home = alice.get("/")
	assert.Contains(t, home.body, "Hello")
	assert.Contains(t, home.body, "Posted by Alice on "+time.Now().Format("January 02, 2006"))

	// a reader comments on the post
	bob := app.newBrowser(t)
	require.Equal(t, http.StatusSeeOther, bob.register("b@x.com", "pw2", "Bob").status)

	res = bob.submit(postPath, postPath, url.Values{"body": {"Nice!"}})
	require.Equal(t, http.StatusSeeOther, res.status)
	assert.Equal(t, postPath, res.location)

	view := bob.get(postPath)
	assert.Contains(t, view.body, "Nice!")
	assert.Contains(t, view.body, "Bob")
	assert.NotContains(t, view.body, "/edit-post/")

	// the administrator edits, then deletes it
	res = alice.submit(editPath, editPath, samplePostValues("Hello again"))
	require.Equal(t, http.StatusSeeOther, res.status)
	assert.Equal(t, postPath, res.location)
	assert.Contains(t, alice.get(postPath).body, "Hello again")

	deleteLink := regexp.MustCompile(`href="(/delete/\d+\?csrf_token=[^"]+)"`).FindStringSubmatch(alice.get(postPath).body)
	require.Len(t, deleteLink, 2)
	res = alice.get(deleteLink[1])
	require.Equal(t, http.StatusSeeOther, res.status)
	assert.Equal(t, "/", res.location)

	assert.Equal(t, http.StatusNotFound, alice.get(postPath).status)
	var comments int64
	require.NoError(t, app.db.Model(&database.Comment{}).Count(&comments).Error)
	assert.Zero(t, comments)
}

func TestNonAdminGetsForbidden(t *testing.T) {
	app := newTestApp(t)
	alice := app.newBrowser(t)
	require.Equal(t, http.StatusSeeOther, alice.register("a@x.com", "pw1", "Alice").status)
	require.Equal(t, http.StatusSeeOther, alice.submit("/new-post", "/new-post", samplePostValues("Hello")).status)

	bob := app.newBrowser(t)
	require.Equal(t, http.StatusSeeOther, bob.register("b@x.com", "pw2", "Bob").status)

	anon := app.newBrowser(t)
	for name, b := range map[string]*browser{"reader": bob, "anonymous": anon} {
		t.Run(name, func(t *testing.T) {
			for _, path := range []string{"/new-post", "/edit-post/1", "/delete/1"} {
				res := b.get(path)
				assert.Equal(t, http.StatusForbidden, res.status, path)
				assert.Equal(t, "Forbidden\n", res.body, "no detail beyond the status")
			}

			res := b.submit("/contact", "/new-post", samplePostValues("Sneaky"))
			assert.Equal(t, http.StatusForbidden, res.status)
		})
	}

	posts, err := app.content.ListPosts(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "Hello", posts[0].Title)
}

func TestUnknownPostIsNotFound(t *testing.T) {
	app := newTestApp(t)
	b := app.newBrowser(t)

	res := b.get("/post/999")
	assert.Equal(t, http.StatusNotFound, res.status)
	assert.Equal(t, "Not Found\n", res.body)
}

func TestRegisterDuplicateEmailFlashes(t *testing.T) {
	app := newTestApp(t)
	require.Equal(t, http.StatusSeeOther, app.newBrowser(t).register("a@x.com", "pw1", "Alice").status)

	mallory := app.newBrowser(t)
	res := mallory.register("a@x.com", "other", "Mallory")
	require.Equal(t, http.StatusSeeOther, res.status)
	assert.Equal(t, "/login", res.location)

	login := mallory.get("/login")
	assert.Contains(t, login.body, FlashDuplicateEmail)
	assert.NotContains(t, mallory.get("/login").body, FlashDuplicateEmail, "flashes are shown once")

	var users int64
	require.NoError(t, app.db.Model(&database.User{}).Count(&users).Error)
	assert.Equal(t, int64(1), users)
}

func TestLoginFailureIsGeneric(t *testing.T) {
	app := newTestApp(t)
	alice := app.newBrowser(t)
	require.Equal(t, http.StatusSeeOther, alice.register("a@x.com", "pw1", "Alice").status)
	require.Equal(t, http.StatusSeeOther, alice.get("/logout").status)

	for _, creds := range [][2]string{{"a@x.com", "wrong"}, {"nobody@x.com", "pw1"}} {
		b := app.newBrowser(t)
		res := b.login(creds[0], creds[1])
		require.Equal(t, http.StatusSeeOther, res.status)
		assert.Equal(t, "/login", res.location)

		next := b.get("/login")
		assert.Contains(t, next.body, FlashLoginFailed)
		assert.NotContains(t, next.body, `href="/logout"`)
	}

	res := alice.login("a@x.com", "pw1")
	require.Equal(t, http.StatusSeeOther, res.status)
	assert.Equal(t, "/", res.location)
	assert.Contains(t, alice.get("/").body, `href="/logout"`)
}

func TestLogout(t *testing.T) {
	app := newTestApp(t)
	alice := app.newBrowser(t)
	require.Equal(t, http.StatusSeeOther, alice.register("a@x.com", "pw1", "Alice").status)

	res := alice.get("/logout")
	require.Equal(t, http.StatusSeeOther, res.status)
	assert.Equal(t, "/", res.location)
	assert.Contains(t, alice.get("/").body, `href="/login"`)

	// logging out without a session is harmless
	assert.Equal(t, http.StatusSeeOther, app.newBrowser(t).get("/logout").status)
}

func TestAuthenticatedUsersSkipAuthForms(t *testing.T) {
	app := newTestApp(t)
	alice := app.newBrowser(t)
	require.Equal(t, http.StatusSeeOther, alice.register("a@x.com", "pw1", "Alice").status)

	for _, path := range []string{"/login", "/register"} {
		res := alice.get(path)
		assert.Equal(t, http.StatusSeeOther, res.status, path)
		assert.Equal(t, "/", res.location, path)
	}
}

func TestAnonymousCommentRedirectsToLogin(t *testing.T) {
	app := newTestApp(t)
	alice := app.newBrowser(t)
	require.Equal(t, http.StatusSeeOther, alice.register("a@x.com", "pw1", "Alice").status)
	require.Equal(t, http.StatusSeeOther, alice.submit("/new-post", "/new-post", samplePostValues("Hello")).status)

	anon := app.newBrowser(t)
	res := anon.submit("/post/1", "/post/1", url.Values{"body": {"Nice!"}})
	require.Equal(t, http.StatusSeeOther, res.status)
	assert.Equal(t, "/login", res.location)
	assert.Contains(t, anon.get("/login").body, FlashLoginToComment)

	var comments int64
	require.NoError(t, app.db.Model(&database.Comment{}).Count(&comments).Error)
	assert.Zero(t, comments)
}

func TestValidationReRendersForm(t *testing.T) {
	app := newTestApp(t)
	b := app.newBrowser(t)

	res := b.register("a@x.com", "pw1", "")
	require.Equal(t, http.StatusOK, res.status)
	assert.Contains(t, res.body, "This field is required.")
	assert.Contains(t, res.body, `value="a@x.com"`)

	res = b.register("not-an-email", "pw1", "Alice")
	require.Equal(t, http.StatusOK, res.status)
	assert.Contains(t, res.body, "Invalid email address.")

	var users int64
	require.NoError(t, app.db.Model(&database.User{}).Count(&users).Error)
	assert.Zero(t, users)
}

func TestMultibytePasswordOverLimitReRendersForm(t *testing.T) {
	app := newTestApp(t)
	b := app.newBrowser(t)

	res := b.register("a@x.com", strings.Repeat("é", 40), "Alice")
	require.Equal(t, http.StatusOK, res.status)
	assert.Contains(t, res.body, "Must be at most 72 bytes.")
	assert.NotContains(t, res.body, `href="/logout"`)

	var users int64
	require.NoError(t, app.db.Model(&database.User{}).Count(&users).Error)
	assert.Zero(t, users)

	res = b.register("a@x.com", strings.Repeat("é", 36), "Alice")
	require.Equal(t, http.StatusSeeOther, res.status)
	assert.Equal(t, "/", res.location)
}

func TestPostFormValidation(t *testing.T) {
	app := newTestApp(t)
	alice := app.newBrowser(t)
	require.Equal(t, http.StatusSeeOther, alice.register("a@x.com", "pw1", "Alice").status)

	values := samplePostValues(strings.Repeat("t", 251))
	values.Set("img_url", "not a url")
	res := alice.submit("/new-post", "/new-post", values)
	require.Equal(t, http.StatusOK, res.status)
	assert.Contains(t, res.body, "Must be at most 250 characters.")
	assert.Contains(t, res.body, "Invalid URL.")

	require.Equal(t, http.StatusSeeOther, alice.submit("/new-post", "/new-post", samplePostValues("Hello")).status)
	res = alice.submit("/new-post", "/new-post", samplePostValues("Hello"))
	require.Equal(t, http.StatusOK, res.status)
	assert.Contains(t, res.body, FlashDuplicateTitle)
}

func TestCSRFTokenRequired(t *testing.T) {
	app := newTestApp(t)
	b := app.newBrowser(t)
	b.get("/login")

	res := b.post("/login", url.Values{"email": {"a@x.com"}, "password": {"pw1"}})
	assert.Equal(t, http.StatusForbidden, res.status)

	res = b.post("/login", url.Values{"email": {"a@x.com"}, "password": {"pw1"}, "csrf_token": {"forged"}})
	assert.Equal(t, http.StatusForbidden, res.status)
}

func TestDeleteLinkNeedsToken(t *testing.T) {
	app := newTestApp(t)
	alice := app.newBrowser(t)
	require.Equal(t, http.StatusSeeOther, alice.register("a@x.com", "pw1", "Alice").status)
	require.Equal(t, http.StatusSeeOther, alice.submit("/new-post", "/new-post", samplePostValues("Hello")).status)

	assert.Equal(t, http.StatusForbidden, alice.get("/delete/1").status)
	assert.Equal(t, http.StatusForbidden, alice.get("/delete/1?csrf_token=forged").status)
	assert.Equal(t, http.StatusOK, alice.get("/post/1").status)

	res := alice.submit("/contact", "/delete/999", url.Values{})
	assert.Equal(t, http.StatusNotFound, res.status)
}

func TestContact(t *testing.T) {
	app := newTestApp(t)
	b := app.newBrowser(t)
	values := url.Values{
		"name":    {"Carol"},
		"email":   {"c@x.com"},
		"phone":   {"555-0100"},
		"message": {"Hi there"},
	}

	res := b.submit("/contact", "/contact", values)
	require.Equal(t, http.StatusSeeOther, res.status)
	assert.Equal(t, "/contact", res.location)
	assert.Contains(t, b.get("/contact").body, FlashContactSent)

	require.Len(t, app.mailer.sent, 1)
	assert.Equal(t, notify.Message{Name: "Carol", Email: "c@x.com", Phone: "555-0100", Body: "Hi there"}, app.mailer.sent[0])
}

func TestContactFailureIsSurfaced(t *testing.T) {
	app := newTestApp(t)
	app.mailer.result = notify.FailedResult("connection refused")
	b := app.newBrowser(t)

	res := b.submit("/contact", "/contact", url.Values{
		"name": {"Carol"}, "email": {"c@x.com"}, "message": {"Hi there"},
	})
	require.Equal(t, http.StatusOK, res.status)
	assert.Contains(t, res.body, FlashContactNotSent)
	assert.Contains(t, res.body, `value="Carol"`)
	assert.Contains(t, res.body, "Hi there")
	assert.NotContains(t, res.body, "connection refused")
}

func TestAPIPosts(t *testing.T) {
	app := newTestApp(t)
	alice := app.newBrowser(t)
	require.Equal(t, http.StatusSeeOther, alice.register("a@x.com", "pw1", "Alice").status)
	require.Equal(t, http.StatusSeeOther, alice.submit("/new-post", "/new-post", samplePostValues("Hello")).status)

	req, err := http.NewRequest(http.MethodGet, app.server.URL+"/api/v1/posts", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://reader.example.com")
	res := alice.do(req)

	require.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, "*", res.header.Get("Access-Control-Allow-Origin"))

	var posts []apiPost
	require.NoError(t, json.Unmarshal([]byte(res.body), &posts))
	require.Len(t, posts, 1)
	assert.Equal(t, "Hello", posts[0].Title)
	assert.Equal(t, "Alice", posts[0].Author)
	assert.Equal(t, "http://blog.test/post/1", posts[0].URL)
	assert.Empty(t, posts[0].Body)

	one := alice.get("/api/v1/posts/1")
	require.Equal(t, http.StatusOK, one.status)
	var post apiPost
	require.NoError(t, json.Unmarshal([]byte(one.body), &post))
	assert.Equal(t, "Some **markdown** body.", post.Body)

	assert.Equal(t, http.StatusNotFound, alice.get("/api/v1/posts/42").status)
}

func TestHealthzAndMetrics(t *testing.T) {
	app := newTestApp(t)
	b := app.newBrowser(t)

	res := b.get("/healthz")
	require.Equal(t, http.StatusOK, res.status)
	assert.JSONEq(t, `{"status":"ok"}`, res.body)

	b.get("/about")
	metrics := b.get("/metrics")
	require.Equal(t, http.StatusOK, metrics.status)
	assert.Contains(t, metrics.body, `inkblog_http_requests_total{method="GET",route="/about",status="200"}`)
}

func TestFooterYearIsCurrent(t *testing.T) {
	app := newTestApp(t)
	body := app.newBrowser(t).get("/about").body
	assert.Contains(t, body, "Copyright © "+time.Now().Format("2006"))
}
