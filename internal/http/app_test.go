package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"storefront/internal/config"
	"storefront/internal/domain"
	"storefront/internal/http/handlers"
	applog "storefront/internal/log"
	"storefront/internal/payment"
	"storefront/internal/repos"
	"storefront/internal/repos/repotest"
)

const (
	webhookSecret = "whsec_test"
	testPassword  = "Passw0rd!"
)

type testServer struct {
	app  *fiber.App
	db   *sqlx.DB
	gw   *payment.MemoryGateway
	deps *handlers.Deps
}

// newServer wires the full route table over a fresh database holding a
// tracked mug, an untracked tee with one variant, and a flat 7.00 shipping method.
func newServer(t *testing.T) *testServer {
	t.Helper()
	db := repotest.Open(t)
	repotest.Product(t, db, "mug", 900, domain.Tracked(3))
	repotest.Product(t, db, "tee", 2000, domain.Untracked())
	repotest.Variant(t, db, "tee-xl", "tee", repotest.Price(2400), 5)
	repotest.FlatShipping(t, db, "standard", 700)

	cfg := config.Config{
		TxTimeout:           30 * time.Second,
		LockWait:            5 * time.Second,
		SequenceTimeout:     5 * time.Second,
		StripeWebhookSecret: webhookSecret,
		PublicBaseURL:       "https://shop.example",
		Currency:            "usd",
	}
	gw := payment.NewMemoryGateway(false)
	deps := handlers.NewDeps(db, cfg, gw)
	app := handlers.NewApp(handlers.Views("../../web/templates"))
	handlers.Register(app, deps)
	return &testServer{app: app, db: db, gw: gw, deps: deps}
}

func (s *testServer) addUser(t *testing.T, email, role string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	id, err := repos.NewUserRepo(s.db).Create(context.Background(), email, "Test "+role, string(hash), role)
	require.NoError(t, err)
	return id
}

// browser keeps cookies between requests the way a real client would.
type browser struct {
	t       *testing.T
	app     *fiber.App
	cookies map[string]string
}

func (s *testServer) browser(t *testing.T) *browser {
	return &browser{t: t, app: s.app, cookies: map[string]string{}}
}

func (b *browser) do(req *http.Request) *http.Response {
	b.t.Helper()
	for name, v := range b.cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: v})
	}
	resp, err := b.app.Test(req, -1)
	require.NoError(b.t, err)
	for _, c := range resp.Cookies() {
		if c.MaxAge < 0 || c.Value == "" {
			delete(b.cookies, c.Name)
			continue
		}
		b.cookies[c.Name] = c.Value
	}
	return resp
}

func (b *browser) get(path string) *http.Response {
	return b.do(httptest.NewRequest(http.MethodGet, path, nil))
}

// postForm submits form fields with the current CSRF token attached.
func (b *browser) postForm(path string, fields url.Values) *http.Response {
	b.t.Helper()
	if _, ok := fields["csrf"]; !ok {
		fields.Set("csrf", b.csrf())
	}
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(fields.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.do(req)
}

func (b *browser) csrf() string {
	b.t.Helper()
	if tok := b.cookies["csrf_"]; tok != "" {
		return tok
	}
	resp := b.get("/login")
	require.Equal(b.t, http.StatusOK, resp.StatusCode)
	tok := b.cookies["csrf_"]
	require.NotEmpty(b.t, tok, "csrf cookie")
	return tok
}

func (b *browser) login(email string) *http.Response {
	return b.postForm("/login", url.Values{"email": {email}, "password": {testPassword}})
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp, decode(t, resp)
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return out
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(raw)
}

// newCart creates a cart over the API and fills it.
func newCart(t *testing.T, app *fiber.App, lines ...map[string]any) string {
	t.Helper()
	resp, body := doJSON(t, app, http.MethodPost, "/api/v1/carts", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := body["id"].(string)
	for _, ln := range lines {
		resp, _ := doJSON(t, app, http.MethodPost, "/api/v1/carts/"+id+"/items", ln)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	return id
}

func address() map[string]any {
	return map[string]any{
		"name": "Ann Example", "street": "1 Main St", "city": "Springfield", "state": "IL",
		"postalCode": "62701", "country": "us", "methodId": "standard",
	}
}

type logEntry struct {
	Action string         `json:"action"`
	Level  string         `json:"level"`
	Kind   string         `json:"kind"`
	Status int            `json:"status"`
	Err    string         `json:"err"`
	Fields map[string]any `json:"fields"`
}

type lockedBuf struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (l *lockedBuf) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.Write(p)
}

// captureLogs returns every structured entry written while fn ran.
func captureLogs(t *testing.T, fn func()) []logEntry {
	t.Helper()
	buf := &lockedBuf{}
	applog.SetOutput(buf)
	defer applog.SetOutput(os.Stdout)

	fn()

	buf.mu.Lock()
	defer buf.mu.Unlock()
	var entries []logEntry
	for _, line := range strings.Split(strings.TrimSpace(buf.b.String()), "\n") {
		var e logEntry
		if json.Unmarshal([]byte(line), &e) == nil && e.Action != "" {
			entries = append(entries, e)
		}
	}
	return entries
}

func findLog(entries []logEntry, action string) (logEntry, bool) {
	for _, e := range entries {
		if e.Action == action {
			return e, true
		}
	}
	return logEntry{}, false
}
