package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"task-board/internal/auth"
	"task-board/internal/repository/sqldb"
	"task-board/internal/service"
)

const (
	testEmail    = "admin@example.com"
	testPassword = "admin123"
)

type testServer struct {
	router  *gin.Engine
	handler *Handler
	tokens  *auth.TokenService
}

type serverOption func(*Config)

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	db, dialect, err := sqldb.Open(ctx, sqldb.DriverSQLite, filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	taskRepo := sqldb.NewTaskRepository(db, dialect)
	userRepo := sqldb.NewUserRepository(db, dialect)
	if err := taskRepo.Init(ctx); err != nil {
		t.Fatalf("init tasks: %v", err)
	}
	if err := userRepo.Init(ctx); err != nil {
		t.Fatalf("init users: %v", err)
	}

	users := service.NewUserService(userRepo)
	if _, _, err := users.EnsureUser(ctx, testEmail, testPassword); err != nil {
		t.Fatalf("EnsureUser: %v", err)
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	tokens := auth.NewTokenService([]byte("test-secret"), auth.DefaultTokenTTL)
	cfg := Config{
		Tasks:  service.NewTaskService(taskRepo),
		Users:  users,
		Tokens: tokens,
		Gate:   auth.NewGate(tokens, auth.DefaultCookieName),
		DB:     db,
		Logger: logger,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	handler := NewHandler(cfg)
	handler.RegisterRoutes(router)

	return &testServer{router: router, handler: handler, tokens: tokens}
}

func (s *testServer) do(t *testing.T, method, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) login(t *testing.T) *http.Cookie {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": testEmail, "password": testPassword}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", rec.Code, rec.Body.String())
	}
	cookie := sessionCookie(rec)
	if cookie == nil {
		t.Fatalf("login did not set a session cookie")
	}
	return cookie
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.DefaultCookieName {
			return c
		}
	}
	return nil
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return v
}

func TestLogin_SetsSessionCookie(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": testEmail, "password": testPassword}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	body := decode[map[string]any](t, rec)
	if body["success"] != true || len(body) != 1 {
		t.Fatalf("unexpected body: %v", body)
	}

	cookie := sessionCookie(rec)
	if cookie == nil {
		t.Fatalf("missing token cookie")
	}
	if !cookie.HttpOnly || cookie.SameSite != http.SameSiteStrictMode || cookie.Path != "/" {
		t.Fatalf("unexpected cookie attributes: %+v", cookie)
	}
	if cookie.Secure {
		t.Fatalf("cookie should not be secure outside production")
	}
	if cookie.MaxAge != 0 {
		t.Fatalf("cookie should not carry Max-Age, got %d", cookie.MaxAge)
	}
	if strings.Contains(rec.Body.String(), cookie.Value) {
		t.Fatalf("token leaked into response body")
	}

	id, err := srv.tokens.Verify(cookie.Value)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if id.Email != testEmail {
		t.Fatalf("token email = %q, want %q", id.Email, testEmail)
	}
}

func TestLogin_SecureCookieInProduction(t *testing.T) {
	srv := newTestServer(t, func(cfg *Config) { cfg.SecureCookie = true })

	cookie := srv.login(t)
	if !cookie.Secure {
		t.Fatalf("expected secure cookie")
	}
}

func TestLogin_InvalidCredentialsAreIndistinguishable(t *testing.T) {
	srv := newTestServer(t)

	wrongPassword := srv.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": testEmail, "password": "wrong"}, nil)
	unknownEmail := srv.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "ghost@example.com", "password": testPassword}, nil)

	for _, rec := range []*httptest.ResponseRecorder{wrongPassword, unknownEmail} {
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
		if sessionCookie(rec) != nil {
			t.Fatalf("failed login must not set a cookie")
		}
	}
	if wrongPassword.Body.String() != unknownEmail.Body.String() {
		t.Fatalf("responses differ: %s vs %s", wrongPassword.Body.String(), unknownEmail.Body.String())
	}
}

func TestLogin_MissingFields(t *testing.T) {
	srv := newTestServer(t)

	for _, body := range []any{
		map[string]string{"email": testEmail},
		map[string]string{"password": testPassword},
		map[string]string{},
		"{not json",
	} {
		rec := srv.do(t, http.MethodPost, "/api/auth/login", body, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %v: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestLogout_ClearsCookie(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/auth/logout", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	cookie := sessionCookie(rec)
	if cookie == nil || cookie.Value != "" || cookie.MaxAge >= 0 {
		t.Fatalf("expected cleared cookie, got %+v", cookie)
	}
}

func TestGate_RejectsUnauthenticatedRequests(t *testing.T) {
	srv := newTestServer(t)

	valid := srv.login(t)
	tampered := &http.Cookie{Name: auth.DefaultCookieName, Value: valid.Value[:len(valid.Value)-4] + "AAAA"}
	if tampered.Value == valid.Value {
		tampered.Value = valid.Value[:len(valid.Value)-4] + "BBBB"
	}
	expired, err := auth.NewTokenService([]byte("test-secret"), time.Hour, auth.WithClock(func() time.Time {
		return time.Now().Add(-2 * time.Hour)
	})).Issue(auth.Identity{UserID: 1, Email: testEmail})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	cookies := map[string]*http.Cookie{
		"missing":  nil,
		"empty":    {Name: auth.DefaultCookieName, Value: ""},
		"tampered": tampered,
		"expired":  {Name: auth.DefaultCookieName, Value: expired},
		"garbage":  {Name: auth.DefaultCookieName, Value: "garbage"},
	}

	for name, cookie := range cookies {
		t.Run(name, func(t *testing.T) {
			api := srv.do(t, http.MethodGet, "/api/tasks", nil, cookie)
			if api.Code != http.StatusUnauthorized {
				t.Fatalf("api status = %d, want 401", api.Code)
			}
			if body := decode[map[string]string](t, api); body["error"] != "unauthorized" {
				t.Fatalf("unexpected api body: %v", body)
			}

			page := srv.do(t, http.MethodGet, "/tasks", nil, cookie)
			if page.Code != http.StatusFound || page.Header().Get("Location") != "/login" {
				t.Fatalf("page status = %d location = %q, want redirect to /login", page.Code, page.Header().Get("Location"))
			}
		})
	}

	if rec := srv.do(t, http.MethodGet, "/tasks", nil, valid); rec.Code != http.StatusOK {
		t.Fatalf("tasks page with valid cookie: status = %d", rec.Code)
	}
	if rec := srv.do(t, http.MethodGet, "/login", nil, nil); rec.Code != http.StatusOK {
		t.Fatalf("login page should be public: status = %d", rec.Code)
	}
	if rec := srv.do(t, http.MethodGet, "/", nil, valid); rec.Code != http.StatusFound || rec.Header().Get("Location") != "/tasks" {
		t.Fatalf("root should redirect to /tasks, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
}

func TestHandlers_CheckIdentityWithoutMiddleware(t *testing.T) {
	srv := newTestServer(t)
	cookie := srv.login(t)

	bare := gin.New()
	bare.POST("/api/tasks", srv.handler.createTask)
	bare.GET("/tasks", srv.handler.tasksPage)

	do := func(method, path string, body io.Reader, c *http.Cookie) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, body)
		if c != nil {
			req.AddCookie(c)
		}
		rec := httptest.NewRecorder()
		bare.ServeHTTP(rec, req)
		return rec
	}

	if rec := do(http.MethodPost, "/api/tasks", strings.NewReader(`{"task_desc":"x"}`), nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if rec := do(http.MethodGet, "/tasks", nil, nil); rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if rec := do(http.MethodPost, "/api/tasks", strings.NewReader(`{"task_desc":"x"}`), cookie); rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
}

func TestMe_ReturnsIdentity(t *testing.T) {
	srv := newTestServer(t)
	cookie := srv.login(t)

	rec := srv.do(t, http.MethodGet, "/api/auth/me", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	id := decode[auth.Identity](t, rec)
	if id.Email != testEmail || id.UserID == 0 {
		t.Fatalf("unexpected identity: %+v", id)
	}

	// validly signed, but the account does not exist
	orphan, err := srv.tokens.Issue(auth.Identity{UserID: id.UserID + 1000, Email: "gone@example.com"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	rec = srv.do(t, http.MethodGet, "/api/auth/me", nil, &http.Cookie{Name: auth.DefaultCookieName, Value: orphan})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("removed user: status = %d, want 401", rec.Code)
	}
}

func TestCreateThenList(t *testing.T) {
	srv := newTestServer(t)
	cookie := srv.login(t)

	rec := srv.do(t, http.MethodPost, "/api/tasks", map[string]string{"task_desc": "write the report"}, cookie)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body.String())
	}
	created := decode[TaskResponse](t, rec)
	if created.ID == 0 || created.Status != "pending" || created.TaskDesc != "write the report" || created.CreatedAt == "" {
		t.Fatalf("unexpected created task: %+v", created)
	}

	rec = srv.do(t, http.MethodGet, "/api/tasks?page=1", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	list := decode[TaskListResponse](t, rec)
	if list.Total != 1 || len(list.Data) != 1 || list.Page != 1 || list.Limit != 5 {
		t.Fatalf("unexpected list: %+v", list)
	}
	if list.Data[0].ID != created.ID || list.Data[0].TaskDesc != "write the report" || list.Data[0].Status != "pending" {
		t.Fatalf("unexpected listed task: %+v", list.Data[0])
	}
}

func TestCreateThenList_KeepsDescriptionVerbatim(t *testing.T) {
	srv := newTestServer(t)
	cookie := srv.login(t)

	cases := []struct {
		name string
		desc string
	}{
		{name: "padded", desc: "  padded  "},
		{name: "whitespace only", desc: "   "},
		{name: "trailing newline", desc: "line\n"},
		{name: "multi-byte", desc: "café ☕ 任务"},
		{name: "quotes and tags", desc: `say "hi" <b>now</b>`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := srv.do(t, http.MethodPost, "/api/tasks", map[string]string{"task_desc": tc.desc}, cookie)
			if rec.Code != http.StatusCreated {
				t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body.String())
			}
			created := decode[TaskResponse](t, rec)
			if created.TaskDesc != tc.desc {
				t.Fatalf("created task_desc = %q, want %q", created.TaskDesc, tc.desc)
			}

			list := decode[TaskListResponse](t, srv.do(t, http.MethodGet, "/api/tasks?page=1", nil, cookie))
			if len(list.Data) == 0 || list.Data[0].ID != created.ID {
				t.Fatalf("created task is not first on page 1: %+v", list.Data)
			}
			if got := list.Data[0]; got.TaskDesc != tc.desc || got.Status != "pending" {
				t.Fatalf("listed task = %+v, want task_desc %q pending", got, tc.desc)
			}
		})
	}
}

func TestCreate_RejectsMissingDescription(t *testing.T) {
	srv := newTestServer(t)
	cookie := srv.login(t)

	cases := []any{
		map[string]string{},
		map[string]string{"task_desc": ""},
		nil,
	}
	for _, body := range cases {
		rec := srv.do(t, http.MethodPost, "/api/tasks", body, cookie)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %v: status = %d, want 400", body, rec.Code)
		}
		if got := decode[map[string]string](t, rec); got["error"] != "task_desc is required" {
			t.Fatalf("body %v: unexpected error %v", body, got)
		}
	}

	if rec := srv.do(t, http.MethodPost, "/api/tasks", "{broken", cookie); rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed json: status = %d, want 400", rec.Code)
	}
}

func TestList_Pagination(t *testing.T) {
	srv := newTestServer(t)
	cookie := srv.login(t)

	for i := 1; i <= 12; i++ {
		rec := srv.do(t, http.MethodPost, "/api/tasks", map[string]string{"task_desc": fmt.Sprintf("task %d", i)}, cookie)
		if rec.Code != http.StatusCreated {
			t.Fatalf("create %d: status = %d", i, rec.Code)
		}
	}

	cases := []struct {
		query     string
		wantItems int
		wantPage  int
		wantLimit int
	}{
		{query: "page=1&limit=5", wantItems: 5, wantPage: 1, wantLimit: 5},
		{query: "page=3&limit=5", wantItems: 2, wantPage: 3, wantLimit: 5},
		{query: "", wantItems: 5, wantPage: 1, wantLimit: 5},
		{query: "page=abc&limit=xyz", wantItems: 5, wantPage: 1, wantLimit: 5},
		{query: "page=0&limit=0", wantItems: 5, wantPage: 1, wantLimit: 5},
		{query: "page=-1&limit=-3", wantItems: 5, wantPage: 1, wantLimit: 5},
		{query: "page=1&limit=500", wantItems: 12, wantPage: 1, wantLimit: 100},
	}
	for _, tc := range cases {
		rec := srv.do(t, http.MethodGet, "/api/tasks?"+tc.query, nil, cookie)
		if rec.Code != http.StatusOK {
			t.Fatalf("%q: status = %d", tc.query, rec.Code)
		}
		list := decode[TaskListResponse](t, rec)
		if list.Total != 12 || len(list.Data) != tc.wantItems || list.Page != tc.wantPage || list.Limit != tc.wantLimit {
			t.Fatalf("%q: got total=%d items=%d page=%d limit=%d", tc.query, list.Total, len(list.Data), list.Page, list.Limit)
		}
	}

	first := decode[TaskListResponse](t, srv.do(t, http.MethodGet, "/api/tasks?page=1&limit=5", nil, cookie))
	if first.Data[0].TaskDesc != "task 12" {
		t.Fatalf("expected newest first, got %q", first.Data[0].TaskDesc)
	}
}

func TestUpdateTask(t *testing.T) {
	srv := newTestServer(t)
	cookie := srv.login(t)

	created := decode[TaskResponse](t, srv.do(t, http.MethodPost, "/api/tasks", map[string]string{"task_desc": "review"}, cookie))
	path := fmt.Sprintf("/api/tasks/%d", created.ID)

	rec := srv.do(t, http.MethodPatch, path, map[string]string{"status": "in_progress"}, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	updated := decode[TaskResponse](t, rec)
	if updated.ID != created.ID || updated.Status != "in_progress" || updated.TaskDesc != "review" {
		t.Fatalf("unexpected updated task: %+v", updated)
	}

	cases := []struct {
		name string
		path string
		body any
		want int
	}{
		{name: "non-integer id", path: "/api/tasks/abc", body: map[string]string{"status": "done"}, want: http.StatusBadRequest},
		{name: "fractional id", path: "/api/tasks/1.5", body: map[string]string{"status": "done"}, want: http.StatusBadRequest},
		{name: "missing status", path: path, body: map[string]string{}, want: http.StatusBadRequest},
		{name: "empty body", path: path, body: nil, want: http.StatusBadRequest},
		{name: "unknown status", path: path, body: map[string]string{"status": "archived"}, want: http.StatusBadRequest},
		{name: "unknown id", path: "/api/tasks/987654", body: map[string]string{"status": "done"}, want: http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := srv.do(t, http.MethodPatch, tc.path, tc.body, cookie)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}

func TestDeleteTask(t *testing.T) {
	srv := newTestServer(t)
	cookie := srv.login(t)

	created := decode[TaskResponse](t, srv.do(t, http.MethodPost, "/api/tasks", map[string]string{"task_desc": "temporary"}, cookie))
	path := fmt.Sprintf("/api/tasks/%d", created.ID)

	rec := srv.do(t, http.MethodGet, path, nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("get before delete: status = %d", rec.Code)
	}
	if got := decode[TaskResponse](t, rec); got.ID != created.ID || got.TaskDesc != "temporary" {
		t.Fatalf("unexpected fetched task: %+v", got)
	}

	rec = srv.do(t, http.MethodDelete, path, nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("first delete: status = %d", rec.Code)
	}
	deleted := decode[TaskResponse](t, rec)
	if deleted.ID != created.ID || deleted.TaskDesc != "temporary" {
		t.Fatalf("unexpected deleted task: %+v", deleted)
	}

	rec = srv.do(t, http.MethodDelete, path, nil, cookie)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete: status = %d, want 404", rec.Code)
	}

	if rec := srv.do(t, http.MethodGet, path, nil, cookie); rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete: status = %d, want 404", rec.Code)
	}

	if rec := srv.do(t, http.MethodDelete, "/api/tasks/not-a-number", nil, cookie); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid id: status = %d, want 400", rec.Code)
	}
	if rec := srv.do(t, http.MethodGet, "/api/tasks/not-a-number", nil, cookie); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid id on get: status = %d, want 400", rec.Code)
	}
}

type failingTasks struct{ service.TaskService }

func (failingTasks) ListTasks(context.Context, int, int) (*service.TaskPage, error) {
	return nil, errors.New("connection refused")
}

func TestStoreFailureIsGeneric500(t *testing.T) {
	srv := newTestServer(t, func(cfg *Config) { cfg.Tasks = failingTasks{cfg.Tasks} })
	cookie := srv.login(t)

	rec := srv.do(t, http.MethodGet, "/api/tasks", nil, cookie)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	body := decode[map[string]string](t, rec)
	if body["error"] != "failed to fetch tasks" {
		t.Fatalf("unexpected body: %v", body)
	}
	if strings.Contains(rec.Body.String(), "connection refused") {
		t.Fatalf("internal error leaked: %s", rec.Body.String())
	}
}

type downDB struct{}

func (downDB) PingContext(context.Context) error { return errors.New("down") }

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	if rec := srv.do(t, http.MethodGet, "/api/health", nil, nil); rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	down := newTestServer(t, func(cfg *Config) { cfg.DB = downDB{} })
	if rec := down.do(t, http.MethodGet, "/api/health", nil, nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestRequestIDHeader(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodGet, "/api/health", nil, nil)
	if rec.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected generated request id")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	if got := rec.Header().Get(requestIDHeader); got != "abc-123" {
		t.Fatalf("request id = %q, want abc-123", got)
	}
}

func TestCORS_AllowedOriginOnly(t *testing.T) {
	srv := newTestServer(t, func(cfg *Config) { cfg.CORSOrigins = []string{"https://board.example.com"} })

	req := httptest.NewRequest(http.MethodOptions, "/api/tasks", nil)
	req.Header.Set("Origin", "https://board.example.com")
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://board.example.com" {
		t.Fatalf("missing allow-origin header")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("unexpected allow-origin for foreign origin")
	}
}
