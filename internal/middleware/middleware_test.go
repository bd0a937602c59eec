package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/example/sitesnap/internal/apperr"
	"github.com/example/sitesnap/internal/logger"
	"github.com/example/sitesnap/internal/metrics"
	"github.com/example/sitesnap/internal/models"
	"github.com/example/sitesnap/internal/policy"
)

type fakeIdentity struct {
	tokens map[string]*models.User
	err    error
}

func (f fakeIdentity) ParseToken(token string) (uuid.UUID, error) {
	user, ok := f.tokens[token]
	if !ok {
		return uuid.Nil, apperr.ErrUnauthenticated
	}
	return user.ID, nil
}

func (f fakeIdentity) CurrentUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, u := range f.tokens {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, apperr.ErrUnauthenticated
}

func newUser(role policy.Role) *models.User {
	u := &models.User{Role: role}
	u.ID = uuid.New()
	return u
}

func newApp() *fiber.App {
	return fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logger.Nop())})
}

type envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func do(t *testing.T, app *fiber.App, req *http.Request) (int, envelope) {
	t.Helper()
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body envelope
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp.StatusCode, body
}

func get(path, token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestRequiredAuth(t *testing.T) {
	seller := newUser(policy.RoleSeller)
	auth := NewAuthenticator(fakeIdentity{tokens: map[string]*models.User{"good": seller}}, nil)

	app := newApp()
	app.Get("/me", auth.Required(), func(c *fiber.Ctx) error {
		actor := CurrentActor(c)
		user, ok := CurrentUser(c)
		require.True(t, ok)
		return c.JSON(fiber.Map{"success": true, "message": actor.UserID.String() + "|" + user.ID.String()})
	})

	status, body := do(t, app, get("/me", ""))
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.False(t, body.Success)
	assert.Equal(t, string(apperr.CodeUnauthorized), body.Error)

	status, _ = do(t, app, get("/me", "bad"))
	assert.Equal(t, http.StatusUnauthorized, status)

	req := get("/me", "")
	req.Header.Set("Authorization", "Basic abc")
	status, _ = do(t, app, req)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body = do(t, app, get("/me", "good"))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, seller.ID.String()+"|"+seller.ID.String(), body.Message)
}

func TestOptionalAuthTreatsBadTokensAsAnonymous(t *testing.T) {
	seller := newUser(policy.RoleSeller)
	auth := NewAuthenticator(fakeIdentity{tokens: map[string]*models.User{"good": seller}}, nil)

	app := newApp()
	app.Get("/", auth.Optional(), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"success": CurrentActor(c).Authenticated()})
	})

	_, body := do(t, app, get("/", ""))
	assert.False(t, body.Success)
	_, body = do(t, app, get("/", "bad"))
	assert.False(t, body.Success)
	_, body = do(t, app, get("/", "good"))
	assert.True(t, body.Success)
}

func TestOptionalAuthSurfacesStoreFailures(t *testing.T) {
	seller := newUser(policy.RoleSeller)
	auth := NewAuthenticator(fakeIdentity{
		tokens: map[string]*models.User{"good": seller},
		err:    errors.New("connection refused"),
	}, nil)

	app := newApp()
	app.Get("/", auth.Optional(), func(c *fiber.Ctx) error { return c.SendStatus(http.StatusOK) })

	status, body := do(t, app, get("/", "good"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal server error", body.Message)
}

func TestRequireRole(t *testing.T) {
	admin := newUser(policy.RoleAdmin)
	visitor := newUser(policy.RoleVisitor)
	auth := NewAuthenticator(fakeIdentity{tokens: map[string]*models.User{"admin": admin, "visitor": visitor}}, nil)

	app := newApp()
	app.Get("/admin", auth.Optional(), RequireRole(policy.RoleAdmin), func(c *fiber.Ctx) error {
		return c.SendStatus(http.StatusNoContent)
	})

	status, _ := do(t, app, get("/admin", ""))
	assert.Equal(t, http.StatusUnauthorized, status)
	status, body := do(t, app, get("/admin", "visitor"))
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, string(apperr.CodeForbidden), body.Error)
	status, _ = do(t, app, get("/admin", "admin"))
	assert.Equal(t, http.StatusNoContent, status)
}

func TestErrorHandlerClassification(t *testing.T) {
	cases := []struct {
		err     error
		status  int
		code    apperr.Code
		message string
	}{
		{apperr.ErrOwnershipViolation, http.StatusForbidden, apperr.CodeForbidden, apperr.ErrOwnershipViolation.Message()},
		{fiber.ErrNotFound, http.StatusNotFound, apperr.CodeNotFound, "Not Found"},
		{gorm.ErrRecordNotFound, http.StatusNotFound, apperr.CodeNotFound, ""},
		{errors.New(`ERROR: duplicate key value violates unique constraint "idx_categories_category_name"`), http.StatusConflict, apperr.CodeConflict, "resource already exists"},
		{errors.New("pq: password authentication failed for user postgres"), http.StatusInternalServerError, apperr.CodeInternal, "internal server error"},
	}

	for _, tc := range cases {
		app := newApp()
		err := tc.err
		app.Get("/", func(*fiber.Ctx) error { return err })

		status, body := do(t, app, get("/", ""))
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, string(tc.code), body.Error, tc.err.Error())
		if tc.message != "" {
			assert.Equal(t, tc.message, body.Message)
		}
		assert.NotContains(t, body.Message, "password authentication")
	}
}

func TestValidationDetailsAreRendered(t *testing.T) {
	app := newApp()
	app.Get("/", func(*fiber.Ctx) error {
		return apperr.New(apperr.CodeValidation, "email is required").WithDetails(map[string]string{"email": "is required"})
	})

	resp, err := app.Test(get("/", ""))
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "email is required", body["message"])
	assert.Equal(t, map[string]any{"email": "is required"}, body["details"])
}

type memoryStore struct {
	counts map[string]int64
	err    error
}

func (s *memoryStore) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.counts[key]++
	return s.counts[key], nil
}

func postLogin(email string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"`+email+`"}`))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestAuthRateLimitPerIdentity(t *testing.T) {
	store := &memoryStore{counts: map[string]int64{}}
	m := metrics.New()

	app := newApp()
	app.Post("/login",
		AuthRateLimit(NewRateLimitPolicy("login", time.Minute, 100, 2), store, nil, m),
		func(c *fiber.Ctx) error { return c.SendStatus(http.StatusOK) })

	for i := 0; i < 2; i++ {
		status, _ := do(t, app, postLogin("a@x.com"))
		require.Equal(t, http.StatusOK, status)
	}

	status, body := do(t, app, postLogin("A@x.com "))
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, string(apperr.CodeRateLimit), body.Error)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimited.WithLabelValues("login", "identity")))

	status, _ = do(t, app, postLogin("b@x.com"))
	assert.Equal(t, http.StatusOK, status)

	for key := range store.counts {
		assert.NotContains(t, key, "a@x.com")
	}
}

func TestAuthRateLimitPerIP(t *testing.T) {
	store := &memoryStore{counts: map[string]int64{}}
	app := newApp()
	app.Post("/login",
		AuthRateLimit(NewRateLimitPolicy("login", time.Minute, 1, 0), store, nil, nil),
		func(c *fiber.Ctx) error { return c.SendStatus(http.StatusOK) })

	status, _ := do(t, app, postLogin("a@x.com"))
	assert.Equal(t, http.StatusOK, status)
	status, _ = do(t, app, postLogin("b@x.com"))
	assert.Equal(t, http.StatusTooManyRequests, status)
}

func TestAuthRateLimitDisabledAndFailing(t *testing.T) {
	app := newApp()
	app.Post("/off", AuthRateLimit(NewRateLimitPolicy("login", time.Minute, 1, 1), nil, nil, nil),
		func(c *fiber.Ctx) error { return c.SendStatus(http.StatusOK) })
	app.Post("/down", AuthRateLimit(NewRateLimitPolicy("login", time.Minute, 1, 1),
		&memoryStore{err: errors.New("redis: connection refused")}, nil, nil),
		func(c *fiber.Ctx) error { return c.SendStatus(http.StatusOK) })

	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/off", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/down", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestRequestLoggerAndMetrics(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.Options{ServiceName: "test", Output: &buf})
	m := metrics.New()

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(log)})
	app.Use(Metrics(m), RequestLogger(log))
	app.Get("/items/:id", func(*fiber.Ctx) error { return apperr.ErrNotFound })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/items/42", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	assert.Contains(t, buf.String(), `"message":"request.complete"`)
	assert.Contains(t, buf.String(), `"status":404`)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues(http.MethodGet, "/items/:id", "404")))
}
