package auth

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = strings.Repeat("k", 32)

func newApp() *fiber.App {
	app := fiber.New()
	app.Use(JWTMiddleware(secret))
	app.Get("/me", func(c *fiber.Ctx) error {
		id, name := UserFromCtx(c)
		return c.SendString(id + "|" + name)
	})
	app.Delete("/admin", RequireRole(RoleAdmin), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app
}

func call(t *testing.T, app *fiber.App, method, path, token string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	buf := new(strings.Builder)
	_, _ = io.Copy(buf, resp.Body)
	return resp.StatusCode, buf.String()
}

func TestJWTMiddleware(t *testing.T) {
	app := newApp()

	status, _ := call(t, app, "GET", "/me", "")
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, _ = call(t, app, "GET", "/me", "garbage")
	assert.Equal(t, fiber.StatusUnauthorized, status)

	token, err := GenerateToken(secret, "u1", "Ayşe", RoleOperator, time.Hour)
	require.NoError(t, err)
	status, body := call(t, app, "GET", "/me", token)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "u1|Ayşe", body)

	expired, err := GenerateToken(secret, "u1", "Ayşe", RoleOperator, -time.Minute)
	require.NoError(t, err)
	status, _ = call(t, app, "GET", "/me", expired)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	other, err := GenerateToken(strings.Repeat("x", 32), "u1", "Ayşe", RoleAdmin, time.Hour)
	require.NoError(t, err)
	status, _ = call(t, app, "GET", "/me", other)
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestRejectsNonHMAC(t *testing.T) {
	tok := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{Role: RoleAdmin})
	s, err := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	status, _ := call(t, newApp(), "GET", "/me", s)
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestRequireRole(t *testing.T) {
	app := newApp()

	op, err := GenerateToken(secret, "u1", "", RoleOperator, time.Hour)
	require.NoError(t, err)
	status, _ := call(t, app, "DELETE", "/admin", op)
	assert.Equal(t, fiber.StatusForbidden, status)

	admin, err := GenerateToken(secret, "u2", "", RoleAdmin, time.Hour)
	require.NoError(t, err)
	status, _ = call(t, app, "DELETE", "/admin", admin)
	assert.Equal(t, fiber.StatusNoContent, status)
}

func TestUserFromCtxAnonymous(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		id, name := UserFromCtx(c)
		return c.SendString(id + "|" + name)
	})
	_, body := call(t, app, "GET", "/", "")
	assert.Equal(t, "anonymous|anonymous", body)
}
