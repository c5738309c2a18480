package middleware

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nutrixpert/nutrixpert/internal/pkg/entitlements"
)

const testKey = "test-admin-key-0123456789"

func newKeyApp() *fiber.App {
	app := fiber.New()
	app.Get("/secret", RequireAPIKey(testKey), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func TestRequireAPIKey(t *testing.T) {
	tests := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"missing", "", "", fiber.StatusUnauthorized},
		{"wrong key", APIKeyHeader, "nope", fiber.StatusUnauthorized},
		{"prefix of key", APIKeyHeader, testKey[:10], fiber.StatusUnauthorized},
		{"header", APIKeyHeader, testKey, fiber.StatusOK},
		{"bearer", fiber.HeaderAuthorization, "Bearer " + testKey, fiber.StatusOK},
	}

	app := newKeyApp()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/secret", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestRequireAPIKeyEmptyConfiguredKey(t *testing.T) {
	app := fiber.New()
	app.Get("/secret", RequireAPIKey(""), func(c *fiber.Ctx) error { return c.SendString("ok") })

	req := httptest.NewRequest("GET", "/secret", nil)
	req.Header.Set(APIKeyHeader, "anything")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

type stubChecker struct {
	decisions map[uint]entitlements.Decision
	err       error
}

func (s stubChecker) Check(ctx context.Context, accountID uint) (entitlements.Decision, error) {
	return s.decisions[accountID], s.err
}

func TestRequireEntitlement(t *testing.T) {
	checker := stubChecker{decisions: map[uint]entitlements.Decision{
		1: {Entitled: true, Status: "ACTIVE"},
		2: {Status: "PENDING", Message: entitlements.MessagePending},
	}}
	app := fiber.New()
	app.Get("/practice/:id", RequireEntitlement(checker, AccountIDParam("id")), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	tests := []struct {
		path string
		want int
	}{
		{"/practice/1", fiber.StatusOK},
		{"/practice/2", fiber.StatusForbidden},
		{"/practice/abc", fiber.StatusBadRequest},
		{"/practice/0", fiber.StatusBadRequest},
	}
	for _, tt := range tests {
		resp, err := app.Test(httptest.NewRequest("GET", tt.path, nil))
		require.NoError(t, err)
		assert.Equal(t, tt.want, resp.StatusCode, tt.path)
	}
}

func TestRequireEntitlementCheckFailure(t *testing.T) {
	app := fiber.New()
	app.Get("/practice/:id", RequireEntitlement(stubChecker{err: errors.New("db down")}, AccountIDParam("id")), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/practice/1", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}
