package router

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Strict routing treats /path and /path/ as different routes; every list
// endpoint must match its bare form.
func TestRoutesMatchWithoutTrailingSlash(t *testing.T) {
	app := fiber.New(fiber.Config{StrictRouting: true})
	Rest(app, &SocketDeps{})

	paths := []string{
		"/v1/notifications",
		"/v1/chat/conversations",
	}
	for _, path := range paths {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, path, nil))
		require.NoError(t, err)
		// Unauthenticated requests are rejected by the JWT middleware,
		// which still proves the route matched.
		assert.NotEqual(t, fiber.StatusNotFound, resp.StatusCode, path)
	}
}
