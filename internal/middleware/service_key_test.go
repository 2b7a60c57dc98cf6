package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceKeyMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		presented  string
		bearer     bool
		want       int
	}{
		{name: "matching key", configured: "svc", presented: "svc", want: http.StatusNoContent},
		{name: "wrong key", configured: "svc", presented: "other", want: http.StatusUnauthorized},
		{name: "missing key", configured: "svc", want: http.StatusUnauthorized},
		{name: "user token instead of key", configured: "svc", bearer: true, want: http.StatusUnauthorized},
		{name: "no key configured", configured: "", presented: "", want: http.StatusForbidden},
		{name: "no key configured, any key presented", configured: "", presented: "svc", want: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Post("/internal", NewServiceKeyMiddleware(tt.configured, nil).Handler, func(c *fiber.Ctx) error {
				return c.SendStatus(fiber.StatusNoContent)
			})

			req := httptest.NewRequest(http.MethodPost, "/internal", nil)
			if tt.presented != "" {
				req.Header.Set(ServiceKeyHeader, tt.presented)
			}
			if tt.bearer {
				req.Header.Set(fiber.HeaderAuthorization, "Bearer svc")
			}
			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}
