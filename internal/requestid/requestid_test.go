package requestid

import (
	"context"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	ctx, id := New(context.Background())
	assert.NotEmpty(t, id)
	assert.Equal(t, id, FromContext(ctx))
}

func TestFromContext_Missing(t *testing.T) {
	id := FromContext(context.Background())
	assert.NotEmpty(t, id) // generates new UUID
}

func TestWithRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "test-123")
	assert.Equal(t, "test-123", FromContext(ctx))
}

func newApp() *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(Middleware())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString(FromFiber(c)) })
	return app
}

func TestMiddleware_AssignsID(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	resp, err := newApp().Test(req, -1)
	require.NoError(t, err)

	id := resp.Header.Get(Header)
	_, err = uuid.Parse(id)
	assert.NoError(t, err)
}

func TestMiddleware_KeepsIncomingID(t *testing.T) {
	incoming := uuid.New().String()
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(Header, incoming)
	resp, err := newApp().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, incoming, resp.Header.Get(Header))

	req, _ = http.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(Header, "not a uuid")
	resp, err = newApp().Test(req, -1)
	require.NoError(t, err)
	assert.NotEqual(t, "not a uuid", resp.Header.Get(Header))
}
