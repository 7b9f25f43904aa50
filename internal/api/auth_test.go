package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/chatkeeper/internal/commands"
)

func keyedEnv(t *testing.T) *testEnv {
	return newTestEnv(t, AuthConfig{
		Mode:   "api-key",
		APIKey: "admin-key",
		Roles: map[string]Role{
			"ops-key":  RoleOperator,
			"read-key": RoleReadOnly,
		},
	}, RateLimitConfig{})
}

func TestAuth_MissingHeader(t *testing.T) {
	env := keyedEnv(t)

	resp := env.do(t, "GET", "/api/v1/users", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	problem := decode[ProblemDetail](t, resp)
	assert.Equal(t, "missing_auth", problem.Type)
}

func TestAuth_WrongScheme(t *testing.T) {
	env := keyedEnv(t)

	resp := env.do(t, "GET", "/api/v1/users", "", "Authorization", "Basic admin-key")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuth_InvalidKey(t *testing.T) {
	env := keyedEnv(t)

	resp := env.do(t, "GET", "/api/v1/users", "", "Authorization", "Bearer nope")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	problem := decode[ProblemDetail](t, resp)
	assert.Equal(t, "invalid_api_key", problem.Type)
}

func TestAuth_ProbesSkipAuth(t *testing.T) {
	env := keyedEnv(t)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp := env.do(t, "GET", path, "")
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestAuth_RoleEnforcement(t *testing.T) {
	env := keyedEnv(t)

	resp := env.do(t, "GET", "/api/v1/config", "", "Authorization", "Bearer read-key")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, "POST", "/api/v1/pardons/alice", "", "Authorization", "Bearer read-key")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.do(t, "POST", "/api/v1/pardons/alice", "", "Authorization", "Bearer ops-key")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, "PATCH", "/api/v1/config", `{"strike_threshold":4}`, "Authorization", "Bearer ops-key")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.do(t, "PATCH", "/api/v1/config", `{"strike_threshold":4}`, "Authorization", "Bearer admin-key")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 4, env.ledger.Config().Threshold)
}

func TestAuth_InvokeCappedByRole(t *testing.T) {
	env := keyedEnv(t)
	require.NoError(t, env.router.Table().Add(commands.Definition{Name: "secret", Content: "shh", Level: commands.LevelMod}))
	require.NoError(t, env.router.Table().Add(commands.Definition{Name: "owner", Content: "boss", Level: commands.LevelBroadcaster}))

	resp := env.do(t, "POST", "/api/v1/invoke", `{"user":"alice","level":"mod","line":"secret"}`, "Authorization", "Bearer ops-key")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, "POST", "/api/v1/invoke", `{"user":"alice","level":"broadcaster","line":"owner"}`, "Authorization", "Bearer ops-key")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	problem := decode[ProblemDetail](t, resp)
	assert.Equal(t, "insufficient_permission", problem.Type)

	resp = env.do(t, "POST", "/api/v1/invoke", `{"user":"alice","level":"broadcaster","line":"owner"}`, "Authorization", "Bearer admin-key")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuth_AuditNamesRole(t *testing.T) {
	env := keyedEnv(t)

	resp := env.do(t, "POST", "/api/v1/pardons/bob", "", "Authorization", "Bearer ops-key")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	actions, err := env.store.RecentActions(context.Background(), "bob", 10)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, "api:operator", actions[0].Actor)
}

func TestKeyring_Match(t *testing.T) {
	keys := newKeyring(AuthConfig{
		APIKey: "admin-key",
		Roles: map[string]Role{
			"ops-key": RoleOperator,
			"":        RoleReadOnly,
			"dead":    RoleNone,
		},
	})

	assert.Equal(t, RoleAdmin, keys.match("admin-key"))
	assert.Equal(t, RoleOperator, keys.match("ops-key"))
	assert.Equal(t, RoleNone, keys.match(""))
	assert.Equal(t, RoleNone, keys.match("dead"))
	assert.Equal(t, RoleNone, keys.match("admin-key "))
}

func TestRole_ChatLevel(t *testing.T) {
	assert.Equal(t, commands.LevelNone, RoleReadOnly.ChatLevel())
	assert.Equal(t, commands.LevelMod, RoleOperator.ChatLevel())
	assert.Equal(t, commands.LevelBroadcaster, RoleAdmin.ChatLevel())
	assert.Equal(t, "operator", RoleOperator.String())
	assert.True(t, RoleReadOnly < RoleOperator)
}

func TestRateLimit_RejectsOverBurst(t *testing.T) {
	env := newTestEnv(t, AuthConfig{Mode: "none"}, RateLimitConfig{RPS: 1, Burst: 2})

	assert.Equal(t, http.StatusOK, env.do(t, "GET", "/api/v1/users", "").StatusCode)
	assert.Equal(t, http.StatusOK, env.do(t, "GET", "/api/v1/users", "").StatusCode)

	resp := env.do(t, "GET", "/api/v1/users", "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	problem := decode[ProblemDetail](t, resp)
	assert.Equal(t, "rate_limit_exceeded", problem.Type)

	// Probes are never limited.
	assert.Equal(t, http.StatusOK, env.do(t, "GET", "/healthz", "").StatusCode)
}

func TestTokenBucket_Refills(t *testing.T) {
	b := newTokenBucket(2, 1, t0)

	assert.True(t, b.allow(t0))
	assert.False(t, b.allow(t0))
	assert.True(t, b.allow(t0.Add(500*time.Millisecond)))
}
