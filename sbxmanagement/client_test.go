package sbxmanagement

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scalebox/sbx-go/sbxconfig"
	"github.com/scalebox/sbx-go/sbxerr"
	"github.com/scalebox/sbx-go/sbxtest"
)

func newTestClient(t *testing.T, fake *sbxtest.Management) *Client {
	t.Helper()
	cfg, err := sbxconfig.New(sbxconfig.WithAPIKey("test-key"))
	require.NoError(t, err)
	return NewWithBaseURL(cfg, fake.URL())
}

func TestCreateSandboxSetsIdempotencyKey(t *testing.T) {
	fake := sbxtest.NewManagement()
	defer fake.Close()
	fake.HandleJSON(http.MethodPost, "/sandboxes", CreatedSandbox{SandboxID: "sbx_1", Domain: "sbx_1.example.com"})

	c := newTestClient(t, fake)
	out, err := c.CreateSandbox(context.Background(), NewSandbox{TemplateID: "python3"})
	require.NoError(t, err)
	assert.Equal(t, "sbx_1", out.SandboxID)

	reqs := fake.Requests()
	require.Len(t, reqs, 1)
	assert.NotEmpty(t, reqs[0].Header.Get("Idempotency-Key"))
	assert.Equal(t, "test-key", reqs[0].Header.Get("X-API-Key"))
}

func TestKillTreats404AsIdempotentSuccess(t *testing.T) {
	fake := sbxtest.NewManagement()
	defer fake.Close()
	fake.HandleError(http.MethodDelete, "/sandboxes/sbx_missing", http.StatusNotFound, "sandbox not found")

	c := newTestClient(t, fake)
	ok, err := c.Kill(context.Background(), "sbx_missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestKillSurfacesOtherErrors(t *testing.T) {
	fake := sbxtest.NewManagement()
	defer fake.Close()
	fake.HandleError(http.MethodDelete, "/sandboxes/sbx_1", http.StatusInternalServerError, "boom")

	c := newTestClient(t, fake)
	_, err := c.Kill(context.Background(), "sbx_1")
	require.Error(t, err)
	assert.True(t, sbxerr.Is(err, sbxerr.KindSandbox))
}

func TestDebugModeShortCircuitsKillAndMetrics(t *testing.T) {
	fake := sbxtest.NewManagement()
	defer fake.Close()

	cfg, err := sbxconfig.New(sbxconfig.WithDebug(true))
	require.NoError(t, err)
	c := NewWithBaseURL(cfg, fake.URL())

	ok, err := c.Kill(context.Background(), "sbx_1")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, c.SetTimeout(context.Background(), "sbx_1", 60))

	metrics, err := c.GetMetrics(context.Background(), "sbx_1", time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	assert.Empty(t, metrics)

	// None of the calls ever reached the fake.
	assert.Empty(t, fake.Requests())
}

func TestPauseTreats409AsSuccess(t *testing.T) {
	fake := sbxtest.NewManagement()
	defer fake.Close()
	fake.HandleError(http.MethodPost, "/sandboxes/sbx_1/pause", http.StatusConflict, "already paused")

	c := newTestClient(t, fake)
	require.NoError(t, c.Pause(context.Background(), "sbx_1"))
}

func TestListSandboxesEncodesMetadata(t *testing.T) {
	fake := sbxtest.NewManagement()
	defer fake.Close()
	fake.HandleJSON(http.MethodGet, "/sandboxes", struct {
		Sandboxes []ListedSandbox `json:"sandboxes"`
	}{Sandboxes: []ListedSandbox{{SandboxID: "sbx_1"}}})

	c := newTestClient(t, fake)
	out, err := c.ListSandboxes(context.Background(), ListQuery{Metadata: map[string]string{"team": "infra"}})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "sbx_1", out[0].SandboxID)

	reqs := fake.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodGet, reqs[0].Method)
}

func TestConnectReturnsReconnectionDescriptor(t *testing.T) {
	fake := sbxtest.NewManagement()
	defer fake.Close()
	fake.HandleJSON(http.MethodPost, "/sandboxes/sbx_1/connect", ConnectResult{
		SandboxID: "sbx_1", SandboxDomain: "sbx_1.example.com", EnvdVersion: "v0.5.0",
	})

	c := newTestClient(t, fake)
	out, err := c.Connect(context.Background(), "sbx_1", 300)
	require.NoError(t, err)
	assert.Equal(t, "sbx_1.example.com", out.SandboxDomain)
}

func TestGetInfoMapsHTTPError(t *testing.T) {
	fake := sbxtest.NewManagement()
	defer fake.Close()
	fake.HandleError(http.MethodGet, "/sandboxes/sbx_gone", http.StatusNotFound, "sandbox not found")

	c := newTestClient(t, fake)
	_, err := c.GetInfo(context.Background(), "sbx_gone")
	require.Error(t, err)
	assert.True(t, sbxerr.IsNotFound(err))
}
