package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/contextrouter/pkg/audit"
	"github.com/agentmesh/contextrouter/pkg/config"
	"github.com/agentmesh/contextrouter/pkg/delivery"
	"github.com/agentmesh/contextrouter/pkg/ingest"
	"github.com/agentmesh/contextrouter/pkg/loopguard"
	"github.com/agentmesh/contextrouter/pkg/models"
	"github.com/agentmesh/contextrouter/pkg/store"
	"github.com/agentmesh/contextrouter/pkg/whitelist"
)

const testAdminPassword = "admin-pass-123"

type testServer struct {
	server *Server
	agents *whitelist.Store
	store  *store.SessionStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := &config.Config{
		Port:                   8787,
		LoopMaxPerMinute:       6,
		LoopDelayDefaultMs:     2000,
		LoopDelayBurstMs:       2000,
		DeliveryMaxRetries:     3,
		DeliveryBaseDelay:      time.Second,
		DeliveryAttemptTimeout: 10 * time.Second,
		AdminPassword:          testAdminPassword,
		SQLitePath:             filepath.Join(t.TempDir(), "audit.db"),
	}

	sink, err := audit.Open(cfg.SQLitePath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sink.Close() })

	st := store.NewSessionStore()
	agents := whitelist.NewStore()
	guard := loopguard.New(st, loopguard.Config{
		MaxPerMinute:   cfg.LoopMaxPerMinute,
		DefaultDelayMs: cfg.LoopDelayDefaultMs,
		BurstDelayMs:   cfg.LoopDelayBurstMs,
	})

	engine := delivery.NewEngine(delivery.Config{
		MaxRetries: cfg.DeliveryMaxRetries,
		BaseDelay:  cfg.DeliveryBaseDelay,
	}, sink)
	// No outbound HTTP from handler tests.
	engine.SetScheduler(func(time.Duration, func()) {})

	pipeline := ingest.New(st, agents, guard, engine, sink)

	return &testServer{
		server: NewServer(cfg, pipeline, agents, st, sink),
		agents: agents,
		store:  st,
	}
}

func (ts *testServer) do(t *testing.T, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) adminLogin(t *testing.T) *http.Cookie {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/admin/login", `{"password":"`+testAdminPassword+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	for _, c := range rec.Result().Cookies() {
		if c.Name == "router_admin" {
			return c
		}
	}
	t.Fatal("admin session cookie not set")
	return nil
}

func approveForSession(t *testing.T, agents *whitelist.Store, agentID, sessionKey string) {
	t.Helper()
	agents.Register(whitelist.RegisterInput{
		AgentID:     agentID,
		CallbackURL: "http://localhost/cb/" + agentID,
	})
	_, err := agents.Approve(agentID, []string{sessionKey})
	require.NoError(t, err)
}

func TestPublishEndpoint(t *testing.T) {
	ts := newTestServer(t)
	approveForSession(t, ts.agents, "agent-alpha", "session-1")

	body := `{
		"traceId": "trace-1",
		"sessionKey": "session-1",
		"originActorType": "agent",
		"originActorId": "agent-alpha",
		"text": "hello"
	}`
	rec := ts.do(t, http.MethodPost, "/mcp/events/publish", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var result ingest.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Accepted)
	assert.False(t, result.Delayed)

	assert.Len(t, ts.store.List("session-1"), 1)
}

func TestPublishEndpoint_InvalidEnvelope(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/mcp/events/publish", `{"text":"hi"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPublishEndpoint_UnapprovedAgent(t *testing.T) {
	ts := newTestServer(t)

	body := `{
		"traceId": "trace-1",
		"sessionKey": "session-1",
		"originActorType": "agent",
		"originActorId": "agent-stranger",
		"text": "hello"
	}`
	rec := ts.do(t, http.MethodPost, "/mcp/events/publish", body)
	require.Equal(t, http.StatusForbidden, rec.Code)

	var resp RejectedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Accepted)
	assert.Equal(t, "agent not approved for this session", resp.Reason)
}

func TestRegisterEndpoint(t *testing.T) {
	ts := newTestServer(t)

	body := `{
		"agentId": "agent-alpha",
		"displayName": "Alpha",
		"callbackUrl": "http://localhost:9000/events",
		"callbackSecret": "s3cret!!",
		"requestedSessionKeys": ["session-1"]
	}`
	rec := ts.do(t, http.MethodPost, "/agents/register", body)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp RegisterAgentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "pending", resp.Status)
	assert.Equal(t, "agent-alpha", resp.Registration.AgentID)
	// The callback secret never leaves the server.
	assert.NotContains(t, rec.Body.String(), "s3cret!!")
}

func TestRegisterEndpoint_Validation(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing agentId", `{"callbackUrl":"http://localhost/cb"}`},
		{"missing callbackUrl", `{"agentId":"agent-a"}`},
		{"short secret", `{"agentId":"agent-a","callbackUrl":"http://localhost/cb","callbackSecret":"short"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/agents/register", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestSessionEventsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	approveForSession(t, ts.agents, "agent-alpha", "session-1")

	require.True(t, ts.store.Append(models.Envelope{
		EventID:         "e1",
		TraceID:         "trace-1",
		SessionKey:      "session-1",
		OriginActorType: models.ActorHuman,
		OriginActorID:   "user-1",
		Text:            "hello",
		CreatedAt:       time.Now().UnixMilli(),
	}))

	rec := ts.do(t, http.MethodGet, "/mcp/sessions/session-1/events?agentId=agent-alpha", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SessionEventsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "session-1", resp.SessionKey)
	require.Len(t, resp.Events, 1)
	assert.Equal(t, "e1", resp.Events[0].EventID)
}

func TestSessionEventsEndpoint_Forbidden(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/mcp/sessions/session-1/events?agentId=agent-stranger", "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	var resp RejectedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "agent not approved for this session", resp.Reason)
}

func TestSessionEventsEndpoint_MissingAgentID(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/mcp/sessions/session-1/events", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Zero(t, resp.Events)
}

func TestAdminRoutes_RequireSession(t *testing.T) {
	ts := newTestServer(t)

	paths := []string{
		"/admin/agents/pending",
		"/admin/agents/approved",
		"/admin/api/metrics",
		"/admin/api/sessions",
		"/admin/api/loops",
		"/admin/api/deliveries",
	}
	for _, path := range paths {
		rec := ts.do(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestAdminLoginFlow(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/admin/login", `{"password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	cookie := ts.adminLogin(t)
	assert.True(t, cookie.HttpOnly)

	rec = ts.do(t, http.MethodGet, "/admin/session", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"authenticated":true}`, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/admin/agents/pending", "", cookie)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/admin/logout", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/admin/agents/pending", "", cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminLogin_NotConfigured(t *testing.T) {
	ts := newTestServer(t)
	ts.server.admin.password = ""

	rec := ts.do(t, http.MethodPost, "/admin/login", `{"password":"anything"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAdminApproveRejectFlow(t *testing.T) {
	ts := newTestServer(t)
	cookie := ts.adminLogin(t)

	rec := ts.do(t, http.MethodPost, "/agents/register",
		`{"agentId":"agent-a","callbackUrl":"http://localhost/cb"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = ts.do(t, http.MethodPost, "/admin/agents/approve",
		`{"agentId":"agent-a","sessionKeys":["session-1"]}`, cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	var reg models.Registration
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reg))
	assert.Equal(t, models.StatusApproved, reg.Status)
	assert.Equal(t, []string{"session-1"}, reg.SessionKeys)
	assert.True(t, ts.agents.CanAccess("agent-a", "session-1"))

	rec = ts.do(t, http.MethodPost, "/admin/agents/reject", `{"agentId":"agent-a"}`, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, ts.agents.CanAccess("agent-a", "session-1"))

	rec = ts.do(t, http.MethodPost, "/admin/agents/approve",
		`{"agentId":"ghost","sessionKeys":[]}`, cookie)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminReports(t *testing.T) {
	ts := newTestServer(t)
	cookie := ts.adminLogin(t)

	// Publish one event so the audit tables are non-empty.
	approveForSession(t, ts.agents, "agent-alpha", "session-1")
	rec := ts.do(t, http.MethodPost, "/mcp/events/publish", `{
		"traceId": "trace-1",
		"sessionKey": "session-1",
		"originActorType": "agent",
		"originActorId": "agent-alpha",
		"text": "hello"
	}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/admin/api/metrics", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var m audit.Metrics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	assert.Equal(t, 1, m.TotalEvents)

	rec = ts.do(t, http.MethodGet, "/admin/api/sessions", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var rollup []audit.SessionRollup
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rollup))
	require.Len(t, rollup, 1)
	assert.Equal(t, "session-1", rollup[0].SessionKey)

	rec = ts.do(t, http.MethodGet, "/admin/api/loops", "", cookie)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/admin/api/deliveries", "", cookie)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSecurityHeaders(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}
