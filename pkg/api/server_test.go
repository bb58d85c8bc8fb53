package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrims-network/guildkeeper/pkg/config"
	"github.com/scrims-network/guildkeeper/pkg/doccache"
	"github.com/scrims-network/guildkeeper/pkg/guild"
	"github.com/scrims-network/guildkeeper/pkg/messenger"
	"github.com/scrims-network/guildkeeper/pkg/observability"
	"github.com/scrims-network/guildkeeper/pkg/permissions"
	"github.com/scrims-network/guildkeeper/pkg/positions"
	"github.com/scrims-network/guildkeeper/pkg/rejoin"
	"github.com/scrims-network/guildkeeper/pkg/rolesync"
	"github.com/scrims-network/guildkeeper/pkg/store"
)

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

type testServer struct {
	server   *Server
	dir      *guild.Memory
	bindings *doccache.Cache[positions.Binding]
	caches   *doccache.Registry
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	metrics := observability.NewMetricsForTesting()

	dir := guild.NewMemory("bot")
	dir.AddGuild("host", 100)
	dir.PutRole(&guild.Role{ID: "r1", GuildID: "host", Name: "Staff", Rank: 10})

	bindingColl := store.NewMemoryCollection[positions.Binding]("position_bindings", nil, nil)
	bindingCache := doccache.New[positions.Binding]("position_bindings")
	index := positions.NewIndex(dir)
	index.Attach(bindingCache)

	registry := positions.NewRegistry()
	registry.Declare("Staff")
	bindingStore := positions.NewBindingStore(bindingColl, bindingCache, registry, logger)

	transientCache := doccache.New[positions.TransientRole]("transient_roles")
	transientSet := positions.NewTransientSet()
	transientSet.Attach(transientCache)

	snapColl := store.NewMemoryCollection[rejoin.Snapshot]("rejoin_roles",
		func(id string) *rejoin.Snapshot { return &rejoin.Snapshot{UserID: id} },
		func(s *rejoin.Snapshot, field string) *[]string { return &s.RoleIDs },
	)
	snapCache := doccache.New[rejoin.Snapshot]("rejoin_roles")
	snapshots := rejoin.NewStore(snapColl, snapCache, dir, logger, nil)

	engine := permissions.NewEngine(dir, index, registry, transientSet, snapshots, "host", logger, nil)

	syncLog := logrus.New()
	syncLog.SetOutput(io.Discard)
	syncer := rolesync.NewSynchronizer(dir, engine, index, registry, transientSet, snapshots, nil, syncLog, nil)

	caches := doccache.NewRegistry(logger)
	msgr := messenger.New(nil, logger)
	health := observability.NewHealthChecker(okPinger{}, nil)

	cfg := config.ServerConfig{Host: "127.0.0.1", Port: "0"}
	server := NewServer(cfg, engine, index, bindingStore, caches, syncer, msgr, health, logger, metrics)

	return &testServer{server: server, dir: dir, bindings: bindingCache, caches: caches}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	ts.server.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/readyz", "").Code)
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/metrics", "").Code)
}

func TestPermissionCheckGranted(t *testing.T) {
	ts := newTestServer(t)
	b := positions.NewBinding("Staff", "host", "r1")
	ts.bindings.Set(b.ID, b)
	ts.dir.PutMember(&guild.Member{UserID: "u1", GuildID: "host", RoleIDs: []string{"r1"}})

	rec := ts.do(t, http.MethodGet, "/permissions/check?user_id=u1&guild_id=host&position=Staff", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "granted", resp["outcome"])
}

func TestPermissionCheckDeniedAndIndeterminateLookAlike(t *testing.T) {
	ts := newTestServer(t)
	b := positions.NewBinding("Staff", "host", "r1")
	ts.bindings.Set(b.ID, b)
	ts.dir.PutMember(&guild.Member{UserID: "u1", GuildID: "host"})

	// denied: member without the bound role
	denied := ts.do(t, http.MethodGet, "/permissions/check?user_id=u1&guild_id=host&position=Staff", "")
	assert.Equal(t, http.StatusForbidden, denied.Code)
	assert.Contains(t, denied.Body.String(), "missing permissions")

	// indeterminate: unconfigured position maps to the same generic error
	unknown := ts.do(t, http.MethodGet, "/permissions/check?user_id=u1&guild_id=host&position=Ghost", "")
	assert.Equal(t, http.StatusForbidden, unknown.Code)
	assert.Contains(t, unknown.Body.String(), "missing permissions")
}

func TestPermissionCheckValidation(t *testing.T) {
	ts := newTestServer(t)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/permissions/check?user_id=u1", "").Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/permissions/check?user_id=u1&guild_id=host", "").Code)
}

func TestBindingLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	created := ts.do(t, http.MethodPost, "/positions/host", `{"position":"Staff","roleId":"r1"}`)
	require.Equal(t, http.StatusCreated, created.Code)

	var binding map[string]string
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &binding))
	assert.Equal(t, "Staff", binding["position"])
	assert.NotEmpty(t, binding["id"])

	listed := ts.do(t, http.MethodGet, "/positions/host", "")
	require.Equal(t, http.StatusOK, listed.Code)
	var bindings []map[string]string
	require.NoError(t, json.Unmarshal(listed.Body.Bytes(), &bindings))
	assert.Len(t, bindings, 1)

	deleted := ts.do(t, http.MethodDelete, "/positions/bindings/"+binding["id"], "")
	assert.Equal(t, http.StatusOK, deleted.Code)

	missing := ts.do(t, http.MethodDelete, "/positions/bindings/"+binding["id"], "")
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestCreateBindingRejectsUndeclaredPosition(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/positions/host", `{"position":"Ghost","roleId":"r1"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCreateBindingValidation(t *testing.T) {
	ts := newTestServer(t)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/positions/host", `{`).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/positions/host", `{"position":"Staff"}`).Code)
}

func TestAdminReload(t *testing.T) {
	ts := newTestServer(t)

	reloaded := false
	ts.caches.Register("records", func(ctx context.Context) error {
		reloaded = true
		return nil
	}, nil)

	rec := ts.do(t, http.MethodPost, "/admin/reload", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, reloaded)
}

func TestRequestIDPropagation(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/healthz", "")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
