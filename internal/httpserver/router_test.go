package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"trackhub/internal/handler"
	"trackhub/internal/model"
	"trackhub/pkg/rbac"
	"trackhub/pkg/trace"
	"trackhub/pkg/util"
)

const secret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type stubProjects struct{}

func (stubProjects) ListProjects(context.Context) ([]model.Project, error) {
	return []model.Project{{ID: "p-1"}}, nil
}
func (stubProjects) GetProject(_ context.Context, id string) (*model.Project, error) {
	return &model.Project{ID: id}, nil
}
func (stubProjects) CreateProject(_ context.Context, owner, name, desc string) (*model.Project, error) {
	return &model.Project{ID: "p-2", OwnerID: owner, Name: name, Description: desc}, nil
}
func (stubProjects) UpdateResultsFramework(_ context.Context, id string, rf model.ResultsFramework) (*model.Project, error) {
	return &model.Project{ID: id}, nil
}
func (stubProjects) Completion(context.Context, string) (int, error) { return 10, nil }

type stubTracking struct{}

func (stubTracking) ListMilestones(context.Context, string) ([]model.Milestone, error) {
	return nil, nil
}
func (stubTracking) ListModules(context.Context, string) ([]model.Module, error) { return nil, nil }
func (stubTracking) ListFeatures(context.Context, string) ([]model.Feature, error) {
	return nil, nil
}
func (stubTracking) ToggleFeature(_ context.Context, id string, done bool, _ string) (*model.Feature, error) {
	return &model.Feature{ID: id, IsCompleted: done}, nil
}
func (stubTracking) SetFeatureBlocked(_ context.Context, id string, blocked bool, _ string) (*model.Feature, error) {
	return &model.Feature{ID: id, Blocked: blocked}, nil
}
func (stubTracking) SetModuleBlocked(_ context.Context, id string, blocked bool, _ string) (*model.Module, error) {
	return &model.Module{ID: id, Blocked: blocked}, nil
}
func (stubTracking) SetMilestoneBlocked(_ context.Context, id string, blocked bool, _ string) (*model.Milestone, error) {
	return &model.Milestone{ID: id, Blocked: blocked}, nil
}
func (stubTracking) RecomputeModule(_ context.Context, id string) (*model.Module, error) {
	return &model.Module{ID: id}, nil
}
func (stubTracking) RecomputeMilestone(_ context.Context, id string) (*model.Milestone, error) {
	return &model.Milestone{ID: id}, nil
}

type stubReplayer struct{}

func (stubReplayer) ReplayEvent(context.Context, int64) error           { return nil }
func (stubReplayer) ReplayFailedEvents(context.Context, int) (int, error) { return 0, nil }

func newTestRouter(db Pinger) *Router {
	log := zap.NewNop()
	return NewRouter(Handlers{
		Projects: handler.NewProjectHandler(stubProjects{}, log),
		Tracking: handler.NewTrackingHandler(stubTracking{}, log),
		Admin:    handler.NewAdminHandler(stubReplayer{}, log),
	}, secret, db, log)
}

func token(t *testing.T, role string) string {
	t.Helper()
	tok, err := util.GenerateJWT("u-1", role, secret, time.Hour)
	require.NoError(t, err)
	return tok
}

func do(r *Router, method, path, tok, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, req)
	return w
}

func TestHealthAndReadiness(t *testing.T) {
	r := newTestRouter(pinger{})
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/healthz", "", "").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/readyz", "", "").Code)

	down := newTestRouter(pinger{err: errors.New("refused")})
	w := do(down, http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "db_not_ready")
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestRouter(pinger{})
	w := do(r, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthRequired(t *testing.T) {
	r := newTestRouter(pinger{})

	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/projects", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/projects", "garbage", "").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/projects", token(t, rbac.RoleViewer), "").Code)
}

func TestPermissionsByRole(t *testing.T) {
	r := newTestRouter(pinger{})
	viewer := token(t, rbac.RoleViewer)
	user := token(t, rbac.RoleUser)
	admin := token(t, rbac.RoleAdmin)

	assert.Equal(t, http.StatusForbidden, do(r, http.MethodPatch, "/features/f-1", viewer, `{"isCompleted":true}`).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodPatch, "/features/f-1", user, `{"isCompleted":true}`).Code)

	assert.Equal(t, http.StatusForbidden, do(r, http.MethodPatch, "/modules/m-1", viewer, `{"blocked":true}`).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodPatch, "/modules/m-1", user, `{"blocked":true}`).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodPatch, "/milestones/ms-1", admin, `{"blocked":false}`).Code)

	assert.Equal(t, http.StatusForbidden, do(r, http.MethodPost, "/admin/outbox/replay-failed", user, "").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/admin/outbox/replay-failed", admin, "").Code)

	// unknown roles fall back to viewer
	odd := token(t, "superuser")
	assert.Equal(t, http.StatusForbidden, do(r, http.MethodPost, "/modules/m-1/recompute-progress", odd, "").Code)
}

func TestTraceHeaderEchoed(t *testing.T) {
	r := newTestRouter(pinger{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(trace.HeaderName(), "abc123")
	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, req)
	assert.Equal(t, "abc123", w.Header().Get(trace.HeaderName()))

	w = do(r, http.MethodGet, "/healthz", "", "")
	assert.Len(t, w.Header().Get(trace.HeaderName()), 32)
}

func TestServerRunStopsOnCancel(t *testing.T) {
	srv := NewServer("127.0.0.1:0", http.NotFoundHandler(), time.Second, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}
