package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"trackhub/internal/model"
	"trackhub/pkg/circuitbreaker"
	"trackhub/pkg/trace"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestClientSendsTokenTraceAndQuery(t *testing.T) {
	var gotAuth, gotTrace, gotProject string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotTrace = r.Header.Get(trace.HeaderName())
		gotProject = r.URL.Query().Get("projectId")
		writeJSON(w, http.StatusOK, []model.Milestone{{ID: "ms-1", Progress: 40}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zap.NewNop(), WithToken("tok"))
	ctx := trace.WithContext(context.Background(), "trace-123")

	ms, err := c.ListMilestones(ctx, "p 1")
	require.NoError(t, err)
	require.Len(t, ms, 1)
	assert.Equal(t, 40, ms[0].Progress)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "trace-123", gotTrace)
	assert.Equal(t, "p 1", gotProject)
}

func TestClientPatchFeatureBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/features/f-1", r.URL.Path)
		var body map[string]bool
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeJSON(w, http.StatusOK, model.Feature{ID: "f-1", IsCompleted: body["isCompleted"]})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zap.NewNop())
	f, err := c.PatchFeature(context.Background(), "f-1", true)
	require.NoError(t, err)
	assert.True(t, f.IsCompleted)
}

func TestClientSetBlockedRoutesByKind(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		var body map[string]bool
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.True(t, body["blocked"])
		paths = append(paths, r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{"id": "x", "blocked": true})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zap.NewNop())
	ctx := context.Background()
	require.NoError(t, c.SetBlocked(ctx, model.KindFeature, "f-1", true))
	require.NoError(t, c.SetBlocked(ctx, model.KindModule, "mod-1", true))
	require.NoError(t, c.SetBlocked(ctx, model.KindMilestone, "ms-1", true))
	assert.Equal(t, []string{"/features/f-1", "/modules/mod-1", "/milestones/ms-1"}, paths)

	assert.Error(t, c.SetBlocked(ctx, model.NodeKind(0), "x", true))
	assert.Len(t, paths, 3)
}

func TestClientStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "project not found"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zap.NewNop())
	_, err := c.GetProject(context.Background(), "missing")

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.Contains(t, se.Body, "project not found")
	assert.True(t, IsNotFound(err))
	assert.False(t, IsRetryable(err))
}

func TestClientBreakerOpensOnServerErrorsOnly(t *testing.T) {
	var calls atomic.Int32
	status := atomic.Int32{}
	status.Store(http.StatusBadRequest)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, int(status.Load()), map[string]string{"error": "nope"})
	}))
	defer srv.Close()

	cfg := circuitbreaker.DefaultConfig()
	cfg.FailureThreshold = 2
	cfg.IsFailure = IsRetryable
	c := NewClient(srv.URL, zap.NewNop(), WithBreaker(circuitbreaker.NewCircuitBreaker(cfg)))

	for i := 0; i < 3; i++ {
		_, err := c.ListProjects(context.Background())
		require.Error(t, err)
	}
	assert.Equal(t, int32(3), calls.Load(), "4xx must not trip the breaker")

	status.Store(http.StatusInternalServerError)
	for i := 0; i < 2; i++ {
		_, err := c.ListProjects(context.Background())
		require.Error(t, err)
		assert.True(t, IsRetryable(err))
	}

	_, err := c.ListProjects(context.Background())
	assert.True(t, errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen))
	assert.True(t, IsRetryable(err))
	assert.Equal(t, int32(5), calls.Load())
}

func TestFetchTreeNestsChildren(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/milestones", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []model.Milestone{{ID: "ms-1"}, {ID: "ms-2"}})
	})
	mux.HandleFunc("/modules", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("milestoneId") == "ms-1" {
			writeJSON(w, http.StatusOK, []model.Module{{ID: "mod-1", MilestoneID: "ms-1"}})
			return
		}
		writeJSON(w, http.StatusOK, []model.Module{})
	})
	mux.HandleFunc("/features", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []model.Feature{{ID: "f-1", ModuleID: r.URL.Query().Get("moduleId")}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(srv.URL, zap.NewNop())
	tree, err := c.FetchTree(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, tree, 2)
	require.Len(t, tree[0].Modules, 1)
	require.Len(t, tree[0].Modules[0].Features, 1)
	assert.Equal(t, "mod-1", tree[0].Modules[0].Features[0].ModuleID)
	assert.Empty(t, tree[1].Modules)
}

func TestFetchTreeFailsWhenAnyListFails(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/milestones", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []model.Milestone{{ID: "ms-1"}})
	})
	mux.HandleFunc("/modules", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "upstream"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(srv.URL, zap.NewNop())
	_, err := c.FetchTree(context.Background(), "p1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ms-1")
}
