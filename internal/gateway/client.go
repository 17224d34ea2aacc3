package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"trackhub/internal/model"
	"trackhub/pkg/circuitbreaker"
	"trackhub/pkg/metrics"
	"trackhub/pkg/trace"
)

const maxErrorBody = 512

// Client talks to the persistence service over HTTP.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	logger     *zap.Logger

	treeConcurrency int
}

type Option func(*Client)

// WithToken sets the bearer token sent on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithBreaker(cb *circuitbreaker.CircuitBreaker) Option {
	return func(c *Client) { c.breaker = cb }
}

// WithTreeConcurrency bounds the parallel list calls made by FetchTree.
func WithTreeConcurrency(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.treeConcurrency = n
		}
	}
}

func NewClient(baseURL string, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger:          logger,
		treeConcurrency: 4,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		cfg := circuitbreaker.DefaultConfig()
		// 4xx means the request was wrong, not that the service is down.
		cfg.IsFailure = IsRetryable
		cfg.OnStateChange = func(from, to circuitbreaker.State) {
			logger.Warn("Gateway circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		}
		c.breaker = circuitbreaker.NewCircuitBreaker(cfg)
	}
	return c
}

var _ Gateway = (*Client)(nil)

func (c *Client) ListProjects(ctx context.Context) ([]model.Project, error) {
	var out []model.Project
	err := c.do(ctx, http.MethodGet, "/projects", "/projects", nil, nil, &out)
	return out, err
}

func (c *Client) GetProject(ctx context.Context, projectID string) (model.Project, error) {
	var out model.Project
	err := c.do(ctx, http.MethodGet, "/projects/"+url.PathEscape(projectID), "/projects/:id", nil, nil, &out)
	return out, err
}

func (c *Client) UpdateProjectResultsFramework(ctx context.Context, projectID string, rf model.ResultsFramework) (model.Project, error) {
	body := map[string]any{
		"metadata": model.ProjectMetadata{ResultsFramework: rf},
	}
	var out model.Project
	err := c.do(ctx, http.MethodPut, "/projects/"+url.PathEscape(projectID), "/projects/:id", nil, body, &out)
	return out, err
}

func (c *Client) ListMilestones(ctx context.Context, projectID string) ([]model.Milestone, error) {
	var out []model.Milestone
	q := url.Values{"projectId": {projectID}}
	err := c.do(ctx, http.MethodGet, "/milestones", "/milestones", q, nil, &out)
	return out, err
}

func (c *Client) ListModules(ctx context.Context, milestoneID string) ([]model.Module, error) {
	var out []model.Module
	q := url.Values{"milestoneId": {milestoneID}}
	err := c.do(ctx, http.MethodGet, "/modules", "/modules", q, nil, &out)
	return out, err
}

func (c *Client) ListFeatures(ctx context.Context, moduleID string) ([]model.Feature, error) {
	var out []model.Feature
	q := url.Values{"moduleId": {moduleID}}
	err := c.do(ctx, http.MethodGet, "/features", "/features", q, nil, &out)
	return out, err
}

func (c *Client) PatchFeature(ctx context.Context, featureID string, completed bool) (model.Feature, error) {
	body := map[string]bool{"isCompleted": completed}
	var out model.Feature
	err := c.do(ctx, http.MethodPatch, "/features/"+url.PathEscape(featureID), "/features/:id", nil, body, &out)
	return out, err
}

func (c *Client) RecomputeModule(ctx context.Context, moduleID string) (model.Module, error) {
	var out model.Module
	path := "/modules/" + url.PathEscape(moduleID) + "/recompute-progress"
	err := c.do(ctx, http.MethodPost, path, "/modules/:id/recompute-progress", nil, nil, &out)
	return out, err
}

func (c *Client) RecomputeMilestone(ctx context.Context, milestoneID string) (model.Milestone, error) {
	var out model.Milestone
	path := "/milestones/" + url.PathEscape(milestoneID) + "/recompute-progress"
	err := c.do(ctx, http.MethodPost, path, "/milestones/:id/recompute-progress", nil, nil, &out)
	return out, err
}

func (c *Client) SetBlocked(ctx context.Context, kind model.NodeKind, nodeID string, blocked bool) error {
	var collection string
	switch kind {
	case model.KindFeature:
		collection = "/features/"
	case model.KindModule:
		collection = "/modules/"
	case model.KindMilestone:
		collection = "/milestones/"
	default:
		return fmt.Errorf("set blocked: unsupported node kind %s", kind)
	}
	body := map[string]bool{"blocked": blocked}
	return c.do(ctx, http.MethodPatch, collection+url.PathEscape(nodeID), collection+":id", nil, body, nil)
}

// FetchTree walks milestones, then modules, then features. Any failed list
// call fails the whole tree and cancels the calls still in flight.
func (c *Client) FetchTree(ctx context.Context, projectID string) ([]model.Milestone, error) {
	milestones, err := c.ListMilestones(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list milestones: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.treeConcurrency)

	for i := range milestones {
		ms := &milestones[i]
		g.Go(func() error {
			modules, err := c.ListModules(gctx, ms.ID)
			if err != nil {
				return fmt.Errorf("list modules of milestone %s: %w", ms.ID, err)
			}
			for j := range modules {
				features, err := c.ListFeatures(gctx, modules[j].ID)
				if err != nil {
					return fmt.Errorf("list features of module %s: %w", modules[j].ID, err)
				}
				modules[j].Features = features
			}
			ms.Modules = modules
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return milestones, nil
}

// do sends one request through the breaker. route is the path template used
// as the metrics label.
func (c *Client) do(ctx context.Context, method, path, route string, query url.Values, in, out any) error {
	ctx, traceID := trace.Ensure(ctx)
	log := c.logger.With(
		zap.String("trace_id", traceID),
		zap.String("method", method),
		zap.String("path", path),
	)

	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	start := time.Now()
	status := "error"
	err := c.breaker.Execute(func() error {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, body)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		req.Header.Set(trace.HeaderName(), traceID)
		otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		status = strconv.Itoa(resp.StatusCode)

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			return &StatusError{
				Method:     method,
				Path:       path,
				StatusCode: resp.StatusCode,
				Body:       strings.TrimSpace(string(raw)),
			}
		}
		if out == nil || resp.StatusCode == http.StatusNoContent {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s %s: %w", method, path, err)
		}
		return nil
	})
	metrics.RecordGatewayCall(method, route, status, time.Since(start))

	if err != nil {
		log.Warn("Gateway call failed",
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return err
	}
	log.Debug("Gateway call succeeded", zap.Duration("duration", time.Since(start)))
	return nil
}
