package overview

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"trackhub/internal/gateway"
	"trackhub/pkg/logger"
)

// State is the page-level load state of the overview.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateLoaded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// LoadError is the page-level failure shown with a retry action.
type LoadError struct {
	Cause     error
	Retryable bool
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load overview: %v", e.Cause)
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// Loader runs the whole overview load sequence: list the projects, then fan
// out over them. There is no automatic retry; callers invoke Retry.
type Loader struct {
	gateway    gateway.Gateway
	aggregator *Aggregator
	logger     *zap.Logger

	mu       sync.Mutex
	state    State
	overview Overview
	err      error
}

func NewLoader(gw gateway.Gateway, aggregator *Aggregator, logger *zap.Logger) *Loader {
	return &Loader{gateway: gw, aggregator: aggregator, logger: logger}
}

// Load lists the projects and builds the overview. Only a failure to list the
// projects fails the load; per-project failures are inside the Overview.
func (l *Loader) Load(ctx context.Context) (Overview, error) {
	l.setState(StateLoading, Overview{}, nil)

	projects, err := l.gateway.ListProjects(ctx)
	if err != nil {
		lerr := &LoadError{Cause: err, Retryable: gateway.IsRetryable(err)}
		logger.WithTrace(ctx, l.logger).Error("Overview load failed",
			zap.Bool("retryable", lerr.Retryable),
			zap.Error(err),
		)
		l.setState(StateFailed, Overview{}, lerr)
		return Overview{}, lerr
	}

	ov := l.aggregator.Build(ctx, projects)
	l.setState(StateLoaded, ov, nil)
	return ov, nil
}

// Retry re-runs the whole load sequence.
func (l *Loader) Retry(ctx context.Context) (Overview, error) {
	return l.Load(ctx)
}

func (l *Loader) setState(s State, ov Overview, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = s
	l.overview = ov
	l.err = err
}

// Snapshot returns the current state with the last overview or error.
func (l *Loader) Snapshot() (State, Overview, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state, l.overview, l.err
}
