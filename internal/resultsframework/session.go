package resultsframework

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"trackhub/internal/gateway"
	"trackhub/internal/model"
	"trackhub/pkg/logger"
)

// ErrNotLoaded is returned by Apply and Save before a successful Load.
var ErrNotLoaded = errors.New("results framework not loaded")

// Op is one edit, typically a closure over one of the package operations.
type Op func(model.ResultsFramework) (model.ResultsFramework, error)

// Session edits one project's results framework. Edits stay local until Save,
// which replaces the stored blob wholesale: the last Save wins.
type Session struct {
	projectID string
	gateway   gateway.Gateway
	logger    *zap.Logger

	mu     sync.Mutex
	tree   model.ResultsFramework
	loaded bool
	dirty  bool
	expand *ExpandState
}

func NewSession(projectID string, gw gateway.Gateway, logger *zap.Logger) *Session {
	return &Session{
		projectID: projectID,
		gateway:   gw,
		logger:    logger,
		expand:    NewExpandState(),
	}
}

// Load fetches the stored tree, replacing any local edits, and resets the
// expand state.
func (s *Session) Load(ctx context.Context) error {
	project, err := s.gateway.GetProject(ctx, s.projectID)
	if err != nil {
		return fmt.Errorf("get project %s: %w", s.projectID, err)
	}
	if err := Validate(project.Metadata.ResultsFramework); err != nil {
		logger.WithTrace(ctx, s.logger).Warn("Stored results framework has invalid ids",
			zap.String("project_id", s.projectID),
			zap.Error(err),
		)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree = Clone(project.Metadata.ResultsFramework)
	s.loaded = true
	s.dirty = false
	s.expand.Reset()
	return nil
}

// Apply runs op against the current tree. On error the tree is unchanged.
func (s *Session) Apply(op Op) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return ErrNotLoaded
	}
	next, err := op(s.tree)
	if err != nil {
		return err
	}
	s.tree = next
	s.dirty = true
	return nil
}

// Save writes the whole tree. A failed Save leaves the session dirty so the
// caller can retry.
func (s *Session) Save(ctx context.Context) error {
	s.mu.Lock()
	if !s.loaded {
		s.mu.Unlock()
		return ErrNotLoaded
	}
	snapshot := Clone(s.tree)
	s.mu.Unlock()

	log := logger.WithTrace(ctx, s.logger).With(zap.String("project_id", s.projectID))
	if err := Validate(snapshot); err != nil {
		return fmt.Errorf("validate results framework: %w", err)
	}

	if _, err := s.gateway.UpdateProjectResultsFramework(ctx, s.projectID, snapshot); err != nil {
		log.Warn("Results framework save failed", zap.Error(err))
		return fmt.Errorf("save results framework: %w", err)
	}

	s.mu.Lock()
	// Edits applied while the write was in flight keep the session dirty.
	s.dirty = s.dirtySince(snapshot)
	s.mu.Unlock()

	log.Info("Results framework saved", zap.Any("nodes", Count(snapshot)))
	return nil
}

func (s *Session) dirtySince(saved model.ResultsFramework) bool {
	a, errA := Marshal(s.tree)
	b, errB := Marshal(saved)
	return errA != nil || errB != nil || string(a) != string(b)
}

// Tree returns a copy of the current local tree.
func (s *Session) Tree() model.ResultsFramework {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Clone(s.tree)
}

// Dirty reports whether there are edits not yet saved.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

func (s *Session) Expand() *ExpandState {
	return s.expand
}
