package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	mqcontracts "trackhub/contracts/mq"
	"trackhub/pkg/logger"
	"trackhub/pkg/mq"
	"trackhub/pkg/trace"
	"trackhub/pkg/util"
)

const (
	handlerName = "progress_recomputed"
	maxRetries  = 5
)

// CompletionRecomputer persists a project's completion from its stored milestones.
type CompletionRecomputer interface {
	RecomputeCompletion(ctx context.Context, projectID string) (int, error)
}

// OnceGuard drops duplicate deliveries.
type OnceGuard interface {
	AcquireOnce(ctx context.Context, handler string, key string) bool
	Release(ctx context.Context, handler string, key string)
}

// AttemptCounter counts delivery attempts per event.
type AttemptCounter interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

type ProgressRecomputedHandler struct {
	projects     CompletionRecomputer
	deduper      OnceGuard
	retryCounter AttemptCounter
	logger       *zap.Logger
}

func NewProgressRecomputedHandler(
	projects CompletionRecomputer,
	deduper OnceGuard,
	retryCounter AttemptCounter,
	logger *zap.Logger,
) *ProgressRecomputedHandler {
	return &ProgressRecomputedHandler{
		projects:     projects,
		deduper:      deduper,
		retryCounter: retryCounter,
		logger:       logger,
	}
}

// eventKey identifies one rollup event. A newer rollup of the same node has a
// different timestamp and is processed again.
func eventKey(p mqcontracts.ProgressRecomputedPayload) string {
	return fmt.Sprintf("%s:%s:%d", p.Level, p.NodeID, p.RecomputedAt.UnixNano())
}

// Handle 处理 progress.recomputed：重算项目完成度并使缓存失效
func (h *ProgressRecomputedHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p mqcontracts.ProgressRecomputedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Invalid ProgressRecomputedPayload, sending to DLQ",
			zap.String("raw", string(raw)),
			zap.Error(err),
		)
		return mq.DeadLetter(fmt.Errorf("bad_payload: %w", err))
	}
	if p.ProjectID == "" {
		return mq.DeadLetter(fmt.Errorf("bad_payload: missing project_id for %s %s", p.Level, p.NodeID))
	}

	if p.TraceID != "" && trace.FromContext(ctx) == "" {
		ctx = trace.WithContext(ctx, p.TraceID)
	}
	log := logger.WithTrace(ctx, h.logger).With(
		zap.String("project_id", p.ProjectID),
		zap.String("level", p.Level),
		zap.String("node_id", p.NodeID),
	)

	key := eventKey(p)
	// Redis 去重（避免并发重复消费）
	if !h.deduper.AcquireOnce(ctx, handlerName, key) {
		log.Info("Duplicated event, skip")
		return nil
	}

	retryKey := util.FormatRetryKey(handlerName, key)
	pct, err := h.projects.RecomputeCompletion(ctx, p.ProjectID)
	if err != nil {
		return h.handleError(ctx, log, err, key, retryKey)
	}

	_ = h.retryCounter.Reset(ctx, retryKey)
	log.Info("Project completion recomputed", zap.Int("completion", pct))
	return nil
}

func (h *ProgressRecomputedHandler) handleError(ctx context.Context, log *zap.Logger, err error, key, retryKey string) error {
	retryable, errType := util.IsRetryableError(err)
	if !retryable {
		// 不可重试：确认消息，不再投递
		log.Warn("Non-retryable error, dropping event",
			zap.String("error_type", errType),
			zap.Error(err),
		)
		return nil
	}

	retryCount, cErr := h.retryCounter.IncrementAndGet(ctx, retryKey)
	if cErr != nil {
		log.Warn("Retry counter unavailable", zap.Error(cErr))
	}
	if !util.ShouldRetry(retryCount, maxRetries, true) {
		log.Error("Retries exhausted, sending to DLQ",
			zap.Int64("retry", retryCount),
			zap.String("error_type", errType),
			zap.Error(err),
		)
		return mq.DeadLetter(err)
	}

	// 释放去重锁，让重新投递的消息可以再次处理
	h.deduper.Release(ctx, handlerName, key)
	log.Warn("Retryable error, requeueing",
		zap.Int64("retry", retryCount),
		zap.String("error_type", errType),
		zap.Error(err),
	)
	return fmt.Errorf("recompute completion of %s: %w", key, err)
}
