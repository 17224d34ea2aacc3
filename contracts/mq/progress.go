package mq

import "time"

// Routing keys published through the outbox.
const (
	RoutingKeyFeatureToggled     = "feature.toggled"
	RoutingKeyProgressRecomputed = "progress.recomputed"
	RoutingKeyNodeBlocked        = "node.blocked"
)

// FeatureToggledPayload is emitted when a feature's completion flag is written.
type FeatureToggledPayload struct {
	FeatureID   string    `json:"feature_id"`
	ModuleID    string    `json:"module_id"`
	ProjectID   string    `json:"project_id"`
	IsCompleted bool      `json:"is_completed"`
	UserID      string    `json:"user_id,omitempty"`
	TraceID     string    `json:"trace_id,omitempty"`
	ToggledAt   time.Time `json:"toggled_at"`
}

// ProgressRecomputedPayload is emitted after a module or milestone rollup is
// persisted. Level is "module" or "milestone".
type ProgressRecomputedPayload struct {
	Level        string    `json:"level"`
	NodeID       string    `json:"node_id"`
	ProjectID    string    `json:"project_id"`
	Progress     int       `json:"progress"`
	Status       string    `json:"status"`
	TraceID      string    `json:"trace_id,omitempty"`
	RecomputedAt time.Time `json:"recomputed_at"`
}

// NodeBlockedPayload is emitted when the blocked flag of a feature, module or
// milestone is written.
type NodeBlockedPayload struct {
	Level     string    `json:"level"`
	NodeID    string    `json:"node_id"`
	ProjectID string    `json:"project_id"`
	Blocked   bool      `json:"blocked"`
	Status    string    `json:"status"`
	UserID    string    `json:"user_id,omitempty"`
	TraceID   string    `json:"trace_id,omitempty"`
	ChangedAt time.Time `json:"changed_at"`
}
