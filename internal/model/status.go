package model

import (
	"encoding/json"
	"fmt"
)

// Status is the lifecycle label of a tracking node.
type Status string

const (
	StatusNotStarted Status = "NOT_STARTED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusBlocked    Status = "BLOCKED"
)

// ParseStatus converts a wire string into a Status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusNotStarted, StatusInProgress, StatusCompleted, StatusBlocked:
		return st, nil
	case "":
		return StatusNotStarted, nil
	default:
		return "", fmt.Errorf("unknown status %q", s)
	}
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Priority ranks a feature.
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

// ParsePriority converts a wire string into a Priority. Empty means MEDIUM.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(s); p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return p, nil
	case "":
		return PriorityMedium, nil
	default:
		return "", fmt.Errorf("unknown priority %q", s)
	}
}

func (p *Priority) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParsePriority(raw)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// NodeKind names the level of a tracking node.
type NodeKind int

const (
	KindFeature NodeKind = iota + 1
	KindModule
	KindMilestone
)

func (k NodeKind) String() string {
	switch k {
	case KindFeature:
		return "feature"
	case KindModule:
		return "module"
	case KindMilestone:
		return "milestone"
	default:
		return "unknown"
	}
}

// ParseNodeKind parses the lowercase level name used in URLs and events.
func ParseNodeKind(s string) (NodeKind, error) {
	switch s {
	case "feature":
		return KindFeature, nil
	case "module":
		return KindModule, nil
	case "milestone":
		return KindMilestone, nil
	default:
		return 0, fmt.Errorf("unknown node kind %q", s)
	}
}
