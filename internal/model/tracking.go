package model

import "time"

// Project owns a tracking tree and a results framework.
type Project struct {
	ID                   string          `json:"id"`
	OwnerID              string          `json:"ownerId"`
	Name                 string          `json:"name"`
	Description          string          `json:"description"`
	CompletionPercentage int             `json:"completionPercentage"`
	Metadata             ProjectMetadata `json:"metadata"`
	CreatedAt            time.Time       `json:"createdAt"`
	UpdatedAt            time.Time       `json:"updatedAt"`
}

// ProjectMetadata carries the opaque per-project blobs.
type ProjectMetadata struct {
	ResultsFramework ResultsFramework `json:"resultsFramework"`
}

type Milestone struct {
	ID             string     `json:"id"`
	ProjectID      string     `json:"projectId"`
	Name           string     `json:"name"`
	Description    string     `json:"description"`
	Status         Status     `json:"status"`
	Blocked        bool       `json:"blocked"`
	Progress       int        `json:"progress"`
	OrderIndex     int        `json:"orderIndex"`
	DueDate        *time.Time `json:"dueDate,omitempty"`
	EstimatedHours float64    `json:"estimatedHours"`
	ActualHours    float64    `json:"actualHours"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
	Modules        []Module   `json:"modules,omitempty"`
}

type Module struct {
	ID             string    `json:"id"`
	MilestoneID    string    `json:"milestoneId"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Status         Status    `json:"status"`
	Blocked        bool      `json:"blocked"`
	Progress       int       `json:"progress"`
	OrderIndex     int       `json:"orderIndex"`
	EstimatedHours float64   `json:"estimatedHours"`
	ActualHours    float64   `json:"actualHours"`
	Features       []Feature `json:"features,omitempty"`
}

type Feature struct {
	ID             string     `json:"id"`
	ModuleID       string     `json:"moduleId"`
	Name           string     `json:"name"`
	Description    string     `json:"description"`
	Status         Status     `json:"status"`
	Blocked        bool       `json:"blocked"`
	Priority       Priority   `json:"priority"`
	IsCompleted    bool       `json:"isCompleted"`
	OrderIndex     int        `json:"orderIndex"`
	EstimatedHours float64    `json:"estimatedHours"`
	ActualHours    float64    `json:"actualHours"`
	Notes          string     `json:"notes"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
}
