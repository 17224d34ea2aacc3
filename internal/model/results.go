package model

// ResultsFramework is the planning/M&E tree of a project. It is stored as a
// single JSON value under Project.Metadata.
type ResultsFramework struct {
	Objectives []Objective `json:"objectives"`
}

type Objective struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Outcomes    []Outcome `json:"outcomes"`
}

type Outcome struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Indicators  []Indicator `json:"indicators"`
	Outputs     []Output    `json:"outputs"`
}

type Output struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Indicators  []Indicator `json:"indicators"`
}

type Baseline struct {
	Value string `json:"value"`
	Unit  string `json:"unit"`
}

// Targets holds the three yearly targets of an indicator.
type Targets struct {
	Year1 string `json:"year1"`
	Year2 string `json:"year2"`
	Year3 string `json:"year3"`
}

type Indicator struct {
	ID               string   `json:"id"`
	Description      string   `json:"description"`
	Baseline         Baseline `json:"baseline"`
	MonitoringMethod string   `json:"monitoringMethod"`
	Targets          Targets  `json:"targets"`
	TargetUnit       string   `json:"targetUnit"`
	Frequency        string   `json:"frequency"`
	DataSource       string   `json:"dataSource"`
	Disaggregation   []string `json:"disaggregation"`
	Comments         string   `json:"comments"`
}
