package models

// DataSource tells a caller whether an analytics view was computed from
// stored records or is a fixed placeholder.
type DataSource string

const (
	SourceLive        DataSource = "live"
	SourcePlaceholder DataSource = "placeholder"
	SourceDemo        DataSource = "demo"
)

// FallbackReason explains why a demo payload was served
type FallbackReason string

const (
	ReasonNone    FallbackReason = ""
	ReasonAbsent  FallbackReason = "absent"
	ReasonCorrupt FallbackReason = "corrupt"
	ReasonFailure FallbackReason = "failure"
)

// ComplianceScore summarizes implementation, testing and pass rates.
// Message is only set on demo payloads.
type ComplianceScore struct {
	OverallScore        float64 `json:"overall_score"`
	ImplementationScore float64 `json:"implementation_score"`
	TestingScore        float64 `json:"testing_score"`
	TotalControls       int     `json:"total_controls"`
	ImplementedControls int     `json:"implemented_controls"`
	TestedControls      int     `json:"tested_controls"`
	PassedControls      int     `json:"passed_controls"`
	Message             string  `json:"message,omitempty"`
}

// Gap is a control that is not implemented or not verified as passing
type Gap struct {
	Framework   string `json:"framework"`
	ControlName string `json:"control_name"`
	Description string `json:"description"`
	RiskLevel   string `json:"risk_level"`
	Status      string `json:"status"`
	TestResult  string `json:"test_result"`
}

// RiskAssessment buckets controls by risk level
type RiskAssessment struct {
	RiskCounts      map[RiskLevel]int     `json:"risk_counts"`
	RiskPercentages map[RiskLevel]float64 `json:"risk_percentages"`
	TotalAssessed   int                   `json:"total_assessed"`
	Message         string                `json:"message,omitempty"`
}

// MonthBucket counts controls created in one calendar month
type MonthBucket struct {
	Total       int `json:"total"`
	Implemented int `json:"implemented"`
}

// ImplementationTimeline groups controls by creation month. Months,
// Totals and Implemented are parallel lists in ascending month order.
type ImplementationTimeline struct {
	Timeline    map[string]MonthBucket `json:"timeline"`
	Months      []string               `json:"months"`
	Totals      []int                  `json:"totals"`
	Implemented []int                  `json:"implemented"`
	Message     string                 `json:"message,omitempty"`
}

// TrendSeries is an illustrative score history
type TrendSeries struct {
	Labels []string `json:"labels"`
	Scores []int    `json:"scores"`
}

// FrameworkBreakdown reports implementation rate per framework
type FrameworkBreakdown struct {
	FrameworkScores    map[string]float64 `json:"framework_scores"`
	InProgressControls int                `json:"in_progress_controls"`
	NotStartedControls int                `json:"not_started_controls"`
	Message            string             `json:"message,omitempty"`
}
