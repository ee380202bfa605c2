package models

import "fmt"

// Fixed payloads served when real data cannot be read. Callers tell them
// apart from live results by the presence of Message (or, for gap lists,
// the X-Data-Source response header).

func DemoScoreAbsent() ComplianceScore {
	return ComplianceScore{
		OverallScore:        75.0,
		ImplementationScore: 80.0,
		TestingScore:        65.0,
		TotalControls:       20,
		ImplementedControls: 16,
		TestedControls:      13,
		PassedControls:      15,
		Message:             "Using demo data - no assessments found",
	}
}

func DemoScoreCorrupt() ComplianceScore {
	return ComplianceScore{
		OverallScore:        70.0,
		ImplementationScore: 75.0,
		TestingScore:        60.0,
		TotalControls:       15,
		ImplementedControls: 11,
		TestedControls:      9,
		PassedControls:      10,
		Message:             "Using demo data - invalid JSON in assessments",
	}
}

// DemoScoreFailure is the last-resort payload for unexpected errors
func DemoScoreFailure(err error) ComplianceScore {
	return ComplianceScore{
		OverallScore:        65.0,
		ImplementationScore: 70.0,
		TestingScore:        55.0,
		TotalControls:       10,
		ImplementedControls: 7,
		TestedControls:      5,
		PassedControls:      6,
		Message:             fmt.Sprintf("Using demo data - error: %v", err),
	}
}

func DemoGapsAbsent() []Gap {
	return []Gap{
		{
			Framework:   "SOC 2",
			ControlName: "Access Management",
			Description: "Multi-factor authentication not implemented for admin accounts",
			RiskLevel:   "High",
			Status:      "not_started",
			TestResult:  "not_tested",
		},
		{
			Framework:   "HIPAA",
			ControlName: "Data Encryption",
			Description: "Encryption at rest not enabled for patient databases",
			RiskLevel:   "Medium",
			Status:      "in_progress",
			TestResult:  "fail",
		},
	}
}

func DemoGapsCorrupt() []Gap {
	return []Gap{
		{
			Framework:   "SOC 2",
			ControlName: "Data Protection",
			Description: "Data encryption controls need implementation",
			RiskLevel:   "High",
			Status:      "not_started",
			TestResult:  "not_tested",
		},
	}
}

func DemoGapsFailure() []Gap {
	return []Gap{
		{
			Framework:   "General",
			ControlName: "System Assessment",
			Description: "Compliance assessment needed",
			RiskLevel:   "Medium",
			Status:      "not_started",
			TestResult:  "not_tested",
		},
	}
}

// PlaceholderGap is shown when live data has no gaps and the
// placeholder policy is on.
func PlaceholderGap() Gap {
	return Gap{
		Framework:   "SOC 2",
		ControlName: "Sample Control - Security Monitoring",
		Description: "Security event monitoring not fully implemented",
		RiskLevel:   "Medium",
		Status:      "in_progress",
		TestResult:  "not_tested",
	}
}

// DemoTrends is the static six-month trend series
func DemoTrends() TrendSeries {
	return TrendSeries{
		Labels: []string{"Jan", "Feb", "Mar", "Apr", "May", "Jun"},
		Scores: []int{65, 70, 75, 80, 85, 88},
	}
}
