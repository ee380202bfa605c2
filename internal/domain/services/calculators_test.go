package services

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compliance-lab/internal/domain/models"
)

func flat(framework string, controls ...models.ControlRecord) []models.FlatControl {
	out := make([]models.FlatControl, 0, len(controls))
	for _, c := range controls {
		out = append(out, models.FlatControl{Framework: framework, Control: c})
	}
	return out
}

func TestCalculateScore(t *testing.T) {
	t.Run("empty input is all zeros", func(t *testing.T) {
		for _, input := range [][]models.FlatControl{nil, {}} {
			score := CalculateScore(input)
			assert.Equal(t, models.ComplianceScore{}, score)
		}
	})

	t.Run("mixed statuses and results", func(t *testing.T) {
		controls := flat("SOC 2",
			models.ControlRecord{Status: "implemented", TestStatus: "tested", TestResult: "pass"},
			models.ControlRecord{Status: "implemented", TestStatus: "tested", TestResult: "fail"},
			models.ControlRecord{Status: "in_progress", TestResult: "not_tested"},
			models.ControlRecord{Status: "not_started", TestResult: "not_tested"},
		)

		score := CalculateScore(controls)
		assert.Equal(t, 4, score.TotalControls)
		assert.Equal(t, 2, score.ImplementedControls)
		assert.Equal(t, 2, score.TestedControls)
		assert.Equal(t, 1, score.PassedControls)
		assert.Equal(t, 50.0, score.ImplementationScore)
		assert.Equal(t, 50.0, score.TestingScore)
		assert.Equal(t, 25.0, score.OverallScore)
		assert.Empty(t, score.Message)
	})

	t.Run("comparisons ignore case", func(t *testing.T) {
		score := CalculateScore(flat("SOC 2",
			models.ControlRecord{Status: "IMPLEMENTED", TestStatus: "Tested", TestResult: "Pass"},
		))
		assert.Equal(t, 100.0, score.OverallScore)
		assert.Equal(t, 100.0, score.ImplementationScore)
		assert.Equal(t, 100.0, score.TestingScore)
	})

	t.Run("passed does not count as pass", func(t *testing.T) {
		score := CalculateScore(flat("SOC 2", models.ControlRecord{Status: "implemented", TestResult: "passed"}))
		assert.Equal(t, 0, score.PassedControls)
	})

	t.Run("rounds to one decimal", func(t *testing.T) {
		score := CalculateScore(flat("SOC 2",
			models.ControlRecord{Status: "implemented"},
			models.ControlRecord{},
			models.ControlRecord{},
		))
		assert.Equal(t, 33.3, score.ImplementationScore)
	})
}

func TestCalculateScore_Bounds(t *testing.T) {
	statuses := []string{"implemented", "in_progress", "not_started", "bogus", ""}
	results := []string{"pass", "fail", "not_tested", "passed", ""}
	tested := []string{"tested", "not_tested", ""}

	for n := 1; n <= 12; n++ {
		controls := make([]models.FlatControl, 0, n)
		for i := 0; i < n; i++ {
			controls = append(controls, models.FlatControl{Control: models.ControlRecord{
				Status:     statuses[(i*7+n)%len(statuses)],
				TestResult: results[(i*3+n)%len(results)],
				TestStatus: tested[(i+n)%len(tested)],
			}})
		}

		score := CalculateScore(controls)
		for _, v := range []float64{score.OverallScore, score.ImplementationScore, score.TestingScore} {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 100.0)
		}
	}
}

func TestFindGaps(t *testing.T) {
	t.Run("implemented and passing controls are never gaps", func(t *testing.T) {
		controls := flat("SOC 2",
			models.ControlRecord{Name: "ok-pass", Status: "implemented", TestResult: "pass"},
			models.ControlRecord{Name: "ok-passed", Status: "Implemented", TestResult: "PASSED"},
			models.ControlRecord{Name: "gap", Status: "in_progress", TestResult: "pass"},
		)

		gaps := FindGaps(controls, MaxGaps)
		require.Len(t, gaps, 1)
		assert.Equal(t, "gap", gaps[0].ControlName)
	})

	t.Run("implemented but failing is a gap with raw values", func(t *testing.T) {
		gaps := FindGaps(flat("HIPAA", models.ControlRecord{Name: "Encryption", Status: "Implemented", TestResult: "fail", RiskLevel: "High"}), MaxGaps)
		require.Len(t, gaps, 1)
		assert.Equal(t, models.Gap{
			Framework:   "HIPAA",
			ControlName: "Encryption",
			Description: "No description available",
			RiskLevel:   "High",
			Status:      "Implemented",
			TestResult:  "fail",
		}, gaps[0])
	})

	t.Run("missing fields get defaults", func(t *testing.T) {
		gaps := FindGaps([]models.FlatControl{{Control: models.ControlRecord{}}}, MaxGaps)
		require.Len(t, gaps, 1)
		assert.Equal(t, models.Gap{
			Framework:   "Unknown Framework",
			ControlName: "Unknown Control",
			Description: "No description available",
			RiskLevel:   "Medium",
			Status:      "not_started",
			TestResult:  "not_tested",
		}, gaps[0])
	})

	t.Run("explicitly empty fields are kept", func(t *testing.T) {
		var assessments []models.AssessmentRecord
		require.NoError(t, json.Unmarshal([]byte(`[{"framework":"","controls":[
			{"name":"","description":"","status":"","test_result":"","risk_level":""},
			{"description":"Rotate keys"}
		]}]`), &assessments))

		gaps := FindGaps(models.FlattenAssessments(assessments), MaxGaps)
		require.Len(t, gaps, 2)
		assert.Equal(t, models.Gap{}, gaps[0])
		assert.Equal(t, models.Gap{
			Framework:   "",
			ControlName: "Unknown Control",
			Description: "Rotate keys",
			RiskLevel:   "Medium",
			Status:      "not_started",
			TestResult:  "not_tested",
		}, gaps[1])
	})

	t.Run("truncates to the limit in encounter order", func(t *testing.T) {
		var controls []models.FlatControl
		for i := 0; i < 25; i++ {
			controls = append(controls, models.FlatControl{
				Framework: "SOC 2",
				Control:   models.ControlRecord{Name: fmt.Sprintf("c%d", i), Status: "not_started"},
			})
		}

		gaps := FindGaps(controls, MaxGaps)
		require.Len(t, gaps, MaxGaps)
		assert.Equal(t, "c0", gaps[0].ControlName)
		assert.Equal(t, "c9", gaps[9].ControlName)
	})

	t.Run("no gaps is an empty list", func(t *testing.T) {
		gaps := FindGaps(flat("SOC 2", models.ControlRecord{Status: "implemented", TestResult: "pass"}), MaxGaps)
		assert.NotNil(t, gaps)
		assert.Empty(t, gaps)
	})
}

func TestDistributeRisk(t *testing.T) {
	t.Run("two high one medium", func(t *testing.T) {
		ra := DistributeRisk(flat("SOC 2",
			models.ControlRecord{RiskLevel: "High"},
			models.ControlRecord{RiskLevel: "High"},
			models.ControlRecord{RiskLevel: "Medium"},
		))

		assert.Equal(t, 3, ra.TotalAssessed)
		assert.Equal(t, map[models.RiskLevel]int{models.RiskHigh: 2, models.RiskMedium: 1, models.RiskLow: 0}, ra.RiskCounts)
		assert.InDelta(t, 66.7, ra.RiskPercentages[models.RiskHigh], 0.1)
		assert.InDelta(t, 33.3, ra.RiskPercentages[models.RiskMedium], 0.1)
		assert.Equal(t, 0.0, ra.RiskPercentages[models.RiskLow])
	})

	t.Run("unknown and missing levels count as medium", func(t *testing.T) {
		ra := DistributeRisk(flat("SOC 2",
			models.ControlRecord{RiskLevel: "Critical"},
			models.ControlRecord{},
			models.ControlRecord{RiskLevel: "low"},
		))
		assert.Equal(t, 2, ra.RiskCounts[models.RiskMedium])
		assert.Equal(t, 1, ra.RiskCounts[models.RiskLow])
	})

	t.Run("percentages sum to about 100", func(t *testing.T) {
		levels := []string{"High", "Medium", "Low", "weird"}
		for n := 1; n <= 15; n++ {
			var controls []models.FlatControl
			for i := 0; i < n; i++ {
				controls = append(controls, models.FlatControl{Control: models.ControlRecord{RiskLevel: levels[(i*5+n)%len(levels)]}})
			}
			ra := DistributeRisk(controls)

			var sum float64
			for _, p := range ra.RiskPercentages {
				sum += p
			}
			assert.InDelta(t, 100.0, sum, 0.2, "n=%d", n)
		}
	})

	t.Run("empty input is all zeros", func(t *testing.T) {
		ra := DistributeRisk(nil)
		assert.Zero(t, ra.TotalAssessed)
		for _, level := range models.RiskLevels {
			assert.Equal(t, 0, ra.RiskCounts[level])
			assert.Equal(t, 0.0, ra.RiskPercentages[level])
		}
	})
}

func TestParseCreatedDate(t *testing.T) {
	tests := []struct {
		in    string
		ok    bool
		month string
	}{
		{"2024-03-15T10:20:30Z", true, "2024-03"},
		{"2024-03-31T23:30:00-05:00", true, "2024-03"},
		{"2024-03-15T10:20:30.123456", true, "2024-03"},
		{"2024-03-15T10:20:30", true, "2024-03"},
		{"2024-03-15 10:20:30", true, "2024-03"},
		{"2024-03-15", true, "2024-03"},
		{"15/03/2024", false, ""},
		{"yesterday", false, ""},
		{"", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			ts, ok := ParseCreatedDate(tt.in)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.month, ts.Format("2006-01"))
			}
		})
	}
}

func TestBucketTimeline(t *testing.T) {
	t.Run("same month shares a bucket and bad dates are skipped", func(t *testing.T) {
		tl := BucketTimeline(flat("SOC 2",
			models.ControlRecord{CreatedDate: "2024-02-01T00:00:00Z", Status: "implemented"},
			models.ControlRecord{CreatedDate: "2024-02-28", Status: "in_progress"},
			models.ControlRecord{CreatedDate: "not a date", Status: "implemented"},
			models.ControlRecord{Status: "implemented"},
			models.ControlRecord{CreatedDate: "2023-12-10 08:00:00", Status: "implemented"},
		))

		assert.Equal(t, map[string]models.MonthBucket{
			"2023-12": {Total: 1, Implemented: 1},
			"2024-02": {Total: 2, Implemented: 1},
		}, tl.Timeline)
		assert.Equal(t, []string{"2023-12", "2024-02"}, tl.Months)
		assert.Equal(t, []int{1, 2}, tl.Totals)
		assert.Equal(t, []int{1, 1}, tl.Implemented)
	})

	t.Run("empty input has empty lists", func(t *testing.T) {
		tl := BucketTimeline(nil)
		assert.Empty(t, tl.Timeline)
		assert.NotNil(t, tl.Months)
		assert.Empty(t, tl.Months)
	})
}

func TestFrameworkScores(t *testing.T) {
	controls := append(
		flat("SOC 2",
			models.ControlRecord{Status: "implemented"},
			models.ControlRecord{Status: "in_progress"},
		),
		flat("HIPAA",
			models.ControlRecord{Status: "not_started"},
			models.ControlRecord{Status: "not_started"},
			models.ControlRecord{Status: "implemented"},
		)...,
	)

	fb := FrameworkScores(controls)
	assert.Equal(t, map[string]float64{"SOC 2": 50.0, "HIPAA": 33.3}, fb.FrameworkScores)
	assert.Equal(t, 1, fb.InProgressControls)
	assert.Equal(t, 2, fb.NotStartedControls)
}

func TestGenerateControls(t *testing.T) {
	t.Run("infrastructure specific controls come first", func(t *testing.T) {
		controls := GenerateControls(models.GenerateControlsRequest{
			Framework:      "HIPAA",
			Infrastructure: []string{"database", "firewall", "cloud"},
		})

		require.Len(t, controls, 5)
		names := make([]string, 0, len(controls))
		for _, c := range controls {
			names = append(names, c.Name)
		}
		assert.Equal(t, []string{
			"Firewall Configuration Management",
			"Cloud Security Monitoring",
			"Database Access Controls",
			"Security Awareness Training",
			"Incident Response Plan",
		}, names)

		assert.Equal(t, "HIPAA-1", controls[0].ID)
		assert.Equal(t, "HIPAA-5", controls[4].ID)
		assert.Equal(t, "automatic", controls[0].Type)
		assert.Equal(t, "High", controls[0].RiskLevel)
		assert.Equal(t, "Medium", controls[2].RiskLevel)
		assert.Equal(t, "manual", controls[3].Type)
	})

	t.Run("every control starts untested and failing", func(t *testing.T) {
		for _, c := range GenerateControls(models.GenerateControlsRequest{Framework: "SOC 2", Infrastructure: []string{"cloud"}}) {
			assert.Equal(t, "not_started", c.Status)
			assert.Equal(t, "not_tested", c.TestStatus)
			assert.Equal(t, "fail", c.TestResult)
			assert.Zero(t, c.Progress)
		}
	})

	t.Run("baseline only with default framework", func(t *testing.T) {
		controls := GenerateControls(models.GenerateControlsRequest{})
		require.Len(t, controls, 2)
		assert.Equal(t, "SOC 2-1", controls[0].ID)
		assert.Equal(t, "Incident Response Plan", controls[1].Name)
	})
}
