package services

import (
	"math"
	"sort"
	"strings"
	"time"

	"compliance-lab/internal/domain/models"
)

// MaxGaps caps the gap analysis list
const MaxGaps = 10

// Defaults used when a gap entry's source field is absent
const (
	unknownFramework   = "Unknown Framework"
	unknownControl     = "Unknown Control"
	noDescription      = "No description available"
	defaultGapStatus   = string(models.ControlStatusNotStarted)
	defaultGapResult   = string(models.TestResultNotTested)
	defaultGapRiskText = string(models.RiskMedium)
)

// CalculateScore computes implementation, testing and pass rates over the
// flattened controls. An empty input yields all zeros.
func CalculateScore(controls []models.FlatControl) models.ComplianceScore {
	var score models.ComplianceScore

	for _, fc := range controls {
		score.TotalControls++
		if fc.Control.IsImplemented() {
			score.ImplementedControls++
		}
		if fc.Control.IsTested() {
			score.TestedControls++
		}
		if fc.Control.HasPassResult() {
			score.PassedControls++
		}
	}

	if score.TotalControls == 0 {
		return score
	}

	total := float64(score.TotalControls)
	score.ImplementationScore = round1(float64(score.ImplementedControls) / total * 100)
	score.TestingScore = round1(float64(score.TestedControls) / total * 100)
	score.OverallScore = round1(float64(score.PassedControls) / total * 100)
	return score
}

// FindGaps lists controls that are not implemented or whose last test did
// not pass, in encounter order, stopping after limit entries.
func FindGaps(controls []models.FlatControl, limit int) []models.Gap {
	if limit <= 0 {
		limit = MaxGaps
	}

	gaps := make([]models.Gap, 0, min(limit, len(controls)))
	for _, fc := range controls {
		if len(gaps) == limit {
			break
		}
		c := fc.Control
		if c.IsImplemented() && c.IsVerified() {
			continue
		}
		gaps = append(gaps, models.Gap{
			Framework:   fc.FrameworkOr(unknownFramework),
			ControlName: c.Field("name", c.Name, unknownControl),
			Description: c.Field("description", c.Description, noDescription),
			RiskLevel:   c.Field("risk_level", c.RiskLevel, defaultGapRiskText),
			Status:      c.Field("status", c.Status, defaultGapStatus),
			TestResult:  c.Field("test_result", c.TestResult, defaultGapResult),
		})
	}
	return gaps
}

// DistributeRisk counts controls per risk level. Unrecognized levels
// count as Medium.
func DistributeRisk(controls []models.FlatControl) models.RiskAssessment {
	ra := models.RiskAssessment{
		RiskCounts:      make(map[models.RiskLevel]int, len(models.RiskLevels)),
		RiskPercentages: make(map[models.RiskLevel]float64, len(models.RiskLevels)),
	}
	for _, level := range models.RiskLevels {
		ra.RiskCounts[level] = 0
		ra.RiskPercentages[level] = 0
	}

	for _, fc := range controls {
		ra.RiskCounts[fc.Control.Risk()]++
		ra.TotalAssessed++
	}

	if ra.TotalAssessed == 0 {
		return ra
	}
	for _, level := range models.RiskLevels {
		ra.RiskPercentages[level] = round1(float64(ra.RiskCounts[level]) / float64(ra.TotalAssessed) * 100)
	}
	return ra
}

// createdDateLayouts are tried in order. Parsing keeps the offset that was
// written so the month is the one in the text.
var createdDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseCreatedDate parses the timestamp formats producers are known to
// write. The second return is false when none matched.
func ParseCreatedDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range createdDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// BucketTimeline groups controls by the calendar month of created_date.
// Controls without a parseable date are left out.
func BucketTimeline(controls []models.FlatControl) models.ImplementationTimeline {
	tl := models.ImplementationTimeline{
		Timeline:    make(map[string]models.MonthBucket),
		Months:      []string{},
		Totals:      []int{},
		Implemented: []int{},
	}

	for _, fc := range controls {
		t, ok := ParseCreatedDate(fc.Control.CreatedDate)
		if !ok {
			continue
		}
		key := t.Format("2006-01")
		bucket := tl.Timeline[key]
		bucket.Total++
		if fc.Control.IsImplemented() {
			bucket.Implemented++
		}
		tl.Timeline[key] = bucket
	}

	for month := range tl.Timeline {
		tl.Months = append(tl.Months, month)
	}
	sort.Strings(tl.Months)
	for _, month := range tl.Months {
		tl.Totals = append(tl.Totals, tl.Timeline[month].Total)
		tl.Implemented = append(tl.Implemented, tl.Timeline[month].Implemented)
	}
	return tl
}

// FrameworkScores reports the implementation rate per framework along
// with in-progress and not-started totals.
func FrameworkScores(controls []models.FlatControl) models.FrameworkBreakdown {
	fb := models.FrameworkBreakdown{
		FrameworkScores: make(map[string]float64),
	}

	type tally struct{ total, implemented int }
	byFramework := make(map[string]*tally)

	for _, fc := range controls {
		name := orDefault(fc.Framework, unknownFramework)
		t, ok := byFramework[name]
		if !ok {
			t = &tally{}
			byFramework[name] = t
		}
		t.total++

		switch {
		case fc.Control.IsImplemented():
			t.implemented++
		case fc.Control.IsInProgress():
			fb.InProgressControls++
		case fc.Control.IsNotStarted():
			fb.NotStartedControls++
		}
	}

	for name, t := range byFramework {
		fb.FrameworkScores[name] = round1(float64(t.implemented) / float64(t.total) * 100)
	}
	return fb
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
