package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ControlStatus is the implementation state of a control
type ControlStatus string

const (
	ControlStatusNotStarted  ControlStatus = "not_started"
	ControlStatusInProgress  ControlStatus = "in_progress"
	ControlStatusImplemented ControlStatus = "implemented"
)

// TestStatus records whether a control has been tested
type TestStatus string

const (
	TestStatusNotTested TestStatus = "not_tested"
	TestStatusTested    TestStatus = "tested"
)

// TestResult is the outcome of the last control test
type TestResult string

const (
	TestResultPass      TestResult = "pass"
	TestResultPassed    TestResult = "passed"
	TestResultFail      TestResult = "fail"
	TestResultNotTested TestResult = "not_tested"
)

// RiskLevel is the inherent risk of a control
type RiskLevel string

const (
	RiskHigh   RiskLevel = "High"
	RiskMedium RiskLevel = "Medium"
	RiskLow    RiskLevel = "Low"
)

// RiskLevels lists the recognized levels in display order
var RiskLevels = []RiskLevel{RiskHigh, RiskMedium, RiskLow}

// ParseRiskLevel folds case and maps anything unrecognized to Medium
func ParseRiskLevel(s string) RiskLevel {
	switch normalize(s) {
	case "high":
		return RiskHigh
	case "low":
		return RiskLow
	default:
		return RiskMedium
	}
}

// ControlRecord is one compliance control instance.
// String fields hold the values as the producer wrote them; comparisons go
// through the Is* helpers, which normalize case and separators.
type ControlRecord struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name,omitempty"`
	Framework   string `json:"framework,omitempty"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type,omitempty"`
	Status      string `json:"status,omitempty"`
	TestStatus  string `json:"test_status,omitempty"`
	TestResult  string `json:"test_result,omitempty"`
	RiskLevel   string `json:"risk_level,omitempty"`
	CreatedDate string `json:"created_date,omitempty"`
	Progress    int    `json:"progress"`

	// keys present in the decoded object, including empty ones
	present fieldSet
}

type fieldSet uint8

const (
	fieldName fieldSet = 1 << iota
	fieldFramework
	fieldDescription
	fieldStatus
	fieldTestResult
	fieldRiskLevel
)

var trackedFields = map[string]fieldSet{
	"name":        fieldName,
	"framework":   fieldFramework,
	"description": fieldDescription,
	"status":      fieldStatus,
	"test_result": fieldTestResult,
	"risk_level":  fieldRiskLevel,
}

func presentFields(fields map[string]any) fieldSet {
	var set fieldSet
	for key, bit := range trackedFields {
		if _, ok := fields[key]; ok {
			set |= bit
		}
	}
	return set
}

// Has reports whether key appeared in the decoded JSON object, even with
// an empty value. Only name, framework, description, status, test_result
// and risk_level are tracked.
func (c ControlRecord) Has(key string) bool {
	bit, ok := trackedFields[key]
	return ok && c.present&bit != 0
}

// Field returns value unless it is empty and key was absent from the
// decoded object, in which case it returns def.
func (c ControlRecord) Field(key, value, def string) string {
	if value != "" || c.Has(key) {
		return value
	}
	return def
}

// IsImplemented reports whether status normalizes to "implemented"
func (c ControlRecord) IsImplemented() bool {
	return normalize(c.Status) == string(ControlStatusImplemented)
}

// IsInProgress reports whether status normalizes to "in_progress"
func (c ControlRecord) IsInProgress() bool {
	return normalize(c.Status) == string(ControlStatusInProgress)
}

// IsNotStarted reports whether status normalizes to "not_started"
func (c ControlRecord) IsNotStarted() bool {
	return normalize(c.Status) == string(ControlStatusNotStarted)
}

// IsTested reports whether test_status normalizes to "tested"
func (c ControlRecord) IsTested() bool {
	return normalize(c.TestStatus) == string(TestStatusTested)
}

// HasPassResult reports whether test_result is exactly "pass" (case-folded)
func (c ControlRecord) HasPassResult() bool {
	return normalize(c.TestResult) == string(TestResultPass)
}

// IsVerified accepts both "pass" and "passed"
func (c ControlRecord) IsVerified() bool {
	r := normalize(c.TestResult)
	return r == string(TestResultPass) || r == string(TestResultPassed)
}

// Risk returns the control's risk level with the Medium default applied
func (c ControlRecord) Risk() RiskLevel {
	return ParseRiskLevel(c.RiskLevel)
}

// UnmarshalJSON decodes a control leniently: any scalar is accepted for
// string fields and absent fields stay empty. Only a non-object fails.
func (c *ControlRecord) UnmarshalJSON(data []byte) error {
	fields, err := decodeObject(data)
	if err != nil {
		return fmt.Errorf("control: %w", err)
	}

	*c = ControlRecord{
		ID:          stringField(fields, "id"),
		Name:        stringField(fields, "name"),
		Framework:   stringField(fields, "framework"),
		Description: stringField(fields, "description"),
		Type:        stringField(fields, "type"),
		Status:      stringField(fields, "status"),
		TestStatus:  stringField(fields, "test_status"),
		TestResult:  stringField(fields, "test_result"),
		RiskLevel:   stringField(fields, "risk_level"),
		CreatedDate: stringField(fields, "created_date"),
		Progress:    int(intField(fields, "progress")),
		present:     presentFields(fields),
	}
	return nil
}

// MarshalJSON writes tracked keys that were decoded with an empty value,
// which omitempty would otherwise drop.
func (c ControlRecord) MarshalJSON() ([]byte, error) {
	type plain ControlRecord
	data, err := json.Marshal(plain(c))
	if err != nil || c.present == 0 {
		return data, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	added := false
	for key := range trackedFields {
		if _, ok := fields[key]; !ok && c.Has(key) {
			fields[key] = json.RawMessage(`""`)
			added = true
		}
	}
	if !added {
		return data, nil
	}
	return json.Marshal(fields)
}

// normalize folds case and treats spaces and hyphens as underscores,
// so "In Progress", "in-progress" and "IN_PROGRESS" compare equal.
func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}

func decodeObject(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, fmt.Errorf("expected a JSON object, got null")
	}
	return fields, nil
}

func stringField(fields map[string]any, key string) string {
	switch v := fields[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

func intField(fields map[string]any, key string) int64 {
	switch v := fields[key].(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		if f, err := v.Float64(); err == nil {
			return int64(f)
		}
	case string:
		var n int64
		if _, err := fmt.Sscanf(strings.TrimSpace(v), "%d", &n); err == nil {
			return n
		}
	}
	return 0
}

func stringSliceField(fields map[string]any, key string) []string {
	raw, ok := fields[key].([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
