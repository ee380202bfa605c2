package models

import (
	"encoding/json"
	"fmt"
)

// Assessment defaults applied at creation time
const (
	DefaultAssessmentName      = "New Assessment"
	DefaultAssessmentFramework = "SOC 2"
)

// AssessmentRecord is a named collection of controls under one framework
type AssessmentRecord struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	Framework      string          `json:"framework"`
	Infrastructure []string        `json:"infrastructure"`
	Controls       []ControlRecord `json:"controls"`
	CreatedAt      string          `json:"created_at"`

	hasFramework bool
}

// UnmarshalJSON decodes an assessment leniently. Controls that are not
// JSON objects are dropped; everything else is defaulted.
func (a *AssessmentRecord) UnmarshalJSON(data []byte) error {
	fields, err := decodeObject(data)
	if err != nil {
		return fmt.Errorf("assessment: %w", err)
	}

	*a = AssessmentRecord{
		ID:             intField(fields, "id"),
		Name:           stringField(fields, "name"),
		Framework:      stringField(fields, "framework"),
		Infrastructure: stringSliceField(fields, "infrastructure"),
		CreatedAt:      stringField(fields, "created_at"),
		Controls:       []ControlRecord{},
	}
	_, a.hasFramework = fields["framework"]

	raw, ok := fields["controls"].([]any)
	if !ok {
		return nil
	}
	for _, item := range raw {
		if _, isObject := item.(map[string]any); !isObject {
			continue
		}
		encoded, err := json.Marshal(item)
		if err != nil {
			continue
		}
		var control ControlRecord
		if err := json.Unmarshal(encoded, &control); err != nil {
			continue
		}
		a.Controls = append(a.Controls, control)
	}
	return nil
}

// NewAssessmentRequest is the body accepted when creating an assessment
type NewAssessmentRequest struct {
	Name           string          `json:"name"`
	Framework      string          `json:"framework"`
	Infrastructure []string        `json:"infrastructure"`
	Controls       []ControlRecord `json:"controls"`
}

// FlatControl is a control tagged with the framework it is assessed under.
// The analytics engine works exclusively on sequences of these.
type FlatControl struct {
	Framework string
	Control   ControlRecord

	hasFramework bool
}

// FrameworkOr returns the framework, or def when it is empty and the
// source record never named one.
func (fc FlatControl) FrameworkOr(def string) string {
	if fc.Framework != "" || fc.hasFramework {
		return fc.Framework
	}
	return def
}

// FlattenAssessments concatenates every assessment's controls in
// encounter order, tagging each with its assessment's framework.
func FlattenAssessments(assessments []AssessmentRecord) []FlatControl {
	var n int
	for _, a := range assessments {
		n += len(a.Controls)
	}
	out := make([]FlatControl, 0, n)
	for _, a := range assessments {
		for _, c := range a.Controls {
			out = append(out, FlatControl{Framework: a.Framework, Control: c, hasFramework: a.hasFramework})
		}
	}
	return out
}

// FlattenControls tags standalone controls with their own framework field
func FlattenControls(controls []ControlRecord) []FlatControl {
	out := make([]FlatControl, 0, len(controls))
	for _, c := range controls {
		out = append(out, FlatControl{Framework: c.Framework, Control: c, hasFramework: c.Has("framework")})
	}
	return out
}
