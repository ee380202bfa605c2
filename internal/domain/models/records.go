package models

import "time"

// Collection names understood by the record store
const (
	CollectionAssessments = "assessments"
	CollectionControls    = "controls"
	CollectionAuditPlans  = "audit_plans"
	CollectionReports     = "reports"
	CollectionEvidence    = "evidence"
)

// Collections lists every collection initialized at startup
var Collections = []string{
	CollectionAssessments,
	CollectionControls,
	CollectionAuditPlans,
	CollectionReports,
	CollectionEvidence,
}

// ReportRecord is the metadata saved for a requested export. Rendering
// the document itself happens elsewhere.
type ReportRecord struct {
	Format      string `json:"format"`
	Timestamp   string `json:"timestamp"`
	Status      string `json:"status"`
	DownloadURL string `json:"download_url"`
	Message     string `json:"message"`
}

// EvidenceStatus is the review state of an evidence item
type EvidenceStatus string

const (
	EvidencePendingReview EvidenceStatus = "pending_review"
	EvidenceApproved      EvidenceStatus = "approved"
	EvidenceRejected      EvidenceStatus = "rejected"
)

// Valid reports whether s is a known review state
func (s EvidenceStatus) Valid() bool {
	switch s {
	case EvidencePendingReview, EvidenceApproved, EvidenceRejected:
		return true
	}
	return false
}

// EvidenceRecord describes a file attached to a control
type EvidenceRecord struct {
	ID         string         `json:"id"`
	ControlID  string         `json:"control_id"`
	Filename   string         `json:"filename"`
	FilePath   string         `json:"file_path"`
	FileType   string         `json:"file_type"`
	UploadedBy string         `json:"uploaded_by"`
	UploadDate time.Time      `json:"upload_date"`
	Status     EvidenceStatus `json:"status"`
	ReviewDate *time.Time     `json:"review_date,omitempty"`
}

// NewEvidenceRequest is the body accepted when attaching evidence
type NewEvidenceRequest struct {
	ControlID  string `json:"control_id"`
	Filename   string `json:"filename"`
	FilePath   string `json:"file_path"`
	FileType   string `json:"file_type"`
	UploadedBy string `json:"uploaded_by"`
}

// EvidenceStats summarizes review progress
type EvidenceStats struct {
	TotalEvidence    int     `json:"total_evidence"`
	ApprovedEvidence int     `json:"approved_evidence"`
	PendingEvidence  int     `json:"pending_evidence"`
	ApprovalRate     float64 `json:"approval_rate"`
}

// GenerateControlsRequest selects the control template
type GenerateControlsRequest struct {
	Framework      string   `json:"framework"`
	Infrastructure []string `json:"infrastructure"`
}

// Frameworks maps each supported framework to its domains
var Frameworks = map[string][]string{
	"SOC 2":     {"Security", "Availability", "Processing Integrity", "Confidentiality", "Privacy"},
	"HIPAA":     {"Privacy Rule", "Security Rule", "Breach Notification"},
	"NIST CSF":  {"Identify", "Protect", "Detect", "Respond", "Recover"},
	"PCI DSS":   {"Build Secure Systems", "Protect Cardholder Data", "Vulnerability Management", "Access Control", "Monitoring", "Security Policies"},
	"ISO 27001": {"Context Establishment", "Leadership", "Planning", "Support", "Operation", "Performance Evaluation", "Improvement"},
}
