package models

import "time"

// InsuranceStatus is the coverage classification returned by the model
type InsuranceStatus string

const (
	// StatusLikelyCovered means the charge is usually paid by insurance
	StatusLikelyCovered InsuranceStatus = "LIKELY_COVERED"
	// StatusPartiallyCovered means insurance usually pays part of the charge
	StatusPartiallyCovered InsuranceStatus = "PARTIALLY_COVERED"
	// StatusNotCovered means the patient usually pays the charge
	StatusNotCovered InsuranceStatus = "NOT_COVERED"
)

// InsuranceStatuses lists every recognized status in display order
var InsuranceStatuses = []InsuranceStatus{StatusLikelyCovered, StatusPartiallyCovered, StatusNotCovered}

// ParseInsuranceStatus matches s exactly (case-sensitive) against the recognized statuses
func ParseInsuranceStatus(s string) (InsuranceStatus, bool) {
	for _, status := range InsuranceStatuses {
		if string(status) == s {
			return status, true
		}
	}
	return "", false
}

// Label returns the human-readable badge text for the status
func (s InsuranceStatus) Label() string {
	switch s {
	case StatusLikelyCovered:
		return "Likely Covered"
	case StatusPartiallyCovered:
		return "Partially Covered"
	case StatusNotCovered:
		return "Not Usually Covered"
	default:
		return "Unknown"
	}
}

// BillingExplanation is the validated record extracted from a model response
type BillingExplanation struct {
	Explanation     string          `json:"explanation"`
	InsuranceStatus InsuranceStatus `json:"insurance_status"`
	InsuranceNote   string          `json:"insurance_note"`
	Disclaimer      string          `json:"disclaimer"`
}

// BillItem is a single hospital bill line item
type BillItem struct {
	ID       int64   `json:"id" yaml:"id"`
	Name     string  `json:"name" yaml:"name"`
	Category string  `json:"category" yaml:"category"`
	Cost     float64 `json:"cost" yaml:"cost"`
}

// Language is the output language requested from the model
type Language string

const (
	LanguageEnglish Language = "English"
	LanguageHindi   Language = "Hindi"
	LanguageBengali Language = "Bengali"
)

// Languages lists the supported output languages
var Languages = []Language{LanguageEnglish, LanguageHindi, LanguageBengali}

// Preferences are the per-request presentation settings
type Preferences struct {
	Language   Language `json:"language"`
	FamilyMode bool     `json:"family_mode"`
}

// DefaultPreferences returns English with family-friendly mode on
func DefaultPreferences() Preferences {
	return Preferences{Language: LanguageEnglish, FamilyMode: true}
}

// ExplanationResult is what the explainer hands to the presentation layer
type ExplanationResult struct {
	Item        BillItem           `json:"item"`
	Preferences Preferences        `json:"preferences"`
	Explanation BillingExplanation `json:"explanation"`
	Cached      bool               `json:"cached"`
}

// IllustrationResult holds the generated illustration description
type IllustrationResult struct {
	Item        BillItem `json:"item"`
	Description string   `json:"description"`
	Cached      bool     `json:"cached"`
}

// ItemStatus is the outcome of processing one item in a batch run
type ItemStatus string

const (
	ItemStatusOK     ItemStatus = "ok"
	ItemStatusFailed ItemStatus = "failed"
)

// ItemRecord is a single line in the results file of a batch run
type ItemRecord struct {
	ItemID          int64           `json:"item_id"`
	Item            string          `json:"item"`
	Category        string          `json:"category"`
	Cost            float64         `json:"cost"`
	Language        Language        `json:"language"`
	Status          ItemStatus      `json:"status"`
	Explanation     string          `json:"explanation,omitempty"`
	InsuranceStatus InsuranceStatus `json:"insurance_status,omitempty"`
	InsuranceNote   string          `json:"insurance_note,omitempty"`
	Disclaimer      string          `json:"disclaimer,omitempty"`
	Illustration    string          `json:"illustration,omitempty"`
	ErrorKind       string          `json:"error_kind,omitempty"`
	Error           string          `json:"error,omitempty"`
	DurationMS      int64           `json:"duration_ms"`
}

// ItemJob is a unit of work for the batch worker pool
type ItemJob struct {
	ID   int
	Item BillItem
}

// ItemResult is the worker output for a single job
type ItemResult struct {
	Job          ItemJob
	Explanation  *ExplanationResult
	Illustration *IllustrationResult
	Error        error
	ErrorKind    string
	Duration     time.Duration
}

// SessionStats tracks statistics for a batch session
type SessionStats struct {
	StartTime       time.Time
	EndTime         time.Time
	TotalItems      int
	SuccessCount    int
	FailureCount    int
	CachedCount     int
	TotalDuration   time.Duration
	AverageDuration time.Duration
}
