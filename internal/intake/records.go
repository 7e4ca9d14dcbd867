// Package intake defines the structured records assembled during a
// case-intake interview. Every field is independently optional: a record is
// valid, and serializes cleanly, in any partially-filled state.
package intake

import (
	"time"
)

// ReportStatus tracks delivery of the compiled case report.
type ReportStatus string

const (
	ReportNotSent ReportStatus = "not_sent"
	ReportSent    ReportStatus = "sent"
)

// UserInfo holds the client's personal information.
type UserInfo struct {
	FirstName              string `json:"first_name,omitempty"`
	LastName               string `json:"last_name,omitempty"`
	Age                    *int   `json:"age,omitempty"`
	Gender                 string `json:"gender,omitempty"`
	DateOfBirth            string `json:"date_of_birth,omitempty"` // YYYY-MM-DD
	HomeAddress            string `json:"home_address,omitempty"`
	Email                  string `json:"email,omitempty"`
	Phone                  string `json:"phone,omitempty"`
	PreferredContactMethod string `json:"preferred_contact_method,omitempty"`
}

// IncidentDetails describes when, where, and how the incident happened.
type IncidentDetails struct {
	IncidentDate        string `json:"incident_date,omitempty"`
	IncidentTime        string `json:"incident_time,omitempty"`
	IncidentLocation    string `json:"incident_location,omitempty"`
	IncidentDescription string `json:"incident_description,omitempty"`
	IncidentType        string `json:"incident_type,omitempty"`
}

// WitnessInfo records a witness's contact details and statement.
type WitnessInfo struct {
	Name         string `json:"name,omitempty"`
	ContactInfo  string `json:"contact_info,omitempty"`
	Relationship string `json:"relationship,omitempty"`
	Statement    string `json:"statement,omitempty"`
}

// InjuryDetails lists the client's injuries, symptoms, and their impact.
type InjuryDetails struct {
	Injuries       []string `json:"list_injury_details,omitempty"`
	SymptomDetails []string `json:"symptom_details,omitempty"`
	InjurySeverity string   `json:"injury_severity,omitempty"`
	InjuryDuration string   `json:"injury_duration,omitempty"`
	InjuryImpact   string   `json:"injury_impact,omitempty"`
}

// MedicalInfo captures treatment history and current/future care.
type MedicalInfo struct {
	InitialTreatment      string   `json:"initial_treatment,omitempty"`
	TreatmentFacilities   []string `json:"treatment_facilities,omitempty"`
	TreatingPhysicians    []string `json:"treating_physicians,omitempty"`
	CurrentTreatment      string   `json:"current_treatment,omitempty"`
	FutureTreatmentNeeded string   `json:"future_treatment_needed,omitempty"`
	PreExistingConditions string   `json:"pre_existing_conditions,omitempty"`
	Medications           []string `json:"medications,omitempty"`
}

// InsurancePolicy identifies a single policy and its coverage.
type InsurancePolicy struct {
	CompanyName      string `json:"company_name,omitempty"`
	PolicyNumber     string `json:"policy_number,omitempty"`
	PolicyHolderName string `json:"policy_holder_name,omitempty"`
	CoverageDetails  string `json:"coverage_details,omitempty"`
	PolicyStartDate  string `json:"policy_start_date,omitempty"`
	PolicyEndDate    string `json:"policy_end_date,omitempty"`
	PolicyType       string `json:"policy_type,omitempty"`
	PolicyStatus     string `json:"policy_status,omitempty"`
}

// InsuranceInfo captures the client's policy plus claim state.
type InsuranceInfo struct {
	ClientInsurance   *InsurancePolicy `json:"client_insurance,omitempty"`
	InsuranceNotified *bool            `json:"insurance_notified,omitempty"`
	NotificationDate  string           `json:"notification_date,omitempty"`
	ClaimNumber       string           `json:"claim_number,omitempty"`
	ClaimStatus       string           `json:"claim_status,omitempty"`
}

// EmployerInfo identifies the client's employer.
type EmployerInfo struct {
	CompanyName string `json:"company_name,omitempty"`
	Address     string `json:"address,omitempty"`
	Phone       string `json:"phone,omitempty"`
}

// EmploymentInfo captures employment status and work impact.
type EmploymentInfo struct {
	CurrentEmployer            *EmployerInfo `json:"current_employer,omitempty"`
	EmploymentStatusAtIncident string        `json:"employment_status_at_incident,omitempty"`
	EmploymentType             string        `json:"employment_type,omitempty"`
	Position                   string        `json:"position,omitempty"`
	WorkMissed                 string        `json:"work_missed,omitempty"`
	IncomeLoss                 string        `json:"income_loss,omitempty"`
	WorkRestrictions           string        `json:"work_restrictions,omitempty"`
}

// DamagesInfo captures the financial impact of the incident.
type DamagesInfo struct {
	MedicalExpenses *float64           `json:"medical_expenses,omitempty"`
	PropertyDamage  *float64           `json:"property_damage,omitempty"`
	LostWages       *float64           `json:"lost_wages,omitempty"`
	OtherExpenses   map[string]float64 `json:"other_expenses,omitempty"`
	FutureExpenses  string             `json:"future_expenses,omitempty"`
}

// LegalInfo captures prior representation, documents, and settlement state.
type LegalInfo struct {
	PriorAttorneys   string `json:"prior_attorneys,omitempty"`
	SignedDocuments  string `json:"signed_documents,omitempty"`
	LegalDeadlines   string `json:"legal_deadlines,omitempty"`
	SettlementOffers string `json:"settlement_offers,omitempty"`
	DesiredOutcome   string `json:"desired_outcome,omitempty"`
}

// FileRecord is the metadata and extracted text for one uploaded file.
// FileContents is filled at ingestion time; FileAnalysis is filled later by
// an independent analysis pass.
type FileRecord struct {
	FileID       string    `json:"file_id"`
	FileType     string    `json:"file_type,omitempty"`
	FileName     string    `json:"file_name,omitempty"`
	FileSize     int64     `json:"file_size,omitempty"`
	FileLabel    string    `json:"file_label,omitempty"`
	FileAnalysis string    `json:"file_analysis,omitempty"`
	ImageURL     string    `json:"image_url,omitempty"`
	UploadedAt   time.Time `json:"uploaded_at,omitempty"`
	FileContents string    `json:"file_contents"`
}

// CaseRecord is the aggregate case file assembled over the interview.
// Sub-records are replaced wholesale when a new extraction arrives; fields
// are never merged inside a sub-record.
type CaseRecord struct {
	CaseID          string           `json:"case_id"`
	IntakeDate      string           `json:"intake_date,omitempty"` // YYYY-MM-DD, set once at creation
	UserInfo        *UserInfo        `json:"user_info,omitempty"`
	Documents       []FileRecord     `json:"documents,omitempty"`
	IncidentDetails *IncidentDetails `json:"incident_details,omitempty"`
	WitnessInfo     *WitnessInfo     `json:"witness_info,omitempty"`
	InjuryDetails   *InjuryDetails   `json:"injury_details,omitempty"`
	MedicalInfo     *MedicalInfo     `json:"medical_info,omitempty"`
	InsuranceInfo   *InsuranceInfo   `json:"insurance_info,omitempty"`
	EmploymentInfo  *EmploymentInfo  `json:"employment_info,omitempty"`
	DamagesInfo     *DamagesInfo     `json:"damages_info,omitempty"`
	LegalInfo       *LegalInfo       `json:"legal_info,omitempty"`
	CaseReport      string           `json:"case_report,omitempty"`
	ReportStatus    ReportStatus     `json:"report_status,omitempty"`
}

// NewCaseRecord creates an empty record with the intake date stamped.
func NewCaseRecord(caseID string) *CaseRecord {
	return &CaseRecord{
		CaseID:       caseID,
		IntakeDate:   time.Now().UTC().Format("2006-01-02"),
		ReportStatus: ReportNotSent,
	}
}
