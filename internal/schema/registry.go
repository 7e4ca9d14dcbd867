// Package schema is the registry of machine-readable record definitions.
// The tables are hand-authored rather than derived by reflection so the
// documents injected into extraction instructions are stable across builds
// and fully inlined, with no $defs-style internal references.
package schema

import (
	"encoding/json"
	"fmt"
)

// RecordType names a registered record definition.
type RecordType string

const (
	RecordCase RecordType = "CaseRecord"
	RecordUser RecordType = "UserInfo"
	RecordFile RecordType = "FileRecord"
)

// Field describes one field of a record. Object-typed fields carry their
// nested definition inline in Fields.
type Field struct {
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Description string  `json:"description,omitempty"`
	Examples    []any   `json:"examples,omitempty"`
	Fields      []Field `json:"fields,omitempty"`
}

// document is the canonical JSON shape handed to extraction prompts.
type document struct {
	Record string  `json:"record"`
	Fields []Field `json:"fields"`
}

var userFields = []Field{
	{Name: "first_name", Type: "string", Description: "Client's first name"},
	{Name: "last_name", Type: "string", Description: "Client's last name"},
	{Name: "age", Type: "integer", Description: "Client's age in years", Examples: []any{34, 62}},
	{Name: "gender", Type: "string", Description: "Client's gender"},
	{Name: "date_of_birth", Type: "date", Description: "Client's date of birth", Examples: []any{"1985-04-12"}},
	{Name: "home_address", Type: "string", Description: "Client's home address", Examples: []any{"123 Main St, Anytown, USA"}},
	{Name: "email", Type: "string", Description: "Client's email address", Examples: []any{"jane.doe@email.com"}},
	{Name: "phone", Type: "string", Description: "Client's phone number", Examples: []any{"(555) 123-4567"}},
	{Name: "preferred_contact_method", Type: "string", Description: "How the client prefers to be contacted", Examples: []any{"email", "phone"}},
}

var incidentFields = []Field{
	{Name: "incident_date", Type: "datetime", Description: "Time and date of the incident", Examples: []any{"2024-01-01 10:00:00", "2024-02-01 14:30:00"}},
	{Name: "incident_time", Type: "string", Description: "Time of day of the incident", Examples: []any{"morning", "afternoon", "evening", "night"}},
	{Name: "incident_location", Type: "string", Description: "Location of the incident", Examples: []any{"123 Main St, Anytown, USA", "456 Elm St, Othertown, USA"}},
	{Name: "incident_description", Type: "string", Description: "Description of the incident", Examples: []any{"I was walking down the street and a car hit me", "I was at work and a machine malfunctioned and injured me"}},
	{Name: "incident_type", Type: "string", Description: "Type of the incident", Examples: []any{"workplace", "car accident", "slip and fall", "medical malpractice", "product liability", "other"}},
}

var witnessFields = []Field{
	{Name: "name", Type: "string", Description: "Witness's full name if provided", Examples: []any{"John Smith", "Mary Wilson"}},
	{Name: "contact_info", Type: "string", Description: "Witness's contact information if provided", Examples: []any{"(555) 123-4567", "john.smith@email.com"}},
	{Name: "relationship", Type: "string", Description: "Witness's relationship to the client if provided", Examples: []any{"Friend", "Coworker", "Neighbor"}},
	{Name: "statement", Type: "string", Description: "Witness's statement if provided", Examples: []any{"I saw the accident happen"}},
}

var injuryFields = []Field{
	{Name: "list_injury_details", Type: "array[string]", Description: "List of all injuries", Examples: []any{"sprained ankle", "broken arm", "concussion"}},
	{Name: "symptom_details", Type: "array[string]", Description: "Details about each symptom", Examples: []any{"pain in my ankle", "swelling in my arm", "dizziness"}},
	{Name: "injury_severity", Type: "string", Description: "Severity of the injury", Examples: []any{"minor", "moderate", "severe"}},
	{Name: "injury_duration", Type: "string", Description: "Duration of the injury", Examples: []any{"2 days", "2 weeks", "2 months"}},
	{Name: "injury_impact", Type: "string", Description: "Impact of the injury", Examples: []any{"unable to work", "unable to walk"}},
}

var medicalFields = []Field{
	{Name: "initial_treatment", Type: "string", Description: "Initial medical treatment received", Examples: []any{"Went to ER", "Saw primary care doctor next day"}},
	{Name: "treatment_facilities", Type: "array[string]", Description: "Medical facilities visited", Examples: []any{"Memorial Hospital", "City Medical Center"}},
	{Name: "treating_physicians", Type: "array[string]", Description: "Names of treating doctors", Examples: []any{"Dr. Smith", "Dr. Jones"}},
	{Name: "current_treatment", Type: "string", Description: "Current treatment status", Examples: []any{"Physical therapy 2x/week", "No current treatment"}},
	{Name: "future_treatment_needed", Type: "string", Description: "Planned future treatment", Examples: []any{"Surgery scheduled", "Ongoing physical therapy needed"}},
	{Name: "pre_existing_conditions", Type: "string", Description: "Relevant pre-existing conditions", Examples: []any{"Prior back injury", "No pre-existing conditions"}},
	{Name: "medications", Type: "array[string]", Description: "Medications prescribed", Examples: []any{"Ibuprofen", "Muscle relaxers"}},
}

var insurancePolicyFields = []Field{
	{Name: "company_name", Type: "string", Description: "Insurance company name", Examples: []any{"Blue Cross Blue Shield", "United Healthcare"}},
	{Name: "policy_number", Type: "string", Description: "Insurance policy number", Examples: []any{"1234567890"}},
	{Name: "policy_holder_name", Type: "string", Description: "Name of the policy holder", Examples: []any{"John Doe"}},
	{Name: "coverage_details", Type: "string", Description: "Coverage details", Examples: []any{"$100,000 per accident", "50% coverage for medical expenses"}},
	{Name: "policy_start_date", Type: "date", Description: "Date when the policy was started", Examples: []any{"2024-01-01"}},
	{Name: "policy_end_date", Type: "date", Description: "Date when the policy was ended", Examples: []any{"2025-01-01"}},
	{Name: "policy_type", Type: "string", Description: "Type of the policy", Examples: []any{"Health", "Life", "Auto", "Home", "Other"}},
	{Name: "policy_status", Type: "string", Description: "Status of the policy", Examples: []any{"Active", "Inactive", "Pending", "Other"}},
}

var insuranceFields = []Field{
	{Name: "client_insurance", Type: "object", Description: "Insurance policy information", Fields: insurancePolicyFields},
	{Name: "insurance_notified", Type: "boolean", Description: "Whether the insurance company has been notified", Examples: []any{true, false}},
	{Name: "notification_date", Type: "date", Description: "Date when the insurance company was notified", Examples: []any{"2024-01-01"}},
	{Name: "claim_number", Type: "string", Description: "Insurance claim number", Examples: []any{"1234567890"}},
	{Name: "claim_status", Type: "string", Description: "Status of the claim", Examples: []any{"Pending", "In Progress", "Closed"}},
}

var employerFields = []Field{
	{Name: "company_name", Type: "string", Description: "Employer name", Examples: []any{"Acme Inc.", "XYZ Corp."}},
	{Name: "address", Type: "string", Description: "Address of the employer", Examples: []any{"123 Main St, Anytown, USA"}},
	{Name: "phone", Type: "string", Description: "Phone number of the employer", Examples: []any{"(555) 123-4567"}},
}

var employmentFields = []Field{
	{Name: "current_employer", Type: "object", Description: "Current employer information", Fields: employerFields},
	{Name: "employment_status_at_incident", Type: "string", Description: "Employment status at the time of the incident", Examples: []any{"Employed", "Unemployed", "Retired", "Student", "Other"}},
	{Name: "employment_type", Type: "string", Description: "Employment type", Examples: []any{"Full-time", "Part-time", "Temporary"}},
	{Name: "position", Type: "string", Description: "Position", Examples: []any{"Software Engineer", "Sales Associate"}},
	{Name: "work_missed", Type: "string", Description: "Whether the client missed work due to the injury"},
	{Name: "income_loss", Type: "string", Description: "Whether the client has lost income due to the injury"},
	{Name: "work_restrictions", Type: "string", Description: "Restrictions on the client's work due to the injury", Examples: []any{"unable to work", "able to work but with limitations like lifting", "other"}},
}

var damagesFields = []Field{
	{Name: "medical_expenses", Type: "number", Description: "Total medical expenses incurred", Examples: []any{5000.00, 12500.50}},
	{Name: "property_damage", Type: "number", Description: "Total property damage costs", Examples: []any{2000.00, 15000.00}},
	{Name: "lost_wages", Type: "number", Description: "Total lost wages amount", Examples: []any{3000.00, 8000.00}},
	{Name: "other_expenses", Type: "map[string]number", Description: "Any other expenses with descriptions", Examples: []any{map[string]any{"Transportation": 500.00, "Home care": 1200.00}}},
	{Name: "future_expenses", Type: "string", Description: "Anticipated future expenses", Examples: []any{"Ongoing physical therapy estimated at $200/week"}},
}

var legalFields = []Field{
	{Name: "prior_attorneys", Type: "string", Description: "Previous attorneys consulted", Examples: []any{"Consulted with Smith & Jones but didn't retain", "None"}},
	{Name: "signed_documents", Type: "string", Description: "Legal documents already signed", Examples: []any{"Signed medical release forms"}},
	{Name: "legal_deadlines", Type: "string", Description: "Relevant legal deadlines or statutes of limitations", Examples: []any{"Statute of limitations expires 2025-06-01"}},
	{Name: "settlement_offers", Type: "string", Description: "Settlement offers received", Examples: []any{"Initial offer of $25,000 received on 2024-02-01", "No offers yet"}},
	{Name: "desired_outcome", Type: "string", Description: "Client's desired outcome or settlement expectations", Examples: []any{"Compensation for all medical bills plus lost wages"}},
}

var fileFields = []Field{
	{Name: "file_id", Type: "string", Description: "Unique identifier for the file"},
	{Name: "file_type", Type: "string", Description: "Declared MIME type of the file", Examples: []any{"application/pdf", "image/png"}},
	{Name: "file_name", Type: "string", Description: "Display name of the file", Examples: []any{"insurance_statement.pdf", "car_damage.jpg"}},
	{Name: "file_size", Type: "integer", Description: "Size of the file in bytes", Examples: []any{1024, 1024000}},
	{Name: "file_label", Type: "string", Description: "Tagline for the file", Examples: []any{"Statement from the insurance company", "Picture of the car damage"}},
	{Name: "file_analysis", Type: "string", Description: "In-depth analysis of the file contents and relevant details"},
	{Name: "image_url", Type: "string", Description: "URL of the stored image if the file is an image"},
	{Name: "uploaded_at", Type: "datetime", Description: "Date and time when the file was uploaded"},
	{Name: "file_contents", Type: "string", Description: "The text contents of the file"},
}

var caseFields = []Field{
	{Name: "case_id", Type: "string", Description: "Stable identifier of the case"},
	{Name: "intake_date", Type: "date", Description: "Date the intake interview started"},
	{Name: "user_info", Type: "object", Description: "Personal information of the client", Fields: userFields},
	{Name: "documents", Type: "array[object]", Description: "Files uploaded by the client", Fields: fileFields},
	{Name: "incident_details", Type: "object", Description: "Details about the incident including time, date, location, and description", Fields: incidentFields},
	{Name: "witness_info", Type: "object", Description: "Information about witnesses to the incident", Fields: witnessFields},
	{Name: "injury_details", Type: "object", Description: "Details about the injury including symptoms, severity, duration, and impact", Fields: injuryFields},
	{Name: "medical_info", Type: "object", Description: "Medical treatment history and current/future treatment plans", Fields: medicalFields},
	{Name: "insurance_info", Type: "object", Description: "Insurance information including policy, provider, and claim state", Fields: insuranceFields},
	{Name: "employment_info", Type: "object", Description: "Employment information including employer, position, and work impact", Fields: employmentFields},
	{Name: "damages_info", Type: "object", Description: "Financial impact of the incident including medical costs, property damage and lost wages", Fields: damagesFields},
	{Name: "legal_info", Type: "object", Description: "Legal aspects of the case including prior representation, documents and settlement information", Fields: legalFields},
	{Name: "case_report", Type: "string", Description: "Compiled free-text case report"},
	{Name: "report_status", Type: "string", Description: "Delivery status of the case report", Examples: []any{"not_sent", "sent"}},
}

var registry = map[RecordType][]Field{
	RecordCase: caseFields,
	RecordUser: userFields,
	RecordFile: fileFields,
}

// Fields returns the field table for a record type.
func Fields(rt RecordType) ([]Field, error) {
	fields, ok := registry[rt]
	if !ok {
		return nil, fmt.Errorf("schema: unknown record type %q", rt)
	}
	return fields, nil
}

// Document renders the fully inlined schema document for a record type.
// Slices and structs marshal in declaration order, so the output is
// byte-identical across calls.
func Document(rt RecordType) (json.RawMessage, error) {
	fields, err := Fields(rt)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(document{Record: string(rt), Fields: fields})
	if err != nil {
		return nil, fmt.Errorf("schema: failed to marshal %s document: %w", rt, err)
	}
	return data, nil
}

// ObjectFields returns the names of top-level object-typed fields, the ones
// the store mapper moves into sub-collections.
func ObjectFields(rt RecordType) ([]string, error) {
	fields, err := Fields(rt)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, f := range fields {
		if f.Type == "object" {
			names = append(names, f.Name)
		}
	}
	return names, nil
}

// Validate checks that a candidate payload only uses known fields with
// JSON kinds matching their declared types.
func Validate(rt RecordType, data json.RawMessage) error {
	fields, err := Fields(rt)
	if err != nil {
		return err
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("schema: %s candidate is not a JSON object: %w", rt, err)
	}
	return validateObject(string(rt), fields, doc)
}

func validateObject(path string, fields []Field, doc map[string]any) error {
	byName := make(map[string]Field, len(fields))
	for _, f := range fields {
		byName[f.Name] = f
	}
	for key, value := range doc {
		f, ok := byName[key]
		if !ok {
			return fmt.Errorf("schema: %s has no field %q", path, key)
		}
		if value == nil {
			continue
		}
		if err := validateValue(path+"."+key, f, value); err != nil {
			return err
		}
	}
	return nil
}

func validateValue(path string, f Field, value any) error {
	switch f.Type {
	case "string", "date", "datetime":
		if _, ok := value.(string); !ok {
			return fmt.Errorf("schema: %s must be a string", path)
		}
	case "integer", "number":
		if _, ok := value.(float64); !ok {
			return fmt.Errorf("schema: %s must be a number", path)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("schema: %s must be a boolean", path)
		}
	case "array[string]":
		items, ok := value.([]any)
		if !ok {
			return fmt.Errorf("schema: %s must be an array", path)
		}
		for i, item := range items {
			if _, ok := item.(string); !ok {
				return fmt.Errorf("schema: %s[%d] must be a string", path, i)
			}
		}
	case "array[object]":
		items, ok := value.([]any)
		if !ok {
			return fmt.Errorf("schema: %s must be an array", path)
		}
		for i, item := range items {
			obj, ok := item.(map[string]any)
			if !ok {
				return fmt.Errorf("schema: %s[%d] must be an object", path, i)
			}
			if err := validateObject(fmt.Sprintf("%s[%d]", path, i), f.Fields, obj); err != nil {
				return err
			}
		}
	case "map[string]number":
		entries, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("schema: %s must be an object", path)
		}
		for k, v := range entries {
			if _, ok := v.(float64); !ok {
				return fmt.Errorf("schema: %s[%q] must be a number", path, k)
			}
		}
	case "object":
		obj, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("schema: %s must be an object", path)
		}
		if err := validateObject(path, f.Fields, obj); err != nil {
			return err
		}
	default:
		return fmt.Errorf("schema: %s has unsupported type %q", path, f.Type)
	}
	return nil
}
