package schema

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentDeterministic(t *testing.T) {
	for _, rt := range []RecordType{RecordCase, RecordUser, RecordFile} {
		first, err := Document(rt)
		require.NoError(t, err)
		second, err := Document(rt)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(first, second), "%s document must be byte-identical across calls", rt)
	}
}

func TestDocumentFullyInlined(t *testing.T) {
	doc, err := Document(RecordCase)
	require.NoError(t, err)

	assert.NotContains(t, string(doc), "$defs")
	assert.NotContains(t, string(doc), "$ref")
	// Nested definitions are inlined: the case document carries the
	// insurance policy's own fields.
	assert.Contains(t, string(doc), "policy_number")
	assert.Contains(t, string(doc), "company_name")
}

func TestDocumentUnknownType(t *testing.T) {
	_, err := Document(RecordType("Unknown"))
	assert.Error(t, err)
}

func TestObjectFields(t *testing.T) {
	names, err := ObjectFields(RecordCase)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"user_info", "incident_details", "witness_info", "injury_details",
		"medical_info", "insurance_info", "employment_info", "damages_info", "legal_info",
	}, names)

	userNames, err := ObjectFields(RecordUser)
	require.NoError(t, err)
	assert.Empty(t, userNames)
}

func TestValidateAcceptsPartialRecords(t *testing.T) {
	assert.NoError(t, Validate(RecordUser, json.RawMessage(`{}`)))
	assert.NoError(t, Validate(RecordUser, json.RawMessage(`{"first_name":"Ada","age":34}`)))
	assert.NoError(t, Validate(RecordCase, json.RawMessage(`{
		"incident_details": {"incident_type": "car accident"},
		"damages_info": {"medical_expenses": 5000, "other_expenses": {"Transportation": 500}}
	}`)))
}

func TestValidateRejectsUnknownField(t *testing.T) {
	err := Validate(RecordUser, json.RawMessage(`{"shoe_size": 11}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shoe_size")
}

func TestValidateRejectsWrongKinds(t *testing.T) {
	assert.Error(t, Validate(RecordUser, json.RawMessage(`{"age":"thirty"}`)))
	assert.Error(t, Validate(RecordCase, json.RawMessage(`{"incident_details":"not an object"}`)))
	assert.Error(t, Validate(RecordCase, json.RawMessage(`{"insurance_info":{"insurance_notified":"yes"}}`)))
	assert.Error(t, Validate(RecordCase, json.RawMessage(`{"injury_details":{"list_injury_details":[1,2]}}`)))
}

func TestValidateNestedObject(t *testing.T) {
	assert.NoError(t, Validate(RecordCase, json.RawMessage(`{
		"insurance_info": {"client_insurance": {"company_name": "United Healthcare"}}
	}`)))
	err := Validate(RecordCase, json.RawMessage(`{
		"insurance_info": {"client_insurance": {"premium": 100}}
	}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "premium")
}
