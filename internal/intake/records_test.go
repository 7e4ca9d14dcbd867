package intake

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyCaseRecordSerializes(t *testing.T) {
	rec := NewCaseRecord("case-1")

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var decoded CaseRecord
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "case-1", decoded.CaseID)
	assert.Equal(t, ReportNotSent, decoded.ReportStatus)
	assert.Nil(t, decoded.IncidentDetails)
	assert.Nil(t, decoded.UserInfo)
	assert.Empty(t, decoded.Documents)
}

func TestPartiallyFilledRecordRoundTrips(t *testing.T) {
	notified := true
	rec := CaseRecord{
		CaseID: "case-2",
		IncidentDetails: &IncidentDetails{
			IncidentType:     "slip and fall",
			IncidentLocation: "123 Main St, Anytown, USA",
		},
		InsuranceInfo: &InsuranceInfo{
			ClientInsurance:   &InsurancePolicy{CompanyName: "Blue Cross Blue Shield"},
			InsuranceNotified: &notified,
		},
	}

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var decoded CaseRecord
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.NotNil(t, decoded.IncidentDetails)
	assert.Equal(t, "slip and fall", decoded.IncidentDetails.IncidentType)
	require.NotNil(t, decoded.InsuranceInfo)
	require.NotNil(t, decoded.InsuranceInfo.InsuranceNotified)
	assert.True(t, *decoded.InsuranceInfo.InsuranceNotified)
	assert.Nil(t, decoded.MedicalInfo, "unset sub-records stay nil")
}

func TestOmittedFieldsAbsentFromJSON(t *testing.T) {
	data, err := json.Marshal(UserInfo{FirstName: "Ada"})
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Contains(t, doc, "first_name")
	assert.NotContains(t, doc, "age")
	assert.NotContains(t, doc, "email")
}
