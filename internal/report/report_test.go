package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skufu/smarthealth/internal/symptom"
)

func TestSectionsCoverEverySymptom(t *testing.T) {
	schema := symptom.Default()
	sections := Sections(schema, symptom.AnswerSet{"chest_pain": true})

	total := 0
	var chestPain *Row
	for i := range sections {
		total += len(sections[i].Rows)
		for j := range sections[i].Rows {
			if sections[i].Rows[j].Name == "Chest pain" {
				chestPain = &sections[i].Rows[j]
				assert.Equal(t, symptom.GroupCardiovascular, sections[i].Group)
			}
		}
	}
	assert.Equal(t, schema.Len(), total)
	assert.Len(t, sections, len(schema.Groups()))
	require.NotNil(t, chestPain)
	assert.True(t, chestPain.Present)
}

func TestSectionsKeepSchemaOrder(t *testing.T) {
	schema, err := symptom.NewSchema(
		symptom.Symptom{ID: "a", Name: "A", Group: "G1"},
		symptom.Symptom{ID: "b", Name: "B", Group: "G2"},
		symptom.Symptom{ID: "c", Name: "C", Group: "G1"},
	)
	require.NoError(t, err)

	sections := Sections(schema, nil)
	require.Len(t, sections, 2)
	assert.Equal(t, "G1", sections[0].Group)
	assert.Equal(t, []Row{{Name: "A"}, {Name: "C"}}, sections[0].Rows)
	assert.Equal(t, []Row{{Name: "B"}}, sections[1].Rows)
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	err := render(&buf, Summary{
		ResultID:    "3f1c",
		PatientID:   "patient-42",
		Diagnosis:   "Heart Disease",
		GeneratedAt: time.Date(2026, 1, 2, 3, 4, 0, 0, time.UTC),
		Schema:      symptom.Default(),
		Answers:     symptom.AnswerSet{"chest_pain": true},
	}, false)
	require.NoError(t, err)

	out := buf.String()
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
	assert.Contains(t, out, "patient-42")
	assert.Contains(t, out, "Predicted Diagnosis: Heart Disease")
	assert.Contains(t, out, "Chest pain")
	assert.Contains(t, out, "Cardiovascular")
}

func TestRenderCompressed(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, Summary{Diagnosis: "Asthma", Schema: symptom.Default()}))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
}

func TestRenderRequiresSchema(t *testing.T) {
	var buf bytes.Buffer
	require.Error(t, Render(&buf, Summary{Diagnosis: "Asthma"}))
}

func TestCheckText(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"", false},
		{"patient-42", false},
		{"José Müller", false},
		{"张伟", true},
		{"p-1 ✓", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			err := CheckText(tt.in)
			assert.Equal(t, tt.wantErr, err != nil, "CheckText(%q) = %v", tt.in, err)
		})
	}
}

func TestRenderRejectsUnprintablePatientID(t *testing.T) {
	var buf bytes.Buffer
	err := Render(&buf, Summary{PatientID: "张伟", Diagnosis: "Asthma", Schema: symptom.Default()})
	require.Error(t, err)
	assert.Zero(t, buf.Len())
}
