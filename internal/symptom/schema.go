// Package symptom defines the fixed feature schema the classifier was trained
// on and encodes user answers into that order.
package symptom

import (
	"errors"
	"fmt"
)

// Report groups.
const (
	GroupCardiovascular = "Cardiovascular"
	GroupRespiratory    = "Respiratory"
	GroupMetabolic      = "Metabolic & Renal"
	GroupDigestive      = "Digestive & Liver"
	GroupGeneral        = "General"
)

// Symptom is a named boolean clinical indicator used as a model feature.
type Symptom struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Group string `json:"group"`
}

// Schema is the ordered list of symptoms the classifier expects. It is
// immutable once built.
type Schema struct {
	symptoms []Symptom
	index    map[string]int
}

// NewSchema builds a schema in the given column order.
func NewSchema(symptoms ...Symptom) (*Schema, error) {
	if len(symptoms) == 0 {
		return nil, errors.New("schema requires at least one symptom")
	}
	s := &Schema{
		symptoms: make([]Symptom, len(symptoms)),
		index:    make(map[string]int, len(symptoms)),
	}
	for i, sym := range symptoms {
		if sym.ID == "" {
			return nil, fmt.Errorf("symptom at position %d has empty id", i)
		}
		if _, dup := s.index[sym.ID]; dup {
			return nil, fmt.Errorf("duplicate symptom id %q", sym.ID)
		}
		if sym.Name == "" {
			sym.Name = sym.ID
		}
		if sym.Group == "" {
			sym.Group = GroupGeneral
		}
		s.symptoms[i] = sym
		s.index[sym.ID] = i
	}
	return s, nil
}

// Default returns the 26-column schema in trained order.
func Default() *Schema {
	s, err := NewSchema(defaultSymptoms...)
	if err != nil {
		panic(err)
	}
	return s
}

// Len returns the number of features.
func (s *Schema) Len() int { return len(s.symptoms) }

// Symptoms returns a copy of the schema in column order.
func (s *Schema) Symptoms() []Symptom {
	out := make([]Symptom, len(s.symptoms))
	copy(out, s.symptoms)
	return out
}

// IDs returns the identifiers in column order.
func (s *Schema) IDs() []string {
	out := make([]string, len(s.symptoms))
	for i, sym := range s.symptoms {
		out[i] = sym.ID
	}
	return out
}

// Lookup returns the symptom with the given id.
func (s *Schema) Lookup(id string) (Symptom, bool) {
	i, ok := s.index[id]
	if !ok {
		return Symptom{}, false
	}
	return s.symptoms[i], true
}

// Groups returns group names in order of first appearance.
func (s *Schema) Groups() []string {
	seen := make(map[string]bool)
	var groups []string
	for _, sym := range s.symptoms {
		if !seen[sym.Group] {
			seen[sym.Group] = true
			groups = append(groups, sym.Group)
		}
	}
	return groups
}

// MatchesOrder reports whether ids equals the schema's column order exactly.
func (s *Schema) MatchesOrder(ids []string) error {
	if len(ids) != len(s.symptoms) {
		return fmt.Errorf("feature count mismatch: schema has %d, got %d", len(s.symptoms), len(ids))
	}
	for i, id := range ids {
		if s.symptoms[i].ID != id {
			return fmt.Errorf("feature %d: schema has %q, got %q", i, s.symptoms[i].ID, id)
		}
	}
	return nil
}

var defaultSymptoms = []Symptom{
	{ID: "irregular_heartbeat", Name: "Irregular heartbeat", Group: GroupCardiovascular},
	{ID: "sore_throat", Name: "Sore throat", Group: GroupRespiratory},
	{ID: "dark_urine", Name: "Dark urine", Group: GroupMetabolic},
	{ID: "slow_healing_wounds", Name: "Slow healing wounds", Group: GroupMetabolic},
	{ID: "unexplained_weight_loss", Name: "Unexplained weight loss", Group: GroupMetabolic},
	{ID: "muscle_cramps", Name: "Muscle cramps", Group: GroupGeneral},
	{ID: "fatigue", Name: "Fatigue", Group: GroupGeneral},
	{ID: "nausea", Name: "Nausea", Group: GroupDigestive},
	{ID: "fever", Name: "Fever", Group: GroupGeneral},
	{ID: "chest_pain", Name: "Chest pain", Group: GroupCardiovascular},
	{ID: "jaundice", Name: "Jaundice", Group: GroupDigestive},
	{ID: "shortness_of_breath", Name: "Shortness of breath", Group: GroupRespiratory},
	{ID: "skin_changes", Name: "Skin changes", Group: GroupGeneral},
	{ID: "wheezing", Name: "Wheezing", Group: GroupRespiratory},
	{ID: "chest_tightness", Name: "Chest tightness", Group: GroupCardiovascular},
	{ID: "body_pain", Name: "Body pain", Group: GroupGeneral},
	{ID: "cough", Name: "Cough", Group: GroupRespiratory},
	{ID: "loss_of_taste", Name: "Loss of taste", Group: GroupRespiratory},
	{ID: "abdominal_pain", Name: "Abdominal pain", Group: GroupDigestive},
	{ID: "trouble_sleeping", Name: "Trouble sleeping", Group: GroupGeneral},
	{ID: "frequent_urination", Name: "Frequent urination", Group: GroupMetabolic},
	{ID: "headache", Name: "Headache", Group: GroupGeneral},
	{ID: "swelling_in_legs", Name: "Swelling in legs", Group: GroupCardiovascular},
	{ID: "increased_thirst", Name: "Increased thirst", Group: GroupMetabolic},
	{ID: "blurred_vision", Name: "Blurred vision", Group: GroupMetabolic},
	{ID: "dizziness", Name: "Dizziness", Group: GroupCardiovascular},
}
