// Package diagnosis maps classifier class indices to display labels.
package diagnosis

import (
	"fmt"
	"sort"
)

// Unknown is returned for any index the table does not cover.
const Unknown = "Unknown"

// Entry is one row of the label table.
type Entry struct {
	Index int    `json:"index"`
	Label string `json:"label"`
}

// Table is an immutable class index to label mapping.
type Table struct {
	labels map[int]string
}

// NewTable builds a table from index/label pairs.
func NewTable(entries map[int]string) (*Table, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("label table is empty")
	}
	labels := make(map[int]string, len(entries))
	for idx, label := range entries {
		if label == "" {
			return nil, fmt.Errorf("label for class %d is empty", idx)
		}
		labels[idx] = label
	}
	return &Table{labels: labels}, nil
}

// FromList builds a table where the label at position i is class i.
func FromList(labels []string) (*Table, error) {
	m := make(map[int]string, len(labels))
	for i, l := range labels {
		m[i] = l
	}
	return NewTable(m)
}

// Default returns the eight diagnoses the shipped model was trained on.
func Default() *Table {
	t, err := NewTable(map[int]string{
		0: "Asthma",
		1: "COVID-19",
		2: "Cancer",
		3: "Diabetes",
		4: "Heart Disease",
		5: "Hypertension",
		6: "Kidney Disease",
		7: "Liver Disease",
	})
	if err != nil {
		panic(err)
	}
	return t
}

// Decode returns the label for index, or Unknown.
func (t *Table) Decode(index int) string {
	if label, ok := t.labels[index]; ok {
		return label
	}
	return Unknown
}

// Len returns the number of labelled classes.
func (t *Table) Len() int { return len(t.labels) }

// Entries returns the table sorted by index.
func (t *Table) Entries() []Entry {
	out := make([]Entry, 0, len(t.labels))
	for idx, label := range t.labels {
		out = append(out, Entry{Index: idx, Label: label})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Validate checks that the classifier's class set is exactly covered by the
// table. A nil classes slice means the classifier does not report its
// classes and nothing can be checked.
func (t *Table) Validate(classes []int) error {
	if classes == nil {
		return nil
	}
	if len(classes) != len(t.labels) {
		return fmt.Errorf("classifier reports %d classes, label table has %d", len(classes), len(t.labels))
	}
	for _, c := range classes {
		if _, ok := t.labels[c]; !ok {
			return fmt.Errorf("classifier class %d has no label", c)
		}
	}
	return nil
}
