// Package report renders the PDF summary handed to the user after a
// prediction.
package report

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-pdf/fpdf"
	"golang.org/x/text/encoding/charmap"

	"github.com/Skufu/smarthealth/internal/symptom"
)

// Disclaimer is printed on every report and result page.
const Disclaimer = "Note: This is a machine learning prediction based on the entered symptoms. " +
	"Always consult a medical professional for a definitive diagnosis."

// Summary is everything a report shows.
type Summary struct {
	ResultID    string
	PatientID   string
	Diagnosis   string
	GeneratedAt time.Time
	Schema      *symptom.Schema
	Answers     symptom.AnswerSet
}

// Row is one symptom line.
type Row struct {
	Name    string
	Present bool
}

// Section lists the symptoms of one group in schema order.
type Section struct {
	Group string
	Rows  []Row
}

// Sections groups every schema symptom with its yes/no value.
func Sections(schema *symptom.Schema, answers symptom.AnswerSet) []Section {
	byGroup := make(map[string]*Section)
	var out []*Section
	for _, sym := range schema.Symptoms() {
		sec, ok := byGroup[sym.Group]
		if !ok {
			sec = &Section{Group: sym.Group}
			byGroup[sym.Group] = sec
			out = append(out, sec)
		}
		sec.Rows = append(sec.Rows, Row{Name: sym.Name, Present: answers[sym.ID]})
	}
	sections := make([]Section, len(out))
	for i, s := range out {
		sections[i] = *s
	}
	return sections
}

// CheckText reports whether s can be printed with the report's core fonts,
// which only cover Windows-1252.
func CheckText(s string) error {
	if _, err := charmap.Windows1252.NewEncoder().String(s); err != nil {
		return errors.New("contains characters the report cannot print; use Latin letters, digits and punctuation")
	}
	return nil
}

// Render writes the report as PDF to w.
func Render(w io.Writer, s Summary) error {
	return render(w, s, true)
}

func render(w io.Writer, s Summary, compress bool) error {
	if s.Schema == nil {
		return errors.New("report: schema is required")
	}
	if s.GeneratedAt.IsZero() {
		s.GeneratedAt = time.Now()
	}
	if err := CheckText(s.PatientID); err != nil {
		return fmt.Errorf("report: patient id %w", err)
	}
	patient := s.PatientID
	if patient == "" {
		patient = "Not provided"
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(compress)
	pdf.SetTitle("SmartHealth Diagnostic Report", false)
	pdf.SetCreator("SmartHealth", false)
	pdf.SetCreationDate(s.GeneratedAt)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, "SmartHealth - Diagnostic Report", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "", 11)
	field := func(label, value string) {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(45, 7, label, "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.CellFormat(0, 7, tr(value), "", 1, "L", false, 0, "")
	}
	field("Patient:", patient)
	field("Generated:", s.GeneratedAt.UTC().Format("2006-01-02 15:04 MST"))
	if s.ResultID != "" {
		field("Reference:", s.ResultID)
	}
	pdf.Ln(3)

	pdf.SetFillColor(225, 240, 230)
	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 11, tr("Predicted Diagnosis: "+s.Diagnosis), "1", 1, "L", true, 0, "")
	pdf.Ln(5)

	for _, sec := range Sections(s.Schema, s.Answers) {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.SetFillColor(235, 235, 235)
		pdf.CellFormat(0, 8, tr(sec.Group), "", 1, "L", true, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		for _, row := range sec.Rows {
			answer := "No"
			if row.Present {
				answer = "Yes"
			}
			pdf.CellFormat(120, 6, tr(row.Name), "B", 0, "L", false, 0, "")
			pdf.CellFormat(0, 6, answer, "B", 1, "R", false, 0, "")
		}
		pdf.Ln(3)
	}

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "I", 9)
	pdf.MultiCell(0, 5, Disclaimer, "", "L", false)

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return nil
}
