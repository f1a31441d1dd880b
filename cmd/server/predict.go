package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Skufu/smarthealth/internal/predictor"
	"github.com/Skufu/smarthealth/internal/report"
	"github.com/Skufu/smarthealth/internal/symptom"
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Predict a diagnosis for the given symptoms",
	Example: "  smarthealth predict --symptom chest_pain --symptom dizziness\n" +
		"  smarthealth predict --symptom fever=yes,cough=no --patient p-17 --report out.pdf",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		// Keep stdout clean for the result.
		log := zap.NewNop()

		svc, clf, err := buildService(cfg, log)
		if err != nil {
			return err
		}
		defer clf.Close()

		raw, _ := cmd.Flags().GetStringSlice("symptom")
		patient, _ := cmd.Flags().GetString("patient")
		out, _ := cmd.Flags().GetString("report")
		return runPredict(cmd.Context(), cmd.OutOrStdout(), svc, raw, patient, out)
	},
}

func init() {
	predictCmd.Flags().StringSlice("symptom", nil, "Symptom id, optionally id=yes|no; repeatable")
	predictCmd.Flags().String("patient", "", "Patient identifier printed on the report")
	predictCmd.Flags().String("report", "", "Write a PDF report to this file")
}

// parseSymptomFlags turns "id" or "id=answer" items into an answer set.
// Unknown ids are rejected so a typo is not silently read as absent.
func parseSymptomFlags(schema *symptom.Schema, raw []string) (symptom.AnswerSet, error) {
	answers := make(symptom.AnswerSet, len(raw))
	for _, item := range raw {
		id, value, hasValue := strings.Cut(item, "=")
		id = symptom.NormalizeID(id)
		if _, ok := schema.Lookup(id); !ok {
			return nil, fmt.Errorf("unknown symptom %q", id)
		}
		present := true
		if hasValue {
			var err error
			if present, err = symptom.ParsePresence(value); err != nil {
				return nil, fmt.Errorf("symptom %s: %w", id, err)
			}
		}
		answers[id] = present
	}
	return answers, nil
}

func runPredict(ctx context.Context, w io.Writer, svc *predictor.Service, raw []string, patient, out string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	answers, err := parseSymptomFlags(svc.Schema(), raw)
	if err != nil {
		return err
	}
	if out != "" {
		if err := report.CheckText(patient); err != nil {
			return fmt.Errorf("--patient %w", err)
		}
	}

	res, err := svc.Predict(ctx, answers)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Predicted Diagnosis: %s\n", res.Diagnosis)

	if out == "" {
		return nil
	}
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	err = report.Render(f, report.Summary{
		ResultID:    res.ID,
		PatientID:   patient,
		Diagnosis:   res.Diagnosis,
		GeneratedAt: res.CreatedAt,
		Schema:      svc.Schema(),
		Answers:     res.Answers,
	})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	fmt.Fprintf(w, "Report written to %s\n", out)
	return nil
}
