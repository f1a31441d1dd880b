package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Skufu/smarthealth/internal/diagnosis"
	"github.com/Skufu/smarthealth/internal/symptom"
)

var labelsCmd = &cobra.Command{
	Use:   "labels",
	Short: "List diagnosis labels and symptom columns",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		table, err := labelTable(cfg)
		if err != nil {
			return err
		}
		printLabels(cmd.OutOrStdout(), table, symptom.Default())
		return nil
	},
}

func printLabels(w io.Writer, table *diagnosis.Table, schema *symptom.Schema) {
	fmt.Fprintln(w, "Diagnoses:")
	for _, e := range table.Entries() {
		fmt.Fprintf(w, "  %d\t%s\n", e.Index, e.Label)
	}
	fmt.Fprintln(w, "Symptoms:")
	for i, s := range schema.Symptoms() {
		fmt.Fprintf(w, "  %2d\t%-22s %s\n", i, s.ID, s.Group)
	}
}
