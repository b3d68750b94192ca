package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/triage"
	"github.com/jwalitptl/hospital-api/pkg/validator"
)

func triageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "triage",
		Short: "Triage scoring tools",
	}

	scoreCmd := &cobra.Command{
		Use:   "score",
		Short: "Score a clinical snapshot read from a JSON file or stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			in := cmd.InOrStdin()
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			return runScore(in, cmd.OutOrStdout())
		},
	}
	scoreCmd.Flags().StringP("file", "f", "-", "snapshot JSON, - for stdin")
	cmd.AddCommand(scoreCmd)

	return cmd
}

// runScore rejects unknown consciousness levels, unlike the HTTP preview.
func runScore(in io.Reader, out io.Writer) error {
	var req model.ScoreRequest
	dec := json.NewDecoder(in)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return fmt.Errorf("invalid snapshot: %w", err)
	}

	if err := validator.New().Struct(&req); err != nil {
		fields := validator.Fields(err)
		if fields == nil {
			return err
		}
		msgs := make([]string, 0, len(fields))
		for _, f := range fields {
			msgs = append(msgs, f.Field+": "+f.Message)
		}
		return fmt.Errorf("invalid snapshot: %s", strings.Join(msgs, "; "))
	}

	snap := triage.Snapshot{
		Vitals:        req.VitalSigns,
		Consciousness: req.Consciousness,
		Symptoms:      triage.SymptomNames(req.Symptoms),
		RiskFactors:   req.RiskFactors,
	}
	res := triage.Evaluate(&snap)

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(&model.ScoreResult{
		Score:                       res.Score,
		Category:                    res.Category,
		RecommendedAction:           res.RecommendedAction,
		ReassessmentIntervalMinutes: res.Interval,
		VitalSigns:                  snap.Vitals,
	})
}
