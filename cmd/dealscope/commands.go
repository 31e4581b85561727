package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/mbd888/dealscope/internal/assessment"
	"github.com/mbd888/dealscope/internal/evidence"
	"github.com/mbd888/dealscope/internal/logging"
	"github.com/mbd888/dealscope/internal/rulebook"
)

var rulebookPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "dealscope",
		Short:         "Score credit deals with the dealscope risk model",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&rulebookPath, "rulebook", os.Getenv("RULEBOOK_PATH"), "rulebook YAML (default: embedded)")

	root.AddCommand(newScoreCmd(), newAumCmd(), newRulebookCmd(), newClassifyCmd())
	return root
}

func newScoreCmd() *cobra.Command {
	var file, output string
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Evaluate a snapshot JSON file (companies + edges)",
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer func() { _ = f.Close() }()
				in = f
			}

			var snap assessment.Snapshot
			if err := json.NewDecoder(in).Decode(&snap); err != nil {
				return fmt.Errorf("decode snapshot: %w", err)
			}

			rb, err := rulebook.Load(rulebookPath)
			if err != nil {
				return err
			}
			svc, err := assessment.NewService(rb, nil, logging.NewWriter(cmd.ErrOrStderr(), "warn", "text"))
			if err != nil {
				return err
			}
			a, err := svc.Assess(context.Background(), snap)
			if err != nil {
				return err
			}

			switch output {
			case "json":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(a)
			case "text":
				return writeAssessment(cmd.OutOrStdout(), a)
			default:
				return fmt.Errorf("unknown output %q (want json or text)", output)
			}
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "snapshot file, - for stdin")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text or json")
	return cmd
}

func writeAssessment(w io.Writer, a *assessment.Assessment) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COMPANY\tDIRECT\tPROPAGATED\tTOTAL\tLEVEL")
	for _, c := range a.Companies {
		fmt.Fprintf(tw, "%s\t%g\t%g\t%g\t%s\n", c.CompanyID, c.DirectScore, c.PropagatedScore, c.TotalScore, c.RiskLevel)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, d := range a.Dropped {
		fmt.Fprintf(w, "dropped edge %s -> %s: %s\n", d.Edge.From, d.Edge.To, d.Reason)
	}
	return nil
}

func newAumCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "aum <value>...",
		Short: `Sum Korean currency amounts ("1.2조", "4,200억") into a portfolio AUM`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			total := decimal.Zero
			for _, v := range args {
				eok, ok := evidence.ParseEok(v)
				if !ok {
					fmt.Fprintf(out, "%-16s  unparsed\n", v)
					continue
				}
				fmt.Fprintf(out, "%-16s  %s억\n", v, eok.String())
				total = total.Add(eok)
			}
			fmt.Fprintf(out, "total: %s억 (%s)\n", total.String(), evidence.FormatAumEok(total.InexactFloat64()))
			return nil
		},
	}
}

func newRulebookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rulebook",
		Short: "Inspect and validate rulebooks",
	}

	var file string
	validate := &cobra.Command{
		Use:   "validate",
		Short: "Validate a rulebook file, or the embedded default",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := file
			if path == "" {
				path = rulebookPath
			}
			rb, err := rulebook.Load(path)
			if err != nil {
				return err
			}
			name := path
			if name == "" {
				name = "embedded rulebook"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s OK: %d rules, %d modules, thresholds %g/%g, propagation %s\n",
				name, len(rb.Rules), len(rb.Modules), rb.Thresholds.Warning, rb.Thresholds.Fail, rb.Propagation.Mode)
			return nil
		},
	}
	validate.Flags().StringVarP(&file, "file", "f", "", "rulebook YAML to validate")

	cmd.AddCommand(validate)
	return cmd
}

func newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <totalScore>",
		Short: "Classify a total score as PASS, WARNING or FAIL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			total, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("total score must be a number: %w", err)
			}
			rb, err := rulebook.Load(rulebookPath)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), rb.Thresholds.Classify(total))
			return nil
		},
	}
}
