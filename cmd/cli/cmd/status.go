package cmd

import (
	"github.com/spf13/cobra"

	"quantplane/internal/orchestrator"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarize every variant's last outcome and the instance state",
	Long: `Sweep the status bucket and report, per quantization variant, the last
recorded outcome (pushed, built, failed), plus the worker instance if one is
currently alive.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		o, _, cleanup, err := newOrchestrator(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		report, err := o.Status(ctx)
		if err != nil {
			return err
		}
		printReport(cmd, report)
		return nil
	},
}

func printReport(cmd *cobra.Command, report orchestrator.StatusReport) {
	cmd.Printf("%sVariants%s\n", colorBold, colorReset)
	cmd.Println("──────────────────────────────")
	if len(report.Variants) == 0 {
		cmd.Printf("%sNo outcomes recorded yet.%s\n", colorDim, colorReset)
	}
	for _, vs := range report.Variants {
		cmd.Printf("%s %s%-10s%s %s\n", stateIcon(vs.State), colorBold, vs.Variant, colorReset, vs.Detail)
	}

	cmd.Printf("\n%sInstance%s\n", colorBold, colorReset)
	cmd.Println("──────────────────────────────")
	if report.Instance == nil {
		cmd.Printf("%sNo worker instance exists.%s\n", colorDim, colorReset)
		return
	}
	inst := report.Instance
	cmd.Printf("%sName:%s     %s\n", colorDim, colorReset, inst.Name)
	cmd.Printf("%sStatus:%s   %s\n", colorDim, colorReset, inst.Status)
	cmd.Printf("%sZone:%s     %s\n", colorDim, colorReset, inst.Zone)
	cmd.Printf("%sCreated:%s  %s\n", colorDim, colorReset, formatTimeWithRelative(inst.Created))
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
