package cmd

import (
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"quantplane/internal/compute"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete the worker instance",
	Long: `Delete the worker instance if one exists. Safe to run at any time; the
deletion is idempotent.

Use this after a timed-out submission, which leaves the instance running on
purpose so it can be inspected first.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		force, _ := cmd.Flags().GetBool("force")
		if !force {
			prompt := promptui.Prompt{
				Label:     "Delete instance " + compute.InstanceName,
				IsConfirm: true,
			}
			if _, err := prompt.Run(); err != nil {
				cmd.Println("Aborted.")
				return nil
			}
		}

		o, _, cleanup, err := newOrchestrator(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		if err := o.Cleanup(ctx); err != nil {
			return err
		}
		cmd.Printf("%s✓%s Instance deleted (or none existed).\n", colorGreen, colorReset)
		return nil
	},
}

func init() {
	cleanupCmd.Flags().BoolP("force", "f", false, "skip the confirmation prompt")

	rootCmd.AddCommand(cleanupCmd)
}
