package cmd

import (
	"github.com/spf13/cobra"
)

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Pull every pushed variant into a local ollama",
	Long: `Pull each variant that has been pushed to the registry through a local
ollama endpoint, so the quantized models are usable on this machine.

The endpoint is probed in order: OLLAMA_HOST if set, the container bridge
address, then localhost.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		o, _, cleanup, err := newOrchestrator(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		if err := o.Pull(ctx); err != nil {
			return err
		}
		cmd.Printf("%s✓%s Done.\n", colorGreen, colorReset)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pullCmd)
}
