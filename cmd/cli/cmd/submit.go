package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"quantplane/internal/job"
	"quantplane/internal/observability"
	"quantplane/internal/orchestrator"
)

var submitCmd = &cobra.Command{
	Use:   "submit <build|push|build+push> <variant>",
	Short: "Run a quantization job on a fresh instance",
	Long: `Provision the worker instance, run the requested action for one
quantization variant and wait for the outcome.

The command blocks until the worker reports success or failure through the
status bucket, then deletes the instance. Ctrl-C aborts the wait and still
deletes the instance. A timeout deliberately leaves the instance running so
it can be inspected; delete it afterwards with 'quantctl cleanup'.

Example:
  quantctl submit build+push q8_0
  quantctl submit build q4_K_M --model llama3`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		action := job.Action(args[0])
		variant := args[1]

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		o, cfg, cleanup, err := newOrchestrator(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		shutdownTracer, err := observability.Init(ctx, "quantplane-orchestrator", cfg.OTELEndpoint)
		if err != nil {
			return err
		}
		defer shutdownTracer(context.Background())

		if err := o.ValidateEnvironment(ctx); err != nil {
			return err
		}

		model, _ := cmd.Flags().GetString("model")
		if model == "" {
			model = cfg.SourceModelShortName()
		}

		req := job.Request{
			Action:    action,
			Variant:   variant,
			Model:     model,
			Source:    cfg.SourceModel,
			Namespace: cfg.Namespace,
			Bucket:    cfg.Bucket,
			HFToken:   cfg.HFToken,
		}
		if action.Pushes() && cfg.RegistryKeyPath != "" {
			key, err := os.ReadFile(cfg.RegistryKeyPath)
			if err != nil {
				return fmt.Errorf("read registry key %s: %w", cfg.RegistryKeyPath, err)
			}
			req.RegistryKey = string(key)
		}

		cmd.Printf("Submitting %s%s%s for variant %s%s%s\n",
			colorBold, action, colorReset, colorBold, variant, colorReset)

		out, err := o.Submit(ctx, req)
		printOutcome(cmd, out)
		if errors.Is(err, orchestrator.ErrTimeout) {
			cmd.Printf("%sThe instance was left running for inspection. Delete it with 'quantctl cleanup'.%s\n",
				colorYellow, colorReset)
		}
		return err
	},
}

func printOutcome(cmd *cobra.Command, out orchestrator.Outcome) {
	cmd.Printf("\n%s %sOutcome%s\n", stateIcon(out.State), colorBold, colorReset)
	cmd.Println("──────────────────────────────")
	cmd.Printf("%sState:%s   %s\n", colorDim, colorReset, colorizeState(out.State))
	if out.Detail != "" {
		cmd.Printf("%sDetail:%s  %s\n", colorDim, colorReset, out.Detail)
	}
	if out.Fail != nil {
		cmd.Printf("%sStage:%s   %s%s%s\n", colorDim, colorReset, colorRed, out.Fail.Stage, colorReset)
	}
	if out.LogTail != "" {
		cmd.Printf("\n%sWorker log tail:%s\n%s\n", colorDim, colorReset, out.LogTail)
	}
}

func init() {
	submitCmd.Flags().StringP("model", "m", "", "local model name (default: derived from the source reference)")

	rootCmd.AddCommand(submitCmd)
}
