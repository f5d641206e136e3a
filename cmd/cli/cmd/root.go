package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "quantctl",
	Short: "Quantctl drives model quantization runs on ephemeral cloud instances",
	Long: `quantctl is the command-line interface for the quantplane pipeline.

quantplane quantizes large language models on a single ephemeral cloud
instance. The CLI provisions the instance, the worker on it builds and pushes
the requested quantization, and both sides coordinate through marker objects
in a shared storage bucket:

  - Orchestrator: this CLI; provisions, monitors the bucket, tears down
  - Worker: runs on the instance, quantizes, pushes, reports via markers

Common workflows:

  Build a quantization and push it to the registry:
    quantctl submit build+push q8_0

  Build only (the artifact lands in the bucket):
    quantctl submit build q4_K_M

  Check what each variant last did:
    quantctl status

  Pull every pushed variant into a local ollama:
    quantctl pull

  Delete a leftover instance after a timeout:
    quantctl cleanup

Configuration:
  Required settings come from environment variables (a .env file works too):
    QUANTPLANE_PROJECT        Cloud project owning instance and bucket
    QUANTPLANE_NAMESPACE      Registry namespace models are pushed under
    QUANTPLANE_BUCKET         Status channel bucket
    QUANTPLANE_SOURCE_MODEL   Hugging Face source reference
    HF_TOKEN                  Hugging Face token (build actions)
    QUANTPLANE_REGISTRY_KEY   Path to the ollama signing key (push actions)`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".quantctl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".quantctl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "QUANTPLANE_VARNAME"
	viper.SetEnvPrefix("QUANTPLANE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.quantctl.yaml)")

	rootCmd.PersistentFlags().String("zone", "", "override the instance zone")
	viper.BindPFlag("zone", rootCmd.PersistentFlags().Lookup("zone"))

	rootCmd.PersistentFlags().String("machine-type", "", "override the instance machine type")
	viper.BindPFlag("machine-type", rootCmd.PersistentFlags().Lookup("machine-type"))

	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}
