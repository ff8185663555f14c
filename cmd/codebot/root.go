package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"codebot/internal/config"
	"codebot/internal/telemetry"
)

var exit = os.Exit

var (
	cfgFile string
	logFile string
)

// errThreshold is returned when --fail-on trips. It exits with code 2 so
// CI can tell findings apart from failures.
var errThreshold = errors.New("findings at or above the failure threshold")

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "codebot",
	Short: "codebot: multi-engine security scanner",
	Long: `codebot scans a repository file by file for vulnerable dependencies,
hardcoded secrets, dangerous code patterns, insecure configuration and CI/CD
pipeline weaknesses, and reports a severity-ranked result with a risk score.

Large repositories are scanned in chunks: each result carries a cursor for
the next chunk.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Load(cfgFile); err != nil {
			return err
		}
		telemetry.InitLogger(viper.GetBool("verbose"), logFile)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	if errors.Is(err, errThreshold) {
		exit(2)
		return
	}
	exit(1)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also append JSON logs to this file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose/debug logging")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}
