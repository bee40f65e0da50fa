package commands

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	env     string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tradeloop",
	Short: "tradeloop - self-learning equity analysis agent",
	Long: `tradeloop Unified CLI

Scores instruments on five factors, issues BUY/SELL/HOLD decisions,
evaluates them against later prices and adapts its factor weights.

Usage:
  go run ./cmd/tradeloop [command]

Examples:
  go run ./cmd/tradeloop serve
  go run ./cmd/tradeloop scan nifty50 --limit 10
  go run ./cmd/tradeloop analyze RELIANCE
  go run ./cmd/tradeloop learn
  go run ./cmd/tradeloop status
  go run ./cmd/tradeloop check`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// 플래그는 환경변수로 넘겨서 config.Load()가 단일 진입점으로 남게 함
		if cmd.Flags().Changed("env") {
			os.Setenv("ENV", env)
		}
		if verbose {
			os.Setenv("LOG_LEVEL", "debug")
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&env, "env", "development", "environment (development|staging|production)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
