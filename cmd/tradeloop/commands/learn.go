package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/tradeloop/internal/agent"
	"github.com/wonny/tradeloop/internal/learning"
)

// learnCmd represents the learn command
var learnCmd = &cobra.Command{
	Use:   "learn",
	Short: "Run one learning cycle",
	Long: `Evaluates recent actionable decisions against later prices and folds the
outcomes into the learning state. Weights adapt every 10 evaluations.

Subcommands:
  summary  - print the learning digest without evaluating

Example:
  go run ./cmd/tradeloop learn
  go run ./cmd/tradeloop learn --latest 50
  go run ./cmd/tradeloop learn summary`,
	RunE: runLearn,
}

var learnSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print the learning digest",
	RunE:  runLearnSummary,
}

var learnLatest int

func init() {
	rootCmd.AddCommand(learnCmd)
	learnCmd.AddCommand(learnSummaryCmd)

	learnCmd.Flags().IntVar(&learnLatest, "latest", 0, "evaluate the newest N decisions of any action instead of the recent actionable window")
}

func runLearn(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	PrintHeader("Learning cycle")

	var run *agent.LearningRun
	if learnLatest > 0 {
		run, err = a.agent.EvaluateLatest(ctx, learnLatest)
	} else {
		run, err = a.agent.Learn(ctx)
	}
	if err != nil {
		return err
	}
	if run.Skipped {
		PrintWarning("Nothing to learn from (" + run.Reason + ")")
		return nil
	}

	PrintKeyValue("Evaluated", fmt.Sprint(run.Evaluated), 10)
	PrintKeyValue("Failed", fmt.Sprint(run.Failed), 10)

	summary, err := a.learner.Summary(ctx)
	if err != nil {
		return err
	}
	printSummary(summary)
	return nil
}

func runLearnSummary(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	summary, err := a.learner.Summary(ctx)
	if err != nil {
		return err
	}
	PrintHeader("Learning summary")
	printSummary(summary)
	return nil
}

func printSummary(s *learning.Summary) {
	fmt.Println()
	PrintKeyValue("Evaluated", fmt.Sprint(s.TotalEvaluated), 12)
	PrintKeyValue("Accuracy", fmt.Sprintf("%.1f%%", s.OverallAccuracyPct), 12)
	PrintKeyValue("Regime", s.MarketRegime, 12)
	PrintKeyValue("Adaptations", fmt.Sprint(s.AdaptationsCount), 12)

	factors := make([]string, 0, len(s.CurrentWeights))
	for f := range s.CurrentWeights {
		factors = append(factors, f)
	}
	sort.Strings(factors)

	fmt.Println("\nWeights:")
	widths := []int{16, 8}
	PrintTableHeader([]string{"FACTOR", "WEIGHT"}, widths)
	for _, f := range factors {
		PrintTableRow([]string{f, fmt.Sprintf("%.3f", s.CurrentWeights[f])}, widths)
	}

	if len(s.RecentLessons) > 0 {
		fmt.Println("\nRecent lessons:")
		lessons := make([]string, len(s.RecentLessons))
		for i, l := range s.RecentLessons {
			lessons[i] = l.Lesson
		}
		PrintList(lessons)
	}
}
