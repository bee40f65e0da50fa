package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/tradeloop/internal/agent"
	"github.com/wonny/tradeloop/internal/contracts"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan [universe]",
	Short: "Scan a universe once and exit",
	Long: `Runs one universe scan in the foreground, persisting every decision.

With --all every universe is scanned in catalogue order. Without a universe
argument the first catalogue universe is used.

Example:
  go run ./cmd/tradeloop scan
  go run ./cmd/tradeloop scan midcap --limit 10
  go run ./cmd/tradeloop scan --all`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScan,
}

var (
	scanLimit int
	scanAll   bool
)

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().IntVar(&scanLimit, "limit", 0, "max instruments to analyze (0 = whole universe)")
	scanCmd.Flags().BoolVar(&scanAll, "all", false, "scan every universe")
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	start := time.Now()

	if scanAll {
		PrintHeader("Full scan: " + fmt.Sprint(a.universes.Keys()))
		results, err := a.agent.ScanAll(ctx)
		for _, key := range a.universes.Keys() {
			if res, ok := results[key]; ok {
				printScanResult(res)
			}
		}
		if err != nil {
			return err
		}
		PrintSuccess(fmt.Sprintf("Full scan completed in %.2fs", time.Since(start).Seconds()))
		return nil
	}

	key := a.universes.At(0).Key
	if len(args) == 1 {
		key = args[0]
	}

	PrintHeader("Scan: " + key)
	res, err := a.agent.RunAutoScan(ctx, key, scanLimit)
	if errors.Is(err, contracts.ErrScanInProgress) {
		PrintWarning("Another scan holds the scan flag; try again later")
		return nil
	}
	if err != nil {
		return err
	}

	printScanResult(res)
	PrintSuccess(fmt.Sprintf("Scan completed in %.2fs", time.Since(start).Seconds()))
	return nil
}

func printScanResult(res *contracts.ScanResult) {
	fmt.Println()
	PrintKeyValue("Universe", res.Universe, 10)
	PrintKeyValue("Scanned", fmt.Sprint(res.TotalScanned), 10)
	PrintKeyValue("Signals", fmt.Sprintf("%d buy / %d sell", res.Buys, res.Sells), 10)
	PrintKeyValue("Errors", fmt.Sprint(res.Errors), 10)

	fmt.Println("\nTop buys:")
	PrintDecisions(res.TopBuys)
	fmt.Println("\nTop sells:")
	PrintDecisions(res.TopSells)

	if len(res.ErrorDetails) > 0 {
		fmt.Println("\nErrors:")
		PrintList(res.ErrorDetails)
	}
}

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze [ticker...]",
	Short: "Analyze instruments and print their decisions",
	Long: `Runs the five-factor pipeline on each ticker. Bare symbols get the
default exchange suffix (.NS).

Example:
  go run ./cmd/tradeloop analyze RELIANCE TCS
  go run ./cmd/tradeloop analyze INFY.NS --save=false`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

var analyzeSave bool

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().BoolVar(&analyzeSave, "save", true, "persist the decisions")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	tickers := make([]string, len(args))
	for i, t := range args {
		tickers[i] = agent.NormalizeTicker(t)
	}

	if len(tickers) == 1 {
		d, err := a.agent.Analyze(ctx, tickers[0], analyzeSave)
		if err != nil {
			PrintError(err.Error())
			return err
		}
		PrintHeader(fmt.Sprintf("%s (%s)", d.Ticker, d.Name))
		PrintDecisions([]contracts.Decision{*d})
		fmt.Println()
		PrintKeyValue("Horizon", d.TimeHorizon, 8)
		PrintKeyValue("Risk", fmt.Sprintf("%d/10", d.RiskRating), 8)
		fmt.Println("\nReasoning:")
		PrintList(d.Reasoning)
		return nil
	}

	res, err := a.agent.ScanTickers(ctx, tickers, len(tickers), analyzeSave)
	if err != nil {
		return err
	}
	PrintHeader(fmt.Sprintf("Analyzed %d/%d", res.TotalScanned, len(tickers)))
	PrintDecisions(res.AllResults)
	if len(res.Errors) > 0 {
		fmt.Println("\nErrors:")
		PrintList(res.Errors)
	}
	return nil
}
