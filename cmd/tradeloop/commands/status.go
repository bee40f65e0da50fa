package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/tradeloop/internal/contracts"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show agent scan state and recent activity",
	Long: `Prints the persisted scan state, per-universe last scan times and the
newest activity entries. With --watch the view refreshes until Ctrl+C.

Example:
  go run ./cmd/tradeloop status
  go run ./cmd/tradeloop status --activity 30
  go run ./cmd/tradeloop status --watch --refresh 5s`,
	RunE: runStatus,
}

var (
	statusActivity int
	statusWatch    bool
	statusRefresh  time.Duration
)

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().IntVar(&statusActivity, "activity", contracts.RecentActivityView, "activity entries to show")
	statusCmd.Flags().BoolVar(&statusWatch, "watch", false, "refresh periodically")
	statusCmd.Flags().DurationVar(&statusRefresh, "refresh", 3*time.Second, "refresh interval for --watch")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if !statusWatch {
		return printStatus(ctx, a)
	}

	ticker := time.NewTicker(statusRefresh)
	defer ticker.Stop()
	for {
		fmt.Print("\033[H\033[2J")
		if err := printStatus(ctx, a); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func printStatus(ctx context.Context, a *app) error {
	st, err := a.store.ScanState(ctx)
	if err != nil {
		return fmt.Errorf("load scan state: %w", err)
	}

	PrintHeader("Agent status (" + a.store.Backend() + ")")
	scanning := "idle"
	if st.InProgress {
		scanning = "scanning " + st.CurrentUniverse
		if st.ScanStartedAt != nil {
			scanning += fmt.Sprintf(" (since %s)", st.ScanStartedAt.Format(time.RFC3339))
		}
	}
	PrintKeyValue("State", scanning, 16)
	PrintKeyValue("Scans completed", fmt.Sprint(st.TotalScansCompleted), 16)
	PrintKeyValue("Stocks analyzed", fmt.Sprint(st.TotalStocksAnalyzed), 16)
	PrintKeyValue("Decisions saved", fmt.Sprint(st.TotalDecisionsSaved), 16)
	PrintKeyValue("Learning cycles", fmt.Sprint(st.LearningCycles), 16)
	if st.AgentStartedAt != nil {
		PrintKeyValue("Agent started", st.AgentStartedAt.Format(time.RFC3339), 16)
	}

	fmt.Println("\nLast scan per universe:")
	widths := []int{16, 26, 12}
	PrintTableHeader([]string{"UNIVERSE", "LAST SCAN", "AGO"}, widths)
	now := time.Now().UTC()
	for _, key := range a.universes.Keys() {
		at, ok := st.LastScan[key]
		if !ok {
			PrintTableRow([]string{key, "never", "-"}, widths)
			continue
		}
		PrintTableRow([]string{key, at.Format(time.RFC3339), now.Sub(at).Round(time.Minute).String()}, widths)
	}

	// 카탈로그에서 빠진 유니버스 기록도 표시
	var orphaned []string
	for key := range st.LastScan {
		if _, err := a.universes.Get(key); err != nil {
			orphaned = append(orphaned, key)
		}
	}
	if len(orphaned) > 0 {
		sort.Strings(orphaned)
		PrintWarning(fmt.Sprintf("Scan history for universes no longer in the catalogue: %v", orphaned))
	}

	entries, err := a.store.RecentActivity(ctx, statusActivity)
	if err != nil {
		return fmt.Errorf("load activity: %w", err)
	}
	fmt.Println("\nRecent activity:")
	for _, e := range entries {
		fmt.Printf("   %s  %-9s %-20s %s\n", e.Timestamp.Format("01-02 15:04:05"), e.Category, e.Action, e.Detail)
	}
	return nil
}
