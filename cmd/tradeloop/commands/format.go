package commands

import (
	"fmt"
	"strings"

	"github.com/wonny/tradeloop/internal/contracts"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// 모든 커맨드가 동일한 출력 포맷을 사용하도록 통일
// ═══════════════════════════════════════════════════════════

// PrintHeader prints a titled double-line header
func PrintHeader(title string) {
	fmt.Println()
	PrintDoubleSeparator()
	fmt.Printf("  %s\n", title)
	PrintSeparator()
}

// PrintSeparator prints a visual separator
func PrintSeparator() {
	fmt.Println("───────────────────────────────────────────────────────────")
}

// PrintDoubleSeparator prints a double-line separator
func PrintDoubleSeparator() {
	fmt.Println("═══════════════════════════════════════════════════════════")
}

// PrintWarning prints a warning message
func PrintWarning(message string) {
	fmt.Println()
	fmt.Printf("⚠️  %s\n", message)
	fmt.Println()
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	fmt.Printf("✅ %s\n", message)
}

// PrintError prints an error message
func PrintError(message string) {
	fmt.Printf("❌ %s\n", message)
}

// PrintTableHeader prints a table header
func PrintTableHeader(columns []string, widths []int) {
	PrintTableRow(columns, widths)

	totalWidth := 0
	for i, width := range widths {
		totalWidth += width
		if i < len(widths)-1 {
			totalWidth += 2 // spacing
		}
	}
	fmt.Println(strings.Repeat("─", totalWidth))
}

// PrintTableRow prints a table row
func PrintTableRow(values []string, widths []int) {
	for i, val := range values {
		fmt.Printf("%-*s", widths[i], val)
		if i < len(values)-1 {
			fmt.Print("  ")
		}
	}
	fmt.Println()
}

// PrintList prints a bulleted list
func PrintList(items []string) {
	for _, item := range items {
		fmt.Printf("   • %s\n", item)
	}
}

// PrintKeyValue prints key-value pairs
func PrintKeyValue(key string, value string, keyWidth int) {
	fmt.Printf("   %-*s : %s\n", keyWidth, key, value)
}

var decisionColumns = []string{"TICKER", "ACTION", "SCORE", "CONF", "PRICE", "TARGET", "STOP"}
var decisionWidths = []int{14, 12, 6, 5, 10, 10, 10}

// PrintDecisions prints decisions as a table
func PrintDecisions(decisions []contracts.Decision) {
	if len(decisions) == 0 {
		fmt.Println("   (none)")
		return
	}
	PrintTableHeader(decisionColumns, decisionWidths)
	for _, d := range decisions {
		PrintTableRow([]string{
			d.Ticker,
			string(d.Action),
			fmt.Sprintf("%.1f", d.CompositeScore),
			fmt.Sprintf("%d%%", d.Confidence),
			fmt.Sprintf("%.2f", d.Price),
			fmt.Sprintf("%.2f", d.TargetPrice),
			fmt.Sprintf("%.2f", d.StopLoss),
		}, decisionWidths)
	}
}
