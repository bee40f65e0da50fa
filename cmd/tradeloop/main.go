package main

import (
	"os"

	"github.com/wonny/tradeloop/cmd/tradeloop/commands"
)

// main is the entry point for the tradeloop CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/tradeloop [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
