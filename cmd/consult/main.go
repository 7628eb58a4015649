package main

import (
	"os"

	"github.com/wonny/aegis/consult/cmd/consult/commands"
)

// main is the entry point for the consultation CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/consult [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
