package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "consult",
	Short: "Strategy consultation engine",
	Long: `Concurrent Strategy Consultation Engine CLI

등록된 전략 인스턴스를 템플릿으로 렌더링하고,
외부 평가기에 병렬로 질의한 뒤 검증된 시그널을 모읍니다.

Usage:
  go run ./cmd/consult [command]

Examples:
  go run ./cmd/consult run --sector TECH --market market.json
  go run ./cmd/consult instances
  go run ./cmd/consult render iron_condor_spy
  go run ./cmd/consult api`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}
