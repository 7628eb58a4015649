package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis/consult/internal/consult"
	"github.com/wonny/aegis/consult/internal/scheduler/jobs"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "컨설테이션 1회 실행",
	Long: `활성 전략 인스턴스 전체에 대해 컨설테이션을 1회 실행합니다.

이 명령어는:
- 인스턴스 로드 및 템플릿 렌더링
- 평가 요청 스냅샷 저장 (평가기 호출 전)
- 평가기 병렬 호출, 결과 파싱/검증, 중복 제거
- signals + run_summary JSON을 표준 출력으로 출력

Example:
  go run ./cmd/consult run
  go run ./cmd/consult run --sector TECH --market market.json
  go run ./cmd/consult run --max-concurrent 10 --per-call-timeout 20s`,
	RunE: runConsult,
}

var (
	runSector         string
	runMarketFile     string
	runID             string
	runMaxConcurrent  int
	runPerCallTimeout time.Duration
	runDeadline       time.Duration
)

func init() {
	rootCmd.AddCommand(runCmd)

	// Flags (미지정 시 환경변수 설정값 사용)
	runCmd.Flags().StringVar(&runSector, "sector", "", "sector filter (default CONSULT_DEFAULT_SECTOR)")
	runCmd.Flags().StringVar(&runMarketFile, "market", "", "market context JSON file")
	runCmd.Flags().StringVar(&runID, "run-id", "", "run id (default: generated)")
	runCmd.Flags().IntVar(&runMaxConcurrent, "max-concurrent", 0, "max in-flight evaluator calls")
	runCmd.Flags().DurationVar(&runPerCallTimeout, "per-call-timeout", 0, "timeout of one evaluator call")
	runCmd.Flags().DurationVar(&runDeadline, "run-deadline", 0, "deadline of the whole dispatch (0 = auto)")
}

func runConsult(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	engine, err := a.engine()
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	req := a.baseRequest()
	applyRunFlags(cmd, &req)

	if runMarketFile != "" {
		market, err := jobs.NewFileMarket(runMarketFile).MarketContext(ctx)
		if err != nil {
			return fmt.Errorf("load market context: %w", err)
		}
		req.MarketContext = market
	}

	result, runErr := engine.Consult(ctx, req)

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	if runErr != nil {
		return fmt.Errorf("consultation failed: %w", runErr)
	}
	return nil
}

// applyRunFlags overrides the configured limits with explicitly set flags
func applyRunFlags(cmd *cobra.Command, req *consult.Request) {
	flags := cmd.Flags()
	if flags.Changed("sector") {
		req.SectorFilter = runSector
	}
	if flags.Changed("run-id") {
		req.RunID = runID
	}
	if flags.Changed("max-concurrent") {
		req.MaxConcurrent = runMaxConcurrent
	}
	if flags.Changed("per-call-timeout") {
		req.PerCallTimeoutMs = int(runPerCallTimeout.Milliseconds())
	}
	if flags.Changed("run-deadline") {
		req.RunDeadlineMs = int(runDeadline.Milliseconds())
	}
}
