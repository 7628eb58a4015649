package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis/consult/internal/scheduler"
	"github.com/wonny/aegis/consult/internal/scheduler/jobs"
)

// scheduleCmd represents the schedule command
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "정기 컨설테이션 스케줄러",
	Long: `cron 스케줄로 컨설테이션을 반복 실행합니다.

섹터마다 consult_<SECTOR> 작업이 하나씩 등록됩니다.
스케줄은 CONSULT_SCHEDULE (초 단위 포함 cron) 또는 --cron 으로 지정합니다.

Subcommands:
  start   - 스케줄러 시작
  run     - 특정 작업 즉시 실행

Example:
  go run ./cmd/consult schedule start --cron "0 */15 9-15 * * MON-FRI"
  go run ./cmd/consult schedule start --sectors TECH,ENERGY --market market.json
  go run ./cmd/consult schedule run consult_ALL`,
}

var (
	scheduleStartCmd = &cobra.Command{
		Use:   "start",
		Short: "스케줄러 시작",
		RunE:  runScheduler,
	}

	scheduleRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "특정 작업 즉시 실행",
		Args:  cobra.ExactArgs(1),
		RunE:  runScheduledJob,
	}
)

var (
	scheduleCron       string
	scheduleSectors    []string
	scheduleMarketFile string
)

func init() {
	rootCmd.AddCommand(scheduleCmd)
	scheduleCmd.AddCommand(scheduleStartCmd)
	scheduleCmd.AddCommand(scheduleRunCmd)

	scheduleCmd.PersistentFlags().StringVar(&scheduleCron, "cron", "", "cron expression with seconds (default CONSULT_SCHEDULE)")
	scheduleCmd.PersistentFlags().StringSliceVar(&scheduleSectors, "sectors", nil, "sector filters, one job each (default CONSULT_DEFAULT_SECTOR)")
	scheduleCmd.PersistentFlags().StringVar(&scheduleMarketFile, "market", "", "market context JSON file, re-read every run")
}

func runScheduler(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Consultation Scheduler ===")

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := a.scheduler(scheduleCron)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	sched.Start()

	fmt.Println("\n✅ Scheduler started successfully")
	fmt.Println("\nRegistered jobs:")
	for _, jobName := range sched.GetAllJobs() {
		next, _ := sched.NextRun(jobName)
		fmt.Printf("  - %s (next: %s)\n", jobName, next.Format("2006-01-02 15:04:05"))
	}
	fmt.Println("\nPress Ctrl+C to stop")

	ctx, stop := signalContext()
	defer stop()
	<-ctx.Done()

	fmt.Println("\nShutting down scheduler...")
	sched.Stop()
	fmt.Println("Scheduler stopped")

	return nil
}

func runScheduledJob(cmd *cobra.Command, args []string) error {
	jobName := args[0]

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	// 즉시 실행만 하므로 스케줄은 형식상 값
	sched, err := a.scheduler(orDefault(scheduleCron, "@daily"))
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	fmt.Printf("Running job: %s\n", jobName)

	result, err := sched.RunJob(jobName)
	if err != nil {
		return fmt.Errorf("run job: %w", err)
	}

	if !result.Success {
		return fmt.Errorf("job failed after %s: %s", result.Duration, result.Error)
	}

	fmt.Printf("✅ %s (%s)\n", result.Detail, result.Duration)
	return nil
}

// scheduler registers one consult job per sector.
// cronExpr falls back to CONSULT_SCHEDULE.
func (a *app) scheduler(cronExpr string) (*scheduler.Scheduler, error) {
	cronExpr = orDefault(cronExpr, a.cfg.Consult.Schedule)
	if cronExpr == "" {
		return nil, fmt.Errorf("no schedule: set CONSULT_SCHEDULE or --cron")
	}

	engine, err := a.engine()
	if err != nil {
		return nil, err
	}

	var market jobs.MarketSource = jobs.StaticMarket{}
	if scheduleMarketFile != "" {
		market = jobs.NewFileMarket(scheduleMarketFile)
	}

	sectors := scheduleSectors
	if len(sectors) == 0 {
		sectors = []string{a.cfg.Consult.DefaultSector}
	}

	sched := scheduler.New(a.log)
	for _, sector := range sectors {
		req := a.baseRequest()
		req.SectorFilter = strings.ToUpper(strings.TrimSpace(sector))

		if err := sched.AddJob(jobs.NewConsultJob(cronExpr, engine, market, req, a.log)); err != nil {
			return nil, err
		}
	}

	return sched, nil
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
