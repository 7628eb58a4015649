package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/wonny/aegis/consult/internal/consult"
	"github.com/wonny/aegis/consult/internal/contracts"
	"github.com/wonny/aegis/consult/pkg/logger"
)

// Consulter runs one consultation
type Consulter interface {
	Consult(ctx context.Context, req consult.Request) (*consult.Result, error)
}

// ConsultJob runs a consultation on a schedule
// ⭐ SSOT: 정기 컨설테이션 스케줄은 이 Job에서만
type ConsultJob struct {
	name     string
	schedule string
	engine   Consulter
	market   MarketSource
	request  consult.Request
	logger   *logger.Logger
}

// NewConsultJob creates a job that consults the sector in req on schedule.
// MarketContext of req is replaced by the market source on every run.
func NewConsultJob(schedule string, engine Consulter, market MarketSource, req consult.Request, log *logger.Logger) *ConsultJob {
	sector := req.SectorFilter
	if sector == "" {
		sector = contracts.SectorAll
	}

	return &ConsultJob{
		name:     "consult_" + sector,
		schedule: schedule,
		engine:   engine,
		market:   market,
		request:  req,
		logger:   log,
	}
}

// Name returns the job name
func (j *ConsultJob) Name() string {
	return j.name
}

// Schedule returns the cron schedule
func (j *ConsultJob) Schedule() string {
	return j.schedule
}

// Run executes one consultation.
// Only run-aborting failures fail the job; a degraded run still succeeds.
func (j *ConsultJob) Run(ctx context.Context) (string, error) {
	j.logger.WithField("job", j.name).Info("Starting scheduled consultation")

	market, err := j.market.MarketContext(ctx)
	if err != nil {
		return "", fmt.Errorf("load market context: %w", err)
	}

	req := j.request
	req.RunID = "" // 매 회차 새 run id
	req.MarketContext = market

	res, err := j.engine.Consult(ctx, req)
	if err != nil {
		var runErr *contracts.RunError
		if errors.As(err, &runErr) {
			return "", fmt.Errorf("consultation aborted at %s: %w", runErr.Stage, err)
		}
		return "", err
	}

	s := res.Summary
	return fmt.Sprintf("run=%s signals=%d invoked=%d succeeded=%d failed=%d degraded=%t",
		s.RunID, len(res.Signals), s.Invoked, s.Succeeded, s.Failed(), s.Degraded), nil
}
